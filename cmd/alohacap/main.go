package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohacap"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/pacing"
)

// Populated via -ldflags="-X ...".
var GitRevisionId string
var GitTag string

var log = logging.DefaultLogger.WithTag("main")

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("alohacap", GitTag, GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
	fmt.Println("Visit https://lanikailabs.com for more information")
}

func config() alohacap.Config {
	cfg := alohacap.DefaultConfig()
	cfg.Resolution = flagResolution
	cfg.FPS = flagFPS
	cfg.Device = flagDevice
	cfg.SideBySide = flagSideBySide
	cfg.LogInput = flagLogInput
	cfg.ContainerInput = flagContainerInput
	cfg.ContainerOutput = flagContainerOutput
	cfg.LogOutput = flagLogOutput
	cfg.ImageOutput = flagImageOutput
	cfg.ImageFormat = flagImageFormat
	cfg.CalibOutput = flagCalibOutput
	cfg.Compression = flagCompression
	cfg.QueueDepth = flagQueue
	cfg.Depth = flagDepth
	cfg.Right = flagRight
	cfg.Display = flagDisplay
	cfg.DisplayAddr = flagDisplayAddr
	cfg.Duration = time.Duration(flagDuration) * time.Second
	cfg.Frames = flagFrames
	cfg.Warmup = time.Duration(flagWarmup * float64(time.Second))
	return cfg
}

func main() {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	flag.Usage = help
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument %q\n", flag.Arg(0))
		os.Exit(1)
	}

	cfg := config()
	if err := cfg.Validate(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	// Only an interrupt stops the run early. Repeated interrupts are harmless.
	var stop pacing.StopFlag
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			log.Info("Interrupted, stopping after this frame")
			stop.Stop()
		}
	}()

	sess, err := alohacap.Open(cfg, &stop)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	if _, err := sess.Run(context.Background()); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
