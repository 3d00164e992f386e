package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohacap"
)

var (
	flagResolution      string
	flagFPS             float64
	flagDevice          string
	flagSideBySide      bool
	flagLogInput        string
	flagContainerInput  string
	flagContainerOutput string
	flagLogOutput       string
	flagImageOutput     string
	flagImageFormat     string
	flagCalibOutput     string
	flagCompression     string
	flagQueue           int
	flagDepth           bool
	flagRight           bool
	flagDisplay         bool
	flagDisplayAddr     string
	flagDuration        int
	flagFrames          int
	flagWarmup          float64
	flagHelp            bool
	flagVersion         bool
)

func init() {
	flag.StringVarP(&flagResolution, "resolution", "r", alohacap.DefaultResolution, "Camera resolution")
	flag.Float64VarP(&flagFPS, "fps", "f", 0, "Frame rate")
	flag.StringVarP(&flagDevice, "device", "d", alohacap.DefaultDevice, "Camera device")
	flag.BoolVarP(&flagSideBySide, "side-by-side", "", false, "Camera packs both views into one frame")
	flag.StringVarP(&flagLogInput, "log-input", "", "", "Replay a log file")
	flag.StringVarP(&flagContainerInput, "container-input", "i", "", "Replay a container file")
	flag.StringVarP(&flagContainerOutput, "container-output", "s", "", "Record to a container file")
	flag.StringVarP(&flagLogOutput, "log-output", "l", "", "Record to a log file")
	flag.StringVarP(&flagImageOutput, "image-output", "", "", "Record images to a directory")
	flag.StringVarP(&flagImageFormat, "image-format", "", alohacap.DefaultImageFormat, "Image file format")
	flag.StringVarP(&flagCalibOutput, "calib-output", "", "", "Write camera calibration")
	flag.StringVarP(&flagCompression, "compression", "", alohacap.DefaultCompression, "Log compression")
	flag.IntVarP(&flagQueue, "queue", "", 16, "Frames queued for the compressor")
	flag.BoolVarP(&flagDepth, "depth", "", false, "Record depth")
	flag.BoolVarP(&flagRight, "right", "", false, "Record the right image")
	flag.BoolVarP(&flagDisplay, "display", "", false, "Show frames live")
	flag.StringVarP(&flagDisplayAddr, "display-addr", "", alohacap.DefaultDisplayAddr, "Live display address")
	flag.IntVarP(&flagDuration, "duration", "", 0, "Duration, in seconds")
	flag.IntVarP(&flagFrames, "frames", "", 0, "Stop after this many frames")
	flag.Float64VarP(&flagWarmup, "warmup", "", 1, "Warm-up delay, in seconds")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Record stereo camera frames to disk

Usage: alohacap [OPTION]...

Input:
  -d, --device=FILE            Camera device, or "pattern" for a synthetic
                               camera (default: /dev/video0)
  -r, --resolution=MODE        hd2k, hd1080, hd720 or vga (default: hd1080)
  -f, --fps=NUM                Camera frame rate and pacing target
                               (default: as fast as possible)
      --side-by-side           Camera packs both views into one frame
      --log-input=FILE         Replay a log file instead of a camera
  -i, --container-input=FILE   Replay a container file instead of a camera

Output (one of container, images, log):
  -s, --container-output=FILE  Record the camera straight to a container
      --image-output=DIR       Write each field of each frame to DIR
      --image-format=FMT       png, tiff or bmp (default: png)
  -l, --log-output=FILE        Record to a compressed log
      --compression=LEVEL      "snappy" or a zlib level 0-9 (default: snappy)
      --queue=NUM              Frames queued for the compressor (default: 16)
      --calib-output=FILE      Write the camera calibration
      --display                Show frames live in a browser
      --display-addr=ADDR      Live display address (default: 127.0.0.1:8080)

Fields:
      --right                  Record the right image
      --depth                  Record depth

Duration:
      --duration=SECS          Stop after this many seconds
      --frames=NUM             Stop after this many frames
      --warmup=SECS            Delay before the first frame (default: 1)

Miscellaneous:
  -h, --help                   Prints this help message and exits
  -v, --version                Prints version information and exits

Logging is configured with LOGLEVEL, e.g. LOGLEVEL=info,logfile=debug

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//         _         _
	//   __ _ | |  ___  | |__    __ _   ___  __ _  _ __
	//  / _` || | / _ \ | '_ \  / _` | / __|/ _` || '_ \
	// | (_| || || (_) || | | || (_| || (__| (_| || |_) |
	//  \__,_||_| \___/ |_| |_| \__,_| \___|\__,_|| .__/
	//                                            |_|

	// Line 1
	r.Printf("        ")
	y.Printf(" _ ")
	b.Printf("       ")
	y.Println(" _ ")

	// Line 2
	r.Printf("   __ _ ")
	y.Printf("| |")
	b.Printf("  ___  ")
	y.Printf("| |__  ")
	r.Printf("  __ _ ")
	b.Printf("  ___ ")
	r.Printf(" __ _ ")
	y.Println(" _ __  ")

	// Line 3
	r.Printf("  / _` |")
	y.Printf("| |")
	b.Printf(" / _ \\ ")
	y.Printf("| '_ \\ ")
	r.Printf(" / _` |")
	b.Printf(" / __|")
	r.Printf("/ _` |")
	y.Println("| '_ \\ ")

	// Line 4
	r.Printf(" | (_| |")
	y.Printf("| |")
	b.Printf("| (_) |")
	y.Printf("| | | |")
	r.Printf("| (_| |")
	b.Printf("| (__ ")
	r.Printf("| (_| |")
	y.Println("| |_) |")

	// Line 5
	r.Printf("  \\__,_|")
	y.Printf("|_|")
	b.Printf(" \\___/ ")
	y.Printf("|_| |_|")
	r.Printf(" \\__,_|")
	b.Printf(" \\___|")
	r.Printf("\\__,_|")
	y.Println("| .__/ ")

	// Line 6
	r.Printf("                                            ")
	y.Println("|_|    ")

	fmt.Println(helpString)
}
