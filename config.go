//////////////////////////////////////////////////////////////////////////////
//
// Config describes one acquisition run, as given on the command line
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package alohacap

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/logfile"
	"github.com/lanikai/alohacap/internal/pacing"
	"github.com/lanikai/alohacap/internal/sink"
)

const (
	DefaultDevice      = "/dev/video0"
	DefaultResolution  = "hd1080"
	DefaultImageFormat = "png"
	DefaultCompression = "snappy"
	DefaultDisplayAddr = "127.0.0.1:8080"
)

type Config struct {
	// Resolution is a camera mode token: hd2k, hd1080, hd720 or vga.
	Resolution string

	// FPS is the requested camera rate, and the pacing target. Zero leaves
	// pacing to the source's own rate, if it has one.
	FPS float64

	// Inputs. At most one may be set; with neither, Device is opened live.
	LogInput       string
	ContainerInput string
	Device         string
	SideBySide     bool

	// Outputs. The first set of container, images, log is the primary
	// output; the others are ignored with a warning.
	ContainerOutput string
	ImageOutput     string
	LogOutput       string

	ImageFormat string
	CalibOutput string

	// Compression is "snappy" or a zlib level from 0 to 9.
	Compression string
	QueueDepth  int

	Depth bool
	Right bool

	Display     bool
	DisplayAddr string

	// Duration and Frames limit the run. Zero means no limit.
	Duration time.Duration
	Frames   int

	Warmup time.Duration
}

// DefaultConfig returns the configuration used when no options are given.
// It has no output, so it does not validate on its own.
func DefaultConfig() Config {
	return Config{
		Resolution:  DefaultResolution,
		Device:      DefaultDevice,
		ImageFormat: DefaultImageFormat,
		Compression: DefaultCompression,
		QueueDepth:  logfile.DefaultQueueDepth,
		DisplayAddr: DefaultDisplayAddr,
		Warmup:      pacing.DefaultWarmup,
	}
}

// live reports whether frames come from a camera rather than a recording.
func (c *Config) live() bool {
	return c.LogInput == "" && c.ContainerInput == ""
}

// settings holds the parsed form of a Config's tokens.
type settings struct {
	resolution  device.Resolution
	compression logfile.Compression
	format      sink.Format
}

// Validate checks the configuration without touching any device or file.
func (c *Config) Validate() error {
	_, err := c.parse()
	return err
}

func (c *Config) parse() (*settings, error) {
	if c.ContainerOutput == "" && c.ImageOutput == "" && c.LogOutput == "" && !c.Display {
		return nil, ErrNoOutput
	}
	if c.LogInput != "" && c.ContainerInput != "" {
		return nil, errors.New("cannot read both a log input and a container input")
	}
	if c.LogInput != "" && c.ContainerOutput != "" {
		return nil, errors.New("container output requires a camera or container input")
	}
	if c.FPS < 0 {
		return nil, errors.Errorf("invalid frame rate %g", c.FPS)
	}
	if c.Duration < 0 {
		return nil, errors.Errorf("invalid duration %v", c.Duration)
	}
	if c.Frames < 0 {
		return nil, errors.Errorf("invalid frame count %d", c.Frames)
	}
	if c.QueueDepth < 0 {
		return nil, errors.Errorf("invalid queue depth %d", c.QueueDepth)
	}

	var s settings
	var err error
	resolution := c.Resolution
	if resolution == "" {
		resolution = DefaultResolution
	}
	if s.resolution, err = device.ParseResolution(resolution); err != nil {
		return nil, err
	}
	if c.live() && c.FPS > s.resolution.MaxFPS {
		return nil, errors.Errorf("%v supports at most %g FPS", s.resolution, s.resolution.MaxFPS)
	}
	if s.compression, err = logfile.ParseCompression(c.Compression); err != nil {
		return nil, err
	}
	format := c.ImageFormat
	if format == "" {
		format = DefaultImageFormat
	}
	if s.format, err = sink.ParseFormat(format); err != nil {
		return nil, err
	}
	return &s, nil
}
