// Package alohacap records frames from a stereo depth camera, or replays an
// earlier recording, to a compressed log, an image sequence, or a camera
// container, optionally showing them live in a browser.
//
// Open turns a validated Config into a recorder.Session; running the session
// performs the acquisition.
package alohacap

import (
	"os"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/pacing"
	"github.com/lanikai/alohacap/internal/recorder"
	"github.com/lanikai/alohacap/internal/sink"
	"github.com/lanikai/alohacap/internal/source"
)

var log = logging.DefaultLogger.WithTag("alohacap")

// Fields returns the fields a run with cfg acquires.
func (c *Config) Fields() frame.FieldSet {
	fields := frame.NewFieldSet(frame.Left)
	if c.Right {
		fields = fields.With(frame.Right)
	}
	if c.Depth {
		fields = fields.With(frame.Depth)
	}
	return fields
}

// Open validates cfg, opens its input and outputs, and returns the session
// ready to run. Nothing is left open when it fails. The stop flag, which
// may be nil, ends the session at the next cycle boundary.
func Open(cfg Config, stop *pacing.StopFlag) (sess *recorder.Session, err error) {
	s, err := cfg.parse()
	if err != nil {
		return nil, err
	}

	src, err := source.Open(source.Options{
		LogInput:       cfg.LogInput,
		ContainerInput: cfg.ContainerInput,
		Device:         cfg.Device,
		Resolution:     s.resolution,
		FPS:            cfg.FPS,
		SideBySide:     cfg.SideBySide,
	})
	if err != nil {
		return nil, err
	}
	var sinks []sink.Sink
	defer func() {
		if err != nil {
			for i := len(sinks) - 1; i >= 0; i-- {
				sinks[i].Close()
			}
			src.Close()
		}
	}()

	fields := cfg.Fields()
	if err = source.CheckFields(src, fields); err != nil {
		return nil, err
	}

	fps := cfg.FPS
	if fps == 0 {
		fps = src.FPS()
	}
	log.Info("Input is %s at nominal %g FPS", src.Describe(), fps)

	if cfg.CalibOutput != "" {
		writeCalibration(cfg, src)
	}

	primary, err := openPrimary(cfg, s, src, fields, fps)
	if err != nil {
		return nil, err
	}
	if primary != nil {
		sinks = append(sinks, primary)
	}

	if cfg.Display {
		d, derr := sink.NewDisplayServer(cfg.DisplayAddr, fields)
		if derr != nil {
			err = derr
			return nil, err
		}
		sinks = append(sinks, d)
	}

	if cfg.Duration > 0 {
		log.Info("Will log for %v or press CTRL-C to stop.", cfg.Duration)
	} else {
		log.Info("Logging now, press CTRL-C to stop.")
	}

	return &recorder.Session{
		Source: src,
		Sinks:  sinks,
		Fields: fields,
		Pacing: pacing.Config{
			FPS:       fps,
			Duration:  cfg.Duration,
			MaxFrames: cfg.Frames,
			Warmup:    cfg.Warmup,
		},
		Stop: stop,
	}, nil
}

// openPrimary opens the one primary output, preferring a container, then an
// image sequence, then a compressed log.
func openPrimary(cfg Config, s *settings, src source.Source, fields frame.FieldSet, fps float64) (sink.Sink, error) {
	requested := 0
	for _, out := range []string{cfg.ContainerOutput, cfg.ImageOutput, cfg.LogOutput} {
		if out != "" {
			requested++
		}
	}
	if requested > 1 {
		log.Warn("Only one of container, image and log output is recorded per run")
	}

	opts := logfile.Options{
		Compression: s.compression,
		QueueDepth:  cfg.QueueDepth,
		FPS:         fps,
	}

	switch {
	case cfg.ContainerOutput != "":
		live, ok := src.(*source.LiveSource)
		if !ok {
			return nil, errors.New("container output requires a camera or container input")
		}
		rec, err := device.StartRecording(live.Device(), cfg.ContainerOutput, opts)
		if err != nil {
			return nil, errors.Wrap(err, "unable to start recording")
		}
		if cfg.ImageOutput != "" {
			log.Warn("Ignoring image output %s", cfg.ImageOutput)
		}
		if cfg.LogOutput != "" {
			log.Warn("Ignoring log output %s", cfg.LogOutput)
		}
		return sink.NewPassthrough(rec), nil

	case cfg.ImageOutput != "":
		if err := makeDirectory(cfg.ImageOutput); err != nil {
			return nil, err
		}
		if cfg.LogOutput != "" {
			log.Warn("Ignoring log output %s", cfg.LogOutput)
		}
		out, err := sink.NewImageSequence(cfg.ImageOutput, s.format, fields)
		if err != nil {
			return nil, err
		}
		return out, nil

	case cfg.LogOutput != "":
		w, h := src.Size()
		out, err := sink.NewCompressedLog(cfg.LogOutput, fields, w, h, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open file %s for logging", cfg.LogOutput)
		}
		return out, nil
	}
	return nil, nil
}

func makeDirectory(dir string) error {
	st, err := os.Stat(dir)
	if err == nil {
		if !st.IsDir() {
			return errors.Errorf("%s is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrap(err, "image output")
	}
	log.Warn("Making directory %s", dir)
	return errors.Wrap(os.MkdirAll(dir, 0755), "image output")
}

// writeCalibration saves the camera calibration. Recorded inputs carry no
// calibration to save, which is only worth a warning.
func writeCalibration(cfg Config, src source.Source) {
	switch src := src.(type) {
	case *source.RecordedSource:
		log.Warn("Can't create calibration file from a log file.")
	case *source.LiveSource:
		if src.Playback() {
			log.Warn("Calibration not saved when reading a container.")
			return
		}
		cal, err := src.Calibration()
		if err != nil {
			log.Warn("Unable to read calibration: %v", err)
			return
		}
		log.Info("Saving calibration to %q", cfg.CalibOutput)
		if err := cal.WriteFile(cfg.CalibOutput); err != nil {
			log.Warn("Unable to write calibration: %v", err)
		}
	}
}
