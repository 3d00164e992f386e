// Package recorder runs acquisition: it pulls frames from one source, routes
// them to the session's sinks at a paced rate, and tears everything down in
// order when the run stops.
package recorder

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/pacing"
	"github.com/lanikai/alohacap/internal/sink"
	"github.com/lanikai/alohacap/internal/source"
)

var log = logging.DefaultLogger.WithTag("recorder")

var (
	errNoSource     = errors.New("session has no source")
	errNoSinks      = errors.New("session has no sink")
	errManyPrimary  = errors.New("session has more than one primary sink")
	errLoopFinished = errors.New("loop already closed")
)

// progressEvery is how often, in frames, progress is logged.
const progressEvery = 100

// Session is everything a run needs. It is assembled from validated
// configuration and owned by the loop until the run ends.
type Session struct {
	Source source.Source

	// Sinks receive every frame in order. At most one may be primary.
	Sinks []sink.Sink

	// Fields are the payloads pulled from the source each cycle. Left is
	// always included.
	Fields frame.FieldSet

	Pacing pacing.Config

	// Stop ends the run at the next cycle boundary. Nil means only the
	// context or the other limits can stop it.
	Stop *pacing.StopFlag

	// Clock defaults to the system clock.
	Clock pacing.Clock
}

// Run acquires until a stop condition, then tears down and returns the run
// summary. Cancelling ctx has the same effect as setting the stop flag. The
// session's source and sinks are closed even when the session is rejected.
func (s *Session) Run(ctx context.Context) (*Summary, error) {
	l, err := NewLoop(s)
	if err != nil {
		s.release()
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.stop.Stop()
		case <-done:
		}
	}()

	l.Start()
	for l.Cycle() {
	}
	return l.Close()
}

// release closes whatever the session holds, sinks first.
func (s *Session) release() {
	for i := len(s.Sinks) - 1; i >= 0; i-- {
		if s.Sinks[i] == nil {
			continue
		}
		if err := s.Sinks[i].Close(); err != nil {
			log.Warn("close output: %v", err)
		}
	}
	if s.Source != nil {
		if err := s.Source.Close(); err != nil {
			log.Warn("close source: %v", err)
		}
	}
}

// Loop drives one Session cycle by cycle.
type Loop struct {
	src    source.Source
	sinks  []sink.Sink
	fields []frame.Field
	stop   *pacing.StopFlag
	ctrl   *pacing.Controller

	primary     sink.Sink
	display     *sink.Display
	passthrough *sink.Passthrough

	frame    frame.Frame
	images   [frame.NumFields]*frame.Image
	reported int
	closed   bool
	summary  Summary

	grabWarn  *logging.Throttle
	writeWarn *logging.Throttle
}

// NewLoop checks the session and prepares a loop for it. Requested fields
// the source cannot provide are rejected here, before any frame is grabbed.
func NewLoop(s *Session) (*Loop, error) {
	if s.Source == nil {
		return nil, errNoSource
	}
	if len(s.Sinks) == 0 {
		return nil, errNoSinks
	}
	fields := s.Fields.With(frame.Left)
	if err := source.CheckFields(s.Source, fields); err != nil {
		return nil, err
	}

	stop := s.Stop
	if stop == nil {
		stop = new(pacing.StopFlag)
	}
	l := &Loop{
		src:       s.Source,
		sinks:     s.Sinks,
		fields:    fields.List(),
		stop:      stop,
		ctrl:      pacing.NewController(s.Pacing, stop, s.Clock),
		grabWarn:  logging.NewThrottle(time.Second, 5),
		writeWarn: logging.NewThrottle(time.Second, 5),
	}
	for i := range l.images {
		l.images[i] = new(frame.Image)
	}

	for _, k := range s.Sinks {
		if k.Primary() {
			if l.primary != nil {
				return nil, errManyPrimary
			}
			l.primary = k
		}
		switch k := k.(type) {
		case *sink.Display:
			l.display = k
		case *sink.Passthrough:
			l.passthrough = k
		}
	}
	return l, nil
}

// Start fixes the run's start time and sleeps through the warm-up.
func (l *Loop) Start() {
	l.ctrl.Start()
	if d := l.ctrl.Interval(); d > 0 {
		log.Info("Pacing at %v per frame", d)
	}
	log.Info("Input is %s", l.src.Describe())
	l.ctrl.Warmup()
}

func (l *Loop) State() pacing.State {
	return l.ctrl.State()
}

// Frames returns the number of frames counted so far.
func (l *Loop) Frames() int {
	return l.ctrl.Frames()
}

// Cycle runs one acquisition cycle. It returns false, without grabbing, once
// the loop is no longer running.
func (l *Loop) Cycle() bool {
	if n := l.ctrl.Frames(); n > 0 && n%progressEvery == 0 && n != l.reported {
		l.reported = n
		log.Info("%d frames", n)
	}

	cycleStart, ok := l.ctrl.Begin()
	if !ok {
		return false
	}

	var err error
	if l.passthrough != nil {
		err = l.record()
	} else {
		err = l.grab(cycleStart)
	}

	switch {
	case err == nil:
		l.ctrl.Pace(cycleStart)
		l.ctrl.Count()
		if l.atEnd() {
			log.Info("End of input after %d frames", l.ctrl.Frames())
			l.ctrl.Exhausted()
		}
	case isEndOfStream(err):
		log.Info("End of input after %d frames", l.ctrl.Frames())
		l.ctrl.Exhausted()
	default:
		l.summary.GrabFailures++
		if l.passthrough != nil {
			l.grabWarn.Warn(log, "Error occurred while recording from camera: %v", err)
		} else {
			l.grabWarn.Warn(log, "Problem grabbing from camera: %v", err)
		}
		l.ctrl.Pace(cycleStart)
	}
	return l.ctrl.State() == pacing.Running
}

// atEnd reports whether the source has delivered all the frames it has. A
// recorded source may have been seeked, so its read position decides.
func (l *Loop) atEnd() bool {
	if rs, ok := l.src.(*source.RecordedSource); ok {
		return rs.Position() >= rs.NumFrames()
	}
	n := l.src.NumFrames()
	return n > 0 && l.ctrl.Frames() >= n
}

func isEndOfStream(err error) bool {
	cause := errors.Cause(err)
	return cause == source.ErrEndOfStream || cause == io.EOF
}

// record is a passthrough cycle: the device writes the container itself.
func (l *Loop) record() error {
	if err := l.passthrough.Record(); err != nil {
		return err
	}
	if l.display != nil {
		l.summary.DisplaySkipped += l.display.ShowRecorded(l.passthrough.Recorded())
	}
	return nil
}

// grab pulls the requested fields of the next frame and hands the frame to
// every sink. Only the grab itself can fail the cycle.
func (l *Loop) grab(cycleStart time.Time) error {
	if err := l.src.Grab(); err != nil {
		return err
	}

	f := &l.frame
	f.Reset(l.ctrl.Frames(), cycleStart)
	for _, field := range l.fields {
		img := l.images[field]
		if err := source.Read(l.src, field, img); err != nil {
			l.summary.ReadFailures++
			l.writeWarn.Warn(log, "Unable to read %v for frame %d: %v", field, f.Seq, err)
			continue
		}
		f.Set(field, img)
	}

	for _, k := range l.sinks {
		switch k := k.(type) {
		case *sink.ImageSequence:
			l.summary.WriteFailures += k.Write(f)
		case *sink.CompressedLog:
			if err := k.Write(f); err != nil {
				if errors.Cause(err) == logfile.ErrQueueFull {
					l.summary.Dropped++
					l.writeWarn.Warn(log, "Dropped frame %d: compressor is behind", f.Seq)
				} else {
					l.summary.WriteFailures++
					l.writeWarn.Warn(log, "Error while writing frame %d: %v", f.Seq, err)
				}
			}
		case *sink.Display:
			l.summary.DisplaySkipped += k.Show(f)
		case *sink.Passthrough:
			// Handled by record.
		}
	}
	return nil
}

// Close stops the run and releases everything in order: device recording,
// the primary sink, the display, then the source. The summary is returned
// even when a step fails; the first failure is returned with it.
func (l *Loop) Close() (*Summary, error) {
	if l.closed {
		return nil, errLoopFinished
	}
	l.closed = true
	log.Info("Cleaning up...")

	var firstErr error
	keep := func(what string, err error) {
		if err != nil {
			log.Warn("%s: %v", what, err)
			if firstErr == nil {
				firstErr = errors.Wrap(err, what)
			}
		}
	}

	if l.passthrough != nil {
		keep("stop recording", l.passthrough.Stop())
	}
	l.ctrl.Finish()
	if l.primary != nil {
		keep("close output", l.primary.Close())
	}
	if l.display != nil {
		keep("close display", l.display.Close())
	}
	keep("close source", l.src.Close())

	sum := &l.summary
	sum.Frames = l.ctrl.Frames()
	sum.Elapsed = l.ctrl.Elapsed()
	sum.StopReason = l.ctrl.Reason()
	if out, ok := l.primary.(sink.Output); ok {
		sum.OutputPath = out.Path()
		sum.OutputBytes = out.Bytes()
	}
	if lg, ok := l.primary.(*sink.CompressedLog); ok {
		sum.RunID = lg.RunID()
	}
	sum.compute()
	sum.Log()
	return sum, firstErr
}
