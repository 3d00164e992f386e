// Package pacing paces an acquisition loop to a target frame rate and decides
// when it stops.
//
// A Controller moves from Running to Stopping when the stop flag is set, the
// duration budget elapses, the frame ceiling is reached, or the source runs
// dry. The loop finishes the cycle in flight and then calls Finish, which
// moves it to Stopped. Stop conditions are evaluated only at cycle
// boundaries.
package pacing

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("pacing")

// DefaultWarmup lets automatic exposure and white balance settle before the
// first frame.
const DefaultWarmup = time.Second

// StopFlag is a one-way interrupt shared between a signal handler and the
// loop. The zero value is ready to use.
type StopFlag struct {
	stopped int32
}

// Stop sets the flag. Further calls have no effect.
func (s *StopFlag) Stop() {
	atomic.StoreInt32(&s.stopped, 1)
}

func (s *StopFlag) Stopped() bool {
	return atomic.LoadInt32(&s.stopped) != 0
}

type Clock interface {
	Now() time.Time

	// SleepUntil returns at or after t. It returns at once if t has passed.
	SleepUntil(t time.Time)
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) SleepUntil(t time.Time) {
	if d := time.Until(t); d > 0 {
		time.Sleep(d)
	}
}

type State int

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason records why a Controller left Running.
type Reason int

const (
	NotStopped Reason = iota
	Interrupted
	DurationElapsed
	FrameLimit
	Exhausted
)

func (r Reason) String() string {
	switch r {
	case NotStopped:
		return "not stopped"
	case Interrupted:
		return "interrupted"
	case DurationElapsed:
		return "duration elapsed"
	case FrameLimit:
		return "frame limit reached"
	case Exhausted:
		return "end of input"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

type Config struct {
	// FPS is the target frame rate. Zero runs as fast as the source allows.
	FPS float64

	// Duration stops the loop once that much time has passed since Start.
	// Zero means no limit.
	Duration time.Duration

	// MaxFrames stops the loop after that many counted frames. Zero means no
	// limit.
	MaxFrames int

	// Warmup is slept once, before the first cycle.
	Warmup time.Duration
}

// Interval returns the nominal time between frames at fps, truncated to whole
// microseconds, or zero when fps is not positive.
func Interval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(1e6/fps) * time.Microsecond
}

type Controller struct {
	cfg      Config
	stop     *StopFlag
	clock    Clock
	interval time.Duration

	state  State
	reason Reason

	started  bool
	start    time.Time
	end      time.Time
	finished time.Time
	count    int
	warmedUp bool
}

// NewController returns a Running controller. A nil clock means the system
// clock; a nil stop flag is never set.
func NewController(cfg Config, stop *StopFlag, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if stop == nil {
		stop = new(StopFlag)
	}
	return &Controller{
		cfg:      cfg,
		stop:     stop,
		clock:    clock,
		interval: Interval(cfg.FPS),
	}
}

// Start fixes the start time, from which the duration budget and the elapsed
// time are measured. Begin calls it if it has not been called.
func (c *Controller) Start() time.Time {
	if !c.started {
		c.started = true
		c.start = c.clock.Now()
		if c.cfg.Duration > 0 {
			c.end = c.start.Add(c.cfg.Duration)
		}
	}
	return c.start
}

// Warmup sleeps for the configured warm-up delay. Only the first call sleeps.
func (c *Controller) Warmup() {
	if c.warmedUp {
		return
	}
	c.warmedUp = true
	if c.cfg.Warmup > 0 {
		log.Debug("Warming up for %v", c.cfg.Warmup)
		c.clock.SleepUntil(c.clock.Now().Add(c.cfg.Warmup))
	}
}

// Begin starts a cycle. It returns the cycle start time and whether the cycle
// should run; false means no new grab may be issued.
func (c *Controller) Begin() (time.Time, bool) {
	c.Start()
	if c.state != Running {
		return time.Time{}, false
	}
	if c.stop.Stopped() {
		c.halt(Interrupted)
		return time.Time{}, false
	}
	now := c.clock.Now()
	if !c.end.IsZero() && !now.Before(c.end) {
		c.halt(DurationElapsed)
		return time.Time{}, false
	}
	return now, true
}

// Pace sleeps until one interval after cycleStart, not for one interval.
func (c *Controller) Pace(cycleStart time.Time) {
	if c.interval > 0 {
		c.clock.SleepUntil(cycleStart.Add(c.interval))
	}
}

// Count records one successful frame.
func (c *Controller) Count() {
	c.count++
	if c.cfg.MaxFrames > 0 && c.count >= c.cfg.MaxFrames && c.state == Running {
		c.halt(FrameLimit)
	}
}

// Exhausted reports that the source has no more frames.
func (c *Controller) Exhausted() {
	if c.state == Running {
		c.halt(Exhausted)
	}
}

// Finish marks the in-flight cycle complete and the controller Stopped.
func (c *Controller) Finish() {
	if c.state == Stopped {
		return
	}
	if c.state == Running {
		c.reason = Interrupted
	}
	c.state = Stopped
	c.finished = c.clock.Now()
}

func (c *Controller) halt(r Reason) {
	c.state = Stopping
	c.reason = r
	log.Debug("Stopping after %d frames: %v", c.count, r)
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Reason() Reason {
	return c.reason
}

// Frames returns the number of frames counted.
func (c *Controller) Frames() int {
	return c.count
}

func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Elapsed returns the time since Start, frozen once the controller stops.
func (c *Controller) Elapsed() time.Duration {
	if !c.started {
		return 0
	}
	if c.state == Stopped {
		return c.finished.Sub(c.start)
	}
	return c.clock.Now().Sub(c.start)
}
