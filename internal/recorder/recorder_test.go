package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
	"github.com/lanikai/alohacap/internal/pacing"
	"github.com/lanikai/alohacap/internal/preview"
	"github.com/lanikai/alohacap/internal/sink"
	"github.com/lanikai/alohacap/internal/source"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) SleepUntil(t time.Time) {
	if t.After(c.now) {
		c.now = t
	}
}

func patternSource(opts device.PatternOptions) *source.LiveSource {
	if opts.Width == 0 {
		opts.Width, opts.Height = 8, 4
	}
	return source.NewLive(device.NewPattern(opts), "pattern")
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestImageSequenceUntilInterrupted(t *testing.T) {
	dir := t.TempDir()
	images, err := sink.NewImageSequence(dir, sink.PNG, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)

	var stop pacing.StopFlag
	l, err := NewLoop(&Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{images},
		Stop:   &stop,
	})
	require.NoError(t, err)
	l.Start()

	for i := 0; i < 10; i++ {
		require.True(t, l.Cycle())
	}
	assert.Equal(t, pacing.Running, l.State())

	var want []string
	for i := 0; i < 10; i++ {
		want = append(want, fmt.Sprintf("left_%06d.png", i))
	}
	assert.Equal(t, want, listDir(t, dir))

	stop.Stop()
	assert.False(t, l.Cycle())
	assert.Equal(t, pacing.Stopping, l.State())
	assert.Len(t, listDir(t, dir), 10)

	sum, err := l.Close()
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Frames)
	assert.Equal(t, pacing.Interrupted, sum.StopReason)
	assert.Equal(t, dir, sum.OutputPath)
	assert.True(t, sum.OutputBytes > 0)

	_, err = l.Close()
	assert.Error(t, err)
}

func TestFrameCeilingIgnoresFailedGrabs(t *testing.T) {
	for _, n := range []int{1, 5, 12} {
		dir := t.TempDir()
		images, err := sink.NewImageSequence(dir, sink.BMP, frame.NewFieldSet(frame.Left, frame.Depth))
		require.NoError(t, err)

		sess := &Session{
			Source: patternSource(device.PatternOptions{FailEvery: 3, Depth: true}),
			Sinks:  []sink.Sink{images},
			Fields: frame.NewFieldSet(frame.Depth),
			Pacing: pacing.Config{MaxFrames: n},
		}
		sum, err := sess.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, n, sum.Frames)
		assert.Equal(t, pacing.FrameLimit, sum.StopReason)
		assert.Equal(t, (n-1)/2, sum.GrabFailures)
		assert.Len(t, listDir(t, dir), 2*n)
		assert.Contains(t, listDir(t, dir), fmt.Sprintf("depth_%06d.bmp", n-1))
	}
}

func writeInput(t *testing.T, frames int) string {
	path := filepath.Join(t.TempDir(), "input.alog")
	out, err := sink.NewCompressedLog(path, frame.NewFieldSet(frame.Left, frame.Right), 8, 4, logfile.Options{FPS: 30})
	require.NoError(t, err)

	dev := device.NewPattern(device.PatternOptions{Width: 8, Height: 4, Stereo: true})
	var f frame.Frame
	for i := 0; i < frames; i++ {
		require.NoError(t, dev.Grab())
		f.Reset(i, time.Now())
		for _, field := range []frame.Field{frame.Left, frame.Right} {
			img := new(frame.Image)
			require.NoError(t, device.Read(dev, field, img))
			f.Set(field, img)
		}
		for out.Write(&f) == logfile.ErrQueueFull {
			time.Sleep(time.Millisecond)
		}
	}
	require.NoError(t, out.Close())
	return path
}

func TestRecordedSourceRunsToExhaustion(t *testing.T) {
	const frames = 7
	src, err := source.OpenRecorded(writeInput(t, frames))
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "copy.alog")
	out, err := sink.NewCompressedLog(outPath, frame.NewFieldSet(frame.Left, frame.Right), 8, 4, logfile.Options{})
	require.NoError(t, err)

	l, err := NewLoop(&Session{
		Source: src,
		Sinks:  []sink.Sink{out},
		Fields: frame.NewFieldSet(frame.Right),
	})
	require.NoError(t, err)
	l.Start()

	cycles := 0
	for l.Cycle() {
		cycles++
	}
	// The last cycle read the final frame and found the input exhausted.
	cycles++
	assert.Equal(t, frames, cycles)

	sum, err := l.Close()
	require.NoError(t, err)
	assert.Equal(t, frames, sum.Frames)
	assert.Equal(t, pacing.Exhausted, sum.StopReason)
	assert.Zero(t, sum.GrabFailures)
	assert.NotEmpty(t, sum.RunID)

	r, err := logfile.OpenReader(outPath)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, frames, r.NumFrames())
}

func TestDurationBudget(t *testing.T) {
	clock := &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	hub := preview.NewHub(0, "left")
	display, err := sink.NewDisplay(hub, nil, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)

	sess := &Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{display},
		Pacing: pacing.Config{FPS: 10, Duration: time.Second, Warmup: 200 * time.Millisecond},
		Clock:  clock,
	}
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)

	// The warm-up counts against the budget.
	assert.Equal(t, 8, sum.Frames)
	assert.Equal(t, pacing.DurationElapsed, sum.StopReason)
	assert.Equal(t, time.Second, sum.Elapsed)
	assert.Empty(t, sum.OutputPath)
}

func TestContextCancelStops(t *testing.T) {
	images, err := sink.NewImageSequence(t.TempDir(), sink.PNG, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess := &Session{
		Source: patternSource(device.PatternOptions{GrabDelay: time.Millisecond}),
		Sinks:  []sink.Sink{images},
		Pacing: pacing.Config{MaxFrames: 10000},
	}
	sum, err := sess.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, pacing.Interrupted, sum.StopReason)
	assert.True(t, sum.Frames < 10000)
}

func TestPassthroughWithDisplay(t *testing.T) {
	dev := device.NewPattern(device.PatternOptions{Width: 8, Height: 4, Stereo: true, Depth: true, NumFrames: 3})
	path := filepath.Join(t.TempDir(), "container.alog")
	rec, err := device.StartRecording(dev, path, logfile.Options{})
	require.NoError(t, err)

	hub := preview.NewHub(0, "left", "right")
	display, err := sink.NewDisplay(hub, nil, frame.NewFieldSet(frame.Left, frame.Right))
	require.NoError(t, err)

	sess := &Session{
		Source: source.NewLive(dev, "pattern"),
		Sinks:  []sink.Sink{sink.NewPassthrough(rec), display},
	}
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, pacing.Exhausted, sum.StopReason)
	assert.Equal(t, path, sum.OutputPath)
	assert.Zero(t, sum.DisplaySkipped)
	shown, _ := display.Stats()
	assert.Equal(t, 6, shown)

	r, err := logfile.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.NumFrames())
	assert.Len(t, r.Fields(), 3)
}

func TestDisplayReportsMissingDepth(t *testing.T) {
	hub := preview.NewHub(0, "left", "depth")
	display, err := sink.NewDisplay(hub, nil, frame.NewFieldSet(frame.Left, frame.Depth))
	require.NoError(t, err)

	sess := &Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{display},
		Pacing: pacing.Config{MaxFrames: 4},
	}
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 4, sum.DisplaySkipped)
}

func TestNewLoopValidation(t *testing.T) {
	dir := t.TempDir()
	images, err := sink.NewImageSequence(dir, sink.PNG, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)
	images2, err := sink.NewImageSequence(dir, sink.TIFF, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)

	_, err = NewLoop(&Session{Sinks: []sink.Sink{images}})
	assert.Equal(t, errNoSource, err)

	_, err = NewLoop(&Session{Source: patternSource(device.PatternOptions{})})
	assert.Equal(t, errNoSinks, err)

	_, err = NewLoop(&Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{images},
		Fields: frame.NewFieldSet(frame.Depth),
	})
	assert.True(t, errors.Is(err, source.ErrUnsupported))

	_, err = NewLoop(&Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{images},
		Fields: frame.NewFieldSet(frame.Right),
	})
	assert.True(t, errors.Is(err, source.ErrUnsupported))

	_, err = NewLoop(&Session{
		Source: patternSource(device.PatternOptions{}),
		Sinks:  []sink.Sink{images, images2},
	})
	assert.Equal(t, errManyPrimary, err)
}

func TestSummaryString(t *testing.T) {
	sum := &Summary{
		Frames:      150,
		Elapsed:     10 * time.Second,
		OutputPath:  "/tmp/out.alog",
		OutputBytes: 50 * megabyte,
		StopReason:  pacing.DurationElapsed,
	}
	sum.compute()
	assert.Equal(t, 15.0, sum.FPS)
	assert.Equal(t, 5.0, sum.MBPerSec)

	lines := strings.Split(sum.String(), "\n")
	assert.Equal(t, []string{
		"Recorded 150 frames in 10.000s (duration elapsed)",
		"Average of 15.00 FPS",
		"Resulting file is 50.0 MB (5.00 MB/sec)",
	}, lines)

	sum.Dropped = 2
	assert.Contains(t, sum.String(), "2 dropped")
}

// grabCounter counts every grab its device is asked for.
type grabCounter struct {
	device.Device
	grabs int
}

func (g *grabCounter) Grab() error {
	g.grabs++
	return g.Device.Grab()
}

func writeContainer(t *testing.T, frames int) string {
	path := filepath.Join(t.TempDir(), "container.alog")
	dev := device.NewPattern(device.PatternOptions{Width: 8, Height: 4, Stereo: true, Depth: true})
	rec, err := device.StartRecording(dev, path, logfile.Options{FPS: 15})
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		require.NoError(t, rec.Record())
	}
	require.NoError(t, rec.StopRecording())
	require.NoError(t, dev.Close())
	return path
}

func TestContainerInputStopsAtFrameCount(t *testing.T) {
	const frames = 5
	playback, err := device.OpenPlayback(writeContainer(t, frames))
	require.NoError(t, err)
	dev := &grabCounter{Device: playback}

	dir := t.TempDir()
	images, err := sink.NewImageSequence(dir, sink.PNG, frame.NewFieldSet(frame.Left, frame.Depth))
	require.NoError(t, err)

	sess := &Session{
		Source: source.NewLive(dev, "container"),
		Sinks:  []sink.Sink{images},
		Fields: frame.NewFieldSet(frame.Depth),
	}
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frames, sum.Frames)
	assert.Equal(t, frames, dev.grabs)
	assert.Equal(t, pacing.Exhausted, sum.StopReason)
	assert.Len(t, listDir(t, dir), 2*frames)
}

// endless reports a frame count but never runs out on its own.
type endless struct {
	device.Device
	limit int
}

func (e *endless) NumFrames() int { return e.limit }

func TestDeviceFrameCountWithoutEndOfStream(t *testing.T) {
	dev := &endless{Device: device.NewPattern(device.PatternOptions{Width: 8, Height: 4}), limit: 4}
	hub := preview.NewHub(0, "left")
	display, err := sink.NewDisplay(hub, nil, frame.NewFieldSet(frame.Left))
	require.NoError(t, err)

	sess := &Session{
		Source: source.NewLive(dev, "limited"),
		Sinks:  []sink.Sink{display},
	}
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, pacing.Exhausted, sum.StopReason)
}

func TestRejectedSessionIsReleased(t *testing.T) {
	src := patternSource(device.PatternOptions{})
	path := filepath.Join(t.TempDir(), "rejected.alog")
	out, err := sink.NewCompressedLog(path, frame.NewFieldSet(frame.Left), 8, 4, logfile.Options{})
	require.NoError(t, err)

	sess := &Session{
		Source: src,
		Sinks:  []sink.Sink{out},
		Fields: frame.NewFieldSet(frame.Depth),
	}
	_, err = sess.Run(context.Background())
	assert.True(t, errors.Is(err, source.ErrUnsupported))

	// The log was flushed and closed, and the source no longer grabs.
	var f frame.Frame
	f.Set(frame.Left, frame.NewImage(8, 4, frame.BGRA8))
	assert.Equal(t, logfile.ErrNotOpen, errors.Cause(out.Write(&f)))

	r, err := logfile.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Zero(t, r.NumFrames())
	assert.Error(t, src.Grab())
}
