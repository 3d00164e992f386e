package alohacap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/pacing"
	"github.com/lanikai/alohacap/internal/sink"
	"github.com/lanikai/alohacap/internal/source"
)

func patternConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = source.PatternDevice
	cfg.Resolution = "vga"
	cfg.Warmup = 0
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	assert.Equal(t, ErrNoOutput, err)
	assert.Equal(t, "No output options set.", err.Error())

	cfg.Display = true
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"compression", func(c *Config) { c.Compression = "fast" }, `don't understand compression level "fast"`},
		{"zlib level", func(c *Config) { c.Compression = "12" }, "level"},
		{"resolution", func(c *Config) { c.Resolution = "4k" }, "unknown resolution"},
		{"format", func(c *Config) { c.ImageFormat = "gif" }, "unknown image format"},
		{"inputs", func(c *Config) { c.LogInput, c.ContainerInput = "a", "b" }, "both"},
		{"container from log", func(c *Config) { c.LogInput, c.ContainerOutput = "a", "b" }, "container output"},
		{"fps", func(c *Config) { c.Resolution, c.FPS = "hd2k", 30 }, "at most 15 FPS"},
		{"negative fps", func(c *Config) { c.FPS = -1 }, "frame rate"},
		{"frames", func(c *Config) { c.Frames = -1 }, "frame count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	// Replays are not bound by the camera's rate limits.
	c := cfg
	c.LogInput, c.Resolution, c.FPS = "in.alog", "hd2k", 60
	assert.NoError(t, c.Validate())
}

func TestFields(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "[left]", sprintFields(cfg))
	cfg.Depth = true
	cfg.Right = true
	assert.Equal(t, "[left right depth]", sprintFields(cfg))
}

func sprintFields(cfg Config) string {
	names := "["
	for i, f := range cfg.Fields().List() {
		if i > 0 {
			names += " "
		}
		names += f.Name()
	}
	return names + "]"
}

func TestOpenCreatesImageDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "images")
	cfg := patternConfig()
	cfg.ImageOutput = dir
	cfg.Depth = true
	cfg.Frames = 2

	sess, err := Open(cfg, nil)
	require.NoError(t, err)
	require.Len(t, sess.Sinks, 1)
	assert.IsType(t, &sink.ImageSequence{}, sess.Sinks[0])

	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Frames)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestOpenPrimaryPriority(t *testing.T) {
	tmp := t.TempDir()
	cfg := patternConfig()
	cfg.ContainerOutput = filepath.Join(tmp, "container.alog")
	cfg.ImageOutput = filepath.Join(tmp, "images")
	cfg.LogOutput = filepath.Join(tmp, "run.alog")
	cfg.Frames = 1

	sess, err := Open(cfg, nil)
	require.NoError(t, err)
	require.Len(t, sess.Sinks, 1)
	assert.IsType(t, &sink.Passthrough{}, sess.Sinks[0])
	_, err = sess.Run(context.Background())
	require.NoError(t, err)
	assert.NoDirExists(t, cfg.ImageOutput)
	assert.NoFileExists(t, cfg.LogOutput)

	cfg.ContainerOutput = ""
	sess, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &sink.ImageSequence{}, sess.Sinks[0])
	_, err = sess.Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, cfg.LogOutput)
}

func TestLogRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	cfg := patternConfig()
	cfg.LogOutput = filepath.Join(tmp, "run.alog")
	cfg.Right = true
	cfg.Frames = 3
	cfg.QueueDepth = 8

	sess, err := Open(cfg, nil)
	require.NoError(t, err)
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, sum.Dropped)
	assert.Equal(t, cfg.LogOutput, sum.OutputPath)
	assert.NotEmpty(t, sum.RunID)

	replay := DefaultConfig()
	replay.Warmup = 0
	replay.LogInput = cfg.LogOutput
	replay.ImageOutput = filepath.Join(tmp, "images")
	replay.Right = true
	sess, err = Open(replay, nil)
	require.NoError(t, err)
	sum, err = sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, pacing.Exhausted, sum.StopReason)

	entries, err := os.ReadDir(replay.ImageOutput)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	// The log has no depth to replay.
	replay.Depth = true
	_, err = Open(replay, nil)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestCalibrationOutput(t *testing.T) {
	tmp := t.TempDir()
	cfg := patternConfig()
	cfg.Display = true
	cfg.DisplayAddr = "127.0.0.1:0"
	cfg.CalibOutput = filepath.Join(tmp, "calib.txt")
	cfg.LogOutput = filepath.Join(tmp, "run.alog")
	cfg.Frames = 1

	var stop pacing.StopFlag
	sess, err := Open(cfg, &stop)
	require.NoError(t, err)
	assert.Len(t, sess.Sinks, 2)
	assert.FileExists(t, cfg.CalibOutput)

	stop.Stop()
	sum, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Frames)
	assert.Equal(t, pacing.Interrupted, sum.StopReason)

	replay := DefaultConfig()
	replay.LogInput = cfg.LogOutput
	replay.Display = true
	replay.DisplayAddr = "127.0.0.1:0"
	replay.CalibOutput = filepath.Join(tmp, "replay-calib.txt")
	sess, err = Open(replay, nil)
	require.NoError(t, err)
	assert.NoFileExists(t, replay.CalibOutput)
	require.NoError(t, sess.Source.Close())
	for _, s := range sess.Sinks {
		require.NoError(t, s.Close())
	}
}

func TestOpenMissingLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogInput = filepath.Join(t.TempDir(), "missing.alog")
	cfg.Display = true
	_, err := Open(cfg, nil)
	assert.Error(t, err)
}
