package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	SetColor(false)
	var buf bytes.Buffer
	return &Logger{level, "test", &destination{w: &buf}}, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"e", Error, false},
		{"WARN", Warn, false},
		{"info", Info, false},
		{"D", Debug, false},
		{"trace", MaxLevel, false},
		{"5", Level(5), false},
		{"10", 0, true},
		{"-3", 0, true},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		level, err := parseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, level, tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newTestLogger(Warn)

	log.Info("hidden %d", 1)
	log.Debug("hidden %d", 2)
	log.Warn("shown %d", 3)
	log.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "W/test[logging_test.go:")
	assert.Contains(t, out, "] shown 3\n")
	assert.Contains(t, out, "E/test[")
}

func TestNoDoubleNewline(t *testing.T) {
	log, buf := newTestLogger(Info)
	log.Info("line\n")
	assert.True(t, strings.HasSuffix(buf.String(), "line\n"))
	assert.False(t, strings.HasSuffix(buf.String(), "\n\n"))
}

func TestConfigureTagLevels(t *testing.T) {
	saved := DefaultLogger.Level
	defer func() {
		Configure("")
		defaultLevel = saved
		DefaultLogger.Level = saved
	}()

	err := Configure("warn, logfile=debug, bogus=loud")
	assert.Error(t, err)

	assert.Equal(t, Warn, DefaultLogger.Level)
	assert.Equal(t, Debug, DefaultLogger.WithTag("logfile").Level)
	assert.Equal(t, Warn, DefaultLogger.WithTag("recorder").Level)
}

func TestThrottle(t *testing.T) {
	log, buf := newTestLogger(Info)
	th := NewThrottle(time.Hour, 2)

	assert.True(t, th.Warn(log, "grab failed"))
	assert.True(t, th.Warn(log, "grab failed"))
	for i := 0; i < 5; i++ {
		assert.False(t, th.Warn(log, "grab failed"))
	}
	assert.Equal(t, 5, th.Suppressed())
	assert.Equal(t, 2, strings.Count(buf.String(), "grab failed"))
}

func TestFatalExits(t *testing.T) {
	log, buf := newTestLogger(Info)
	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = osExit }()

	log.Fatalf("cannot open %s", "/dev/video9")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "cannot open /dev/video9")
}
