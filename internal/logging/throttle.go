package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// A Throttle limits how often a recurring warning reaches the log. Messages
// over the limit are counted, and the count is appended to the next message
// that gets through.
type Throttle struct {
	limiter    *rate.Limiter
	suppressed int
	mu         sync.Mutex
}

// NewThrottle allows burst messages at once, then one message per interval.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Warn logs at Warn level through log, unless the throttle is saturated.
// Reports whether the message was written.
func (t *Throttle) Warn(log *Logger, format string, a ...interface{}) bool {
	t.mu.Lock()
	if !t.limiter.Allow() {
		t.suppressed++
		t.mu.Unlock()
		return false
	}
	n := t.suppressed
	t.suppressed = 0
	t.mu.Unlock()

	if n > 0 {
		format += " (%d similar suppressed)"
		a = append(a, n)
	}
	log.Log(Warn, 1, format, a...)
	return true
}

// Suppressed returns the number of messages dropped since the last one logged.
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
