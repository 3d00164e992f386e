// Package sink implements the consumers of acquired frames. A run has at most
// one primary sink (image sequence, compressed log, or container passthrough)
// and may add a live display alongside it.
package sink

import (
	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("sink")

// A Sink is one of *ImageSequence, *CompressedLog, *Display or *Passthrough.
// Callers dispatch on the concrete type.
type Sink interface {
	// Primary reports whether the sink is a run's main output.
	Primary() bool

	// Close flushes and releases the sink.
	Close() error

	sink()
}

// An Output is a sink that persists to disk.
type Output interface {
	Sink

	// Path returns the file or directory written.
	Path() string

	// Bytes returns the size of everything written so far.
	Bytes() int64
}

// Primary returns the primary sink in sinks, or nil.
func Primary(sinks []Sink) Sink {
	for _, s := range sinks {
		if s.Primary() {
			return s
		}
	}
	return nil
}
