package preview

import (
	"sync"
)

// An encoder runs one channel's encode function in its own goroutine for as
// long as the channel has viewers. The first viewer to arrive starts it and
// the last one to leave stops it.
type encoder struct {
	name   string
	encode func(quit <-chan struct{})

	mu      sync.Mutex
	viewers int
	quit    chan struct{}
	done    chan struct{}
}

func newEncoder(name string, encode func(quit <-chan struct{})) *encoder {
	return &encoder{name: name, encode: encode}
}

// start registers a viewer.
func (e *encoder) start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.viewers++
	if e.viewers > 1 {
		return
	}

	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	log.Debug("Encoding %s for viewers", e.name)
	go func(quit <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		e.encode(quit)
	}(e.quit, e.done)
}

// stop unregisters a viewer. When none remain it waits for the encode
// function to return. Each stop must match an earlier start.
func (e *encoder) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.viewers == 0 {
		panic("preview: " + e.name + " encoder stopped without viewers")
	}
	e.viewers--
	if e.viewers > 0 {
		return
	}

	log.Debug("No one watching %s, stopping encoder", e.name)
	close(e.quit)
	<-e.done
	e.quit, e.done = nil, nil
}

func (e *encoder) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quit != nil
}
