package preview

import (
	"sync"
)

// Flow fans encoded frames out to subscribers. A slow subscriber never blocks
// the writer: when its channel is full the oldest frame is dropped.
type Flow struct {
	// Start is called when the first subscriber is added.
	Start func()

	// Stop is called when the last subscriber is removed.
	Stop func()

	// Serializes Start and Stop. Never held by Write, so Stop may wait for a
	// goroutine that is writing.
	hooks sync.Mutex

	subscribers []chan []byte
	missed      int

	sync.Mutex
}

func (f *Flow) Subscribe(capacity int) <-chan []byte {
	if capacity == 0 {
		panic("preview.Flow: subscriber capacity must be nonzero")
	}

	f.hooks.Lock()
	defer f.hooks.Unlock()

	s := make(chan []byte, capacity)
	f.Lock()
	f.subscribers = append(f.subscribers, s)
	first := len(f.subscribers) == 1
	f.Unlock()

	if first && f.Start != nil {
		f.Start()
	}
	return s
}

func (f *Flow) Unsubscribe(s <-chan []byte) {
	f.hooks.Lock()
	defer f.hooks.Unlock()

	// Find and delete s from the subscriber list.
	f.Lock()
	found := false
	for i, subscriber := range f.subscribers {
		if s == subscriber {
			subs := f.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			f.subscribers = subs[:len(subs)-1]
			found = true
			break
		}
	}
	last := found && len(f.subscribers) == 0
	f.Unlock()

	if last && f.Stop != nil {
		f.Stop()
	}
}

// Subscribers returns the current subscriber count.
func (f *Flow) Subscribers() int {
	f.Lock()
	defer f.Unlock()
	return len(f.subscribers)
}

// Missed returns the number of frames dropped for slow subscribers.
func (f *Flow) Missed() int {
	f.Lock()
	defer f.Unlock()
	return f.missed
}

func (f *Flow) Write(p []byte) (n int, err error) {
	f.Lock()
	defer f.Unlock()

	for _, subscriber := range f.subscribers {
		select {
		case subscriber <- p:
			continue
		default:
		}

		// Drop oldest, add newest. The subscriber may have drained in the
		// meantime, so neither step may block.
		select {
		case <-subscriber:
			f.missed++
		default:
		}
		select {
		case subscriber <- p:
		default:
			f.missed++
		}
	}

	return len(p), nil
}

// Close removes every subscriber, closing their channels.
func (f *Flow) Close() error {
	f.hooks.Lock()
	defer f.hooks.Unlock()

	f.Lock()
	subs := f.subscribers
	f.subscribers = nil
	for _, subscriber := range subs {
		close(subscriber)
	}
	f.Unlock()

	if len(subs) > 0 && f.Stop != nil {
		f.Stop()
	}
	return nil
}
