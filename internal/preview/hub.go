// Package preview shows frames live while they are being recorded. Images
// published to a Hub are JPEG-encoded off the acquisition goroutine and fanned
// out to any number of viewers; when nobody is watching, publishing is
// nearly free.
package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/color"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("preview")

var ErrUnknownChannel = errors.New("unknown preview channel")

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 75

// Depth beyond this many metres is shown as black.
const depthRange = 10

// A Hub holds one channel per displayed field.
type Hub struct {
	quality  int
	names    []string
	channels map[string]*channel
}

type channel struct {
	name string
	hub  *Hub
	flow Flow
	enc  *encoder

	// Latest image waiting for the encoder. Capacity 1, newest wins.
	slot chan *frame.Image
	pool sync.Pool

	mu      sync.Mutex
	encoded int
	skipped int
}

// NewHub creates a hub with a channel for each name. A quality of zero means
// DefaultQuality.
func NewHub(quality int, names ...string) *Hub {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	h := &Hub{
		quality:  quality,
		names:    names,
		channels: make(map[string]*channel, len(names)),
	}
	for _, name := range names {
		ch := &channel{
			name: name,
			hub:  h,
			slot: make(chan *frame.Image, 1),
		}
		ch.enc = newEncoder(name, ch.encodeLoop)
		ch.flow.Start = ch.enc.start
		ch.flow.Stop = ch.enc.stop
		h.channels[name] = ch
	}
	return h
}

// Channels returns the channel names in creation order.
func (h *Hub) Channels() []string {
	return h.names
}

// Subscribe returns a stream of JPEG frames for the named channel.
func (h *Hub) Subscribe(name string, capacity int) (<-chan []byte, error) {
	ch, ok := h.channels[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownChannel, "%q", name)
	}
	return ch.flow.Subscribe(capacity), nil
}

func (h *Hub) Unsubscribe(name string, s <-chan []byte) {
	if ch, ok := h.channels[name]; ok {
		ch.flow.Unsubscribe(s)
	}
}

// Viewers returns the number of subscribers to the named channel.
func (h *Hub) Viewers(name string) int {
	if ch, ok := h.channels[name]; ok {
		return ch.flow.Subscribers()
	}
	return 0
}

// Publish offers img to the named channel's viewers. The image is copied, so
// the caller keeps ownership. Reports whether anybody was watching.
func (h *Hub) Publish(name string, img *frame.Image) (bool, error) {
	ch, ok := h.channels[name]
	if !ok {
		return false, errors.Wrapf(ErrUnknownChannel, "%q", name)
	}
	if img.Empty() {
		return false, errors.Errorf("%s image is empty", name)
	}
	if err := img.CheckSize(); err != nil {
		return false, err
	}
	if ch.flow.Subscribers() == 0 {
		return false, nil
	}

	c, _ := ch.pool.Get().(*frame.Image)
	if c == nil {
		c = new(frame.Image)
	}
	c.Reset(img.Width, img.Height, img.Kind)
	copy(c.Pix, img.Pix)

	select {
	case ch.slot <- c:
		return true, nil
	default:
	}
	select {
	case old := <-ch.slot:
		ch.pool.Put(old)
		ch.mu.Lock()
		ch.skipped++
		ch.mu.Unlock()
	default:
	}
	select {
	case ch.slot <- c:
	default:
		ch.pool.Put(c)
	}
	return true, nil
}

// Stats returns how many frames the named channel has encoded, and how many
// it skipped because the encoder was busy.
func (h *Hub) Stats(name string) (encoded, skipped int) {
	ch, ok := h.channels[name]
	if !ok {
		return 0, 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.encoded, ch.skipped
}

// Close disconnects all viewers and stops the encoders.
func (h *Hub) Close() error {
	for _, name := range h.names {
		h.channels[name].flow.Close()
	}
	return nil
}

func (ch *channel) encodeLoop(quit <-chan struct{}) {
	var buf bytes.Buffer
	for {
		select {
		case <-quit:
			return
		case img := <-ch.slot:
			buf.Reset()
			err := EncodeJPEG(&buf, img, ch.hub.quality)
			ch.pool.Put(img)
			if err != nil {
				log.Warn("%s: %v", ch.name, err)
				continue
			}
			// Subscribers keep the slice, so hand out a copy.
			ch.flow.Write(append([]byte(nil), buf.Bytes()...))
			ch.mu.Lock()
			ch.encoded++
			ch.mu.Unlock()
		}
	}
}

// EncodeJPEG writes img as a JPEG. Depth is rendered as gray, near bright.
func EncodeJPEG(w io.Writer, img *frame.Image, quality int) error {
	var m image.Image
	switch img.Kind {
	case frame.Depth32F:
		g := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
		color.DepthToGray(g.Pix, img.Pix, depthRange)
		m = g
	default:
		var err error
		if m, err = img.ToImage(); err != nil {
			return err
		}
	}
	return jpeg.Encode(w, m, &jpeg.Options{Quality: quality})
}
