package sink

import (
	"context"
	"time"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/preview"
)

const shutdownTimeout = 3 * time.Second

// Display shows frames live through a preview hub. It never blocks the
// caller: viewers that cannot keep up miss frames.
type Display struct {
	hub    *preview.Hub
	server *preview.Server
	fields []frame.Field

	shown    int
	skipped  int
	throttle *logging.Throttle
}

// NewDisplay publishes fields to hub. When server is non-nil it is started
// here and shut down by Close.
func NewDisplay(hub *preview.Hub, server *preview.Server, fields frame.FieldSet) (*Display, error) {
	if server != nil {
		if err := server.Listen(); err != nil {
			return nil, err
		}
	}
	return &Display{
		hub:      hub,
		server:   server,
		fields:   fields.List(),
		throttle: logging.NewThrottle(time.Second, 3),
	}, nil
}

// NewDisplayServer creates a hub with one channel per field, served at addr.
func NewDisplayServer(addr string, fields frame.FieldSet) (*Display, error) {
	var names []string
	for _, f := range fields.List() {
		names = append(names, f.Name())
	}
	hub := preview.NewHub(preview.DefaultQuality, names...)
	return NewDisplay(hub, preview.NewServer(hub, addr), fields)
}

func (*Display) sink() {}

func (*Display) Primary() bool { return false }

// Addr returns the viewer address, or "" without a server.
func (d *Display) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

func (d *Display) Hub() *preview.Hub {
	return d.hub
}

// Show publishes each displayed field of f. Missing or empty payloads are
// reported and skipped. Returns the number of fields skipped.
func (d *Display) Show(f *frame.Frame) int {
	skipped := 0
	for _, field := range d.fields {
		img := f.Get(field)
		if img.Empty() {
			skipped++
			d.throttle.Warn(log, "%s image is empty, not displaying", field)
			continue
		}
		if _, err := d.hub.Publish(field.Name(), img); err != nil {
			skipped++
			d.throttle.Warn(log, "Failed to display %s: %v", field, err)
			continue
		}
		d.shown++
	}
	d.skipped += skipped
	return skipped
}

// ShowRecorded displays the frame a device recorder just captured. A nil
// frame is ignored.
func (d *Display) ShowRecorded(f *frame.Frame) int {
	if f == nil {
		return 0
	}
	return d.Show(f)
}

// Stats returns the number of field images published and skipped.
func (d *Display) Stats() (shown, skipped int) {
	return d.shown, d.skipped
}

func (d *Display) Close() error {
	if d.server == nil {
		return d.hub.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.server.Shutdown(ctx)
}
