package sink

import (
	"os"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
)

// Passthrough records a live device straight into a container. Each cycle is
// a single Record call; per-field dispatch is skipped entirely.
type Passthrough struct {
	rec     device.Recorder
	stopped bool
	err     error
}

func NewPassthrough(rec device.Recorder) *Passthrough {
	log.Info("Recording to container %s", rec.Path())
	return &Passthrough{rec: rec}
}

func (*Passthrough) sink() {}

func (*Passthrough) Primary() bool { return true }

func (p *Passthrough) Path() string {
	return p.rec.Path()
}

func (p *Passthrough) Bytes() int64 {
	st, err := os.Stat(p.rec.Path())
	if err != nil {
		return 0
	}
	return st.Size()
}

// Record grabs the device's next frame into the container. io.EOF from the
// device is returned unchanged.
func (p *Passthrough) Record() error {
	return p.rec.Record()
}

// Recorded returns the frame most recently recorded, or nil.
func (p *Passthrough) Recorded() *frame.Frame {
	return p.rec.Recorded()
}

// Stop ends device recording. It is safe to call more than once; Close calls
// it too.
func (p *Passthrough) Stop() error {
	if !p.stopped {
		p.stopped = true
		p.err = p.rec.StopRecording()
	}
	return p.err
}

func (p *Passthrough) Close() error {
	return p.Stop()
}
