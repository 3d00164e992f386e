package device

import (
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
)

var errPatternFault = errors.New("simulated capture timeout")

type PatternOptions struct {
	Width  int
	Height int
	FPS    float64

	// Stereo adds a right view, shifted to simulate disparity.
	Stereo bool
	Depth  bool

	// NumFrames ends the stream after that many grabs; zero is unbounded.
	NumFrames int

	// FailEvery makes every n-th grab fail with a transient error.
	FailEvery int

	// GrabDelay is slept inside each Grab to simulate exposure time.
	GrabDelay time.Duration
}

// Pattern is a synthetic camera producing a moving color gradient over a
// tilted depth plane. It stands in for hardware in tests and demos.
type Pattern struct {
	opts PatternOptions

	grabs  int // calls to Grab
	frames int // successful grabs
	closed bool
}

func NewPattern(opts PatternOptions) *Pattern {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = VGA.Width, VGA.Height
	}
	return &Pattern{opts: opts}
}

func (p *Pattern) Size() (int, int) {
	return p.opts.Width, p.opts.Height
}

func (p *Pattern) FPS() float64 {
	return p.opts.FPS
}

func (p *Pattern) NumImages() int {
	if p.opts.Stereo {
		return 2
	}
	return 1
}

func (p *Pattern) HasDepth() bool {
	return p.opts.Depth
}

func (p *Pattern) NumFrames() int {
	return p.opts.NumFrames
}

func (p *Pattern) Grab() error {
	if p.closed {
		return errors.New("pattern device closed")
	}
	if p.opts.NumFrames > 0 && p.frames >= p.opts.NumFrames {
		return io.EOF
	}
	if p.opts.GrabDelay > 0 {
		time.Sleep(p.opts.GrabDelay)
	}
	p.grabs++
	if p.opts.FailEvery > 0 && p.grabs%p.opts.FailEvery == 0 {
		return errPatternFault
	}
	p.frames++
	return nil
}

// Image renders view index of the current frame. The right view is the left
// view shifted by a fixed disparity.
func (p *Pattern) Image(index int, out *frame.Image) error {
	if p.frames == 0 {
		return ErrNotGrabbed
	}
	if index < 0 || index >= p.NumImages() {
		return errors.Wrapf(ErrNoImage, "index %d", index)
	}

	w, h := p.Size()
	out.Reset(w, h, frame.BGRA8)
	shift := p.frames*4 + index*16
	for y := 0; y < h; y++ {
		row := out.Pix[4*y*w : 4*(y+1)*w]
		for x := 0; x < w; x++ {
			row[4*x+0] = byte(x + shift)           // B
			row[4*x+1] = byte(y + p.frames)        // G
			row[4*x+2] = byte((x + y + shift) / 2) // R
			row[4*x+3] = 0xff
		}
	}
	return nil
}

// Depth renders a plane receding from 1 m at the bottom of the image to 5 m at
// the top, oscillating slowly with the frame count.
func (p *Pattern) Depth(out *frame.Image) error {
	if !p.opts.Depth {
		return ErrNoDepth
	}
	if p.frames == 0 {
		return ErrNotGrabbed
	}

	w, h := p.Size()
	out.Reset(w, h, frame.Depth32F)
	wobble := 0.25 * math.Sin(float64(p.frames)/10)
	for y := 0; y < h; y++ {
		d := float32(1 + 4*float64(h-1-y)/float64(h) + wobble)
		for x := 0; x < w; x++ {
			out.SetDepth(x, y, d)
		}
	}
	return nil
}

func (p *Pattern) Calibration() (Calibration, error) {
	return NominalCalibration(p.opts.Width, p.opts.Height, p.opts.Stereo), nil
}

func (p *Pattern) Close() error {
	p.closed = true
	return nil
}
