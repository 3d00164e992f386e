package device

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
)

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("hd720")
	require.NoError(t, err)
	assert.Equal(t, HD720, r)

	r, err = ParseResolution("VGA")
	require.NoError(t, err)
	assert.Equal(t, 672, r.Width)

	_, err = ParseResolution("4k")
	assert.Error(t, err)
}

func TestPatternFields(t *testing.T) {
	mono := NewPattern(PatternOptions{Width: 16, Height: 8})
	assert.Equal(t, []frame.Descriptor{{Name: "left", Width: 16, Height: 8, Kind: frame.BGRA8}}, Descriptors(mono))
	assert.False(t, Supports(mono, frame.Right))
	assert.False(t, Supports(mono, frame.Depth))

	stereo := NewPattern(PatternOptions{Width: 16, Height: 8, Stereo: true, Depth: true})
	ds := Descriptors(stereo)
	require.Len(t, ds, 3)
	assert.Equal(t, "right", ds[1].Name)
	assert.Equal(t, frame.Depth32F, ds[2].Kind)
}

func TestPatternGrab(t *testing.T) {
	p := NewPattern(PatternOptions{Width: 16, Height: 8, Stereo: true, Depth: true, NumFrames: 3, FailEvery: 2})

	img := new(frame.Image)
	assert.Equal(t, ErrNotGrabbed, p.Image(0, img))

	require.NoError(t, p.Grab())
	require.NoError(t, p.Image(0, img))
	assert.NoError(t, img.CheckSize())
	assert.Equal(t, byte(0xff), img.Pix[3])

	right := new(frame.Image)
	require.NoError(t, p.Image(1, right))
	assert.NotEqual(t, img.Pix, right.Pix)
	assert.Error(t, p.Image(2, right))

	depth := new(frame.Image)
	require.NoError(t, p.Depth(depth))
	assert.True(t, depth.DepthAt(0, 0) > depth.DepthAt(0, 7))

	// Every second grab fails, and failures do not use up the frame budget.
	assert.Equal(t, errPatternFault, p.Grab())
	assert.NoError(t, p.Grab())
	assert.Equal(t, errPatternFault, p.Grab())
	assert.NoError(t, p.Grab())
	assert.Equal(t, io.EOF, p.Grab())
}

func TestRecordingPlayback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.alog")
	cam := NewPattern(PatternOptions{Width: 16, Height: 8, FPS: 30, Stereo: true, Depth: true})

	rec, err := StartRecording(cam, path, logfile.Options{})
	require.NoError(t, err)
	assert.Nil(t, rec.Recorded())

	var lefts [][]byte
	for i := 0; i < 4; i++ {
		require.NoError(t, rec.Record())
		f := rec.Recorded()
		require.NotNil(t, f)
		assert.True(t, f.Has(frame.Right))
		assert.True(t, f.Has(frame.Depth))
		lefts = append(lefts, append([]byte(nil), f.Get(frame.Left).Pix...))
	}
	require.NoError(t, rec.StopRecording())
	require.NoError(t, rec.StopRecording())
	assert.Equal(t, 4, rec.Count())
	assert.Error(t, rec.Record())

	p, err := OpenPlayback(path)
	require.NoError(t, err)
	defer p.Close()

	w, h := p.Size()
	assert.Equal(t, 16, w)
	assert.Equal(t, 8, h)
	assert.Equal(t, 30.0, p.FPS())
	assert.Equal(t, 2, p.NumImages())
	assert.True(t, p.HasDepth())
	assert.Equal(t, 4, p.NumFrames())

	cal, err := p.Calibration()
	require.NoError(t, err)
	want, _ := cam.Calibration()
	assert.Equal(t, want, cal)

	img := new(frame.Image)
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Grab())
		require.NoError(t, p.Image(0, img))
		assert.Equal(t, lefts[i], img.Pix)
	}
	assert.Equal(t, io.EOF, p.Grab())
	assert.Equal(t, ErrNotGrabbed, p.Image(0, img))
}

func TestPlaybackRequiresLeft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depth-only.alog")
	w := logfile.NewWriter(logfile.Options{})
	_, err := w.RegisterField("depth", 4, 4, frame.Depth32F)
	require.NoError(t, err)
	require.NoError(t, w.Open(path))
	require.NoError(t, w.Close())

	_, err = OpenPlayback(path)
	assert.Error(t, err)
}

func TestCalibrationFile(t *testing.T) {
	c := Calibration{Width: 672, Height: 376, Fx: 350, Fy: 351, Cx: 336, Cy: 188, K1: -0.17, K2: 0.02}

	parsed, err := ParseCalibration(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	path := filepath.Join(t.TempDir(), "camera.txt")
	require.NoError(t, c.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "350 351 336 188 -0.17 0.02 0 0\n672 376\nnone\n672 376\n", string(data))

	assert.Error(t, Calibration{}.WriteFile(path))
}
