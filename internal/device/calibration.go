package device

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Calibration holds pinhole intrinsics and radial-tangential distortion for
// the left view.
type Calibration struct {
	Width, Height  int
	Fx, Fy, Cx, Cy float64
	K1, K2, P1, P2 float64

	// Stereo baseline in metres; zero for a mono camera.
	Baseline float64
}

// MetadataKey is where a recording stores the camera calibration.
const MetadataKey = "calibration"

// String encodes c on one line. ParseCalibration reverses it.
func (c Calibration) String() string {
	return fmt.Sprintf("%d %d %g %g %g %g %g %g %g %g %g",
		c.Width, c.Height, c.Fx, c.Fy, c.Cx, c.Cy, c.K1, c.K2, c.P1, c.P2, c.Baseline)
}

func ParseCalibration(s string) (Calibration, error) {
	var c Calibration
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d %d %g %g %g %g %g %g %g %g %g",
		&c.Width, &c.Height, &c.Fx, &c.Fy, &c.Cx, &c.Cy, &c.K1, &c.K2, &c.P1, &c.P2, &c.Baseline)
	if err != nil {
		return Calibration{}, errors.Wrap(err, "parse calibration")
	}
	return c, nil
}

// WriteFile saves c in the four-line camera file format used by the SLAM
// tools: intrinsics and distortion, input size, crop mode, output size.
func (c Calibration) WriteFile(path string) error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("calibration has invalid size %dx%d", c.Width, c.Height)
	}
	text := fmt.Sprintf("%g %g %g %g %g %g %g %g\n%d %d\nnone\n%d %d\n",
		c.Fx, c.Fy, c.Cx, c.Cy, c.K1, c.K2, c.P1, c.P2,
		c.Width, c.Height,
		c.Width, c.Height)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return errors.Wrap(err, "write calibration")
	}
	log.Info("Saved calibration to %s", path)
	return nil
}

// NominalCalibration approximates a wide-angle stereo camera at the given
// size.
func NominalCalibration(width, height int, stereo bool) Calibration {
	f := 0.5 * float64(width)
	c := Calibration{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Cx:     0.5 * float64(width),
		Cy:     0.5 * float64(height),
	}
	if stereo {
		c.Baseline = 0.12
	}
	return c
}
