package device

import (
	"strings"

	"github.com/pkg/errors"
)

// A Resolution is one of the stereo camera's sensor modes. Dimensions are per
// view.
type Resolution struct {
	Name   string
	Width  int
	Height int

	// Highest frame rate the mode supports.
	MaxFPS float64
}

var (
	HD2K   = Resolution{"hd2k", 2208, 1242, 15}
	HD1080 = Resolution{"hd1080", 1920, 1080, 30}
	HD720  = Resolution{"hd720", 1280, 720, 60}
	VGA    = Resolution{"vga", 672, 376, 100}
)

var resolutions = []Resolution{HD2K, HD1080, HD720, VGA}

func (r Resolution) String() string {
	return r.Name
}

// ParseResolution maps a resolution token such as "hd720" to its mode.
func ParseResolution(token string) (Resolution, error) {
	for _, r := range resolutions {
		if strings.EqualFold(token, r.Name) {
			return r, nil
		}
	}
	names := make([]string, len(resolutions))
	for i, r := range resolutions {
		names[i] = r.Name
	}
	return Resolution{}, errors.Errorf("unknown resolution %q (want one of %s)", token, strings.Join(names, ", "))
}
