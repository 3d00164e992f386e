//go:build !linux
// +build !linux

package v4l2

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
)

func Open(path string, cfg Config) (device.Device, error) {
	return nil, errors.Errorf("%s: V4L2 capture requires Linux", path)
}
