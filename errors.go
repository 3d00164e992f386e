package alohacap

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/source"
)

var (
	// ErrNoOutput rejects a run that would neither save nor show anything.
	ErrNoOutput = errors.New("No output options set.")

	// ErrUnsupported reports a requested field the input cannot provide.
	ErrUnsupported = source.ErrUnsupported
)
