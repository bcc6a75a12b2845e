//go:build !windows

package input

import (
	"context"
	"errors"
	"image"
)

// ErrUnsupported is returned where no pointer backend exists.
var ErrUnsupported = errors.New("pointer input is only supported on windows")

// Mouse is unavailable on this platform.
type Mouse struct{}

// NewMouse always fails on this platform.
func NewMouse() (*Mouse, error) { return nil, ErrUnsupported }

// Tap always fails on this platform.
func (*Mouse) Tap(context.Context, image.Point) error { return ErrUnsupported }
