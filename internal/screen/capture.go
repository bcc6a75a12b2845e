// Package screen provides frame capture and region fingerprinting.
package screen

import (
	"context"
	"fmt"
	"image"

	"github.com/vova616/screenshot"
)

// Provider returns the current full frame.
type Provider interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (image.Image, error)

// CaptureFrame calls f.
func (f ProviderFunc) CaptureFrame(ctx context.Context) (image.Image, error) { return f(ctx) }

// Desktop captures the primary display.
type Desktop struct {
	// Bounds restricts capture to a rectangle; zero captures the whole screen.
	Bounds image.Rectangle

	screen func() (*image.RGBA, error)
	rect   func(image.Rectangle) (*image.RGBA, error)
}

// NewDesktop creates a desktop provider.
func NewDesktop(bounds image.Rectangle) *Desktop {
	return &Desktop{Bounds: bounds, screen: screenshot.CaptureScreen, rect: screenshot.CaptureRect}
}

// CaptureFrame grabs the screen (or the configured rectangle).
func (d *Desktop) CaptureFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		img *image.RGBA
		err error
	)
	if d.Bounds.Empty() {
		img, err = d.screen()
	} else {
		img, err = d.rect(d.Bounds)
	}
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	if !d.Bounds.Empty() {
		// The grab is origin-based; rebase it so regions stay in screen coordinates.
		img.Rect = d.Bounds
	}
	return img, nil
}
