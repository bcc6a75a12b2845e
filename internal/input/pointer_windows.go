//go:build windows

package input

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/sys/windows"
)

const (
	mouseEventLeftDown = 0x0002
	mouseEventLeftUp   = 0x0004
	pressDuration      = 30 * time.Millisecond
)

// Mouse taps with the system cursor.
type Mouse struct {
	setCursorPos *windows.LazyProc
	mouseEvent   *windows.LazyProc
}

// NewMouse loads the user32 entry points.
func NewMouse() (*Mouse, error) {
	user32 := windows.NewLazySystemDLL("user32.dll")
	m := &Mouse{
		setCursorPos: user32.NewProc("SetCursorPos"),
		mouseEvent:   user32.NewProc("mouse_event"),
	}
	if err := m.setCursorPos.Find(); err != nil {
		return nil, fmt.Errorf("load SetCursorPos: %w", err)
	}
	if err := m.mouseEvent.Find(); err != nil {
		return nil, fmt.Errorf("load mouse_event: %w", err)
	}
	return m, nil
}

// Tap moves the cursor to p and clicks the left button.
func (m *Mouse) Tap(ctx context.Context, p image.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r, _, err := m.setCursorPos.Call(uintptr(p.X), uintptr(p.Y)); r == 0 {
		return fmt.Errorf("SetCursorPos: %w", err)
	}
	_, _, _ = m.mouseEvent.Call(mouseEventLeftDown, 0, 0, 0, 0)
	time.Sleep(pressDuration)
	_, _, _ = m.mouseEvent.Call(mouseEventLeftUp, 0, 0, 0, 0)
	return nil
}
