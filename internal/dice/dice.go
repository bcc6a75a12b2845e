// Package dice defines the values that flow through a round: sides, windows and
// recognized results.
package dice

import "fmt"

// Face bounds of a settled die. Anything outside is an animation frame.
const (
	MinFace = 1
	MaxFace = 6
)

// Side is one of the two bettable outcomes.
type Side int

const (
	NoSide Side = iota
	Red
	Orange
)

func (s Side) String() string {
	switch s {
	case Red:
		return "red"
	case Orange:
		return "orange"
	default:
		return "none"
	}
}

// Other returns the opposite side. NoSide maps to NoSide.
func (s Side) Other() Side {
	switch s {
	case Red:
		return Orange
	case Orange:
		return Red
	default:
		return NoSide
	}
}

// ParseSide accepts "red" or "orange".
func ParseSide(s string) (Side, error) {
	switch s {
	case "red", "RED":
		return Red, nil
	case "orange", "ORANGE":
		return Orange, nil
	default:
		return NoSide, fmt.Errorf("unknown side %q", s)
	}
}

// Window identifies one of the two physical game windows.
type Window int

const (
	WindowA Window = iota
	WindowB
)

func (w Window) String() string {
	if w == WindowB {
		return "B"
	}
	return "A"
}

// Other returns the opposite window.
func (w Window) Other() Window {
	if w == WindowA {
		return WindowB
	}
	return WindowA
}

// ParseWindow accepts "A" or "B".
func ParseWindow(s string) (Window, error) {
	switch s {
	case "A", "a":
		return WindowA, nil
	case "B", "b":
		return WindowB, nil
	default:
		return WindowA, fmt.Errorf("unknown window %q", s)
	}
}

// Windows lists both windows in order.
var Windows = [2]Window{WindowA, WindowB}

// Pair is a left/right face count.
type Pair struct {
	Left, Right int
}

// InRange reports whether both faces are settled values.
func (p Pair) InRange() bool {
	return p.Left >= MinFace && p.Left <= MaxFace && p.Right >= MinFace && p.Right <= MaxFace
}

func (p Pair) String() string { return fmt.Sprintf("(%d,%d)", p.Left, p.Right) }

// Layout records which side each die belongs to on screen.
type Layout struct {
	Left, Right Side
}

// DefaultLayout puts the red die on the left.
var DefaultLayout = Layout{Left: Red, Right: Orange}

// Winner returns the side showing the higher face, or NoSide on a draw.
func (l Layout) Winner(p Pair) Side {
	switch {
	case p.Left > p.Right:
		return l.Left
	case p.Right > p.Left:
		return l.Right
	default:
		return NoSide
	}
}
