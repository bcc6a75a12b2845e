// Package perception turns a settled dice frame into a trusted round result.
// A cheap local recognizer gates escalation; a remote recognizer is always
// consulted before a result is returned.
package perception

import (
	"context"
	"image"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
)

// Reading is the raw output of a recognizer.
type Reading struct {
	Pair       dice.Pair
	Winner     dice.Side // NoSide when the recognizer only counts pips
	Confidence float64
}

// Recognizer reads dice faces from an image of the dice region.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Reading, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) (Reading, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) (Reading, error) {
	return f(ctx, img)
}

// Verdict is the local gate's decision for one pass.
type Verdict int

const (
	// NotSettled sends the loop back to the stability phase.
	NotSettled Verdict = iota
	// NeedRepeat asks for another local pass on a fresh settled frame.
	NeedRepeat
	// Escalate hands the frame to remote confirmation.
	Escalate
)

func (v Verdict) String() string {
	switch v {
	case NotSettled:
		return "not_settled"
	case NeedRepeat:
		return "need_repeat"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}
