// Package betting resolves round outcomes and computes the next stake.
package betting

import "github.com/GriffinCanCode/dicepilot/internal/dice"

// Outcome of a resolved round from the staker's point of view.
type Outcome int

const (
	Unresolved Outcome = iota
	Win
	Loss
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	default:
		return "unresolved"
	}
}

// Resolve turns a result into an outcome for a stake on side. A draw is a loss.
func Resolve(r dice.Result, side dice.Side) Outcome {
	if r.Draw {
		return Loss
	}
	if r.Winner == side {
		return Win
	}
	return Loss
}
