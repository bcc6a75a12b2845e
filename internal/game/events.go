package game

import (
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
)

// Phase is the orchestrator state.
type Phase int

const (
	Stopped Phase = iota
	Bootstrapping
	AwaitingChange
	AwaitingStability
	Confirming
	Applying
	PlacingBet
)

var phaseNames = [...]string{
	Stopped:           "stopped",
	Bootstrapping:     "bootstrapping",
	AwaitingChange:    "awaiting_change",
	AwaitingStability: "awaiting_stability",
	Confirming:        "confirming",
	Applying:          "applying",
	PlacingBet:        "placing_bet",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// EventKind identifies an Event.
type EventKind int

const (
	EventSnapshot EventKind = iota
	EventResult
	EventBet
	EventFatal
	EventStopped
)

var eventNames = [...]string{
	EventSnapshot: "snapshot",
	EventResult:   "result",
	EventBet:      "bet",
	EventFatal:    "fatal",
	EventStopped:  "stopped",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is published by a session for observers.
type Event struct {
	Kind      EventKind
	At        time.Time
	SessionID string
	Round     int
	Phase     Phase
	State     betting.State

	// EventResult
	Window    dice.Window
	Result    dice.Result
	Outcome   betting.Outcome
	Bootstrap bool

	// EventBet
	Bet betting.Decision

	// EventFatal
	Err error
}
