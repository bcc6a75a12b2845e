package server

import (
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	"github.com/GriffinCanCode/dicepilot/internal/game"
)

// Message is the envelope shared by every WebSocket message.
type Message struct {
	Type string `json:"type"`
}

// StateMessage is the wire form of a betting state.
type StateMessage struct {
	Running                 bool   `json:"running"`
	ActiveWindow            string `json:"active_window"`
	CurrentSide             string `json:"current_side"`
	PreviousSide            string `json:"previous_side,omitempty"`
	CurrentBet              int    `json:"current_bet"`
	ConsecutiveLosses       int    `json:"consecutive_losses"`
	ConsecutiveLossesOnSide int    `json:"consecutive_losses_on_side"`
	TotalRounds             int    `json:"total_rounds"`
	TotalProfit             int    `json:"total_profit"`
	LastOutcome             string `json:"last_outcome"`
}

// StatusMessage answers /api/state and the "status" command.
type StatusMessage struct {
	Type      string       `json:"type"`
	Running   bool         `json:"running"`
	SessionID string       `json:"session_id,omitempty"`
	Phase     string       `json:"phase"`
	Round     int          `json:"round"`
	State     StateMessage `json:"state"`
	LastError string       `json:"last_error,omitempty"`
}

// BetMessage describes a placed bet.
type BetMessage struct {
	Window string `json:"window"`
	Side   string `json:"side"`
	Amount int    `json:"amount"`
}

// ResultMessage describes an observed round result.
type ResultMessage struct {
	Window     string  `json:"window"`
	Left       int     `json:"left"`
	Right      int     `json:"right"`
	Winner     string  `json:"winner,omitempty"`
	Draw       bool    `json:"draw"`
	Confidence float64 `json:"confidence"`
	Outcome    string  `json:"outcome,omitempty"`
	Bootstrap  bool    `json:"bootstrap,omitempty"`
}

// EventMessage is a session event pushed to WebSocket clients.
type EventMessage struct {
	Type      string         `json:"type"`
	At        time.Time      `json:"at"`
	SessionID string         `json:"session_id"`
	Round     int            `json:"round"`
	Phase     string         `json:"phase"`
	State     StateMessage   `json:"state"`
	Result    *ResultMessage `json:"result,omitempty"`
	Bet       *BetMessage    `json:"bet,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// StartedMessage acknowledges a start command.
type StartedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func stateMessage(st betting.State) StateMessage {
	m := StateMessage{
		Running:                 st.Running,
		ActiveWindow:            st.ActiveWindow.String(),
		CurrentSide:             st.CurrentSide.String(),
		CurrentBet:              st.CurrentBet,
		ConsecutiveLosses:       st.ConsecutiveLosses,
		ConsecutiveLossesOnSide: st.ConsecutiveLossesOnSide,
		TotalRounds:             st.TotalRounds,
		TotalProfit:             st.TotalProfit,
		LastOutcome:             st.LastOutcome.String(),
	}
	if st.PreviousSide != dice.NoSide {
		m.PreviousSide = st.PreviousSide.String()
	}
	return m
}

func statusMessage(s game.Status) StatusMessage {
	return StatusMessage{
		Type:      "status",
		Running:   s.Running,
		SessionID: s.SessionID,
		Phase:     s.Phase,
		Round:     s.Round,
		State:     stateMessage(s.State),
		LastError: s.LastError,
	}
}

func eventMessage(e game.Event) EventMessage {
	m := EventMessage{
		Type:      e.Kind.String(),
		At:        e.At,
		SessionID: e.SessionID,
		Round:     e.Round,
		Phase:     e.Phase.String(),
		State:     stateMessage(e.State),
	}
	switch e.Kind {
	case game.EventResult:
		r := &ResultMessage{
			Window:     e.Window.String(),
			Left:       e.Result.Left,
			Right:      e.Result.Right,
			Draw:       e.Result.Draw,
			Confidence: e.Result.Confidence,
			Bootstrap:  e.Bootstrap,
		}
		if !e.Result.Draw {
			r.Winner = e.Result.Winner.String()
		}
		if !e.Bootstrap {
			r.Outcome = e.Outcome.String()
		}
		m.Result = r
	case game.EventBet:
		m.Bet = &BetMessage{Window: e.Bet.Window.String(), Side: e.Bet.Side.String(), Amount: e.Bet.Amount}
	case game.EventFatal:
		if e.Err != nil {
			m.Error = e.Err.Error()
		}
	}
	return m
}
