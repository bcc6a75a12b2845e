package betting

import "github.com/GriffinCanCode/dicepilot/internal/dice"

// State is the staking state of a running session. The game loop is its only
// writer; observers read copies.
type State struct {
	Running                 bool
	ActiveWindow            dice.Window // window the most recent bet was placed in
	CurrentSide             dice.Side
	PreviousSide            dice.Side // NoSide until the first switch
	CurrentBet              int
	ConsecutiveLosses       int
	ConsecutiveLossesOnSide int
	TotalRounds             int
	TotalProfit             int
	LastOutcome             Outcome
}

// Decision is the next bet the game loop must place.
type Decision struct {
	Window dice.Window
	Side   dice.Side
	Amount int
}
