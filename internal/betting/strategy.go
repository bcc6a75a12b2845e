package betting

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
)

// DefaultSwitchAfter is the number of losses on one side that triggers a switch.
const DefaultSwitchAfter = 2

// Config parameterizes the Martingale strategy.
type Config struct {
	BaseBet       int
	MaxBet        int
	Ladder        []int // optional chip denominations; derived from BaseBet/MaxBet when empty
	DefaultSide   dice.Side
	DefaultWindow dice.Window
	SwitchAfter   int
}

// Strategy is a pure Martingale transition with side switching.
type Strategy struct {
	cfg    Config
	ladder []int
}

// NewStrategy validates cfg and builds the denomination ladder.
func NewStrategy(cfg Config) (*Strategy, error) {
	if cfg.BaseBet <= 0 {
		return nil, fmt.Errorf("base bet must be positive, got %d", cfg.BaseBet)
	}
	if cfg.MaxBet < cfg.BaseBet {
		return nil, fmt.Errorf("max bet %d below base bet %d", cfg.MaxBet, cfg.BaseBet)
	}
	if cfg.DefaultSide == dice.NoSide {
		cfg.DefaultSide = dice.Red
	}
	if cfg.SwitchAfter <= 0 {
		cfg.SwitchAfter = DefaultSwitchAfter
	}

	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DoublingLadder(cfg.BaseBet, cfg.MaxBet)
	} else {
		ladder = normalizeLadder(ladder, cfg.MaxBet)
		if len(ladder) == 0 || ladder[0] != cfg.BaseBet {
			return nil, fmt.Errorf("ladder must start at base bet %d", cfg.BaseBet)
		}
	}
	return &Strategy{cfg: cfg, ladder: ladder}, nil
}

// DoublingLadder returns base, 2*base, 4*base, ... capped by a final max entry.
func DoublingLadder(base, max int) []int {
	var out []int
	for v := base; v < max; v *= 2 {
		out = append(out, v)
	}
	return append(out, max)
}

func normalizeLadder(in []int, max int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if v > 0 && v <= max && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Ladder returns a copy of the denomination ladder.
func (s *Strategy) Ladder() []int {
	return append([]int(nil), s.ladder...)
}

// Start returns the state for a new session together with the bootstrap bet.
func (s *Strategy) Start() (State, Decision) {
	st := State{
		Running:      true,
		ActiveWindow: s.cfg.DefaultWindow,
		CurrentSide:  s.cfg.DefaultSide,
		CurrentBet:   s.cfg.BaseBet,
	}
	return st, Decision{Window: s.cfg.DefaultWindow, Side: st.CurrentSide, Amount: st.CurrentBet}
}

// Apply transitions st by one resolved outcome and returns the next bet. The
// input is not modified.
func (s *Strategy) Apply(st State, o Outcome) (State, Decision) {
	next := st
	next.TotalRounds++
	next.LastOutcome = o

	if o == Win {
		next.TotalProfit += st.CurrentBet
		next.CurrentBet = s.cfg.BaseBet
		next.ConsecutiveLosses = 0
		next.ConsecutiveLossesOnSide = 0
	} else {
		next.TotalProfit -= st.CurrentBet
		next.CurrentBet = s.snap(min(st.CurrentBet*2, s.cfg.MaxBet))
		next.ConsecutiveLosses++
		next.ConsecutiveLossesOnSide++

		// The per-side counter keeps counting across a switch.
		if next.ConsecutiveLossesOnSide >= s.cfg.SwitchAfter {
			abandoned := next.CurrentSide
			if next.PreviousSide != dice.NoSide && next.PreviousSide != abandoned {
				next.CurrentSide = next.PreviousSide
			} else {
				next.CurrentSide = abandoned.Other()
			}
			next.PreviousSide = abandoned
		}
	}

	return next, Decision{Window: st.ActiveWindow.Other(), Side: next.CurrentSide, Amount: next.CurrentBet}
}

// snap returns the smallest ladder value not below v, or the top rung when v
// is above the ladder.
func (s *Strategy) snap(v int) int {
	for _, d := range s.ladder {
		if d >= v {
			return d
		}
	}
	return s.ladder[len(s.ladder)-1]
}
