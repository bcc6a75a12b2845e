package betting

import (
	"testing"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
)

func newTestStrategy(t *testing.T) *Strategy {
	t.Helper()
	s, err := NewStrategy(Config{BaseBet: 10, MaxBet: 2500, DefaultSide: dice.Red, DefaultWindow: dice.WindowA})
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	return s
}

func TestResolveDrawIsLoss(t *testing.T) {
	for face := dice.MinFace; face <= dice.MaxFace; face++ {
		r := dice.NewResult(dice.Pair{Left: face, Right: face}, 0.9, 0.5, dice.DefaultLayout)
		for _, side := range []dice.Side{dice.Red, dice.Orange} {
			if got := Resolve(r, side); got != Loss {
				t.Errorf("Resolve(%v, %v) = %v, want loss", r.Pair(), side, got)
			}
		}
	}
}

func TestResolveWinAndLoss(t *testing.T) {
	r := dice.NewResult(dice.Pair{Left: 3, Right: 5}, 0.9, 0.5, dice.DefaultLayout)
	if Resolve(r, dice.Orange) != Win {
		t.Error("orange stake should win on (3,5)")
	}
	if Resolve(r, dice.Red) != Loss {
		t.Error("red stake should lose on (3,5)")
	}
}

func TestDoublingLadder(t *testing.T) {
	want := []int{10, 20, 40, 80, 160, 320, 640, 1280, 2500}
	got := DoublingLadder(10, 2500)
	if len(got) != len(want) {
		t.Fatalf("DoublingLadder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ladder[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConsecutiveLossesDoubleUpToMax(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()

	for n := 1; n <= 12; n++ {
		st, _ = s.Apply(st, Loss)
		want := min(10<<n, 2500)
		if st.CurrentBet != want {
			t.Fatalf("after %d losses bet = %d, want %d", n, st.CurrentBet, want)
		}
		if st.ConsecutiveLosses != n {
			t.Errorf("ConsecutiveLosses = %d, want %d", st.ConsecutiveLosses, n)
		}
	}
}

func TestWinResets(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()
	for i := 0; i < 5; i++ {
		st, _ = s.Apply(st, Loss)
	}

	st, d := s.Apply(st, Win)

	if st.CurrentBet != 10 || d.Amount != 10 {
		t.Errorf("bet after win = %d (decision %d), want 10", st.CurrentBet, d.Amount)
	}
	if st.ConsecutiveLosses != 0 || st.ConsecutiveLossesOnSide != 0 {
		t.Errorf("loss counters after win = %d/%d, want 0/0", st.ConsecutiveLosses, st.ConsecutiveLossesOnSide)
	}
	if st.LastOutcome != Win {
		t.Errorf("LastOutcome = %v, want win", st.LastOutcome)
	}
}

func TestSideSwitchThenRevert(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()

	st, _ = s.Apply(st, Loss)
	if st.CurrentSide != dice.Red {
		t.Fatalf("side after 1 loss = %v, want red", st.CurrentSide)
	}

	st, _ = s.Apply(st, Loss)
	if st.CurrentSide != dice.Orange || st.PreviousSide != dice.Red {
		t.Fatalf("after 2 losses side=%v prev=%v, want orange/red", st.CurrentSide, st.PreviousSide)
	}
	if st.ConsecutiveLossesOnSide != 2 {
		t.Errorf("per-side counter = %d, want 2 (not reset on switch)", st.ConsecutiveLossesOnSide)
	}

	st, _ = s.Apply(st, Loss)
	if st.CurrentSide != dice.Red || st.PreviousSide != dice.Orange {
		t.Errorf("after 3 losses side=%v prev=%v, want red/orange", st.CurrentSide, st.PreviousSide)
	}
}

func TestWindowAlternatesFromLastPlacement(t *testing.T) {
	s := newTestStrategy(t)
	st, boot := s.Start()
	if boot.Window != dice.WindowA {
		t.Fatalf("bootstrap window = %v, want A", boot.Window)
	}

	outcomes := []Outcome{Loss, Win, Loss, Loss, Win}
	last := boot.Window
	for i, o := range outcomes {
		var d Decision
		st, d = s.Apply(st, o)
		if d.Window != last.Other() {
			t.Fatalf("round %d window = %v, want %v", i, d.Window, last.Other())
		}
		st.ActiveWindow = d.Window
		last = d.Window
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()
	before := st

	_, _ = s.Apply(st, Loss)

	if st != before {
		t.Errorf("Apply mutated input: %+v -> %+v", before, st)
	}
}

func TestProfitTracking(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()

	st, _ = s.Apply(st, Loss) // -10
	st, _ = s.Apply(st, Loss) // -20
	st, _ = s.Apply(st, Win)  // +40

	if st.TotalProfit != 10 {
		t.Errorf("TotalProfit = %d, want 10", st.TotalProfit)
	}
	if st.TotalRounds != 3 {
		t.Errorf("TotalRounds = %d, want 3", st.TotalRounds)
	}
}

func TestExplicitLadderRoundsUp(t *testing.T) {
	s, err := NewStrategy(Config{BaseBet: 10, MaxBet: 500, Ladder: []int{100, 10, 50, 25, 500, 1000}})
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	if got := s.Ladder(); len(got) != 5 || got[len(got)-1] != 500 {
		t.Errorf("Ladder() = %v, want 5 entries capped at 500", got)
	}

	st, _ := s.Start()
	want := []int{25, 50, 100, 500, 500, 500}
	for i, w := range want {
		prev := st.CurrentBet
		st, _ = s.Apply(st, Loss)
		if st.CurrentBet != w {
			t.Fatalf("loss %d: bet = %d, want %d", i+1, st.CurrentBet, w)
		}
		if prev < 500 && st.CurrentBet <= prev {
			t.Errorf("loss %d: bet did not grow from %d", i+1, prev)
		}
	}
	if st.TotalProfit != -(10 + 25 + 50 + 100 + 500 + 500) {
		t.Errorf("TotalProfit = %d", st.TotalProfit)
	}
}

func TestLadderBelowMaxStopsAtTopRung(t *testing.T) {
	s, err := NewStrategy(Config{BaseBet: 10, MaxBet: 1000, Ladder: []int{10, 30, 90}})
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	st, _ := s.Start()
	for _, w := range []int{30, 90, 90} {
		st, _ = s.Apply(st, Loss)
		if st.CurrentBet != w {
			t.Fatalf("bet = %d, want %d", st.CurrentBet, w)
		}
	}
}

func TestNewStrategyValidation(t *testing.T) {
	tests := []Config{
		{BaseBet: 0, MaxBet: 100},
		{BaseBet: 100, MaxBet: 10},
		{BaseBet: 10, MaxBet: 100, Ladder: []int{20, 40}},
	}
	for _, cfg := range tests {
		if _, err := NewStrategy(cfg); err == nil {
			t.Errorf("NewStrategy(%+v) should fail", cfg)
		}
	}
}

// Round 1 is the bootstrap observation and never reaches the strategy.
func TestRedOrangeScenario(t *testing.T) {
	s := newTestStrategy(t)
	st, _ := s.Start()

	rounds := []struct {
		result  dice.Result
		outcome Outcome
		bet     int
		side    dice.Side
		onSide  int
	}{
		{dice.NewResultWithWinner(dice.Pair{Left: 3, Right: 5}, dice.Orange, 0.95, 0.5), Loss, 20, dice.Red, 1},
		{dice.NewResultWithWinner(dice.Pair{Left: 2, Right: 2}, dice.NoSide, 0.95, 0.5), Loss, 40, dice.Orange, 2},
		{dice.NewResultWithWinner(dice.Pair{Left: 6, Right: 1}, dice.Orange, 0.95, 0.5), Win, 10, dice.Orange, 0},
	}

	for i, r := range rounds {
		o := Resolve(r.result, st.CurrentSide)
		if o != r.outcome {
			t.Fatalf("round %d outcome = %v, want %v", i+2, o, r.outcome)
		}
		st, _ = s.Apply(st, o)
		if st.CurrentBet != r.bet {
			t.Errorf("round %d bet = %d, want %d", i+2, st.CurrentBet, r.bet)
		}
		if st.CurrentSide != r.side {
			t.Errorf("round %d side = %v, want %v", i+2, st.CurrentSide, r.side)
		}
		if st.ConsecutiveLossesOnSide != r.onSide {
			t.Errorf("round %d per-side losses = %d, want %d", i+2, st.ConsecutiveLossesOnSide, r.onSide)
		}
	}
}
