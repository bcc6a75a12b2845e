package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/game"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJournalRecordsSession(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)
	sid := "s-1"

	db.Observe(ctx, game.Event{Kind: game.EventBet, SessionID: sid, At: at,
		Bet: betting.Decision{Window: dice.WindowA, Side: dice.Red, Amount: 10}})
	db.Observe(ctx, game.Event{Kind: game.EventResult, SessionID: sid, At: at, Round: 1, Window: dice.WindowB,
		Bootstrap: true, Result: dice.NewResult(dice.Pair{Left: 4, Right: 2}, 0.9, 0.5, dice.DefaultLayout)})
	db.Observe(ctx, game.Event{Kind: game.EventResult, SessionID: sid, At: at.Add(time.Second), Round: 2, Window: dice.WindowA,
		Outcome: betting.Loss, State: betting.State{TotalProfit: -10},
		Result: dice.NewResult(dice.Pair{Left: 3, Right: 5}, 0.95, 0.5, dice.DefaultLayout)})
	db.Observe(ctx, game.Event{Kind: game.EventResult, SessionID: "other", Window: dice.WindowA})

	rounds, err := db.Rounds(ctx, sid, 0)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("rounds = %+v", rounds)
	}
	if !rounds[0].Bootstrap || rounds[0].Outcome != "" {
		t.Errorf("bootstrap row = %+v", rounds[0])
	}
	r := rounds[1]
	if r.Left != 3 || r.Right != 5 || r.Winner != "orange" || r.Outcome != "loss" || r.Profit != -10 {
		t.Errorf("round row = %+v", r)
	}
	if !r.At.Equal(at.Add(time.Second)) {
		t.Errorf("at = %v", r.At)
	}

	latest, _ := db.Rounds(ctx, sid, 1)
	if len(latest) != 1 || latest[0].Round != 2 {
		t.Errorf("limit should keep the newest row, got %+v", latest)
	}

	if n, _ := db.BetCount(ctx, sid); n != 1 {
		t.Errorf("bets = %d", n)
	}
}

func TestJournalStopReason(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	if _, ok, err := db.StopReason(ctx, "s-2"); ok || err != nil {
		t.Fatalf("unexpected stop row: ok=%v err=%v", ok, err)
	}
	db.Observe(ctx, game.Event{Kind: game.EventStopped, SessionID: "s-2",
		Err: apperrors.New(apperrors.ConfirmationExhausted, "remote confirmation exhausted")})

	msg, ok, err := db.StopReason(ctx, "s-2")
	if err != nil || !ok || msg == "" {
		t.Errorf("StopReason = %q %v %v", msg, ok, err)
	}
}
