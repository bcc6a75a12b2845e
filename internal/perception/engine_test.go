package perception

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
)

type reply struct {
	r   Reading
	err error
}

// scripted returns replies in order and repeats the last.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (s *scripted) Recognize(ctx context.Context, _ image.Image) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.replies)-1)
	s.calls++
	return s.replies[i].r, s.replies[i].err
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func read(l, r int, conf float64) reply {
	return reply{r: Reading{Pair: dice.Pair{Left: l, Right: r}, Confidence: conf}}
}

func newTestEngine(t *testing.T, local, remote Recognizer) (*Engine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	e, err := NewEngine(local, remote, clk, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, clk
}

var frame = image.NewRGBA(image.Rect(0, 0, 4, 4))

func TestNewEngineRequiresRemote(t *testing.T) {
	_, err := NewEngine(&scripted{}, nil, clock.Real{}, DefaultConfig())
	if !apperrors.IsCode(err, apperrors.Precondition) {
		t.Errorf("err = %v, want precondition", err)
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
		want    []Verdict
	}{
		{"high confidence escalates", []reply{read(3, 5, 0.9)}, []Verdict{Escalate}},
		{"below floor not settled", []reply{read(3, 5, 0.2)}, []Verdict{NotSettled}},
		{"out of range not settled", []reply{read(0, 5, 0.99)}, []Verdict{NotSettled}},
		{"error not settled", []reply{{err: errors.New("blur")}}, []Verdict{NotSettled}},
		{"repeat escalates", []reply{read(3, 5, 0.6), read(3, 5, 0.6)}, []Verdict{NeedRepeat, Escalate}},
		{"jitter restarts debounce", []reply{read(3, 5, 0.6), read(3, 6, 0.6), read(3, 6, 0.6)}, []Verdict{NeedRepeat, NeedRepeat, Escalate}},
		{"floor breaks debounce", []reply{read(3, 5, 0.6), read(3, 5, 0.1), read(3, 5, 0.6)}, []Verdict{NeedRepeat, NotSettled, NeedRepeat}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, &scripted{replies: tt.replies}, &scripted{})
			var g Gate
			for i, want := range tt.want {
				if got := e.Assess(context.Background(), &g, frame); got != want {
					t.Fatalf("pass %d: verdict = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestConfirmValid(t *testing.T) {
	remote := &scripted{replies: []reply{read(3, 5, 0.95)}}
	e, clk := newTestEngine(t, &scripted{}, remote)

	got, err := e.Confirm(context.Background(), frame)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !got.Valid || got.Winner != dice.Orange || got.Pair() != (dice.Pair{Left: 3, Right: 5}) {
		t.Errorf("result = %+v", got)
	}
	if clk.Sleeps() != 0 {
		t.Error("no retry delay expected")
	}
}

func TestConfirmUsesReportedWinner(t *testing.T) {
	remote := &scripted{replies: []reply{{r: Reading{Pair: dice.Pair{Left: 6, Right: 1}, Winner: dice.Orange, Confidence: 0.9}}}}
	e, _ := newTestEngine(t, &scripted{}, remote)

	got, err := e.Confirm(context.Background(), frame)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Winner != dice.Orange {
		t.Errorf("winner = %v, want orange", got.Winner)
	}
}

func TestConfirmRetriesOnceAfterInvalid(t *testing.T) {
	remote := &scripted{replies: []reply{read(0, 0, 0.1), read(2, 2, 0.9)}}
	e, clk := newTestEngine(t, &scripted{}, remote)

	got, err := e.Confirm(context.Background(), frame)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !got.Draw {
		t.Errorf("expected draw, got %+v", got)
	}
	if remote.Calls() != 2 || clk.Sleeps() != 1 {
		t.Errorf("calls=%d sleeps=%d, want 2/1", remote.Calls(), clk.Sleeps())
	}
}

func TestConfirmInvalidTwiceIsFatal(t *testing.T) {
	remote := &scripted{replies: []reply{read(7, 1, 0.9), read(0, 0, 0)}}
	e, _ := newTestEngine(t, &scripted{}, remote)

	_, err := e.Confirm(context.Background(), frame)
	if !errors.Is(err, ErrConfirmationExhausted) {
		t.Fatalf("err = %v, want ErrConfirmationExhausted", err)
	}
	if !apperrors.IsFatal(err) {
		t.Error("exhaustion must be fatal")
	}
	if remote.Calls() != 2 {
		t.Errorf("remote calls = %d, want 2", remote.Calls())
	}
}

func TestConfirmUnreachable(t *testing.T) {
	remote := &scripted{replies: []reply{{err: errors.New("connection refused")}}}
	e, _ := newTestEngine(t, &scripted{}, remote)

	if _, err := e.Confirm(context.Background(), frame); !errors.Is(err, ErrConfirmationExhausted) {
		t.Errorf("err = %v, want ErrConfirmationExhausted", err)
	}
}

func TestConfirmBreakerOpenSkipsRetry(t *testing.T) {
	remote := &scripted{replies: []reply{{err: resilience.ErrOpen}}}
	e, clk := newTestEngine(t, &scripted{}, remote)

	_, err := e.Confirm(context.Background(), frame)
	if !errors.Is(err, ErrConfirmationExhausted) || !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("err = %v", err)
	}
	if remote.Calls() != 1 || clk.Sleeps() != 0 {
		t.Errorf("calls=%d sleeps=%d, want 1/0", remote.Calls(), clk.Sleeps())
	}
}

func TestConfirmCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	remote := RecognizerFunc(func(ctx context.Context, _ image.Image) (Reading, error) {
		cancel()
		return Reading{}, ctx.Err()
	})
	e, _ := newTestEngine(t, &scripted{}, remote)

	_, err := e.Confirm(ctx, frame)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if apperrors.IsFatal(err) {
		t.Error("cancellation is not a confirmation failure")
	}
}
