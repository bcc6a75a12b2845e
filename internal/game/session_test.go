package game

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/detect"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/perception"
	"github.com/GriffinCanCode/dicepilot/internal/region"
	"github.com/GriffinCanCode/dicepilot/internal/screen"
)

var (
	rectA = region.Rect{X: 0, Y: 0, W: 10, H: 10}
	rectB = region.Rect{X: 100, Y: 0, W: 10, H: 10}
)

// tagged is a frame that carries its fingerprint so fake recognizers can
// look up what the dice show.
type tagged struct {
	image.Image
	fp screen.Fingerprint
}

// world scripts the fingerprints each window shows and what they read as.
type world struct {
	mu       sync.Mutex
	scripts  map[image.Rectangle][]screen.Fingerprint
	pos      map[image.Rectangle]int
	readings map[screen.Fingerprint]perception.Reading
	invalid  map[screen.Fingerprint]bool
	remote   int
}

func newWorld(a, b []screen.Fingerprint) *world {
	return &world{
		scripts: map[image.Rectangle][]screen.Fingerprint{
			rectA.Rectangle(): a,
			rectB.Rectangle(): b,
		},
		pos:      map[image.Rectangle]int{},
		readings: map[screen.Fingerprint]perception.Reading{},
		invalid:  map[screen.Fingerprint]bool{},
	}
}

func (w *world) shows(fp screen.Fingerprint, l, r int, winner dice.Side) {
	w.readings[fp] = perception.Reading{Pair: dice.Pair{Left: l, Right: r}, Winner: winner, Confidence: 0.95}
}

func (w *world) Sample(ctx context.Context, rect image.Rectangle) (screen.Sample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.scripts[rect]
	i := min(w.pos[rect], len(seq)-1)
	w.pos[rect]++
	fp := seq[i]
	return screen.Sample{Image: tagged{image.NewUniform(color.White), fp}, Fingerprint: fp}, nil
}

func (w *world) local() perception.Recognizer {
	return perception.RecognizerFunc(func(_ context.Context, img image.Image) (perception.Reading, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.readings[img.(tagged).fp], nil
	})
}

func (w *world) remoteRecognizer() perception.Recognizer {
	return perception.RecognizerFunc(func(_ context.Context, img image.Image) (perception.Reading, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.remote++
		fp := img.(tagged).fp
		if w.invalid[fp] {
			return perception.Reading{Confidence: 0.1}, nil
		}
		return w.readings[fp], nil
	})
}

func (w *world) remoteCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remote
}

type placement struct {
	window dice.Window
	side   dice.Side
	amount int
}

type recordingPlacer struct {
	mu     sync.Mutex
	bets   []placement
	err    error
	calls  int
	placed chan placement
}

func newPlacer() *recordingPlacer {
	return &recordingPlacer{placed: make(chan placement, 32)}
}

func (p *recordingPlacer) PlaceBet(_ context.Context, w dice.Window, side dice.Side, amount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	b := placement{w, side, amount}
	p.bets = append(p.bets, b)
	p.placed <- b
	return nil
}

func (p *recordingPlacer) Bets() []placement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]placement(nil), p.bets...)
}

func (p *recordingPlacer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func regions(chips ...int) *region.Map {
	win := func(dice region.Rect) map[string]region.Rect {
		m := map[string]region.Rect{
			region.Dice:      dice,
			region.BetRed:    {X: 1, Y: 50, W: 5, H: 5},
			region.BetOrange: {X: 10, Y: 50, W: 5, H: 5},
			region.Confirm:   {X: 20, Y: 50, W: 5, H: 5},
		}
		for i, c := range chips {
			m[region.Chip(c)] = region.Rect{X: i * 6, Y: 70, W: 5, H: 5}
		}
		return m
	}
	return &region.Map{Windows: map[string]map[string]region.Rect{"A": win(rectA), "B": win(rectB)}}
}

func testConfig() Config {
	return Config{
		Strategy: betting.Config{BaseBet: 10, MaxBet: 2500, DefaultSide: dice.Red, DefaultWindow: dice.WindowA},
		Detect: detect.Config{
			PollInterval:     100 * time.Millisecond,
			StableFor:        200 * time.Millisecond,
			ChangeTimeout:    2 * time.Second,
			StabilityTimeout: 2 * time.Second,
		},
		Perception: perception.DefaultConfig(),
		Chips:      []int{10},
	}
}

func newTestSession(t *testing.T, cfg Config, w *world, p Placer) *Session {
	t.Helper()
	s, err := NewSession(cfg, Deps{
		Sampler: w,
		Locator: regions(10),
		Placer:  p,
		Local:   w.local(),
		Remote:  w.remoteRecognizer(),
		Clock:   clock.NewFake(time.Unix(1_700_000_000, 0)),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// waitBets blocks until n bets were placed.
func waitBets(t *testing.T, p *recordingPlacer, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-p.placed:
		case <-deadline:
			t.Fatalf("timed out after %d of %d bets", i, n)
		}
	}
}

func drain(s *Session) []Event {
	var out []Event
	for e := range s.Events() {
		out = append(out, e)
	}
	return out
}

const (
	a0, a1, a2 screen.Fingerprint = 0xA0, 0xA1, 0xA2
	b0, b1, b2 screen.Fingerprint = 0xB0, 0xB1, 0xB2
)

func TestRedOrangeScenario(t *testing.T) {
	w := newWorld(
		[]screen.Fingerprint{a0, a1, a1, a1, a1, a2, a2, a2},
		[]screen.Fingerprint{b0, b1, b1, b1, b1, b2, b2, b2},
	)
	w.shows(b1, 4, 2, dice.NoSide) // bootstrap round, ignored
	w.shows(a1, 3, 5, dice.Orange) // RED loses
	w.shows(b2, 2, 2, dice.NoSide) // draw
	w.shows(a2, 6, 1, dice.Orange) // ORANGE wins
	p := newPlacer()
	s := newTestSession(t, testConfig(), w, p)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitBets(t, p, 4)
	s.Stop()
	events := drain(s)

	want := []placement{
		{dice.WindowA, dice.Red, 10},
		{dice.WindowB, dice.Red, 20},
		{dice.WindowA, dice.Orange, 40},
		{dice.WindowB, dice.Orange, 10},
	}
	got := p.Bets()
	if len(got) != len(want) {
		t.Fatalf("bets = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bet %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	st := s.Snapshot()
	if st.TotalRounds != 3 || st.TotalProfit != 10 || st.Running {
		t.Errorf("final state = %+v", st)
	}
	if st.ConsecutiveLosses != 0 || st.ActiveWindow != dice.WindowB {
		t.Errorf("final counters/window = %+v", st)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err after Stop = %v", err)
	}
	if s.Phase() != Stopped {
		t.Errorf("phase = %v", s.Phase())
	}

	var outcomes []betting.Outcome
	var bootstrap int
	for _, e := range events {
		if e.Kind != EventResult {
			continue
		}
		if e.Bootstrap {
			bootstrap++
			continue
		}
		outcomes = append(outcomes, e.Outcome)
	}
	if bootstrap != 1 {
		t.Errorf("bootstrap results = %d, want 1", bootstrap)
	}
	wantOutcomes := []betting.Outcome{betting.Loss, betting.Loss, betting.Win}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %v, want %v", outcomes, wantOutcomes)
	}
	for i := range wantOutcomes {
		if outcomes[i] != wantOutcomes[i] {
			t.Errorf("outcome %d = %v, want %v", i, outcomes[i], wantOutcomes[i])
		}
	}
	if last := events[len(events)-1]; last.Kind != EventStopped || last.Err != nil {
		t.Errorf("last event = %v (%v), want clean stop", last.Kind, last.Err)
	}
}

func TestRemoteInvalidTwiceStops(t *testing.T) {
	w := newWorld(
		[]screen.Fingerprint{a0, a1, a1, a1},
		[]screen.Fingerprint{b0, b1, b1, b1},
	)
	w.shows(b1, 4, 2, dice.NoSide)
	w.shows(a1, 3, 5, dice.Orange)
	w.invalid[a1] = true
	p := newPlacer()
	s := newTestSession(t, testConfig(), w, p)

	err := s.Run(context.Background())
	if !errors.Is(err, perception.ErrConfirmationExhausted) {
		t.Fatalf("Run err = %v, want confirmation exhausted", err)
	}
	if len(p.Bets()) != 1 {
		t.Errorf("bets = %+v, want only the bootstrap bet", p.Bets())
	}
	if w.remoteCalls() != 3 { // seed round + two attempts
		t.Errorf("remote calls = %d, want 3", w.remoteCalls())
	}
	if s.Phase() != Stopped || s.Snapshot().TotalRounds != 0 {
		t.Errorf("phase=%v rounds=%d", s.Phase(), s.Snapshot().TotalRounds)
	}

	var fatal bool
	for _, e := range drain(s) {
		if e.Kind == EventFatal && apperrors.IsCode(e.Err, apperrors.ConfirmationExhausted) {
			fatal = true
		}
	}
	if !fatal {
		t.Error("no fatal event published")
	}
}

func TestMissingRegionIsPrecondition(t *testing.T) {
	w := newWorld([]screen.Fingerprint{a0}, []screen.Fingerprint{b0})
	p := newPlacer()
	_, err := NewSession(testConfig(), Deps{
		Sampler: w,
		Locator: regions(), // no chip regions
		Placer:  p,
		Local:   w.local(),
		Remote:  w.remoteRecognizer(),
	})
	if !apperrors.IsCode(err, apperrors.Precondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if p.Calls() != 0 {
		t.Error("no bet may be placed before preconditions hold")
	}
}

func TestMissingRemoteIsPrecondition(t *testing.T) {
	w := newWorld([]screen.Fingerprint{a0}, []screen.Fingerprint{b0})
	_, err := NewSession(testConfig(), Deps{Sampler: w, Locator: regions(10), Placer: newPlacer(), Local: w.local()})
	if !apperrors.IsCode(err, apperrors.Precondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
}

func TestDuplicateResultDiscarded(t *testing.T) {
	const b3 screen.Fingerprint = 0xB3
	w := newWorld(
		[]screen.Fingerprint{a0, a1, a1, a1},
		[]screen.Fingerprint{b0, b1, b1, b1, b1, b2, b2, b2, b3, b3, b3},
	)
	w.shows(b1, 4, 2, dice.NoSide)
	w.shows(a1, 3, 5, dice.Orange)
	w.shows(b2, 3, 5, dice.Orange) // same pair right after: duplicate
	w.shows(b3, 5, 1, dice.Red)
	p := newPlacer()
	s := newTestSession(t, testConfig(), w, p)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitBets(t, p, 3)
	s.Stop()

	st := s.Snapshot()
	if st.TotalRounds != 2 {
		t.Errorf("TotalRounds = %d, want 2 (duplicate skipped)", st.TotalRounds)
	}
	// bootstrap RED 10 in A, loss -> RED 20 in B, (5,1) red wins -> 10 in A
	if st.TotalProfit != 10 || st.CurrentBet != 10 {
		t.Errorf("state = %+v", st)
	}
}

func TestPhaseTimeoutRestartsWait(t *testing.T) {
	a := []screen.Fingerprint{a0}
	for i := 0; i < 30; i++ { // 3s of no change against a 2s budget
		a = append(a, a0)
	}
	a = append(a, a1, a1, a1)
	w := newWorld(a, []screen.Fingerprint{b0, b1, b1, b1})
	w.shows(b1, 4, 2, dice.NoSide)
	w.shows(a1, 2, 6, dice.Orange)
	p := newPlacer()
	s := newTestSession(t, testConfig(), w, p)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitBets(t, p, 2)
	s.Stop()

	if got := p.Bets()[1]; got != (placement{dice.WindowB, dice.Red, 20}) {
		t.Errorf("second bet = %+v", got)
	}
	if s.Err() != nil {
		t.Errorf("phase timeouts must not stop the session: %v", s.Err())
	}
}

func TestPlacementFailureIsFatal(t *testing.T) {
	w := newWorld([]screen.Fingerprint{a0}, []screen.Fingerprint{b0})
	p := newPlacer()
	p.err = errors.New("window not focused")
	s := newTestSession(t, testConfig(), w, p)

	err := s.Run(context.Background())
	if !apperrors.IsCode(err, apperrors.PlacementFailed) {
		t.Fatalf("err = %v, want placement failed", err)
	}
	if p.Calls() != 3 {
		t.Errorf("placement attempts = %d, want 3", p.Calls())
	}
}

func TestPartialPlacementIsNotRetried(t *testing.T) {
	w := newWorld([]screen.Fingerprint{a0}, []screen.Fingerprint{b0})
	p := newPlacer()
	p.err = apperrors.New(apperrors.PlacementFailed, "bet partially placed after 3 of 5 taps")
	s := newTestSession(t, testConfig(), w, p)

	err := s.Run(context.Background())
	if !apperrors.IsCode(err, apperrors.PlacementFailed) {
		t.Fatalf("err = %v, want placement failed", err)
	}
	if p.Calls() != 1 {
		t.Errorf("placement attempts = %d, want 1", p.Calls())
	}
}

func TestStopLoss(t *testing.T) {
	w := newWorld(
		[]screen.Fingerprint{a0, a1, a1, a1},
		[]screen.Fingerprint{b0, b1, b1, b1},
	)
	w.shows(b1, 4, 2, dice.NoSide)
	w.shows(a1, 1, 6, dice.Orange)
	cfg := testConfig()
	cfg.StopLoss = 10
	p := newPlacer()
	s := newTestSession(t, cfg, w, p)

	err := s.Run(context.Background())
	if !apperrors.IsCode(err, apperrors.StopCondition) {
		t.Fatalf("err = %v, want stop condition", err)
	}
	if len(p.Bets()) != 1 {
		t.Errorf("bets = %+v, want no bet after stop loss", p.Bets())
	}
	if s.Snapshot().TotalProfit != -10 {
		t.Errorf("profit = %d", s.Snapshot().TotalProfit)
	}
}

func TestStopWhileWaiting(t *testing.T) {
	w := newWorld([]screen.Fingerprint{a0}, []screen.Fingerprint{b0})
	p := newPlacer()
	s := newTestSession(t, testConfig(), w, p)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	waitBets(t, p, 1)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.Err() != nil || s.Snapshot().Running {
		t.Errorf("err=%v running=%v", s.Err(), s.Snapshot().Running)
	}
}
