package game

import (
	"context"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/detect"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/perception"
	"github.com/GriffinCanCode/dicepilot/internal/region"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
	"github.com/GriffinCanCode/dicepilot/internal/screen"
	"github.com/GriffinCanCode/dicepilot/internal/syncx"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// Placer performs the UI interaction for one bet. It is atomic from the
// session's point of view.
type Placer interface {
	PlaceBet(ctx context.Context, w dice.Window, side dice.Side, amount int) error
}

// Config holds session settings.
type Config struct {
	Strategy       betting.Config
	Detect         detect.Config
	Perception     perception.Config
	Chips          []int // denominations the placer taps; defaults to the ladder
	DedupWindow    time.Duration
	MaxLocalPasses int
	StopLoss       int // 0 disables
	TakeProfit     int // 0 disables
}

// Deps are the collaborators a session drives.
type Deps struct {
	Sampler detect.Sampler
	Locator region.Locator
	Placer  Placer
	Local   perception.Recognizer
	Remote  perception.Recognizer
	Clock   clock.Clock
}

type applied struct {
	pair dice.Pair
	at   time.Time
}

// Session is one run of the betting loop. It is created on start and
// discarded after it stops.
type Session struct {
	cfg      Config
	trace    trace.Context
	clock    clock.Clock
	strategy *betting.Strategy
	detector *detect.Detector
	engine   *perception.Engine
	placer   Placer
	diceRect map[dice.Window]image.Rectangle

	state *syncx.Guard[betting.State]
	phase *syncx.Guard[Phase]
	round *syncx.Guard[int]

	// owned by the loop goroutine
	baselines   map[dice.Window]screen.Fingerprint
	lastApplied *applied

	events  chan Event
	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewSession validates collaborators and regions. Any failure is a
// precondition error and no session is created.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Sampler == nil || deps.Locator == nil || deps.Placer == nil {
		return nil, apperrors.New(apperrors.Precondition, "sampler, locator and placer are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	strategy, err := betting.NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Precondition, "invalid strategy config")
	}
	engine, err := perception.NewEngine(deps.Local, deps.Remote, deps.Clock, cfg.Perception)
	if err != nil {
		return nil, err
	}
	if len(cfg.Chips) == 0 {
		cfg.Chips = strategy.Ladder()
	}
	if err := region.Validate(deps.Locator, cfg.Chips); err != nil {
		return nil, err
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.MaxLocalPasses <= 0 {
		cfg.MaxLocalPasses = DefaultMaxLocalPasses
	}

	rects := make(map[dice.Window]image.Rectangle, len(dice.Windows))
	for _, w := range dice.Windows {
		rects[w], _ = deps.Locator.RegionFor(w, region.Dice)
	}

	return &Session{
		cfg:       cfg,
		trace:     trace.NewSession(),
		clock:     deps.Clock,
		strategy:  strategy,
		detector:  detect.New(deps.Sampler, deps.Clock, cfg.Detect),
		engine:    engine,
		placer:    deps.Placer,
		diceRect:  rects,
		state:     syncx.NewGuard(betting.State{}),
		phase:     syncx.NewGuard(Stopped),
		round:     syncx.NewGuard(0),
		baselines: make(map[dice.Window]screen.Fingerprint, len(dice.Windows)),
		events:    make(chan Event, EventBuffer),
		done:      make(chan struct{}),
	}, nil
}

// ID returns the session correlation ID.
func (s *Session) ID() string { return s.trace.SessionID }

// Events returns the event stream. It is closed when the session stops.
func (s *Session) Events() <-chan Event { return s.events }

// Snapshot returns a copy of the betting state.
func (s *Session) Snapshot() betting.State { return s.state.Get() }

// Phase returns the current orchestrator phase.
func (s *Session) Phase() Phase { return s.phase.Get() }

// Round returns the number of rounds observed, bootstrap included.
func (s *Session) Round() int { return s.round.Get() }

// Done is closed when the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that stopped the session. It is nil while running and
// after an explicit stop.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Start runs the loop in a goroutine.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return apperrors.New(apperrors.Precondition, "session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		s.err = s.run(ctx)
		close(s.done)
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Session) Stop() {
	s.startMu.Lock()
	cancel, started := s.cancel, s.started
	s.startMu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.done
}

// Run executes the loop on the calling goroutine until ctx is cancelled or
// a fatal error occurs.
func (s *Session) Run(ctx context.Context) error {
	s.startMu.Lock()
	if s.started {
		s.startMu.Unlock()
		return apperrors.New(apperrors.Precondition, "session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.startMu.Unlock()

	s.err = s.run(ctx)
	close(s.done)
	return s.err
}

func (s *Session) run(ctx context.Context) error {
	ctx = trace.WithContext(ctx, s.trace)
	log := trace.Logger(ctx)
	log.Info("session starting")

	err := s.loop(ctx)
	if err != nil && ctx.Err() != nil && !apperrors.IsFatal(err) {
		err = nil
	}

	st := s.state.Update(func(st betting.State) betting.State {
		st.Running = false
		return st
	})
	s.phase.Set(Stopped)
	if err != nil {
		log.Error("session stopped", "error", err, "rounds", st.TotalRounds, "profit", st.TotalProfit)
		s.publish(Event{Kind: EventFatal, Err: err})
	} else {
		log.Info("session stopped", "rounds", st.TotalRounds, "profit", st.TotalProfit)
	}
	s.publish(Event{Kind: EventStopped, Err: err})
	close(s.events)
	return err
}

func (s *Session) loop(ctx context.Context) error {
	log := trace.Logger(ctx)

	// Bootstrap: bet before anything is observed.
	s.phase.Set(Bootstrapping)
	st, dec := s.strategy.Start()
	s.commit(st)
	if err := s.place(ctx, dec); err != nil {
		return err
	}
	st.ActiveWindow = dec.Window
	s.commit(st)
	s.refreshBaseline(ctx, dec.Window)

	// The first result in the other window only seeds its baseline.
	seed := dec.Window.Other()
	s.refreshBaseline(ctx, seed)
	for {
		res, _, err := s.observe(ctx, seed)
		if err != nil {
			if s.retryable(ctx, err, seed) {
				continue
			}
			return err
		}
		s.round.Set(1)
		log.Info("bootstrap round observed", "window", seed, "pair", res.Pair())
		s.publish(Event{Kind: EventResult, Window: seed, Result: res, Bootstrap: true})
		break
	}

	for {
		watch := st.ActiveWindow
		res, _, err := s.observe(ctx, watch)
		if err != nil {
			if s.retryable(ctx, err, watch) {
				continue
			}
			return err
		}
		if s.duplicate(res) {
			log.Info("duplicate result discarded", "window", watch, "pair", res.Pair())
			continue
		}

		round := s.round.Update(func(n int) int { return n + 1 })
		rctx := trace.WithContext(ctx, s.trace.ForRound(round))
		rlog := trace.Logger(rctx)

		s.phase.Set(Applying)
		staked := st.CurrentSide
		outcome := betting.Resolve(res, staked)
		next, dec := s.strategy.Apply(st, outcome)
		st = next
		s.commit(st)
		s.lastApplied = &applied{pair: res.Pair(), at: s.clock.Now()}
		rlog.Info("round applied",
			"window", watch, "pair", res.Pair(), "winner", res.Winner, "staked", staked,
			"outcome", outcome, "next_bet", dec.Amount, "next_side", dec.Side, "profit", st.TotalProfit)
		s.publish(Event{Kind: EventResult, Window: watch, Result: res, Outcome: outcome})

		if err := s.checkStop(st); err != nil {
			return err
		}

		if err := s.place(rctx, dec); err != nil {
			return err
		}
		st.ActiveWindow = dec.Window
		s.commit(st)
		s.refreshBaseline(rctx, dec.Window)
	}
}

// observe waits for one confirmed result in w.
func (s *Session) observe(ctx context.Context, w dice.Window) (dice.Result, screen.Sample, error) {
	rect := s.diceRect[w]
	sess := s.detector.NewSession(s.baselines[w])

	s.phase.Set(AwaitingChange)
	sample, err := s.detector.AwaitChange(ctx, sess, rect)
	if err != nil {
		return dice.Result{}, screen.Sample{}, err
	}

	s.phase.Set(AwaitingStability)
	sample, err = s.detector.AwaitStable(ctx, sess, rect, sample)
	if err != nil {
		return dice.Result{}, screen.Sample{}, err
	}

	var gate perception.Gate
	for pass := 1; ; pass++ {
		if s.engine.Assess(ctx, &gate, sample.Image) == perception.Escalate {
			break
		}
		if pass >= s.cfg.MaxLocalPasses {
			return dice.Result{}, screen.Sample{}, detect.ErrNotStable
		}
		sess.Unsettle()
		if sample, err = s.detector.AwaitStable(ctx, sess, rect, sample); err != nil {
			return dice.Result{}, screen.Sample{}, err
		}
	}

	s.phase.Set(Confirming)
	res, err := s.engine.Confirm(ctx, sample.Image)
	if err != nil {
		return dice.Result{}, screen.Sample{}, err
	}
	s.baselines[w] = sample.Fingerprint
	return res, sample, nil
}

// retryable reports whether the round wait should restart after err.
func (s *Session) retryable(ctx context.Context, err error, w dice.Window) bool {
	if ctx.Err() != nil || apperrors.IsFatal(err) {
		return false
	}
	if apperrors.IsCode(err, apperrors.PhaseTimeout) {
		trace.Logger(ctx).Info("phase timed out, restarting wait", "window", w, "reason", err)
		return true
	}
	return false
}

func (s *Session) duplicate(res dice.Result) bool {
	if s.lastApplied == nil || s.lastApplied.pair != res.Pair() {
		return false
	}
	return s.clock.Now().Sub(s.lastApplied.at) < s.cfg.DedupWindow
}

func (s *Session) checkStop(st betting.State) error {
	switch {
	case s.cfg.StopLoss > 0 && st.TotalProfit <= -s.cfg.StopLoss:
		return apperrors.New(apperrors.StopCondition, "stop loss reached").
			WithMetadata("profit", strconv.Itoa(st.TotalProfit))
	case s.cfg.TakeProfit > 0 && st.TotalProfit >= s.cfg.TakeProfit:
		return apperrors.New(apperrors.StopCondition, "take profit reached").
			WithMetadata("profit", strconv.Itoa(st.TotalProfit))
	}
	return nil
}

// place runs the placer with a short retry; exhaustion is fatal.
func (s *Session) place(ctx context.Context, dec betting.Decision) error {
	s.phase.Set(PlacingBet)
	err := resilience.Retry(ctx, resilience.PlacementRetryConfig(s.clock), func() error {
		return s.placer.PlaceBet(ctx, dec.Window, dec.Side, dec.Amount)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Wrap(err, apperrors.PlacementFailed, "bet placement failed").
			WithMetadata("window", dec.Window.String()).
			WithMetadata("side", dec.Side.String()).
			WithMetadata("amount", strconv.Itoa(dec.Amount))
	}
	trace.Logger(ctx).Info("bet placed", "window", dec.Window, "side", dec.Side, "amount", dec.Amount)
	s.publish(Event{Kind: EventBet, Bet: dec})
	return nil
}

// refreshBaseline captures the current dice fingerprint of w. On failure the
// previous baseline is kept.
func (s *Session) refreshBaseline(ctx context.Context, w dice.Window) {
	fp, err := s.detector.Baseline(ctx, s.diceRect[w])
	if err != nil {
		if ctx.Err() == nil {
			trace.Logger(ctx).Warn("baseline capture failed", "window", w, "error", err)
		}
		return
	}
	s.baselines[w] = fp
}

// commit publishes st as the current state. st is a value; observers never
// see a partially applied transition.
func (s *Session) commit(st betting.State) {
	s.state.Set(st)
	s.publish(Event{Kind: EventSnapshot})
}

func (s *Session) publish(e Event) {
	e.At = s.clock.Now()
	e.SessionID = s.trace.SessionID
	e.Round = s.round.Get()
	e.Phase = s.phase.Get()
	e.State = s.state.Get()
	select {
	case s.events <- e:
	default:
		if e.Kind == EventFatal || e.Kind == EventStopped {
			// drop the oldest event so the terminal one is delivered
			select {
			case <-s.events:
			default:
			}
			select {
			case s.events <- e:
			default:
			}
			return
		}
		trace.Logger(context.Background()).Warn("event dropped", "kind", e.Kind)
	}
}
