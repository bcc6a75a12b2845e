package perception

import (
	"context"
	"errors"
	"image"
	"strconv"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// ErrConfirmationExhausted is returned when the remote recognizer could not
// confirm a frame. It is fatal to the session.
var ErrConfirmationExhausted = apperrors.New(apperrors.ConfirmationExhausted, "")

// Config holds the engine thresholds.
type Config struct {
	MinConfidence  float64
	LocalFloor     float64
	HighConfidence float64
	RepeatPasses   int
	RemoteTimeout  time.Duration
	RetryDelay     time.Duration
	Layout         dice.Layout
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  DefaultMinConfidence,
		LocalFloor:     DefaultLocalFloor,
		HighConfidence: DefaultHighConfidence,
		RepeatPasses:   DefaultRepeatPasses,
		RemoteTimeout:  DefaultRemoteTimeout,
		RetryDelay:     DefaultRetryDelay,
		Layout:         dice.DefaultLayout,
	}
}

// Engine combines the local gate with remote confirmation.
type Engine struct {
	local  Recognizer
	remote Recognizer
	clock  clock.Clock
	cfg    Config
}

// NewEngine creates an engine. remote is mandatory.
func NewEngine(local, remote Recognizer, clk clock.Clock, cfg Config) (*Engine, error) {
	if local == nil || remote == nil {
		return nil, apperrors.New(apperrors.Precondition, "local and remote recognizers are required")
	}
	if cfg.RepeatPasses < 1 {
		cfg.RepeatPasses = DefaultRepeatPasses
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	if cfg.Layout == (dice.Layout{}) {
		cfg.Layout = dice.DefaultLayout
	}
	return &Engine{local: local, remote: remote, clock: clk, cfg: cfg}, nil
}

// Gate tracks the local debounce across passes of one round.
type Gate struct {
	last    dice.Pair
	repeats int
}

// Reset forgets previous passes.
func (g *Gate) Reset() { *g = Gate{} }

// Assess runs one local pass on img.
func (e *Engine) Assess(ctx context.Context, g *Gate, img image.Image) Verdict {
	log := trace.Logger(ctx)
	r, err := e.local.Recognize(ctx, img)
	if err != nil {
		log.Debug("local recognition failed", "error", err)
		g.Reset()
		return NotSettled
	}
	if !r.Pair.InRange() || r.Confidence < e.cfg.LocalFloor {
		log.Debug("local pass below floor", "pair", r.Pair, "confidence", r.Confidence)
		g.Reset()
		return NotSettled
	}
	if r.Confidence >= e.cfg.HighConfidence {
		return Escalate
	}

	if g.repeats > 0 && g.last == r.Pair {
		g.repeats++
	} else {
		g.last, g.repeats = r.Pair, 1
	}
	if g.repeats >= e.cfg.RepeatPasses {
		return Escalate
	}
	log.Debug("local pass needs repeat", "pair", r.Pair, "confidence", r.Confidence, "repeats", g.repeats)
	return NeedRepeat
}

// Confirm asks the remote recognizer for the result of img. An invalid or
// failed answer is retried once after RetryDelay; after that, or when the
// breaker is open, ErrConfirmationExhausted is returned.
func (e *Engine) Confirm(ctx context.Context, img image.Image) (dice.Result, error) {
	ctx, span := trace.StartSpan(ctx, "perception.confirm")
	defer span.End()
	log := trace.Logger(ctx)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			if err := e.clock.Sleep(ctx, e.cfg.RetryDelay); err != nil {
				return dice.Result{}, err
			}
		}
		span.SetAttr("attempt", attempt)

		result, err := e.confirmOnce(ctx, img)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return dice.Result{}, ctx.Err()
		}
		lastErr = err
		log.Warn("remote confirmation failed", "attempt", attempt, "error", err)
		if errors.Is(err, resilience.ErrOpen) {
			break
		}
	}
	return dice.Result{}, apperrors.Wrap(lastErr, apperrors.ConfirmationExhausted, "remote confirmation exhausted")
}

func (e *Engine) confirmOnce(ctx context.Context, img image.Image) (dice.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()

	r, err := e.remote.Recognize(callCtx, img)
	if err != nil {
		return dice.Result{}, err
	}
	var result dice.Result
	if r.Winner != dice.NoSide {
		result = dice.NewResultWithWinner(r.Pair, r.Winner, r.Confidence, e.cfg.MinConfidence)
	} else {
		result = dice.NewResult(r.Pair, r.Confidence, e.cfg.MinConfidence, e.cfg.Layout)
	}
	if !result.Valid {
		return dice.Result{}, apperrors.New(apperrors.TransientLocal, "remote result invalid").
			WithMetadata("pair", r.Pair.String()).
			WithMetadata("confidence", strconv.FormatFloat(r.Confidence, 'f', 2, 64))
	}
	return result, nil
}
