// Package detect decides when a window's dice region changed and then settled,
// using cheap fingerprints instead of recognition.
package detect

import (
	"context"
	"image"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/clock"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/screen"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

var (
	// ErrNoChange means the region never differed from the baseline in time.
	ErrNoChange = apperrors.New(apperrors.PhaseTimeout, "no change detected")
	// ErrNotStable means the region kept changing past the stability budget.
	ErrNotStable = apperrors.New(apperrors.PhaseTimeout, "region did not settle")
)

// Sampler captures a fingerprinted crop of a region.
type Sampler interface {
	Sample(ctx context.Context, rect image.Rectangle) (screen.Sample, error)
}

// Config holds detection timing.
type Config struct {
	PollInterval     time.Duration
	StableFor        time.Duration
	ChangeTimeout    time.Duration
	StabilityTimeout time.Duration
	History          int
}

// DefaultConfig returns the default detection timing.
func DefaultConfig() Config {
	return Config{
		PollInterval:     DefaultPollInterval,
		StableFor:        DefaultStableFor,
		ChangeTimeout:    DefaultChangeTimeout,
		StabilityTimeout: DefaultStabilityTimeout,
		History:          DefaultHistory,
	}
}

// Detector drives a Session by polling a Sampler.
type Detector struct {
	sampler Sampler
	clock   clock.Clock
	cfg     Config
}

// New creates a detector.
func New(s Sampler, clk clock.Clock, cfg Config) *Detector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ChangeTimeout <= 0 {
		cfg.ChangeTimeout = DefaultChangeTimeout
	}
	if cfg.StabilityTimeout <= 0 {
		cfg.StabilityTimeout = DefaultStabilityTimeout
	}
	return &Detector{sampler: s, clock: clk, cfg: cfg}
}

// NewSession starts a round against baseline.
func (d *Detector) NewSession(baseline screen.Fingerprint) *Session {
	return NewSession(baseline, d.cfg.StableFor, d.cfg.History)
}

// Baseline samples rect once and returns its fingerprint.
func (d *Detector) Baseline(ctx context.Context, rect image.Rectangle) (screen.Fingerprint, error) {
	s, err := d.sampler.Sample(ctx, rect)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TransientLocal, "baseline sample failed")
	}
	return s.Fingerprint, nil
}

// AwaitChange polls until the region differs from the session baseline and
// returns the first differing sample. Returns ErrNoChange after ChangeTimeout.
func (d *Detector) AwaitChange(ctx context.Context, sess *Session, rect image.Rectangle) (screen.Sample, error) {
	log := trace.Logger(ctx)
	start := d.clock.Now()
	for {
		if s, ok := d.sample(ctx, rect); ok {
			if sess.Observe(s.Fingerprint, d.clock.Now()) != AwaitingChange {
				log.Debug("change detected", "baseline", sess.Baseline(), "fingerprint", s.Fingerprint)
				return s, nil
			}
		}
		if d.clock.Now().Sub(start) >= d.cfg.ChangeTimeout {
			return screen.Sample{}, ErrNoChange
		}
		if err := d.clock.Sleep(ctx, d.cfg.PollInterval); err != nil {
			return screen.Sample{}, err
		}
	}
}

// AwaitStable polls until the session settles and returns the settled sample.
// last is the most recent sample observed by sess. Returns ErrNotStable after
// StabilityTimeout.
func (d *Detector) AwaitStable(ctx context.Context, sess *Session, rect image.Rectangle, last screen.Sample) (screen.Sample, error) {
	if sess.Phase() == Settled {
		return last, nil
	}
	start := d.clock.Now()
	for {
		if d.clock.Now().Sub(start) >= d.cfg.StabilityTimeout {
			return screen.Sample{}, ErrNotStable
		}
		if err := d.clock.Sleep(ctx, d.cfg.PollInterval); err != nil {
			return screen.Sample{}, err
		}
		s, ok := d.sample(ctx, rect)
		if !ok {
			continue
		}
		if sess.Observe(s.Fingerprint, d.clock.Now()) == Settled {
			trace.Logger(ctx).Debug("region settled", "fingerprint", s.Fingerprint)
			return s, nil
		}
	}
}

// Await runs both phases of a round and returns the settled sample.
func (d *Detector) Await(ctx context.Context, sess *Session, rect image.Rectangle) (screen.Sample, error) {
	s, err := d.AwaitChange(ctx, sess, rect)
	if err != nil {
		return screen.Sample{}, err
	}
	return d.AwaitStable(ctx, sess, rect, s)
}

// sample swallows capture failures; they are retried on the next tick.
func (d *Detector) sample(ctx context.Context, rect image.Rectangle) (screen.Sample, bool) {
	s, err := d.sampler.Sample(ctx, rect)
	if err != nil {
		if ctx.Err() == nil {
			trace.Logger(ctx).Debug("sample failed", "error", err)
		}
		return screen.Sample{}, false
	}
	return s, true
}
