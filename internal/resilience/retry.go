// Package resilience provides retry and circuit breaking for the remote recognizer
// and the bet placement collaborator.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/dicepilot/internal/clock"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
)

// Retry configuration constants
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 200 * time.Millisecond
	DefaultMaxDelay     = 2 * time.Second
	DefaultJitterFactor = 0.2

	// Bet placement: a tap sequence that failed is usually a focus glitch.
	PlacementMaxRetries = 2
	PlacementBaseDelay  = 300 * time.Millisecond
	PlacementMaxDelay   = time.Second
)

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
	// Sleep waits between attempts; defaults to the real clock.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  IsRetryableGRPC,
	}
}

// PlacementRetryConfig returns settings for retrying a failed bet placement.
// Errors already coded PLACEMENT_FAILED mean chips may be on the table and are
// never retried.
func PlacementRetryConfig(c clock.Clock) RetryConfig {
	return RetryConfig{
		MaxRetries:   PlacementMaxRetries,
		BaseDelay:    PlacementBaseDelay,
		MaxDelay:     PlacementMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  isRetryablePlacement,
		Sleep:        c.Sleep,
	}
}

// IsRetryableGRPC checks if a gRPC error is worth retrying.
func IsRetryableGRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return !isContextErr(err)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func isRetryablePlacement(err error) bool {
	return err != nil && !isContextErr(err) && !apperrors.IsCode(err, apperrors.PlacementFailed)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Retry executes fn with exponential backoff. Returns last error if all retries fail.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if !cfg.IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		delay := backoffDelay(cfg, attempt)
		slog.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", lastErr)

		if err := cfg.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoffDelay calculates exponential backoff with jitter.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << min(attempt, 6)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := float64(delay) * cfg.JitterFactor * (rand.Float64() - 0.5)
	return time.Duration(float64(delay) + jitter)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = DefaultJitterFactor
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryableGRPC
	}
	if c.Sleep == nil {
		c.Sleep = clock.Real{}.Sleep
	}
	return c
}
