// Package metrics exports session activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
)

// Recorder implements game.Observer using Prometheus.
type Recorder struct {
	gatherer prometheus.Gatherer

	rounds            *prometheus.CounterVec
	bets              *prometheus.CounterVec
	stakeTotal        prometheus.Counter
	fatals            *prometheus.CounterVec
	profit            prometheus.Gauge
	currentBet        prometheus.Gauge
	consecutiveLosses prometheus.Gauge
	breakerState      prometheus.Gauge
}

var _ game.Observer = (*Recorder)(nil)

// New creates a recorder registered on reg.
func New(reg *prometheus.Registry) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicepilot_rounds_total",
				Help: "Rounds applied to the strategy",
			},
			[]string{"window", "outcome"},
		),
		bets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicepilot_bets_total",
				Help: "Bets placed",
			},
			[]string{"window", "side"},
		),
		stakeTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "dicepilot_staked_total",
			Help: "Sum of all placed bet amounts",
		}),
		fatals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicepilot_fatal_errors_total",
				Help: "Sessions stopped by a fatal error",
			},
			[]string{"code"},
		),
		profit: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicepilot_profit",
			Help: "Running profit of the current session",
		}),
		currentBet: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicepilot_current_bet",
			Help: "Next bet amount",
		}),
		consecutiveLosses: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicepilot_consecutive_losses",
			Help: "Current losing streak",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicepilot_recognizer_breaker_state",
			Help: "Remote recognizer circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
	}
}

// Observe records one session event.
func (r *Recorder) Observe(_ context.Context, e game.Event) {
	switch e.Kind {
	case game.EventResult:
		if !e.Bootstrap {
			r.rounds.WithLabelValues(e.Window.String(), e.Outcome.String()).Inc()
		}
	case game.EventBet:
		r.bets.WithLabelValues(e.Bet.Window.String(), e.Bet.Side.String()).Inc()
		r.stakeTotal.Add(float64(e.Bet.Amount))
	case game.EventFatal:
		r.fatals.WithLabelValues(apperrors.CodeOf(e.Err).String()).Inc()
	}
	r.profit.Set(float64(e.State.TotalProfit))
	r.currentBet.Set(float64(e.State.CurrentBet))
	r.consecutiveLosses.Set(float64(e.State.ConsecutiveLosses))
}

// BreakerHook returns a breaker transition hook that tracks its state.
func (r *Recorder) BreakerHook() func(from, to resilience.State) {
	return func(_, to resilience.State) {
		r.breakerState.Set(float64(to))
	}
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
