package detect

import (
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/screen"
)

// Phase is the state of a change detection session.
type Phase int

const (
	AwaitingChange Phase = iota
	AwaitingStability
	Settled
)

func (p Phase) String() string {
	switch p {
	case AwaitingChange:
		return "awaiting_change"
	case AwaitingStability:
		return "awaiting_stability"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Session is the per-round change detection state. It is not safe for
// concurrent use; a single loop owns it.
type Session struct {
	baseline  screen.Fingerprint
	stableFor time.Duration
	limit     int

	recent       []screen.Fingerprint
	phase        Phase
	candidate    screen.Fingerprint
	hasCandidate bool
	since        time.Time
}

// NewSession starts a round waiting for a fingerprint different from baseline.
func NewSession(baseline screen.Fingerprint, stableFor time.Duration, history int) *Session {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Session{baseline: baseline, stableFor: stableFor, limit: history}
}

// Observe feeds one sample taken at now and returns the resulting phase.
func (s *Session) Observe(fp screen.Fingerprint, now time.Time) Phase {
	s.recent = append(s.recent, fp)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}

	switch s.phase {
	case AwaitingChange:
		if fp == s.baseline {
			return s.phase
		}
		s.phase = AwaitingStability
		s.candidate, s.hasCandidate, s.since = fp, true, now
	case AwaitingStability:
		if !s.hasCandidate || fp != s.candidate {
			s.candidate, s.hasCandidate, s.since = fp, true, now
			return s.phase
		}
	case Settled:
		return s.phase
	}

	if now.Sub(s.since) >= s.stableFor {
		s.phase = Settled
	}
	return s.phase
}

// Unsettle drops a settled candidate and resumes waiting for stability. Used
// when recognition decides the frame was not final after all.
func (s *Session) Unsettle() {
	if s.phase == Settled {
		s.phase = AwaitingStability
		s.hasCandidate = false
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Baseline returns the fingerprint the round is compared against.
func (s *Session) Baseline() screen.Fingerprint { return s.baseline }

// Candidate returns the fingerprint currently being watched for stability.
func (s *Session) Candidate() screen.Fingerprint { return s.candidate }

// Recent returns a copy of the rolling fingerprint window.
func (s *Session) Recent() []screen.Fingerprint {
	return append([]screen.Fingerprint(nil), s.recent...)
}
