package game

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/dicepilot/internal/betting"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// Observer consumes session events. Observe is called from a single
// goroutine per session and should not block for long.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// Status is a point-in-time view of the manager.
type Status struct {
	Running   bool          `json:"running"`
	SessionID string        `json:"session_id,omitempty"`
	Phase     string        `json:"phase"`
	Round     int           `json:"round"`
	State     betting.State `json:"state"`
	LastError string        `json:"last_error,omitempty"`
}

// Manager owns at most one running session and fans its events out to
// observers and subscribers.
type Manager struct {
	cfg       Config
	deps      Deps
	observers []Observer
	history   *History

	mu       sync.Mutex
	session  *Session
	pumpDone chan struct{}

	subMu   sync.RWMutex
	subs    map[chan Event]struct{}
	lastErr error
}

// NewManager creates a manager.
func NewManager(cfg Config, deps Deps, observers ...Observer) *Manager {
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		observers: observers,
		history:   NewHistory(HistorySize),
		subs:      make(map[chan Event]struct{}),
	}
}

// Start creates and starts a new session. It fails if one is running.
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		select {
		case <-m.session.Done():
		default:
			return "", apperrors.New(apperrors.Precondition, "session already running")
		}
	}
	if m.pumpDone != nil {
		<-m.pumpDone
	}

	s, err := NewSession(m.cfg, m.deps)
	if err != nil {
		return "", err
	}
	// detached from the request context so the session outlives it
	ctx = trace.WithContext(context.WithoutCancel(ctx), s.trace)
	if err := s.Start(ctx); err != nil {
		return "", err
	}
	m.session = s
	m.subMu.Lock()
	m.lastErr = nil
	m.subMu.Unlock()
	m.history.Reset()
	m.pumpDone = make(chan struct{})
	go m.pump(ctx, s, m.pumpDone)
	trace.Logger(ctx).Info("session started")
	return s.ID(), nil
}

// Stop stops the running session, if any, and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	m.subMu.RLock()
	lastErr := m.lastErr
	m.subMu.RUnlock()

	st := Status{Phase: Stopped.String()}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if s == nil {
		return st
	}
	st.SessionID = s.ID()
	st.Phase = s.Phase().String()
	st.Round = s.Round()
	st.State = s.Snapshot()
	st.Running = st.State.Running
	return st
}

// History returns up to n recent results.
func (m *Manager) History(n int) []Event { return m.history.Recent(n) }

// Subscribe returns a channel receiving every event and a function that
// cancels the subscription. Slow subscribers miss events.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) pump(ctx context.Context, s *Session, done chan struct{}) {
	defer close(done)
	for e := range s.Events() {
		if e.Kind == EventResult {
			m.history.Add(e)
		}
		if e.Kind == EventFatal {
			m.subMu.Lock()
			m.lastErr = e.Err
			m.subMu.Unlock()
		}
		for _, o := range m.observers {
			o.Observe(ctx, e)
		}

		m.subMu.RLock()
		for ch := range m.subs {
			select {
			case ch <- e:
			default:
			}
		}
		m.subMu.RUnlock()
	}
}
