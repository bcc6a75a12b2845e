// Package trace correlates log lines and outbound calls with a game session and round.
package trace

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Metadata keys for gRPC propagation.
const (
	SessionIDKey = "x-session-id"
	RoundKey     = "x-round"
	SpanIDKey    = "x-span-id"
)

type ctxKey struct{}

var traceCtxKey = ctxKey{}

// Context identifies where in a session a piece of work happens.
type Context struct {
	SessionID string
	Round     int
	SpanID    string
}

// NewSession creates a trace context for a fresh session.
func NewSession() Context {
	return Context{SessionID: uuid.NewString(), SpanID: newSpanID()}
}

// ForRound derives the context for round n of the same session.
func (c Context) ForRound(n int) Context {
	return Context{SessionID: c.SessionID, Round: n, SpanID: newSpanID()}
}

// FromContext extracts trace context from context.Context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(traceCtxKey).(Context)
	return tc, ok
}

// WithContext injects trace context into context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, traceCtxKey, tc)
}

// newSpanID returns the first 16 hex chars of a random UUID.
func newSpanID() string {
	id := uuid.New()
	const hextable = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i*2] = hextable[id[i]>>4]
		buf[i*2+1] = hextable[id[i]&0x0f]
	}
	return string(buf)
}

// ToMap exports context as string map for gRPC metadata.
func (c Context) ToMap() map[string]string {
	return map[string]string{
		SessionIDKey: c.SessionID,
		RoundKey:     strconv.Itoa(c.Round),
		SpanIDKey:    c.SpanID,
	}
}

// Span represents a timed operation within a round.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time
	EndTime   time.Time
	Attrs     map[string]any
}

// StartSpan begins a new span under the round in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	tc := Context{SessionID: parent.SessionID, Round: parent.Round, SpanID: newSpanID()}
	s := &Span{
		Name:      name,
		Ctx:       tc,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	return WithContext(ctx, tc), s
}

// End marks the span as complete and logs it at debug level.
func (s *Span) End() {
	s.EndTime = time.Now()
	slog.Debug("span finished", "span", s)
}

// SetAttr sets a span attribute.
func (s *Span) SetAttr(key string, val any) {
	s.Attrs[key] = val
}

// Duration returns span duration.
func (s *Span) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("span_name", s.Name),
		slog.String("session_id", s.Ctx.SessionID),
		slog.Int("round", s.Ctx.Round),
		slog.Duration("duration", s.Duration()),
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

// Logger returns a slog.Logger annotated with session and round.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With("session_id", tc.SessionID, "round", tc.Round)
}
