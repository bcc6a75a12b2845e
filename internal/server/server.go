// Package server provides HTTP and WebSocket handlers
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/journal"
)

// Controller runs game sessions.
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop()
	Status() game.Status
	History(n int) []game.Event
	Subscribe(buffer int) (<-chan game.Event, func())
}

// RoundStore reads journaled rounds.
type RoundStore interface {
	Rounds(ctx context.Context, sessionID string, limit int) ([]journal.Round, error)
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Option configures a Server.
type Option func(*Server)

// WithRounds exposes journaled rounds.
func WithRounds(rs RoundStore) Option { return func(s *Server) { s.rounds = rs } }

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithAllowedOrigins admits cross-origin browser clients from the given
// origins (e.g. "http://localhost:5173"). Without it only same-origin
// requests are served.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			u, err := url.Parse(o)
			if err != nil || u.Host == "" {
				slog.Warn("ignoring malformed allowed origin", "origin", o)
				continue
			}
			s.origins[normalizeOrigin(o)] = true
			s.originHosts = append(s.originHosts, u.Host)
		}
	}
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl    Controller
	rounds  RoundStore
	metrics http.Handler

	origins     map[string]bool
	originHosts []string

	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter
}

// New creates a new server.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:    ctrl,
		origins: make(map[string]bool),
		conns:   make(map[*websocket.Conn]*rateLimiter),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run broadcasts session events to WebSocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	events, cancel := s.ctrl.Subscribe(BroadcastBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.broadcast(ctx, eventMessage(e))
		}
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/sessions/{id}/rounds", s.handleRounds)
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return corsMiddleware(s.origins, mux)
}

// corsMiddleware lets through requests without an Origin, same-origin
// requests, and origins in allowed. Everything else is refused before it can
// reach a handler.
func corsMiddleware(allowed map[string]bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !originAllowed(r, origin, allowed) {
				slog.Warn("cross-origin request refused", "origin", origin, "path", r.URL.Path)
				writeJSON(w, http.StatusForbidden, ErrorMessage{Type: "error", Message: "origin not allowed"})
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(r *http.Request, origin string, allowed map[string]bool) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return allowed[normalizeOrigin(origin)]
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originHosts,
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := &rateLimiter{}
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := slog.With("remote", r.RemoteAddr)
	log.Info("websocket connected")

	// Greet with the current status
	if err := s.write(ctx, conn, statusMessage(s.ctrl.Status())); err != nil {
		return
	}

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded")
			_ = s.write(ctx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		var reply any
		switch base.Type {
		case "start":
			id, err := s.ctrl.Start(ctx)
			if err != nil {
				reply = errorMessage(err)
			} else {
				reply = StartedMessage{Type: "started", SessionID: id}
			}
		case "stop":
			s.ctrl.Stop()
			reply = statusMessage(s.ctrl.Status())
		case "status":
			reply = statusMessage(s.ctrl.Status())
		default:
			reply = ErrorMessage{Type: "error", Message: "unknown message type " + strconv.Quote(base.Type)}
		}
		if err := s.write(ctx, conn, reply); err != nil {
			return
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (s *Server) broadcast(ctx context.Context, msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = s.write(context.WithoutCancel(ctx), c, msg)
		}(conn)
	}
}

// clients returns the number of connected WebSocket clients.
func (s *Server) clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusMessage(s.ctrl.Status()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", DefaultHistoryLimit)
	events := s.ctrl.History(limit)
	out := make([]EventMessage, 0, len(events))
	for _, e := range events {
		out = append(out, eventMessage(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if s.rounds == nil {
		writeJSON(w, http.StatusNotFound, ErrorMessage{Type: "error", Message: "journal disabled"})
		return
	}
	rounds, err := s.rounds.Rounds(r.Context(), r.PathValue("id"), queryInt(r, "limit", DefaultRoundsLimit))
	if err != nil {
		slog.Error("journal read error", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorMessage{Type: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.ctrl.Start(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.IsCode(err, apperrors.Precondition) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, StartedMessage{Type: "started", SessionID: id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusOK, statusMessage(s.ctrl.Status()))
}

func errorMessage(err error) ErrorMessage {
	m := ErrorMessage{Type: "error", Message: err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		m.Code = appErr.Code.String()
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode error", "error", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}
