// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Results returned by /api/history when no limit is given
	DefaultHistoryLimit = 20
	// Rows returned by /api/sessions/{id}/rounds when no limit is given
	DefaultRoundsLimit = 100

	// Per-client inbound command limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Event subscription buffer for the broadcaster
	BroadcastBuffer = 64
	// Deadline for one WebSocket write
	WriteTimeout = 2 * time.Second
)
