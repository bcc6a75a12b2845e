// Package game runs the two-window betting loop
package game

import "time"

// Session configuration defaults
const (
	// Same pair seen again inside this window is a duplicate poll artifact
	DefaultDedupWindow = 3 * time.Second

	// Local passes allowed per round before the stability phase is abandoned
	DefaultMaxLocalPasses = 20

	// Channel buffer sizes
	EventBuffer = 64

	// Rounds kept in memory for the status API
	HistorySize = 50
)
