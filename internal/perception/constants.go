package perception

import "time"

// Confidence thresholds
const (
	// Minimum confidence for a result to be valid at all.
	DefaultMinConfidence = 0.5
	// Below this the local pass is treated as "not settled yet".
	DefaultLocalFloor = 0.4
	// At or above this the local pass escalates without debounce.
	DefaultHighConfidence = 0.85
	// Consecutive identical local passes needed below HighConfidence.
	DefaultRepeatPasses = 2
)

// Remote confirmation timing
const (
	DefaultRemoteTimeout = 5 * time.Second
	DefaultRetryDelay    = 500 * time.Millisecond
)
