package detect

import "time"

// Detection defaults
const (
	DefaultPollInterval     = 150 * time.Millisecond
	DefaultStableFor        = 600 * time.Millisecond
	DefaultChangeTimeout    = 45 * time.Second
	DefaultStabilityTimeout = 10 * time.Second

	// Number of recent fingerprints kept per round for diagnostics
	DefaultHistory = 16
)
