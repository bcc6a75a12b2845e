// Package grpcclient provides the remote dice recognizer client
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Health check configuration
	HealthCheckTimeout = 2 * time.Second
	// Total budget for the startup health check including retries
	StartupTimeout = 15 * time.Second

	// Upload size: the dice crop is downscaled to fit this box before encoding
	MaxUploadWidth  = 512
	MaxUploadHeight = 256
	JPEGQuality     = 85
)

// Remote service naming
const (
	ServiceName     = "dicepilot.v1.DiceRecognizer"
	RecognizeMethod = "/" + ServiceName + "/Recognize"
)
