// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WriteWait is the maximum time allowed to write a frame to the peer
	WriteWait = 10 * time.Second

	// PongWait is the maximum time to wait for a pong before dropping the connection
	PongWait = 60 * time.Second

	// PingPeriod is the interval between pings; must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxFrameSize is the maximum inbound WebSocket frame size in bytes
	MaxFrameSize = 16 * 1024

	// SendBufferSize is the per-connection outbound frame buffer
	SendBufferSize = 64
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Presence constants
const (
	// PresenceTTL is how long a presence key lives without a heartbeat refresh
	PresenceTTL = 90 * time.Second
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Call session constants
const (
	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour

	// MaxChatBodyLength is the maximum allowed in-call chat message length
	MaxChatBodyLength = 2000

	// SignalingPurpose is the purpose discriminator a WebSocket client must
	// present; other socket purposes belong to other services
	SignalingPurpose = "call-signaling"
)
