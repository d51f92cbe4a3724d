package shared

import "time"

// Server Configuration
const (
	DefaultShutdownTimeout = 10 * time.Minute
)

// Streaming Configuration
const (
	// DefaultFirstTokenTimeout bounds time-to-first-token. Backends scaling
	// from zero can take a while to produce the first fragment.
	DefaultFirstTokenTimeout = 30 * time.Second

	// DefaultStreamTimeout bounds the total duration of a single stream.
	DefaultStreamTimeout = 10 * time.Minute

	DefaultChannel = "WEB"
)

// In-Flight Registry Configuration
const (
	// DefaultInFlightTTL is how long a registry entry may live before the
	// sweeper treats it as orphaned by a crashed worker.
	DefaultInFlightTTL = 5 * time.Minute

	DefaultSweepInterval = 30 * time.Second
)

// Cache Configuration
const (
	UserInfoCacheTTL = 1 * time.Minute
)

// API Configuration
const (
	APIKeyLength = 32
)

// Record Batching Configuration
const (
	RecordFlushInterval = 1 * time.Minute
	RecordRetryDelay    = 5 * time.Second
	MaxFlushRetries     = 3
)
