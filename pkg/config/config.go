package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultMaxMemoryMB = 48
	ServerReadTimeout  = 15 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ShutdownTimeout    = 30 * time.Second
	BadgerGCInterval   = 10 * time.Minute
)

// Collection defaults and limits
const (
	DefaultCollectDays = 30
	HistoryMonths      = 12
	CollectTimeout     = 10 * time.Minute

	// StatusMaxCustomers caps the in-memory run-status map. The oldest
	// updated entry is evicted once the cap is exceeded.
	StatusMaxCustomers = 500
)

// Source adapter tuning
const (
	SourceCallTimeout    = 30 * time.Second
	SourceRetryAttempts  = 4
	SourceRetryBaseDelay = 2 * time.Second

	// SocialChunkDays is the widest window the social API accepts for
	// per-day granularity.
	SocialChunkDays = 30

	// HistoryThrottle is the cooperative pause between sequential
	// per-source historical pulls. Zero disables it.
	HistoryThrottle = 500 * time.Millisecond
)

// Trend selector
const (
	TrendSmoothingAlpha = 0.3
	TrendDefaultMonths  = 12
	TrendMaxMonths      = 24
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 64
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
