// Timeout and interval constants shared across packages.
//
// The request budget is dominated by the Tuition API (one lookup plus an
// optional login) and the optional LLM call; everything else is local.
package config

import "time"

// HTTP server
const (
	// HTTPRead covers small JSON chat bodies.
	HTTPRead = 10 * time.Second

	// HTTPWrite must exceed a login + lookup round trip plus the LLM call.
	HTTPWrite = 45 * time.Second

	HTTPIdle = 120 * time.Second

	// GracefulShutdown is the default SHUTDOWN_TIMEOUT.
	GracefulShutdown = 30 * time.Second

	// SentryFlush bounds delivery of buffered events at shutdown.
	SentryFlush = 2 * time.Second
)

// Outbound calls
const (
	// TuitionAPIRequest is the default per-request timeout for the Tuition API.
	TuitionAPIRequest = 15 * time.Second

	// LLMRequest bounds one classifier call across the whole provider chain.
	LLMRequest = 10 * time.Second

	// TokenRefreshSkew is subtracted from the admin token expiry.
	TokenRefreshSkew = 30 * time.Second

	// TokenDefaultLifetime applies when the login response carries no expiry.
	TokenDefaultLifetime = 110 * time.Minute
)

// Dialogue state
const (
	// SessionLockTTL is the Redis lock lease. It is not renewed, so the
	// work done under the lock must finish well inside it.
	SessionLockTTL = 60 * time.Second

	// TuitionCallsUnderLock is the most Tuition API calls one message
	// makes while holding its session lock: an admin login and one call.
	// Parsing, including the LLM call, happens before the lock.
	TuitionCallsUnderLock = 2

	// SessionLockRetry is the spin interval while waiting for a held lock.
	SessionLockRetry = 25 * time.Millisecond

	// SessionSweepInterval is how often the in-memory store evicts idle sessions.
	SessionSweepInterval = 10 * time.Minute
)

// Health and streaming
const (
	// ReadinessCheck bounds the /readyz dependency pings.
	ReadinessCheck = 3 * time.Second

	// WebsocketPing is the heartbeat interval on /chat/ws.
	WebsocketPing = 15 * time.Second

	// WebsocketWrite bounds a single frame write.
	WebsocketWrite = 5 * time.Second
)

// Rate limiter housekeeping
const (
	RateLimiterCleanupInterval = 5 * time.Minute
)
