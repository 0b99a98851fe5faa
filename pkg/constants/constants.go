// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the pong wait: how long a connection may stay
	// silent before the read side gives up on it
	WebSocketPingInterval = 60 * time.Second

	// WebSocketPingPeriod is the cadence of client-sent ping frames; must be
	// shorter than WebSocketPingInterval so an idle healthy connection is
	// never dropped
	WebSocketPingPeriod = 50 * time.Second

	// WebSocketWriteTimeout bounds a single frame write
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Chat connection constants
const (
	// DefaultMaxReconnectAttempts bounds silent background reconnects after a
	// genuine chat connection drop
	DefaultMaxReconnectAttempts = 2

	// ChatReconnectDelay is the fixed delay between reconnect attempts
	ChatReconnectDelay = 3 * time.Second

	// RecipientNotFoundWindow is the trailing window in which a repeated
	// "recipient not registered" disconnect is collapsed into a non-event
	RecipientNotFoundWindow = 2 * time.Second
)

// Signaling constants
const (
	// SignalingReconnectDelay is the fixed delay between signaling transport
	// reconnect attempts
	SignalingReconnectDelay = 2 * time.Second
)

// Message reconciliation constants
const (
	// LocalConfirmTolerance is the timestamp window for matching an optimistic
	// entry against its backend confirmation
	LocalConfirmTolerance = 5 * time.Second

	// PushBackfillTolerance is the widened window for matching a real-time
	// push against the authoritative backend row
	PushBackfillTolerance = 30 * time.Second

	// PushBackfillRetryDelay is the wait before the single backfill retry when
	// the push races the backend write
	PushBackfillRetryDelay = 2 * time.Second

	// ReconcilePollInterval is the fixed interval of the authoritative re-poll
	ReconcilePollInterval = 15 * time.Second
)

// Call constants
const (
	// CallTickInterval is the cadence of the elapsed-duration tick while the
	// remote peer is present
	CallTickInterval = 1 * time.Second

	// ChannelNamePrefix prefixes every derived media channel name
	ChannelNamePrefix = "call"

	// MaxChannelNameLength is the vendor limit on channel names
	MaxChannelNameLength = 64

	// MaxChannelIDSegment bounds each sanitized user id inside a channel name
	MaxChannelIDSegment = 20
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000

	// MaxAttachmentSize is the maximum allowed attachment size in bytes (50MB)
	MaxAttachmentSize = 50 * 1024 * 1024
)
