// Package chatconn owns the vendor chat connection lifecycle: connect, token
// refresh, bounded silent reconnect, and lazy send-time recovery.
package chatconn

import (
	"context"

	"heartlink-client/internal/domain"
)

// OutboundMessage is a real-time message handed to the vendor connection
type OutboundMessage struct {
	ReceiverID string
	Body       string
	Kind       domain.MessageKind
	MediaURL   string
}

// DisconnectCause classifies why the vendor connection dropped
type DisconnectCause struct {
	// RecipientNotFound marks the vendor's "recipient not registered" report.
	// It describes the other party's registration state, not this connection.
	RecipientNotFound bool
	// TokenExpired marks an unrecoverable credential expiry
	TokenExpired bool
	Err          error
}

// ChatConnection is the capability interface over the vendor chat SDK, so the
// manager and its tests never need a real vendor backend.
type ChatConnection interface {
	Connect(ctx context.Context, userID, token string) error
	Send(ctx context.Context, msg OutboundMessage) error
	Close() error
}

// InboundHandler receives vendor-delivered real-time messages
type InboundHandler func(msg domain.Message)

// DisconnectHandler receives vendor disconnect reports
type DisconnectHandler func(cause DisconnectCause)
