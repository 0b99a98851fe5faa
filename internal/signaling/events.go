package signaling

import (
	"encoding/json"

	"heartlink-client/internal/domain"
)

// Outbound event names
const (
	EventJoinRoom    = "join-room"
	EventCallRequest = "call-request"
	EventCallAccept  = "call-accept"
	EventCallReject  = "call-reject"
	EventCallCancel  = "call-cancel"
	EventCallEnd     = "call-end"
)

// Inbound event names
const (
	EventIncomingCall  = "incoming-call"
	EventCallAccepted  = "call-accepted"
	EventCallRejected  = "call-rejected"
	EventCallCancelled = "call-cancelled"
	EventCallEnded     = "call-ended"

	// App notifications consumed only to trigger re-fetches
	EventNewMessage          = "new-message"
	EventNewChatRequest      = "new-chat-request"
	EventContactUpdate       = "contact-update"
	EventChatRequestAccepted = "chat-request-accepted"
)

// envelope is the socket wire format: an event name plus a payload
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// callPayload carries call-lifecycle event data. ChannelName may be absent on
// incoming-call; the receiver then derives it from the sorted id pair.
type callPayload struct {
	CallerID    string          `json:"callerId,omitempty"`
	ReceiverID  string          `json:"receiverId,omitempty"`
	CallKind    domain.CallKind `json:"callKind,omitempty"`
	ChannelName string          `json:"channelName,omitempty"`
	UserID      string          `json:"userId,omitempty"`
}

// Handlers receives inbound signaling events. Nil handlers are skipped.
type Handlers struct {
	OnIncomingCall  func(callerID string, kind domain.CallKind, channelName string)
	OnCallAccepted  func(channelName string)
	OnCallRejected  func()
	OnCallCancelled func()
	OnCallEnded     func()
	// OnNotification receives app notification event names to trigger
	// re-fetches; the payload is intentionally not exposed
	OnNotification func(event string)
}
