package domain

import (
	"time"
)

// CallKind distinguishes voice-only from video calls
type CallKind string

const (
	CallKindVideo CallKind = "video"
	CallKindVoice CallKind = "voice"
)

// CallState is the media session lifecycle state
type CallState string

const (
	CallStateIdle    CallState = "idle"
	CallStateJoining CallState = "joining"
	CallStateJoined  CallState = "joined" // joined, awaiting remote peer
	CallStateActive  CallState = "active" // remote peer present
	CallStateEnded   CallState = "ended"
)

// CallSession represents one call between two users. ChannelName is derived
// deterministically from the sorted pair of user ids so both peers compute the
// same value without a negotiation round-trip. StartedAt is set only when the
// remote peer is first observed on the media session, not at local join.
type CallSession struct {
	LocalUserID     string    `json:"local_user_id"`
	RemoteUserID    string    `json:"remote_user_id"`
	ChannelName     string    `json:"channel_name"`
	Kind            CallKind  `json:"kind"`
	State           CallState `json:"state"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
}

// IncomingCallOffer is the ephemeral record of a ringing inbound call, created
// on the signaling event and destroyed on accept/reject/cancel.
type IncomingCallOffer struct {
	CallerID    string    `json:"caller_id"`
	Kind        CallKind  `json:"kind"`
	ChannelName string    `json:"channel_name"`
	ReceivedAt  time.Time `json:"received_at"`
}
