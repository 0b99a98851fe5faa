package domain

import (
	"time"
)

// MessageKind is the payload type of a chat message
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindVideo MessageKind = "video"
	MessageKindVoice MessageKind = "voice"
)

// Provenance tags which source produced a timeline entry. The tag is retained
// until the entry is reconciled against the authoritative store.
type Provenance string

const (
	ProvenanceLocal   Provenance = "local"   // optimistic insert, pending persistence
	ProvenancePush    Provenance = "push"    // vendor real-time delivery
	ProvenanceBackend Provenance = "backend" // authoritative persisted row
)

// Message is one entry in a conversation timeline. Three provenances must
// reconcile to exactly one record per logical message: the optimistic local
// entry (temporary id), the vendor push, and the backend row carrying the
// permanent id.
type Message struct {
	ID             string      `json:"id"`
	LocalTempID    string      `json:"local_temp_id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	MediaURL       string      `json:"media_url,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	Provenance     Provenance  `json:"-"`
}

// HasPermanentID reports whether the backend has assigned this message its
// durable id
func (m *Message) HasPermanentID() bool {
	return m.ID != "" && m.LocalTempID != m.ID
}

// Conversation is a summary row from the backend conversation list
type Conversation struct {
	ID          string   `json:"id"`
	PeerID      string   `json:"peer_id"`
	PeerName    string   `json:"peer_name,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// ChatRequest is a pending contact request from another user
type ChatRequest struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	Status     string    `json:"status"` // pending, accepted, rejected
	CreatedAt  time.Time `json:"created_at"`
}

// Profile is a user profile as served by the backend
type Profile struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Age         int      `json:"age,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Location    string   `json:"location,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Photos      []string `json:"photos,omitempty"`
}
