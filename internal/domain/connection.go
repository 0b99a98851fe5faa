package domain

// ConnStatus is the chat vendor connection status
type ConnStatus string

const (
	ConnStatusDisconnected ConnStatus = "disconnected"
	ConnStatusConnecting   ConnStatus = "connecting"
	ConnStatusConnected    ConnStatus = "connected"
)

// ChatConnectionState is the observable state of the vendor chat connection.
// ReconnectAttempts resets to zero only on a successful Connected transition.
type ChatConnectionState struct {
	Status               ConnStatus `json:"status"`
	ReconnectAttempts    int        `json:"reconnect_attempts"`
	MaxReconnectAttempts int        `json:"max_reconnect_attempts"`
	// Fatal marks an unrecoverable connection (vendor token expiry); all other
	// failure modes keep the send path optimistically usable.
	Fatal bool `json:"fatal,omitempty"`
}
