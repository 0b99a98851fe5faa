package chatconn

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	"heartlink-client/pkg/logger"

	"heartlink-client/internal/domain"
)

// wsFrame is the vendor gateway wire format
type wsFrame struct {
	Type       string    `json:"type"` // auth, message, error
	UserID     string    `json:"userId,omitempty"`
	Token      string    `json:"token,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	ChatID     string    `json:"chatId,omitempty"`
	Body       string    `json:"body,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	MediaURL   string    `json:"mediaUrl,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	SentAt     time.Time `json:"sentAt,omitempty"`
}

// WSConnection is a ChatConnection over the vendor's websocket gateway
type WSConnection struct {
	url        string
	pingPeriod time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	onInbound    InboundHandler
	onDisconnect DisconnectHandler

	log *zap.Logger
}

// NewWSConnection creates a websocket-backed chat connection
func NewWSConnection(url string, onInbound InboundHandler, onDisconnect DisconnectHandler) *WSConnection {
	return &WSConnection{
		url:          url,
		pingPeriod:   constants.WebSocketPingPeriod,
		onInbound:    onInbound,
		onDisconnect: onDisconnect,
		log:          logger.Named("chatws"),
	}
}

// Connect dials the gateway and authenticates with the vendor token. Any
// previous connection is closed first.
func (c *WSConnection) Connect(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	auth := wsFrame{Type: "auth", UserID: userID, Token: token}
	conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump(conn)
	return nil
}

// Send writes one message frame. Fire-and-forget at the transport level; the
// backend store owns durability.
func (c *WSConnection) Send(ctx context.Context, msg OutboundMessage) error {
	frame := wsFrame{
		Type:       "message",
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		Kind:       string(msg.Kind),
		MediaURL:   msg.MediaURL,
		SentAt:     time.Now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
	return c.conn.WriteJSON(frame)
}

// Close closes the gateway connection
func (c *WSConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// readPump reads frames until the connection drops, then reports the
// classified cause
func (c *WSConnection) readPump(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})
	conn.SetPingHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(constants.WebSocketWriteTimeout))
	})

	// An idle gateway connection would otherwise hit the read deadline and be
	// reported as a genuine disconnect
	pingStop := make(chan struct{})
	defer close(pingStop)
	go c.pingLoop(conn, pingStop)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.onDisconnect != nil {
				c.onDisconnect(classifyDisconnect(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))

		var frame wsFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.Warn("invalid frame from chat gateway", zap.Error(err))
			continue
		}

		switch frame.Type {
		case "message":
			if c.onInbound == nil {
				continue
			}
			c.onInbound(domain.Message{
				ConversationID: frame.ChatID,
				SenderID:       frame.SenderID,
				Body:           frame.Body,
				Kind:           domain.MessageKind(frame.Kind),
				MediaURL:       frame.MediaURL,
				CreatedAt:      frame.SentAt,
				Provenance:     domain.ProvenancePush,
			})
		case "error":
			if c.onDisconnect != nil && frame.Reason != "" {
				cause := DisconnectCause{
					RecipientNotFound: isRecipientNotFound(frame.Reason),
					TokenExpired:      isTokenExpired(frame.Reason),
				}
				if cause.RecipientNotFound || cause.TokenExpired {
					c.onDisconnect(cause)
				}
			}
		}
	}
}

// pingLoop writes ping frames until the connection is replaced or the read
// pump exits. Writes share the send mutex.
func (c *WSConnection) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func classifyDisconnect(err error) DisconnectCause {
	msg := strings.ToLower(err.Error())
	return DisconnectCause{
		RecipientNotFound: isRecipientNotFound(msg),
		TokenExpired:      isTokenExpired(msg),
		Err:               err,
	}
}

func isRecipientNotFound(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "user not found") ||
		strings.Contains(reason, "recipient not found") ||
		strings.Contains(reason, "not registered")
}

func isTokenExpired(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "token expired") ||
		strings.Contains(reason, "token is expired")
}
