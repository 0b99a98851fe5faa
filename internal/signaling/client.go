// Package signaling is the thin client over the call-signaling socket. It
// delivers call-lifecycle intents between two users with no persistence and no
// delivery guarantee: every send is fire-and-forget, and any call in flight
// during a transport drop is considered lost.
package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/domain"
)

// Client maintains the signaling socket: a per-user room subscription with
// automatic reconnect and re-subscribe
type Client struct {
	url            string
	handlers       Handlers
	reconnectDelay time.Duration
	pingPeriod     time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	userID string // set by JoinSelf, re-emitted on every reconnect

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewClient creates a signaling client. Run must be called to start the
// transport.
func NewClient(url string, handlers Handlers, reconnectDelay time.Duration, m *metrics.Metrics) *Client {
	if reconnectDelay == 0 {
		reconnectDelay = constants.SignalingReconnectDelay
	}
	return &Client{
		url:            url,
		handlers:       handlers,
		reconnectDelay: reconnectDelay,
		pingPeriod:     constants.WebSocketPingPeriod,
		metrics:        m,
		log:            logger.Named("signaling"),
	}
}

// Run connects and keeps the socket alive until ctx is cancelled, re-dialing
// with a fixed delay and re-joining the per-user room after every reconnect.
// No call state is retransmitted on reconnect.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connect(ctx); err != nil {
			c.log.Warn("signaling dial failed", zap.Error(err))
		} else {
			c.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	userID := c.userID
	c.mu.Unlock()

	c.log.Info("signaling connected")

	// Re-subscribe the per-user room after a reconnect
	if userID != "" {
		if err := c.emit(EventJoinRoom, callPayload{UserID: userID}); err != nil {
			c.log.Warn("re-join after reconnect failed", zap.Error(err))
		}
	}
	return nil
}

// JoinSelf subscribes to the per-user room. Idempotent; re-invoked
// automatically on transport reconnect.
func (c *Client) JoinSelf(userID string) error {
	c.mu.Lock()
	alreadyJoined := c.userID == userID && c.conn != nil
	c.userID = userID
	c.mu.Unlock()

	if alreadyJoined {
		return nil
	}
	return c.emit(EventJoinRoom, callPayload{UserID: userID})
}

// SendCallRequest emits a call request. Fire-and-forget: no acknowledgement is
// guaranteed and the caller must proceed to join its own media session
// regardless of delivery.
func (c *Client) SendCallRequest(callerID, receiverID string, kind domain.CallKind) error {
	return c.emit(EventCallRequest, callPayload{
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallKind:   kind,
	})
}

// SendCallAccept notifies the caller that the call was accepted
func (c *Client) SendCallAccept(receiverID, callerID string, channelName string) error {
	return c.emit(EventCallAccept, callPayload{
		CallerID:    callerID,
		ReceiverID:  receiverID,
		ChannelName: channelName,
	})
}

// SendCallReject notifies the caller that the call was rejected
func (c *Client) SendCallReject(receiverID, callerID string) error {
	return c.emit(EventCallReject, callPayload{CallerID: callerID, ReceiverID: receiverID})
}

// SendCallCancel notifies the receiver that the caller cancelled
func (c *Client) SendCallCancel(callerID, receiverID string) error {
	return c.emit(EventCallCancel, callPayload{CallerID: callerID, ReceiverID: receiverID})
}

// SendCallEnd notifies the peer that the call ended
func (c *Client) SendCallEnd(senderID, peerID string) error {
	return c.emit(EventCallEnd, callPayload{CallerID: senderID, ReceiverID: peerID})
}

// emit writes one event frame. At-most-once: a write error is logged and
// dropped, never retried.
func (c *Client) emit(event string, payload callPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.log.Debug("emit with no signaling transport", zap.String("event", event))
		return websocket.ErrCloseSent
	}

	if c.metrics != nil {
		c.metrics.RecordSignalingEvent("out", event)
	}
	c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
	return c.conn.WriteJSON(envelope{Event: event, Data: data})
}

// readLoop dispatches inbound events until the transport drops
func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
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

	// Keep an idle connection alive: the read deadline above only extends when
	// something arrives, so the client must solicit pongs itself
	pingStop := make(chan struct{})
	defer close(pingStop)
	go c.pingLoop(conn, pingStop)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("signaling connection lost", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.log.Warn("invalid signaling frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	if c.metrics != nil {
		c.metrics.RecordSignalingEvent("in", env.Event)
	}

	var p callPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.log.Warn("invalid signaling payload",
				zap.String("event", env.Event),
				zap.Error(err))
			return
		}
	}

	switch env.Event {
	case EventIncomingCall:
		if c.handlers.OnIncomingCall != nil {
			c.handlers.OnIncomingCall(p.CallerID, p.CallKind, p.ChannelName)
		}
	case EventCallAccepted:
		if c.handlers.OnCallAccepted != nil {
			c.handlers.OnCallAccepted(p.ChannelName)
		}
	case EventCallRejected:
		if c.handlers.OnCallRejected != nil {
			c.handlers.OnCallRejected()
		}
	case EventCallCancelled:
		if c.handlers.OnCallCancelled != nil {
			c.handlers.OnCallCancelled()
		}
	case EventCallEnded:
		if c.handlers.OnCallEnded != nil {
			c.handlers.OnCallEnded()
		}
	case EventNewMessage, EventNewChatRequest, EventContactUpdate, EventChatRequestAccepted:
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(env.Event)
		}
	default:
		c.log.Debug("unhandled signaling event", zap.String("event", env.Event))
	}
}

// pingLoop writes ping frames until the connection is replaced or the read
// loop exits. Writes share the emit mutex.
func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
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

// Close shuts the transport down
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
