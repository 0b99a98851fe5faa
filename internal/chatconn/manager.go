package chatconn

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/backend"
	"heartlink-client/internal/domain"
)

// TokenSource provides fresh vendor chat credentials
type TokenSource interface {
	ChatToken(ctx context.Context, userID string) (*backend.ChatCredential, error)
}

// ManagerConfig holds manager tuning knobs
type ManagerConfig struct {
	UserID               string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Manager drives the chat connection state machine:
// Disconnected → Connecting → Connected, with bounded silent reconnection on
// genuine drops. The design favors availability of the send path over strict
// connection-state accuracy: exhausted reconnect attempts never surface a hard
// error, and a later send triggers one lazy reconnect.
type Manager struct {
	conn   ChatConnection
	tokens TokenSource
	cfg    ManagerConfig

	mu           sync.Mutex
	state        domain.ChatConnectionState
	lastNotFound time.Time

	metrics *metrics.Metrics
	log     *zap.Logger

	// now and sleep are injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager creates a chat connection manager
func NewManager(conn ChatConnection, tokens TokenSource, cfg ManagerConfig, m *metrics.Metrics) *Manager {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = constants.ChatReconnectDelay
	}
	return &Manager{
		conn:   conn,
		tokens: tokens,
		cfg:    cfg,
		state: domain.ChatConnectionState{
			Status:               domain.ConnStatusDisconnected,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		},
		metrics: m,
		log:     logger.Named("chatconn"),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// State returns a snapshot of the connection state
func (m *Manager) State() domain.ChatConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect establishes the initial vendor connection with a fresh credential
func (m *Manager) Connect(ctx context.Context) error {
	m.setStatus(domain.ConnStatusConnecting)

	cred, err := m.tokens.ChatToken(ctx, m.cfg.UserID)
	if err != nil {
		m.setStatus(domain.ConnStatusDisconnected)
		return err
	}
	m.logTokenHorizon(cred.Token)

	if err := m.conn.Connect(ctx, m.cfg.UserID, cred.Token); err != nil {
		m.setStatus(domain.ConnStatusDisconnected)
		return apperrors.ConnectionDroppedError(err)
	}

	m.mu.Lock()
	m.state.Status = domain.ConnStatusConnected
	m.state.ReconnectAttempts = 0
	m.mu.Unlock()
	m.publishState()
	m.log.Info("chat connection established", zap.String("user_id", m.cfg.UserID))
	return nil
}

// HandleDisconnect processes a vendor disconnect report. Recipient-not-found
// reports never change connection state. Token expiry is fatal. Everything
// else triggers the bounded silent reconnect loop.
func (m *Manager) HandleDisconnect(ctx context.Context, cause DisconnectCause) {
	if cause.RecipientNotFound {
		m.mu.Lock()
		sinceLast := m.now().Sub(m.lastNotFound)
		m.lastNotFound = m.now()
		m.mu.Unlock()

		if sinceLast <= constants.RecipientNotFoundWindow {
			// Repeat within the trailing window: a non-event
			return
		}
		m.log.Debug("recipient not registered, connection state unchanged",
			zap.Error(apperrors.RecipientNotRegisteredError()))
		return
	}

	if cause.TokenExpired {
		m.mu.Lock()
		m.state.Status = domain.ConnStatusDisconnected
		m.state.Fatal = true
		m.mu.Unlock()
		m.publishState()
		m.log.Error("vendor token expired, manual reload required", zap.Error(cause.Err))
		return
	}

	m.log.Warn("chat connection dropped", zap.Error(cause.Err))
	m.setStatus(domain.ConnStatusDisconnected)
	m.reconnect(ctx)
}

// reconnect runs up to MaxReconnectAttempts silent attempts with a fixed delay,
// requesting a fresh credential each time. Exhaustion leaves the send path
// optimistically usable rather than flipping to a hard error.
func (m *Manager) reconnect(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.state.Fatal || m.state.ReconnectAttempts >= m.cfg.MaxReconnectAttempts {
			m.mu.Unlock()
			m.log.Warn("reconnect attempts exhausted, leaving send path usable",
				zap.Int("attempts", m.cfg.MaxReconnectAttempts))
			return
		}
		m.state.ReconnectAttempts++
		attempt := m.state.ReconnectAttempts
		m.state.Status = domain.ConnStatusConnecting
		m.mu.Unlock()
		m.publishState()

		if m.metrics != nil {
			m.metrics.RecordReconnectAttempt()
		}
		m.sleep(m.cfg.ReconnectDelay)

		if err := m.tryConnect(ctx); err != nil {
			m.log.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			m.setStatus(domain.ConnStatusDisconnected)
			continue
		}
		return
	}
}

// tryConnect performs one credentialed connect and resets the attempt counter
// on success
func (m *Manager) tryConnect(ctx context.Context) error {
	cred, err := m.tokens.ChatToken(ctx, m.cfg.UserID)
	if err != nil {
		return err
	}
	if err := m.conn.Connect(ctx, m.cfg.UserID, cred.Token); err != nil {
		return err
	}

	m.mu.Lock()
	m.state.Status = domain.ConnStatusConnected
	m.state.ReconnectAttempts = 0
	m.mu.Unlock()
	m.publishState()
	m.log.Info("chat connection re-established")
	return nil
}

// Send delivers a real-time message. If the connection is down it attempts one
// lazy reconnect first; a send failure after that is retryable, never fatal to
// the connection.
func (m *Manager) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	status := m.state.Status
	fatal := m.state.Fatal
	m.mu.Unlock()

	if fatal {
		return apperrors.TokenExpiredError()
	}

	if status != domain.ConnStatusConnected {
		if err := m.tryConnect(ctx); err != nil {
			m.log.Debug("lazy reconnect before send failed", zap.Error(err))
			// Still attempt the send: the vendor connection may be usable
			// even when our view of it is stale.
		}
	}

	if err := m.conn.Send(ctx, msg); err != nil {
		return apperrors.SendFailedError(err)
	}
	return nil
}

// Close tears down the vendor connection
func (m *Manager) Close() error {
	m.setStatus(domain.ConnStatusDisconnected)
	return m.conn.Close()
}

func (m *Manager) setStatus(s domain.ConnStatus) {
	m.mu.Lock()
	m.state.Status = s
	m.mu.Unlock()
	m.publishState()
}

func (m *Manager) publishState() {
	if m.metrics == nil {
		return
	}
	m.mu.Lock()
	status := m.state.Status
	m.mu.Unlock()
	switch status {
	case domain.ConnStatusConnected:
		m.metrics.SetConnectionState(2)
	case domain.ConnStatusConnecting:
		m.metrics.SetConnectionState(1)
	default:
		m.metrics.SetConnectionState(0)
	}
}

// logTokenHorizon decodes the credential's exp claim (unverified; the vendor
// validates the signature) to record how long until the fatal expiry path
func (m *Manager) logTokenHorizon(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	m.log.Info("chat token acquired", zap.Time("expires_at", exp.Time))
}
