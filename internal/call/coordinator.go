// Package call coordinates a call session between two peers: signaling intents
// on one side, the vendor media session on the other. The media transport
// itself is owned by the vendor; this is the glue that keeps both in step.
package call

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"
	"heartlink-client/pkg/metrics"

	"heartlink-client/internal/domain"
)

// Signaler is the outbound signaling surface the coordinator needs
type Signaler interface {
	JoinSelf(userID string) error
	SendCallRequest(callerID, receiverID string, kind domain.CallKind) error
	SendCallAccept(receiverID, callerID, channelName string) error
	SendCallReject(receiverID, callerID string) error
	SendCallCancel(callerID, receiverID string) error
	SendCallEnd(senderID, peerID string) error
}

// MediaController is the media session surface the coordinator needs
type MediaController interface {
	Join(ctx context.Context, channelName, identity string, kind domain.CallKind) error
	Leave(ctx context.Context) (int, error)
	State() domain.CallState
	StartedAt() *time.Time
	Elapsed() int
}

// ControllerFactory creates a fresh media controller per call session; capture
// device handles are exclusively owned by the active controller instance
type ControllerFactory func() MediaController

// Coordinator owns the CallSession and IncomingCallOffer lifecycle for one
// local user
type Coordinator struct {
	selfID  string
	sig     Signaler
	factory ControllerFactory

	mu      sync.Mutex
	session *domain.CallSession
	media   MediaController
	offer   *domain.IncomingCallOffer

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewCoordinator creates a call coordinator for the local user
func NewCoordinator(selfID string, sig Signaler, factory ControllerFactory, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		selfID:  selfID,
		sig:     sig,
		factory: factory,
		metrics: m,
		log:     logger.Named("call"),
	}
}

// Initiate starts an outgoing call. The call request is fire-and-forget: the
// caller joins its own media session regardless of signaling delivery, since
// no acknowledgement is guaranteed.
func (c *Coordinator) Initiate(ctx context.Context, remoteID string, kind domain.CallKind) (*domain.CallSession, error) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil, apperrors.InvalidStateError("a call session is already active")
	}
	channel := ChannelName(c.selfID, remoteID)
	session := &domain.CallSession{
		LocalUserID:  c.selfID,
		RemoteUserID: remoteID,
		ChannelName:  channel,
		Kind:         kind,
		State:        domain.CallStateJoining,
	}
	c.session = session
	media := c.factory()
	c.media = media
	c.mu.Unlock()

	if err := c.sig.SendCallRequest(c.selfID, remoteID, kind); err != nil {
		// Best-effort delivery; the receiver may still learn of the call
		// through a retried user action
		c.log.Debug("call request emit failed", zap.Error(err))
	}

	if err := media.Join(ctx, channel, c.selfID, kind); err != nil {
		c.clearSession()
		if c.metrics != nil {
			c.metrics.RecordCall(string(kind), "join_failed", 0)
		}
		return nil, err
	}

	c.mu.Lock()
	c.session.State = domain.CallStateJoined
	snapshot := *c.session
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncrementActiveCalls()
	}
	c.log.Info("outgoing call started",
		zap.String("remote_user", remoteID),
		zap.String("channel", channel),
		zap.String("kind", string(kind)))
	return &snapshot, nil
}

// HandleIncomingCall surfaces an incoming offer. When the event omits the
// channel name, it is derived from the sorted id pair and matches the caller's
// independently computed value.
func (c *Coordinator) HandleIncomingCall(callerID string, kind domain.CallKind, channelName string) *domain.IncomingCallOffer {
	if channelName == "" {
		channelName = ChannelName(callerID, c.selfID)
	}

	offer := &domain.IncomingCallOffer{
		CallerID:    callerID,
		Kind:        kind,
		ChannelName: channelName,
		ReceivedAt:  time.Now(),
	}

	c.mu.Lock()
	c.offer = offer
	c.mu.Unlock()

	c.log.Info("incoming call",
		zap.String("caller", callerID),
		zap.String("kind", string(kind)))
	return offer
}

// Accept answers the pending incoming offer and joins the shared channel
func (c *Coordinator) Accept(ctx context.Context) (*domain.CallSession, error) {
	c.mu.Lock()
	offer := c.offer
	if offer == nil {
		c.mu.Unlock()
		return nil, apperrors.InvalidStateError("no pending incoming call")
	}
	if c.session != nil {
		c.mu.Unlock()
		return nil, apperrors.InvalidStateError("a call session is already active")
	}
	c.offer = nil
	session := &domain.CallSession{
		LocalUserID:  c.selfID,
		RemoteUserID: offer.CallerID,
		ChannelName:  offer.ChannelName,
		Kind:         offer.Kind,
		State:        domain.CallStateJoining,
	}
	c.session = session
	media := c.factory()
	c.media = media
	c.mu.Unlock()

	if err := c.sig.SendCallAccept(c.selfID, offer.CallerID, offer.ChannelName); err != nil {
		c.log.Debug("call accept emit failed", zap.Error(err))
	}

	if err := media.Join(ctx, offer.ChannelName, c.selfID, offer.Kind); err != nil {
		c.clearSession()
		if c.metrics != nil {
			c.metrics.RecordCall(string(offer.Kind), "join_failed", 0)
		}
		return nil, err
	}

	c.mu.Lock()
	c.session.State = domain.CallStateJoined
	snapshot := *c.session
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncrementActiveCalls()
	}
	c.log.Info("incoming call accepted", zap.String("caller", offer.CallerID))
	return &snapshot, nil
}

// Reject declines the pending incoming offer
func (c *Coordinator) Reject() error {
	c.mu.Lock()
	offer := c.offer
	c.offer = nil
	c.mu.Unlock()

	if offer == nil {
		return apperrors.InvalidStateError("no pending incoming call")
	}
	if err := c.sig.SendCallReject(c.selfID, offer.CallerID); err != nil {
		c.log.Debug("call reject emit failed", zap.Error(err))
	}
	return nil
}

// Cancel withdraws an outgoing call before the receiver accepts, tearing down
// the already-joined media session
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return apperrors.InvalidStateError("no outgoing call to cancel")
	}

	if err := c.sig.SendCallCancel(c.selfID, session.RemoteUserID); err != nil {
		c.log.Debug("call cancel emit failed", zap.Error(err))
	}
	c.endLocal(ctx, "cancelled")
	return nil
}

// End hangs up the active call and reports its duration
func (c *Coordinator) End(ctx context.Context) (int, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return 0, apperrors.InvalidStateError("no active call to end")
	}

	if err := c.sig.SendCallEnd(c.selfID, session.RemoteUserID); err != nil {
		c.log.Debug("call end emit failed", zap.Error(err))
	}
	duration := c.endLocal(ctx, "completed")
	return duration, nil
}

// HandleRemoteRejected tears the caller's session down after the receiver
// declined
func (c *Coordinator) HandleRemoteRejected(ctx context.Context) {
	c.log.Info("call rejected by remote peer")
	c.endLocal(ctx, "rejected")
}

// HandleRemoteCancelled drops the pending offer (receiver side) or tears down
// the session if one was already joined
func (c *Coordinator) HandleRemoteCancelled(ctx context.Context) {
	c.mu.Lock()
	c.offer = nil
	hasSession := c.session != nil
	c.mu.Unlock()

	c.log.Info("call cancelled by remote peer")
	if hasSession {
		c.endLocal(ctx, "cancelled")
	}
}

// HandleRemoteEnded tears down after the peer hung up
func (c *Coordinator) HandleRemoteEnded(ctx context.Context) {
	c.log.Info("call ended by remote peer")
	c.endLocal(ctx, "completed")
}

// endLocal releases the media session and clears call state; safe when no
// session is active
func (c *Coordinator) endLocal(ctx context.Context, outcome string) int {
	c.mu.Lock()
	media := c.media
	session := c.session
	c.session = nil
	c.media = nil
	c.mu.Unlock()

	if session == nil {
		return 0
	}

	duration := 0
	if media != nil {
		var err error
		duration, err = media.Leave(ctx)
		if err != nil {
			c.log.Warn("media session leave failed", zap.Error(err))
		}
	}

	if c.metrics != nil {
		c.metrics.DecrementActiveCalls()
		c.metrics.RecordCall(string(session.Kind), outcome, time.Duration(duration)*time.Second)
	}
	c.log.Info("call session closed",
		zap.String("outcome", outcome),
		zap.Int("duration_seconds", duration))
	return duration
}

func (c *Coordinator) clearSession() {
	c.mu.Lock()
	c.session = nil
	c.media = nil
	c.mu.Unlock()
}

// Snapshot returns the current call session, offer, and live media state for
// the status endpoint
func (c *Coordinator) Snapshot() (*domain.CallSession, *domain.IncomingCallOffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var session *domain.CallSession
	if c.session != nil {
		s := *c.session
		if c.media != nil {
			s.State = c.media.State()
			s.StartedAt = c.media.StartedAt()
			s.DurationSeconds = c.media.Elapsed()
		}
		session = &s
	}

	var offer *domain.IncomingCallOffer
	if c.offer != nil {
		o := *c.offer
		offer = &o
	}
	return session, offer
}
