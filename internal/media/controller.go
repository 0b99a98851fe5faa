package media

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"heartlink-client/pkg/constants"
	apperrors "heartlink-client/pkg/errors"
	"heartlink-client/pkg/logger"

	"heartlink-client/internal/backend"
	"heartlink-client/internal/domain"
)

// CredentialSource provides media session credentials scoped to a channel and
// numeric identity
type CredentialSource interface {
	RTCToken(ctx context.Context, channelName string, uid uint32) (*backend.RTCCredential, error)
}

// Controller drives one media session through
// Idle → Joining → Joined(awaiting peer) → Active(peer present) → Ended.
// The call clock starts on the first remote peer join only; a peer that drops
// and rejoins within the same session resumes the clock, it never restarts.
type Controller struct {
	session MediaSession
	creds   CredentialSource

	mu    sync.Mutex
	state domain.CallState

	audioTrack LocalTrack
	videoTrack LocalTrack

	startedAt   *time.Time
	accumulated time.Duration
	activeSince *time.Time

	tickStop chan struct{}

	// OnDurationTick, when set, receives the elapsed seconds once per second
	// while the remote peer is present
	OnDurationTick func(seconds int)

	log *zap.Logger
	now func() time.Time
}

// NewController creates an idle media session controller
func NewController(session MediaSession, creds CredentialSource) *Controller {
	return &Controller{
		session: session,
		creds:   creds,
		state:   domain.CallStateIdle,
		log:     logger.Named("media"),
		now:     time.Now,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Join acquires a credential, joins the vendor session, creates local capture
// tracks, and publishes them as one batch — strictly in that order. A vendor
// identity collision is retried exactly once with a fresh credential.
// Microphone failure is fatal; camera failure on a video call degrades to
// audio-only.
func (c *Controller) Join(ctx context.Context, channelName, identity string, kind domain.CallKind) error {
	c.mu.Lock()
	if c.state != domain.CallStateIdle {
		c.mu.Unlock()
		return apperrors.InvalidStateError("media session already started")
	}
	c.state = domain.CallStateJoining
	c.mu.Unlock()

	uid := DeriveUID(identity)

	if err := c.joinWithCredential(ctx, channelName, uid); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeIdentityCollision) {
			c.log.Warn("identity collision, retrying join with fresh credential",
				zap.String("channel", channelName),
				zap.Uint32("uid", uid))
			err = c.joinWithCredential(ctx, channelName, uid)
		}
		if err != nil {
			c.teardown(ctx)
			return apperrors.JoinFailedError(err)
		}
	}

	audio, err := c.session.CreateAudioTrack(ctx)
	if err != nil {
		// No call is possible without audio
		c.teardown(ctx)
		return apperrors.MicrophoneDeniedError(err)
	}
	c.mu.Lock()
	c.audioTrack = audio
	c.mu.Unlock()

	tracks := []LocalTrack{audio}
	if kind == domain.CallKindVideo {
		video, err := c.session.CreateVideoTrack(ctx)
		if err != nil {
			c.log.Warn("camera unavailable, continuing audio-only",
				zap.Error(apperrors.CameraUnavailableError(err)))
		} else {
			c.mu.Lock()
			c.videoTrack = video
			c.mu.Unlock()
			tracks = append(tracks, video)
		}
	}

	if err := c.session.Publish(ctx, tracks); err != nil {
		c.teardown(ctx)
		return apperrors.JoinFailedError(err)
	}

	c.mu.Lock()
	c.state = domain.CallStateJoined
	c.mu.Unlock()
	c.log.Info("media session joined",
		zap.String("channel", channelName),
		zap.String("kind", string(kind)))
	return nil
}

// joinWithCredential requests a fresh credential and joins. The server may
// return a different uid than requested; the returned value is adopted.
func (c *Controller) joinWithCredential(ctx context.Context, channelName string, uid uint32) error {
	cred, err := c.creds.RTCToken(ctx, channelName, uid)
	if err != nil {
		return err
	}
	return c.session.Join(ctx, channelName, cred.UID, cred.Token)
}

// OnPeerJoined handles remote peer presence. The first occurrence starts the
// call clock; later rejoins within the same session only resume it.
func (c *Controller) OnPeerJoined(peerUID uint32) {
	c.mu.Lock()
	if c.state != domain.CallStateJoined && c.state != domain.CallStateActive {
		c.mu.Unlock()
		return
	}
	now := c.now()
	if c.startedAt == nil {
		c.startedAt = &now
	}
	if c.activeSince == nil {
		c.activeSince = &now
	}
	c.state = domain.CallStateActive
	c.mu.Unlock()

	c.startTick()
	c.log.Info("remote peer joined", zap.Uint32("peer_uid", peerUID))
}

// OnPeerPublishedTrack subscribes to a remote track
func (c *Controller) OnPeerPublishedTrack(ctx context.Context, peerUID uint32, kind TrackKind) {
	if err := c.session.Subscribe(ctx, peerUID, kind); err != nil {
		c.log.Warn("failed to subscribe to remote track",
			zap.Uint32("peer_uid", peerUID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// OnPeerLeft pauses the clock, retaining elapsed seconds already accrued, and
// returns to awaiting-peer state
func (c *Controller) OnPeerLeft(peerUID uint32) {
	c.mu.Lock()
	if c.state != domain.CallStateActive {
		c.mu.Unlock()
		return
	}
	if c.activeSince != nil {
		c.accumulated += c.now().Sub(*c.activeSince)
		c.activeSince = nil
	}
	c.state = domain.CallStateJoined
	c.mu.Unlock()

	c.stopTick()
	c.log.Info("remote peer left, awaiting rejoin", zap.Uint32("peer_uid", peerUID))
}

// ToggleMute flips the local audio track and returns whether audio is now muted
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioTrack == nil {
		return false
	}
	c.audioTrack.SetEnabled(!c.audioTrack.Enabled())
	return !c.audioTrack.Enabled()
}

// ToggleVideo flips the local video track and returns whether video is now off
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoTrack == nil {
		return true
	}
	c.videoTrack.SetEnabled(!c.videoTrack.Enabled())
	return !c.videoTrack.Enabled()
}

// Elapsed returns total elapsed call seconds
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Controller) elapsedLocked() int {
	total := c.accumulated
	if c.activeSince != nil {
		total += c.now().Sub(*c.activeSince)
	}
	return int(total / time.Second)
}

// StartedAt returns when the remote peer was first observed, if ever
func (c *Controller) StartedAt() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Leave releases all local capture devices, leaves the vendor session, and
// returns the total elapsed duration in seconds
func (c *Controller) Leave(ctx context.Context) (int, error) {
	c.stopTick()

	c.mu.Lock()
	if c.activeSince != nil {
		c.accumulated += c.now().Sub(*c.activeSince)
		c.activeSince = nil
	}
	elapsed := c.elapsedLocked()
	c.state = domain.CallStateEnded
	c.mu.Unlock()

	c.releaseTracks()
	err := c.session.Leave(ctx)
	c.log.Info("media session left", zap.Int("duration_seconds", elapsed))
	return elapsed, err
}

// teardown releases every acquired resource after a failed join. Leaking
// capture devices is the primary resource-safety hazard here.
func (c *Controller) teardown(ctx context.Context) {
	c.stopTick()
	c.releaseTracks()
	c.session.Leave(ctx)
	c.mu.Lock()
	c.state = domain.CallStateEnded
	c.mu.Unlock()
}

func (c *Controller) releaseTracks() {
	c.mu.Lock()
	audio, video := c.audioTrack, c.videoTrack
	c.audioTrack, c.videoTrack = nil, nil
	c.mu.Unlock()

	if audio != nil {
		audio.Stop()
		audio.Close()
	}
	if video != nil {
		video.Stop()
		video.Close()
	}
}

func (c *Controller) startTick() {
	c.mu.Lock()
	if c.tickStop != nil || c.OnDurationTick == nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.tickStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(constants.CallTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.OnDurationTick(c.Elapsed())
			}
		}
	}()
}

func (c *Controller) stopTick() {
	c.mu.Lock()
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
	c.mu.Unlock()
}
