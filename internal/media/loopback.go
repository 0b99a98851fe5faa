package media

import (
	"context"
	"sync"

	apperrors "heartlink-client/pkg/errors"
)

// LoopbackSession is an in-process MediaSession used by the headless agent
// when no real RTC engine is linked. It honors the vendor ordering contract
// (join before tracks, tracks before publish) so call flows can be exercised
// end-to-end without media hardware.
type LoopbackSession struct {
	mu        sync.Mutex
	joined    bool
	published bool
}

// NewLoopbackSession creates a loopback media session
func NewLoopbackSession() *LoopbackSession {
	return &LoopbackSession{}
}

func (s *LoopbackSession) Join(ctx context.Context, channelName string, uid uint32, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joined {
		return apperrors.InvalidStateError("already joined")
	}
	s.joined = true
	return nil
}

func (s *LoopbackSession) CreateAudioTrack(ctx context.Context) (LocalTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return nil, apperrors.InvalidStateError("track created before join")
	}
	return &loopbackTrack{kind: TrackAudio, enabled: true}, nil
}

func (s *LoopbackSession) CreateVideoTrack(ctx context.Context) (LocalTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return nil, apperrors.InvalidStateError("track created before join")
	}
	return &loopbackTrack{kind: TrackVideo, enabled: true}, nil
}

func (s *LoopbackSession) Publish(ctx context.Context, tracks []LocalTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return apperrors.InvalidStateError("publish before join")
	}
	if len(tracks) == 0 {
		return apperrors.InvalidStateError("publish with zero tracks")
	}
	s.published = true
	return nil
}

func (s *LoopbackSession) Subscribe(ctx context.Context, peerUID uint32, kind TrackKind) error {
	return nil
}

func (s *LoopbackSession) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = false
	s.published = false
	return nil
}

type loopbackTrack struct {
	mu      sync.Mutex
	kind    TrackKind
	enabled bool
	stopped bool
}

func (t *loopbackTrack) Kind() TrackKind { return t.kind }

func (t *loopbackTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *loopbackTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *loopbackTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *loopbackTrack) Close() {}
