// Package media wraps the vendor real-time audio/video session behind a small
// capability interface and enforces the join → track-create → publish ordering
// the vendor SDK requires.
package media

import (
	"context"
	"hash/fnv"
)

// TrackKind distinguishes local capture tracks
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is a local capture device handle. Tracks are exclusively owned by
// the active controller and must be stopped and closed on every exit path.
type LocalTrack interface {
	Kind() TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
	Close()
}

// MediaSession is the capability interface over the vendor RTC SDK. Publishing
// before join, or joining with tracks not yet created, is rejected by the
// vendor contract; the controller owns the ordering.
type MediaSession interface {
	Join(ctx context.Context, channelName string, uid uint32, token string) error
	CreateAudioTrack(ctx context.Context) (LocalTrack, error)
	CreateVideoTrack(ctx context.Context) (LocalTrack, error)
	Publish(ctx context.Context, tracks []LocalTrack) error
	Subscribe(ctx context.Context, peerUID uint32, kind TrackKind) error
	Leave(ctx context.Context) error
}

// DeriveUID maps a user identity string to the non-zero numeric identity the
// vendor requires. Both peers derive independently; collisions are resolved by
// the credential server reassigning the uid.
func DeriveUID(identity string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(identity))
	uid := h.Sum32()
	if uid == 0 {
		uid = 1
	}
	return uid
}
