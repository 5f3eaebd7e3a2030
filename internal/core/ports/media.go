package ports

import (
	"context"

	"github.com/pion/webrtc/v3"
)

// MediaTracks is the set of local tracks a media source produces. Audio is
// nil when the source captures video only.
type MediaTracks struct {
	Video webrtc.TrackLocal
	Audio webrtc.TrackLocal
}

// MediaSource acquires local media for publishing. Open fails with
// domain.ErrCaptureUnavailable (wrapped) when the underlying device or
// listener cannot be acquired; that failure is surfaced to the caller and
// never retried internally.
type MediaSource interface {
	Open(ctx context.Context) (*MediaTracks, error)
	Close() error
}
