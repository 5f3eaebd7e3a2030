package webrtc

import (
	"context"
	"strings"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/pkg/config"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// BuildICEServers converts the configured STUN/TURN list into pion's form.
func BuildICEServers(cfg *config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.WHIP.ICEServers))
	for _, s := range cfg.WHIP.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers
}

// NewPeerConnection builds a peer connection with the ICE server list and a
// bundle policy that multiplexes all media onto a single transport.
func NewPeerConnection(iceServers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:   iceServers,
		BundlePolicy: webrtc.BundlePolicyMaxBundle,
	})
}

// AttachStateObservers wires connection and ICE state callbacks.
// onDisconnected fires on every terminal-negative transition (failed,
// disconnected, closed); it may therefore fire more than once and callers
// must tolerate repeated invocations. The remaining observers only log.
func AttachStateObservers(pc *webrtc.PeerConnection, logger *zap.SugaredLogger, onDisconnected func()) {
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debugw("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			onDisconnected()
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debugw("ice connection state changed", "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateFailed,
			webrtc.ICEConnectionStateDisconnected,
			webrtc.ICEConnectionStateClosed:
			onDisconnected()
		}
	})

	pc.OnICEGatheringStateChange(func(state webrtc.ICEGathererState) {
		logger.Debugw("ice gathering state changed", "state", state.String())
	})

	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		logger.Debugw("signaling state changed", "state", state.String())
	})
}

// WaitICEComplete creates and applies the local offer if one is not set yet,
// then waits until ICE gathering completes or the timeout elapses, whichever
// comes first. The bounded wait is the trickle-ICE tradeoff: the publish
// flow keeps moving on networks where gathering stalls, at the cost of
// candidate completeness. Fails only when no local description exists after
// the wait.
func WaitICEComplete(ctx context.Context, pc *webrtc.PeerConnection, timeout time.Duration) (*webrtc.SessionDescription, error) {
	if pc.LocalDescription() == nil {
		offer, err := pc.CreateOffer(nil)
		if err != nil {
			return nil, err
		}
		gatherComplete := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(offer); err != nil {
			return nil, err
		}

		select {
		case <-gatherComplete:
		case <-time.After(timeout):
		case <-ctx.Done():
		}
	}

	local := pc.LocalDescription()
	if local == nil {
		return nil, domain.ErrNoLocalDescription
	}
	return local, nil
}

// ForceCodecPreference reorders the transceiver's codec list so H.264 is
// offered first, maximizing compatibility with the ingest decode pipeline.
func ForceCodecPreference(transceiver *webrtc.RTPTransceiver) error {
	codecs := transceiver.Sender().GetParameters().Codecs
	preferred := PreferCodec(codecs, webrtc.MimeTypeH264)
	if preferred == nil {
		return nil // codec not offered by the platform, keep defaults
	}
	return transceiver.SetCodecPreferences(preferred)
}

// PreferCodec returns the codec list reordered with the given mime type
// first, or nil when the list does not contain it.
func PreferCodec(codecs []webrtc.RTPCodecParameters, mimeType string) []webrtc.RTPCodecParameters {
	var front, rest []webrtc.RTPCodecParameters
	for _, codec := range codecs {
		if strings.EqualFold(codec.MimeType, mimeType) {
			front = append(front, codec)
		} else {
			rest = append(rest, codec)
		}
	}
	if len(front) == 0 {
		return nil
	}
	return append(front, rest...)
}
