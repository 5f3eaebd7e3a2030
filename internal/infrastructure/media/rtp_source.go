package media

import (
	"context"
	"fmt"
	"net"
	"sync"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const maxRTPPacketSize = 1500

// RTPSource acquires local media by listening for RTP on UDP sockets, the
// usual hand-off point for an ffmpeg/gstreamer capture pipeline running next
// to the agent. Video is expected as H.264, audio as Opus.
type RTPSource struct {
	videoAddr    string
	audioAddr    string
	audioEnabled bool

	videoConn *net.UDPConn
	audioConn *net.UDPConn

	onPacket func(kind string)
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup

	mu     sync.Mutex
	opened bool
}

func NewRTPSource(videoAddr, audioAddr string, audioEnabled bool, logger *zap.SugaredLogger, onPacket func(kind string)) ports.MediaSource {
	return &RTPSource{
		videoAddr:    videoAddr,
		audioAddr:    audioAddr,
		audioEnabled: audioEnabled,
		onPacket:     onPacket,
		logger:       logger,
	}
}

// Open binds the UDP listeners and starts forwarding packets into local
// tracks. A bind failure is the capture error: surfaced, never retried.
func (s *RTPSource) Open(ctx context.Context) (*ports.MediaTracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, fmt.Errorf("%w: source already open", domain.ErrCaptureUnavailable)
	}

	videoConn, err := listenUDP(s.videoAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: video listener on %s: %v", domain.ErrCaptureUnavailable, s.videoAddr, err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video",
		"whipcast-video",
	)
	if err != nil {
		videoConn.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	tracks := &ports.MediaTracks{Video: videoTrack}
	s.videoConn = videoConn
	s.wg.Add(1)
	go s.forward(videoConn, videoTrack, "video")

	if s.audioEnabled {
		audioConn, err := listenUDP(s.audioAddr)
		if err != nil {
			videoConn.Close()
			s.videoConn = nil
			return nil, fmt.Errorf("%w: audio listener on %s: %v", domain.ErrCaptureUnavailable, s.audioAddr, err)
		}

		audioTrack, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio",
			"whipcast-audio",
		)
		if err != nil {
			videoConn.Close()
			audioConn.Close()
			s.videoConn = nil
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}

		tracks.Audio = audioTrack
		s.audioConn = audioConn
		s.wg.Add(1)
		go s.forward(audioConn, audioTrack, "audio")
	}

	s.opened = true
	s.logger.Infow("media source open",
		"video_addr", s.videoConn.LocalAddr().String(),
		"audio_enabled", s.audioEnabled,
	)
	return tracks, nil
}

func (s *RTPSource) forward(conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, kind string) {
	defer s.wg.Done()

	buf := make([]byte, maxRTPPacketSize)
	logged := false
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // listener closed
		}

		var packet rtp.Packet
		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("dropping malformed rtp packet", "kind", kind, "error", err)
			continue
		}

		if !logged {
			s.logger.Infow("receiving rtp",
				"kind", kind,
				"ssrc", packet.SSRC,
				"payload_type", packet.PayloadType,
			)
			logged = true
		}

		if err := track.WriteRTP(&packet); err != nil {
			s.logger.Debugw("failed to write rtp to track", "kind", kind, "error", err)
			continue
		}
		if s.onPacket != nil {
			s.onPacket(kind)
		}
	}
}

func (s *RTPSource) Close() error {
	s.mu.Lock()
	if s.videoConn != nil {
		s.videoConn.Close()
		s.videoConn = nil
	}
	if s.audioConn != nil {
		s.audioConn.Close()
		s.audioConn = nil
	}
	s.opened = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func listenUDP(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}
