package services

import (
	"context"
	"sync"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	rtc "whipcast/internal/infrastructure/webrtc"
	"whipcast/pkg/config"
	pkgerrors "whipcast/pkg/errors"
	"whipcast/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// MetricsRecorder is the slice of the collector the publish flow reports to.
type MetricsRecorder interface {
	RecordPublishAttempt()
	RecordPublishFailure(stage string)
	ObserveICEGathering(d time.Duration)
	ObservePublishSetup(d time.Duration)
	SetSenderFractionLost(fraction float64)
}

// PublishHandle bundles the live resources of one publish. It is created by
// PublishService.Start and released exactly once by Stop.
type PublishHandle struct {
	Session *domain.PublishSession

	pc     *webrtc.PeerConnection
	source ports.MediaSource

	stopOnce sync.Once
}

// PublishService runs the publish setup sequence: register an input with the
// control backend, acquire media, negotiate with the ingest server over WHIP,
// and persist the resulting session. It holds no publish state itself; the
// caller owns the returned handle.
type PublishService struct {
	control ports.ControlClient
	ingest  ports.IngestClient
	repo    ports.SessionRepository
	source  ports.MediaSource
	cfg     *config.Config
	metrics MetricsRecorder
	logger  *zap.SugaredLogger
}

func NewPublishService(
	control ports.ControlClient,
	ingest ports.IngestClient,
	repo ports.SessionRepository,
	source ports.MediaSource,
	cfg *config.Config,
	metrics MetricsRecorder,
	logger *zap.SugaredLogger,
) *PublishService {
	return &PublishService{
		control: control,
		ingest:  ingest,
		repo:    repo,
		source:  source,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Start performs the full publish setup and returns a handle to the live
// session. onDisconnected is invoked when the peer connection later drops;
// it may fire more than once. Every failure path releases whatever was
// acquired before it.
func (s *PublishService) Start(ctx context.Context, roomID domain.RoomID, onDisconnected func()) (*PublishHandle, error) {
	setupStart := time.Now()
	s.metrics.RecordPublishAttempt()

	ctx, span := tracing.TracePublish(ctx, string(roomID), "")
	defer span.End()

	grant, err := s.control.RegisterInput(ctx, roomID)
	if err != nil {
		s.metrics.RecordPublishFailure("register")
		tracing.RecordError(ctx, err)
		return nil, pkgerrors.NewUpstreamError(err, "failed to register input")
	}
	log := s.logger.With("room_id", roomID, "input_id", grant.InputID)

	tracks, err := s.source.Open(ctx)
	if err != nil {
		s.metrics.RecordPublishFailure("capture")
		tracing.RecordError(ctx, err)
		s.removeInputQuietly(ctx, roomID, grant.InputID, log)
		return nil, err
	}

	pc, err := rtc.NewPeerConnection(rtc.BuildICEServers(s.cfg))
	if err != nil {
		s.metrics.RecordPublishFailure("peer_connection")
		s.releaseMedia(log)
		s.removeInputQuietly(ctx, roomID, grant.InputID, log)
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrCodeInternal, "failed to create peer connection", 500)
	}
	rtc.AttachStateObservers(pc, log, onDisconnected)

	if err := s.addTracks(pc, tracks, log); err != nil {
		s.metrics.RecordPublishFailure("tracks")
		s.teardown(ctx, pc, roomID, grant.InputID, log)
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrCodeInternal, "failed to add media tracks", 500)
	}

	gatherStart := time.Now()
	offer, err := rtc.WaitICEComplete(ctx, pc, s.cfg.WHIP.ICEGatheringTimeout)
	if err != nil {
		s.metrics.RecordPublishFailure("gathering")
		s.teardown(ctx, pc, roomID, grant.InputID, log)
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrCodeInternal, "ice gathering failed", 500)
	}
	s.metrics.ObserveICEGathering(time.Since(gatherStart))

	sdp := rtc.CapVideoBitrate(offer.SDP, s.cfg.WHIP.MaxVideoBitrateKbps)

	answer, location, err := s.ingest.SendOffer(ctx, grant.InputID, grant.BearerToken, sdp)
	if err != nil {
		s.metrics.RecordPublishFailure("whip_offer")
		tracing.RecordError(ctx, err)
		s.teardown(ctx, pc, roomID, grant.InputID, log)
		return nil, pkgerrors.NewUpstreamError(err, "whip offer rejected")
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		s.metrics.RecordPublishFailure("answer")
		if location != "" {
			if derr := s.ingest.DeleteResource(ctx, location, grant.BearerToken); derr != nil {
				log.Warnw("failed to release whip resource", "location", location, "error", derr)
			}
		}
		s.teardown(ctx, pc, roomID, grant.InputID, log)
		return nil, pkgerrors.NewUpstreamError(err, "invalid whip answer")
	}

	session := &domain.PublishSession{
		RoomID:      roomID,
		InputID:     grant.InputID,
		BearerToken: grant.BearerToken,
		Location:    location,
		CreatedAt:   time.Now(),
	}

	// Persistence is best-effort: a store outage must not fail the publish.
	if err := s.repo.Save(ctx, session); err != nil {
		log.Warnw("failed to persist session", "error", err)
	}
	if err := s.repo.SaveLastInputID(ctx, roomID, grant.InputID); err != nil {
		log.Warnw("failed to persist last input id", "error", err)
	}

	s.metrics.ObservePublishSetup(time.Since(setupStart))
	log.Infow("publish started", "location", location)

	return &PublishHandle{Session: session, pc: pc, source: s.source}, nil
}

// Stop releases every resource the handle owns. It is idempotent, and every
// cleanup failure is logged rather than surfaced: by the time Stop runs the
// publish is over either way.
func (s *PublishService) Stop(ctx context.Context, handle *PublishHandle) {
	handle.stopOnce.Do(func() {
		session := handle.Session
		log := s.logger.With("room_id", session.RoomID, "input_id", session.InputID)

		if err := handle.pc.Close(); err != nil {
			log.Warnw("failed to close peer connection", "error", err)
		}
		if err := handle.source.Close(); err != nil {
			log.Warnw("failed to close media source", "error", err)
		}
		if session.Location != "" {
			if err := s.ingest.DeleteResource(ctx, session.Location, session.BearerToken); err != nil {
				log.Warnw("failed to release whip resource", "location", session.Location, "error", err)
			}
		}
		s.removeInputQuietly(ctx, session.RoomID, session.InputID, log)
		if err := s.repo.ClearFor(ctx, session.RoomID, session.InputID); err != nil {
			log.Warnw("failed to clear persisted session", "error", err)
		}
		// The input was just removed backend-side, so its marker goes too.
		// A marker owned by a newer publish is left alone.
		if last, err := s.repo.LoadLastInputID(ctx, session.RoomID); err == nil && last == session.InputID {
			if err := s.repo.ClearLastInputID(ctx, session.RoomID); err != nil {
				log.Warnw("failed to clear last input id", "error", err)
			}
		}

		log.Infow("publish stopped")
	})
}

func (s *PublishService) addTracks(pc *webrtc.PeerConnection, tracks *ports.MediaTracks, log *zap.SugaredLogger) error {
	videoTransceiver, err := pc.AddTransceiverFromTrack(tracks.Video, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return err
	}
	if err := rtc.ForceCodecPreference(videoTransceiver); err != nil {
		log.Warnw("failed to set codec preference", "error", err)
	}
	go rtc.DrainSenderRTCP(videoTransceiver.Sender(), log, s.metrics.SetSenderFractionLost)

	if tracks.Audio != nil {
		audioTransceiver, err := pc.AddTransceiverFromTrack(tracks.Audio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			return err
		}
		go rtc.DrainSenderRTCP(audioTransceiver.Sender(), log, nil)
	}
	return nil
}

func (s *PublishService) teardown(ctx context.Context, pc *webrtc.PeerConnection, roomID domain.RoomID, inputID domain.InputID, log *zap.SugaredLogger) {
	if err := pc.Close(); err != nil {
		log.Warnw("failed to close peer connection", "error", err)
	}
	s.releaseMedia(log)
	s.removeInputQuietly(ctx, roomID, inputID, log)
}

func (s *PublishService) releaseMedia(log *zap.SugaredLogger) {
	if err := s.source.Close(); err != nil {
		log.Warnw("failed to close media source", "error", err)
	}
}

func (s *PublishService) removeInputQuietly(ctx context.Context, roomID domain.RoomID, inputID domain.InputID, log *zap.SugaredLogger) {
	if err := s.control.RemoveInput(ctx, roomID, inputID); err != nil {
		log.Warnw("failed to remove input", "error", err)
	}
}
