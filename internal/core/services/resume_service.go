package services

import (
	"context"
	"sync/atomic"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/internal/infrastructure/events"
	"whipcast/pkg/tracing"

	"go.uber.org/zap"
)

// ResumeState tracks where the auto-resume flow currently is. It only moves
// forward within one MaybeResume call.
type ResumeState int32

const (
	ResumeIdle ResumeState = iota
	ResumeLockHeld
	ResumeResuming
	ResumeDone
)

func (s ResumeState) String() string {
	switch s {
	case ResumeIdle:
		return "idle"
	case ResumeLockHeld:
		return "lock_held"
	case ResumeResuming:
		return "resuming"
	case ResumeDone:
		return "done"
	default:
		return "unknown"
	}
}

// ResumeRecorder is the slice of the collector the resume flow reports to.
type ResumeRecorder interface {
	RecordResumeOutcome(outcome string)
}

// ResumeService restarts publishing after an unclean agent restart. The
// previous session record only proves that a publish was active when the
// process died; the old input is released and the resumed publish always
// registers a fresh one.
type ResumeService struct {
	repo      ports.SessionRepository
	control   ports.ControlClient
	ingest    ports.IngestClient
	publisher ports.Publisher

	enabled    bool
	sessionTTL time.Duration

	metrics ResumeRecorder
	bus     *events.Bus
	logger  *zap.SugaredLogger

	state atomic.Int32
}

func NewResumeService(
	repo ports.SessionRepository,
	control ports.ControlClient,
	ingest ports.IngestClient,
	publisher ports.Publisher,
	enabled bool,
	sessionTTL time.Duration,
	metrics ResumeRecorder,
	bus *events.Bus,
	logger *zap.SugaredLogger,
) *ResumeService {
	return &ResumeService{
		repo:       repo,
		control:    control,
		ingest:     ingest,
		publisher:  publisher,
		enabled:    enabled,
		sessionTTL: sessionTTL,
		metrics:    metrics,
		bus:        bus,
		logger:     logger,
	}
}

func (r *ResumeService) State() ResumeState {
	return ResumeState(r.state.Load())
}

func (r *ResumeService) setState(s ResumeState) {
	r.state.Store(int32(s))
	r.logger.Debugw("resume state changed", "state", s.String())
}

// DetectStartKind classifies this process start. A run marker left in the
// store means the previous instance died without a clean shutdown. When the
// store cannot be read the start counts as fresh, which keeps auto-resume
// off rather than guessing.
func (r *ResumeService) DetectStartKind(ctx context.Context, roomID domain.RoomID) domain.StartKind {
	present, err := r.repo.HasRunMarker(ctx, roomID)
	if err != nil {
		r.logger.Warnw("failed to read run marker, treating start as fresh",
			"room_id", roomID, "error", err)
		return domain.StartFresh
	}
	if present {
		return domain.StartRestart
	}
	return domain.StartFresh
}

// MaybeResume restarts publishing for the room when this start follows an
// unclean shutdown and the store still carries a last input id. The input id
// marker is the resume trigger; the session record only contributes staleness
// and the credentials for the best-effort WHIP cleanup, and may be absent
// (a corrupt record degrades to not-found while the marker survives). Only
// one agent instance may resume a room at a time; the store lock decides the
// winner. Resume is opportunistic: every early exit is a logged outcome, not
// an error.
func (r *ResumeService) MaybeResume(ctx context.Context, roomID domain.RoomID, kind domain.StartKind) error {
	defer r.setState(ResumeDone)

	if kind != domain.StartRestart {
		return nil
	}
	if !r.enabled {
		r.logger.Infow("auto-resume disabled, skipping", "room_id", roomID)
		r.metrics.RecordResumeOutcome("disabled")
		return nil
	}

	ctx, span := tracing.TraceResume(ctx, string(roomID), kind.String())
	defer span.End()

	log := r.logger.With("room_id", roomID)

	lastInput, err := r.repo.LoadLastInputID(ctx, roomID)
	if err != nil {
		log.Infow("no last input id, nothing to resume")
		r.metrics.RecordResumeOutcome("no_input")
		return nil
	}

	previous, err := r.repo.Load(ctx, roomID)
	if err != nil {
		previous = nil
	}
	if previous != nil && previous.IsStale(r.sessionTTL) {
		log.Infow("stored session too old to resume", "created_at", previous.CreatedAt)
		if err := r.repo.ClearFor(ctx, roomID, previous.InputID); err != nil {
			log.Warnw("failed to clear stale session", "error", err)
		}
		r.metrics.RecordResumeOutcome("stale")
		return nil
	}

	acquired, err := r.repo.TryAcquireResumeLock(ctx, roomID)
	if err != nil {
		log.Warnw("failed to acquire resume lock", "error", err)
		r.metrics.RecordResumeOutcome("lock_error")
		return nil
	}
	if !acquired {
		log.Infow("another instance is resuming this room")
		r.metrics.RecordResumeOutcome("lock_lost")
		return nil
	}
	r.setState(ResumeLockHeld)
	defer func() {
		if err := r.repo.ReleaseResumeLock(ctx, roomID); err != nil {
			log.Warnw("failed to release resume lock", "error", err)
		}
	}()

	r.setState(ResumeResuming)
	log = log.With("previous_input_id", lastInput)
	log.Infow("resuming publish")

	// The old input and ingest resource belong to the dead process. Release
	// them best-effort and mint a fresh input for the resumed publish. The
	// WHIP DELETE only runs when the session record still carries the
	// credentials for the triggering input.
	if err := r.control.RemoveInput(ctx, roomID, lastInput); err != nil {
		log.Debugw("failed to remove previous input", "error", err)
	}
	if previous != nil && previous.InputID == lastInput && previous.Location != "" {
		if err := r.ingest.DeleteResource(ctx, previous.Location, previous.BearerToken); err != nil {
			log.Debugw("failed to release previous whip resource", "error", err)
		}
	}
	if previous != nil {
		if err := r.repo.ClearFor(ctx, roomID, previous.InputID); err != nil {
			log.Warnw("failed to clear previous session", "error", err)
		}
	}
	if err := r.repo.ClearLastInputID(ctx, roomID); err != nil {
		log.Warnw("failed to clear last input id", "error", err)
	}

	session, err := r.publisher.Start(ctx, roomID)
	if err != nil {
		log.Errorw("resume failed", "error", err)
		r.metrics.RecordResumeOutcome("failed")
		r.bus.Publish(events.Event{Type: events.TypeResumeFailed, RoomID: roomID})
		tracing.RecordError(ctx, err)
		return err
	}

	log.Infow("resumed with new input", "input_id", session.InputID)
	r.metrics.RecordResumeOutcome("completed")
	r.bus.Publish(events.Event{
		Type:    events.TypeResumeCompleted,
		RoomID:  roomID,
		InputID: session.InputID,
	})
	return nil
}
