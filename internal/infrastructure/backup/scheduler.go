package backup

import (
	"context"
	"encoding/json"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/pkg/backup"
	"whipcast/pkg/utils"

	"go.uber.org/zap"
)

// Scheduler periodically snapshots the room's persisted publish state so an
// operator can inspect or replay it after the primary store is lost.
type Scheduler struct {
	snapshots     *backup.Service
	repo          ports.SessionRepository
	roomID        domain.RoomID
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration.
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

func NewScheduler(
	snapshots *backup.Service,
	repo ports.SessionRepository,
	roomID domain.RoomID,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		repo:          repo,
		roomID:        roomID,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start runs snapshots on the configured interval until Stop or ctx cancel.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSnapshot(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	snap, err := s.collect(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect snapshot data", "error", err)
		return
	}

	name, err := s.snapshots.Create(ctx, snap)
	if err != nil {
		s.logger.Errorw("failed to create snapshot", "error", err)
		return
	}
	s.logger.Infow("snapshot created", "name", name, "room_id", s.roomID)

	if err := s.cleanupOldSnapshots(ctx); err != nil {
		s.logger.Warnw("failed to clean up old snapshots", "error", err)
	}
}

// collect gathers the room's stored session and last input id. A missing
// session is not an error; the snapshot just records an idle room.
func (s *Scheduler) collect(ctx context.Context) (*backup.Snapshot, error) {
	snap := &backup.Snapshot{
		Sessions:   make(map[string]json.RawMessage),
		LastInputs: make(map[string]string),
		Metadata:   make(map[string]interface{}),
	}

	if session, err := s.repo.Load(ctx, s.roomID); err == nil {
		data, err := json.Marshal(session)
		if err != nil {
			return nil, err
		}
		snap.Sessions[string(s.roomID)] = data
	}

	if inputID, err := s.repo.LoadLastInputID(ctx, s.roomID); err == nil && inputID != "" {
		snap.LastInputs[string(s.roomID)] = string(inputID)
	}

	snap.Metadata["room_id"] = string(s.roomID)
	snap.Metadata["has_session"] = len(snap.Sessions) > 0
	return snap, nil
}

func (s *Scheduler) cleanupOldSnapshots(ctx context.Context) error {
	names, err := s.snapshots.List(ctx)
	if err != nil {
		return err
	}

	retention := time.Duration(s.retentionDays) * 24 * time.Hour
	for _, name := range names {
		created, err := backup.ParseSnapshotTime(name)
		if err != nil {
			s.logger.Warnw("skipping unparseable snapshot name", "name", name, "error", err)
			continue
		}
		if utils.IsExpired(created, retention) {
			if err := s.snapshots.Delete(ctx, name); err != nil {
				s.logger.Warnw("failed to delete old snapshot", "name", name, "error", err)
				continue
			}
			s.logger.Infow("deleted old snapshot", "name", name, "age", time.Since(created))
		}
	}
	return nil
}
