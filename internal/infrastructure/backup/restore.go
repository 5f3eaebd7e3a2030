package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService writes snapshot contents back into the session store.
type RestoreService struct {
	snapshots *backup.Service
	repo      ports.SessionRepository
	logger    *zap.SugaredLogger
}

func NewRestoreService(snapshots *backup.Service, repo ports.SessionRepository, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		snapshots: snapshots,
		repo:      repo,
		logger:    logger,
	}
}

// RestoreOptions controls what Apply writes back.
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreSessions   bool
	RestoreLastInputs bool
}

func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreSessions:   true,
		RestoreLastInputs: true,
	}
}

// Apply loads a snapshot by name and writes its state into the repository.
func (rs *RestoreService) Apply(ctx context.Context, name string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "snapshot", name)

	snap, err := rs.snapshots.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap.Version == "" {
		return fmt.Errorf("invalid snapshot: missing version")
	}

	if options.RestoreSessions {
		if err := rs.restoreSessions(ctx, snap.Sessions, options); err != nil {
			return fmt.Errorf("failed to restore sessions: %w", err)
		}
	}
	if options.RestoreLastInputs {
		if err := rs.restoreLastInputs(ctx, snap.LastInputs); err != nil {
			return fmt.Errorf("failed to restore last inputs: %w", err)
		}
	}

	rs.logger.Infow("restore completed", "snapshot", name)
	return nil
}

func (rs *RestoreService) restoreSessions(ctx context.Context, sessions map[string]json.RawMessage, options RestoreOptions) error {
	for roomIDStr, raw := range sessions {
		roomID := domain.RoomID(roomIDStr)

		if !options.OverwriteExisting {
			if existing, err := rs.repo.Load(ctx, roomID); err == nil && existing != nil {
				rs.logger.Debugw("skipping room with live session", "room_id", roomID)
				continue
			}
		}

		var session domain.PublishSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session for room %s: %w", roomID, err)
		}
		if err := rs.repo.Save(ctx, &session); err != nil {
			return fmt.Errorf("failed to save session for room %s: %w", roomID, err)
		}
		rs.logger.Debugw("restored session", "room_id", roomID, "input_id", session.InputID)
	}
	return nil
}

func (rs *RestoreService) restoreLastInputs(ctx context.Context, lastInputs map[string]string) error {
	for roomIDStr, inputIDStr := range lastInputs {
		roomID := domain.RoomID(roomIDStr)
		if err := rs.repo.SaveLastInputID(ctx, roomID, domain.InputID(inputIDStr)); err != nil {
			return fmt.Errorf("failed to save last input for room %s: %w", roomID, err)
		}
	}
	return nil
}

// FindSnapshotByTime returns the newest snapshot taken at or before the
// target time, for point-in-time recovery.
func (rs *RestoreService) FindSnapshotByTime(ctx context.Context, target time.Time) (string, error) {
	names, err := rs.snapshots.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}

	var best string
	var bestTime time.Time
	for _, name := range names {
		created, err := backup.ParseSnapshotTime(name)
		if err != nil {
			continue
		}
		if created.After(target) {
			continue
		}
		if best == "" || created.After(bestTime) {
			best = name
			bestTime = created
		}
	}

	if best == "" {
		return "", fmt.Errorf("no snapshot found at or before %v", target)
	}
	return best, nil
}
