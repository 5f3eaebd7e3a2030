package ports

import (
	"context"

	"whipcast/internal/core/domain"
)

// SessionRepository persists the per-room publish session state that must
// survive an agent restart. Implementations treat storage read failures as
// "not found": the stored record is a best-effort cache, never the source of
// truth for backend state.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.PublishSession) error
	Load(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error)
	Clear(ctx context.Context, roomID domain.RoomID) error
	ClearFor(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error

	SaveLastInputID(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error
	LoadLastInputID(ctx context.Context, roomID domain.RoomID) (domain.InputID, error)
	ClearLastInputID(ctx context.Context, roomID domain.RoomID) error

	// TryAcquireResumeLock atomically claims a short-lived per-room lock so
	// that only one agent instance performs auto-resume for the room.
	TryAcquireResumeLock(ctx context.Context, roomID domain.RoomID) (bool, error)
	ReleaseResumeLock(ctx context.Context, roomID domain.RoomID) error

	// Run marker: present while an agent is live for the room. A marker found
	// at startup means the previous instance died without a clean shutdown.
	SaveRunMarker(ctx context.Context, roomID domain.RoomID) error
	HasRunMarker(ctx context.Context, roomID domain.RoomID) (bool, error)
	ClearRunMarker(ctx context.Context, roomID domain.RoomID) error
}
