package memory

import (
	"context"
	"sync"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
)

// MemorySessionRepository is the in-process fallback used when Redis is
// disabled or unreachable. Sessions then survive only as long as the process.
type MemorySessionRepository struct {
	sessions   map[domain.RoomID]*domain.PublishSession
	lastInputs map[domain.RoomID]domain.InputID
	locks      map[domain.RoomID]time.Time
	runMarkers map[domain.RoomID]bool
	lockTTL    time.Duration
	mu         sync.Mutex
}

func NewMemorySessionRepository(lockTTL time.Duration) ports.SessionRepository {
	return &MemorySessionRepository{
		sessions:   make(map[domain.RoomID]*domain.PublishSession),
		lastInputs: make(map[domain.RoomID]domain.InputID),
		locks:      make(map[domain.RoomID]time.Time),
		runMarkers: make(map[domain.RoomID]bool),
		lockTTL:    lockTTL,
	}
}

func (r *MemorySessionRepository) Save(ctx context.Context, session *domain.PublishSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.RoomID] = &copied
	return nil
}

func (r *MemorySessionRepository) Load(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[roomID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) Clear(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sessions[roomID]
	if !exists || stored.RoomID != roomID {
		return nil
	}
	delete(r.sessions, roomID)
	return nil
}

func (r *MemorySessionRepository) ClearFor(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sessions[roomID]
	if !exists || stored.RoomID != roomID || stored.InputID != inputID {
		return nil
	}
	delete(r.sessions, roomID)
	return nil
}

func (r *MemorySessionRepository) SaveLastInputID(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastInputs[roomID] = inputID
	return nil
}

func (r *MemorySessionRepository) LoadLastInputID(ctx context.Context, roomID domain.RoomID) (domain.InputID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inputID, exists := r.lastInputs[roomID]
	if !exists || inputID == "" {
		return "", domain.ErrLastInputNotFound
	}
	return inputID, nil
}

func (r *MemorySessionRepository) ClearLastInputID(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lastInputs, roomID)
	return nil
}

func (r *MemorySessionRepository) TryAcquireResumeLock(ctx context.Context, roomID domain.RoomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if expiry, held := r.locks[roomID]; held && time.Now().Before(expiry) {
		return false, nil
	}
	r.locks[roomID] = time.Now().Add(r.lockTTL)
	return true, nil
}

func (r *MemorySessionRepository) ReleaseResumeLock(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locks, roomID)
	return nil
}

func (r *MemorySessionRepository) SaveRunMarker(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runMarkers[roomID] = true
	return nil
}

func (r *MemorySessionRepository) HasRunMarker(ctx context.Context, roomID domain.RoomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runMarkers[roomID], nil
}

func (r *MemorySessionRepository) ClearRunMarker(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runMarkers, roomID)
	return nil
}
