package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/pkg/distributed"
	"whipcast/pkg/tracing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisSessionRepository struct {
	client     *redis.Client
	prefix     string
	lockTTL    time.Duration
	sessionTTL time.Duration
	logger     *zap.SugaredLogger

	lockMu sync.Mutex
	locks  map[domain.RoomID]*distributed.Lock
}

func NewRedisSessionRepository(client *redis.Client, lockTTL, sessionTTL time.Duration, logger *zap.SugaredLogger) ports.SessionRepository {
	return &RedisSessionRepository{
		client:     client,
		prefix:     "whipcast:",
		lockTTL:    lockTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		locks:      make(map[domain.RoomID]*distributed.Lock),
	}
}

// ForceReleaseResumeLock deletes the resume lock regardless of its holder.
// Operator tooling only; the agent itself always releases through its own
// lock handle.
func ForceReleaseResumeLock(ctx context.Context, client *redis.Client, roomID domain.RoomID) error {
	return distributed.NewLock(client, "whipcast:resumelock:"+string(roomID), time.Minute).ForceUnlock(ctx)
}

func (r *RedisSessionRepository) sessionKey(roomID domain.RoomID) string {
	return r.prefix + "session:" + string(roomID)
}

func (r *RedisSessionRepository) lastInputKey(roomID domain.RoomID) string {
	return r.prefix + "lastinput:" + string(roomID)
}

func (r *RedisSessionRepository) resumeLockKey(roomID domain.RoomID) string {
	return r.prefix + "resumelock:" + string(roomID)
}

func (r *RedisSessionRepository) runMarkerKey(roomID domain.RoomID) string {
	return r.prefix + "running:" + string(roomID)
}

func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.PublishSession) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", string(session.RoomID))
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := r.sessionKey(session.RoomID)
	if err := r.client.Set(ctx, key, data, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Load returns the stored session for the room. A corrupt record degrades to
// not-found: the store is a best-effort cache, not the source of truth.
func (r *RedisSessionRepository) Load(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "load", string(roomID))
	defer span.End()

	data, err := r.client.Get(ctx, r.sessionKey(roomID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		r.logger.Warnw("failed to read session from Redis", "room_id", roomID, "error", err)
		return nil, domain.ErrSessionNotFound
	}

	var session domain.PublishSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		r.logger.Warnw("discarding corrupt session record", "room_id", roomID, "error", err)
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (r *RedisSessionRepository) Clear(ctx context.Context, roomID domain.RoomID) error {
	stored, err := r.Load(ctx, roomID)
	if err != nil {
		return nil // nothing stored, nothing to clear
	}
	if stored.RoomID != roomID {
		return nil
	}
	if err := r.client.Del(ctx, r.sessionKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ClearFor(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	stored, err := r.Load(ctx, roomID)
	if err != nil {
		return nil
	}
	if stored.RoomID != roomID || stored.InputID != inputID {
		return nil
	}
	if err := r.client.Del(ctx, r.sessionKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) SaveLastInputID(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	if err := r.client.Set(ctx, r.lastInputKey(roomID), string(inputID), r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to set last input id in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) LoadLastInputID(ctx context.Context, roomID domain.RoomID) (domain.InputID, error) {
	val, err := r.client.Get(ctx, r.lastInputKey(roomID)).Result()
	if err == redis.Nil {
		return "", domain.ErrLastInputNotFound
	}
	if err != nil {
		r.logger.Warnw("failed to read last input id from Redis", "room_id", roomID, "error", err)
		return "", domain.ErrLastInputNotFound
	}
	if val == "" {
		return "", domain.ErrLastInputNotFound
	}
	return domain.InputID(val), nil
}

func (r *RedisSessionRepository) ClearLastInputID(ctx context.Context, roomID domain.RoomID) error {
	if err := r.client.Del(ctx, r.lastInputKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete last input id from Redis: %w", err)
	}
	return nil
}

// resumeLock returns this instance's lock handle for the room. The handle is
// reused so the unlock uses the same holder value the acquire wrote.
func (r *RedisSessionRepository) resumeLock(roomID domain.RoomID) *distributed.Lock {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[roomID]
	if !ok {
		lock = distributed.NewLock(r.client, r.resumeLockKey(roomID), r.lockTTL)
		r.locks[roomID] = lock
	}
	return lock
}

func (r *RedisSessionRepository) TryAcquireResumeLock(ctx context.Context, roomID domain.RoomID) (bool, error) {
	return r.resumeLock(roomID).TryLock(ctx)
}

func (r *RedisSessionRepository) ReleaseResumeLock(ctx context.Context, roomID domain.RoomID) error {
	released, err := r.resumeLock(roomID).Unlock(ctx)
	if err != nil {
		return err
	}
	if !released {
		r.logger.Debugw("resume lock was not held by this instance", "room_id", roomID)
	}
	return nil
}

// Run marker has no TTL: it must outlive a crashed process so the next start
// can tell an unclean restart from a fresh launch.
func (r *RedisSessionRepository) SaveRunMarker(ctx context.Context, roomID domain.RoomID) error {
	if err := r.client.Set(ctx, r.runMarkerKey(roomID), time.Now().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("failed to set run marker in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) HasRunMarker(ctx context.Context, roomID domain.RoomID) (bool, error) {
	exists, err := r.client.Exists(ctx, r.runMarkerKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run marker in Redis: %w", err)
	}
	return exists > 0, nil
}

func (r *RedisSessionRepository) ClearRunMarker(ctx context.Context, roomID domain.RoomID) error {
	if err := r.client.Del(ctx, r.runMarkerKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run marker from Redis: %w", err)
	}
	return nil
}
