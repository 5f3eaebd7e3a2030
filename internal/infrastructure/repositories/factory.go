package repositories

import (
	"context"

	"whipcast/internal/core/ports"
	"whipcast/internal/infrastructure/repositories/memory"
	redisrepo "whipcast/internal/infrastructure/repositories/redis"
	"whipcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the session repository with Redis-to-memory
// fallback. Without Redis the agent still works, but sessions do not survive
// a process restart and auto-resume never triggers.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repository",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis session repository")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory session repository")
	}

	return factory, nil
}

// CreateSessionRepository creates the session repository (Redis or memory).
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSessionRepository(
			f.redisClient,
			f.cfg.Resume.LockTTL,
			f.cfg.Resume.SessionTTL,
			f.logger,
		)
	}
	return memory.NewMemorySessionRepository(f.cfg.Resume.LockTTL)
}

// RedisClient exposes the shared Redis connection, or nil when the factory
// fell back to memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
