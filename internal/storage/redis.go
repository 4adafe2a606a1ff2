package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"match-engine-go/internal/config"
	"match-engine-go/internal/constants"
	"match-engine-go/internal/types"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// Redis wraps the Redis client used for the requirements cache and for the
// per-(job, cv) evaluation locks.
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a Redis client with pool, timeout and retry
// settings from configuration, instrumented with OpenTelemetry.
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}

	client := redis.NewClient(opt)

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// NewRedisWithClient wraps an existing client, used by tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{Client: client, config: &config.RedisConfig{}}
}

// Close closes the Redis client connection.
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// CacheJobRequirements stores a parsed requirements snapshot keyed by job ID
// plus the MD5 of the description text it was derived from. A re-parse after
// a description edit lands on a fresh key, so stale snapshots age out on TTL
// without explicit invalidation.
func (r *Redis) CacheJobRequirements(ctx context.Context, jobID, textMD5 string, req *types.JobRequirements) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal job requirements: %w", err)
	}
	key := fmt.Sprintf(constants.KeyJobRequirements, jobID, textMD5)
	return r.Client.Set(ctx, key, payload, constants.JDRequirementsCacheDuration).Err()
}

// GetCachedJobRequirements returns the cached snapshot or ErrNotFound.
func (r *Redis) GetCachedJobRequirements(ctx context.Context, jobID, textMD5 string) (*types.JobRequirements, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	key := fmt.Sprintf(constants.KeyJobRequirements, jobID, textMD5)
	payload, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var req types.JobRequirements
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal cached job requirements: %w", err)
	}
	return &req, nil
}

// AcquireEvaluationLock takes the distributed lock for one (job, cv) pair.
// The returned token is empty when some other holder owns the lock.
func (r *Redis) AcquireEvaluationLock(ctx context.Context, jobID, cvID string, expiration time.Duration) (string, error) {
	key := fmt.Sprintf(constants.KeyEvaluationLock, jobID, cvID)
	return r.acquireLock(ctx, key, expiration)
}

// ReleaseEvaluationLock releases the lock only if the token still matches.
func (r *Redis) ReleaseEvaluationLock(ctx context.Context, jobID, cvID, token string) (bool, error) {
	key := fmt.Sprintf(constants.KeyEvaluationLock, jobID, cvID)
	return r.releaseLock(ctx, key, token)
}

// acquireLock takes a lock via SetNX with a random holder token. NX makes
// acquisition atomic; the expiration bounds how long a crashed holder can
// block others.
func (r *Redis) acquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// releaseLock deletes the lock key via a Lua script so that check-and-delete
// is atomic and a holder can never release someone else's lock.
func (r *Redis) releaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}
