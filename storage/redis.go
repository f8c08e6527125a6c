package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/storefront/core"
)

// RedisStore keeps session keys in Redis under "<namespace>:<key>".
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// RedisOptions configures the Redis store
type RedisOptions struct {
	RedisURL  string
	Namespace string
	Logger    core.Logger
	// Client, when set, is used instead of dialing RedisURL.
	Client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	logger := core.LoggerOrNoOp(opts.Logger)

	client := opts.Client
	if client == nil {
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis URL is required: %w", core.ErrMissingConfiguration)
		}
		redisOpt, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			logger.Error("Failed to parse Redis URL", map[string]interface{}{
				"error":     err,
				"redis_url": opts.RedisURL,
			})
			return nil, fmt.Errorf("invalid Redis URL: %w", core.ErrInvalidConfiguration)
		}
		client = redis.NewClient(redisOpt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Error("Redis ping failed", map[string]interface{}{
			"error": err,
		})
		return nil, fmt.Errorf("redis ping: %v: %w", err, core.ErrConnectionFailed)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "storefront"
	}

	logger.Info("Redis storage ready", map[string]interface{}{
		"namespace": namespace,
	})

	return &RedisStore{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}, nil
}

func (r *RedisStore) key(k string) string {
	return r.namespace + ":" + k
}

// Get retrieves a value. A missing key returns ("", false, nil).
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value without expiry
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes a key
func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
