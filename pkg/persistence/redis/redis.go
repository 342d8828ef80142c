package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixData        = "multiswap:data:"
	keySchemaVersion     = "multiswap:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Sorted set of every data key with score 0. Redis has no ordered key
	// iteration; ZRANGEBYLEX over this index gives byte-ordered range scans.
	keyIndex = "multiswap:data:index"

	iterateChunkSize = 256
	operationTimeout = 5 * time.Second
)

// RedisPersistence is a persistence.Store backed by Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string `json:"address" yaml:"address"`
	// Password is the optional Redis password
	Password string `json:"password" yaml:"password"`
	// DB is the Redis database number (0-15)
	DB int `json:"db" yaml:"db"`
	// KeyPrefix is prepended to all keys so several deployments can share a
	// database, e.g. "testnet:" yields "testnet:multiswap:data:...".
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) dataKey(key []byte) string {
	return r.prefixKey(keyPrefixData + string(key))
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// Get retrieves the value stored at key
func (r *RedisPersistence) Get(key []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key %q: %w", key, err)
	}
	return persistence.CopyValue(data), nil
}

// Set stores value at key and records it in the ordered index.
func (r *RedisPersistence) Set(key, value []byte) error {
	return r.Apply([]persistence.Op{{Key: key, Value: value}})
}

// Delete removes key and its index entry.
func (r *RedisPersistence) Delete(key []byte) error {
	return r.Apply([]persistence.Op{{Key: key, Delete: true}})
}

// Apply writes all ops inside MULTI/EXEC.
func (r *RedisPersistence) Apply(ops []persistence.Op) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keyIndex)
	pipe := r.client.TxPipeline()
	for _, op := range ops {
		if op.Delete {
			pipe.Del(ctx, r.dataKey(op.Key))
			pipe.ZRem(ctx, indexKey, string(op.Key))
			continue
		}
		pipe.Set(ctx, r.dataKey(op.Key), op.Value, 0)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: 0, Member: string(op.Key)})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to apply %d ops: %w", len(ops), err)
	}
	return nil
}

// Iterate visits keys in [start, end) in ascending byte order, fetching the
// index and values in chunks.
func (r *RedisPersistence) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keyIndex)
	min := "-"
	if start != nil {
		min = "[" + string(start)
	}
	max := "+"
	if end != nil {
		max = "(" + string(end)
	}

	for {
		members, err := r.client.ZRangeByLex(ctx, indexKey, &redis.ZRangeBy{
			Min:   min,
			Max:   max,
			Count: iterateChunkSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to range index: %w", err)
		}
		if len(members) == 0 {
			return nil
		}

		keys := make([]string, len(members))
		for i, m := range members {
			keys[i] = r.prefixKey(keyPrefixData + m)
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to fetch values: %w", err)
		}

		for i, val := range values {
			if val == nil {
				// Key was in index but doesn't exist
				r.logger.Sugar().Warnw("Index entry without value, skipping", "key", members[i])
				continue
			}
			data, ok := val.(string)
			if !ok {
				r.logger.Sugar().Warnw("Unexpected value type", "key", members[i])
				continue
			}
			if !fn([]byte(members[i]), persistence.CopyValue([]byte(data))) {
				return nil
			}
		}

		if len(members) < iterateChunkSize {
			return nil
		}
		min = "(" + members[len(members)-1]
	}
}

// Close closes the Redis client
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
