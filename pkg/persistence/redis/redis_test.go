package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not reachable. Every store gets a
// unique key prefix so tests never see each other's keys.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: fmt.Sprintf("test-%d:", time.Now().UnixNano()),
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}
	t.Cleanup(func() { cleanupRedis(cfg) })

	return rp
}

// cleanupRedis removes every key written under the test prefix. It uses its
// own client since tests usually close the store first.
func cleanupRedis(cfg *RedisConfig) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	defer func() { _ = client.Close() }()

	iter := client.Scan(ctx, 0, cfg.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}

func TestRedisPersistence_Suite(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) persistence.Store {
		return requireRedis(t)
	})
}

func TestRedisPersistence_Settlement(t *testing.T) {
	testutil.RunSettlementSuite(t, func(t *testing.T) persistence.Store {
		return requireRedis(t)
	})
}

func TestRedisPersistence_IterateAcrossChunks(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	total := iterateChunkSize*2 + 7
	ops := make([]persistence.Op, 0, total)
	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("salt/%05d", i))
		ops = append(ops, persistence.Op{Key: key, Value: key})
	}
	require.NoError(t, rp.Apply(ops))

	var seen []string
	require.NoError(t, rp.Iterate([]byte("salt/"), persistence.PrefixEnd([]byte("salt/")), func(key, _ []byte) bool {
		seen = append(seen, string(key))
		return true
	}))
	require.Len(t, seen, total)
	assert.Equal(t, "salt/00000", seen[0])
	assert.Equal(t, fmt.Sprintf("salt/%05d", total-1), seen[total-1])
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}
