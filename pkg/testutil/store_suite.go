package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite exercises the behaviour every persistence.Store backend must
// share. newStore must return an empty, open store; the suite closes it.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	t.Run("SetAndGet", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Set([]byte("owner"), []byte("0xabc")))
		got, err := s.Get([]byte("owner"))
		require.NoError(t, err)
		assert.Equal(t, []byte("0xabc"), got)

		require.NoError(t, s.Set([]byte("owner"), []byte("0xdef")))
		got, err = s.Get([]byte("owner"))
		require.NoError(t, err)
		assert.Equal(t, []byte("0xdef"), got)
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		got, err := s.Get([]byte("missing"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Delete_Idempotent", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Set([]byte("k"), []byte("v")))
		require.NoError(t, s.Delete([]byte("k")))
		require.NoError(t, s.Delete([]byte("k")))

		got, err := s.Get([]byte("k"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Iterate_OrderedRange", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		for _, k := range []string{"signers/c", "signers/a", "signers/b", "tokens/x", "a"} {
			require.NoError(t, s.Set([]byte(k), []byte(k)))
		}

		prefix := []byte("signers/")
		var keys []string
		err := s.Iterate(prefix, persistence.PrefixEnd(prefix), func(key, value []byte) bool {
			assert.Equal(t, key, value)
			keys = append(keys, string(key))
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"signers/a", "signers/b", "signers/c"}, keys)

		keys = nil
		err = s.Iterate([]byte("signers/b"), nil, func(key, _ []byte) bool {
			keys = append(keys, string(key))
			return len(keys) < 2
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"signers/b", "signers/c"}, keys)
	})

	t.Run("Iterate_BinaryKeys", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Set([]byte("liq/b\x00user1"), []byte("1")))
		require.NoError(t, s.Set([]byte("liq/a\x00user2"), []byte("2")))
		require.NoError(t, s.Set([]byte("liq/ab\x00user0"), []byte("3")))

		var values []string
		err := s.Iterate([]byte("liq/"), persistence.PrefixEnd([]byte("liq/")), func(_, value []byte) bool {
			values = append(values, string(value))
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3", "1"}, values)
	})

	t.Run("Apply_Batch", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Set([]byte("stale"), []byte("x")))
		err := s.Apply([]persistence.Op{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("stale"), Delete: true},
		})
		require.NoError(t, err)

		got, err := s.Get([]byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		got, err = s.Get([]byte("stale"))
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, s.Apply(nil))
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.Set([]byte("used/"), []byte{}))
		got, err := s.Get([]byte("used/"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got)

		require.NoError(t, s.Apply([]persistence.Op{{Key: []byte("used/x"), Value: nil}}))
		got, err = s.Get([]byte("used/x"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got)

		var keys []string
		err = s.Iterate([]byte("used/"), persistence.PrefixEnd([]byte("used/")), func(key, value []byte) bool {
			assert.NotNil(t, value)
			keys = append(keys, string(key))
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"used/", "used/x"}, keys)
	})

	t.Run("Close_Idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.HealthCheck())

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err := s.Get([]byte("k"))
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, s.Set([]byte("k"), []byte("v")), persistence.ErrClosed)
		assert.ErrorIs(t, s.HealthCheck(), persistence.ErrClosed)
	})

	t.Run("ThreadSafety", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		var wg sync.WaitGroup
		numGoroutines := 8
		numOperations := 25

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					key := []byte(fmt.Sprintf("k/%02d/%03d", id, j))
					assert.NoError(t, s.Set(key, key))
					_, err := s.Get(key)
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		count := 0
		require.NoError(t, s.Iterate([]byte("k/"), persistence.PrefixEnd([]byte("k/")), func(_, _ []byte) bool {
			count++
			return true
		}))
		assert.Equal(t, numGoroutines*numOperations, count)
	})
}
