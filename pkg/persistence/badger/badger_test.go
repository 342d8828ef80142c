package badger

import (
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
	"github.com/Layr-Labs/multiswap-go/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerPersistence_Suite(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	testutil.RunStoreSuite(t, func(t *testing.T) persistence.Store {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_Settlement(t *testing.T) {
	testutil.RunSettlementSuite(t, func(t *testing.T) persistence.Store {
		bp, err := NewBadgerPersistence(t.TempDir(), testutil.NewTestLogger(t, false))
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_Reopen(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	require.NoError(t, bp.Apply([]persistence.Op{
		{Key: []byte("owner"), Value: []byte("0x035567da27e42258c35b313095acdea4320a7465")},
		{Key: []byte("used_messages/salt"), Value: []byte("salt")},
	}))
	require.NoError(t, bp.Close())

	// Reopen and verify data survived
	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	owner, err := bp2.Get([]byte("owner"))
	require.NoError(t, err)
	assert.Equal(t, "0x035567da27e42258c35b313095acdea4320a7465", string(owner))

	salt, err := bp2.Get([]byte("used_messages/salt"))
	require.NoError(t, err)
	assert.Equal(t, "salt", string(salt))
}

func TestBadgerPersistence_SchemaKeyHiddenFromIteration(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	count := 0
	require.NoError(t, bp.Iterate(nil, nil, func(_, _ []byte) bool {
		count++
		return true
	}))
	assert.Equal(t, 0, count)

	v, err := bp.Get([]byte(keySchemaVersion))
	require.NoError(t, err)
	assert.Nil(t, v)
}
