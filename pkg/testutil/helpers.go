package testutil

import (
	"fmt"
	"testing"

	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Address returns a deterministic, canonical test address for index i.
// Addresses sort in the same order as their indices.
func Address(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

// Addresses returns n distinct test addresses starting at index 1.
func Addresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Address(i + 1)
	}
	return out
}

// NewTestLogger returns a logger for tests, debug level when verbose.
func NewTestLogger(t *testing.T, verbose bool) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: verbose})
	require.NoError(t, err)
	return l
}
