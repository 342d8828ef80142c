package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/multiswap-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of persistence.Store.
// This implementation is intended for TESTING and local development.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies keys and values to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	data map[string][]byte

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		data: make(map[string][]byte),
	}
}

// NewMemoryPersistenceWithWarning prints a loud warning since this should only
// be used for testing. Used by the server binary.
func NewMemoryPersistenceWithWarning() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - ALL DATA WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set MULTISWAP_PERSISTENCE_TYPE=badger for production")
	return NewMemoryPersistence()
}

// Get retrieves the value stored at key.
func (m *MemoryPersistence) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	value, exists := m.data[string(key)]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return persistence.CopyValue(value), nil
}

// Set stores value at key.
func (m *MemoryPersistence) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.data[string(key)] = persistence.CopyValue(value)
	return nil
}

// Delete removes key.
func (m *MemoryPersistence) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.data, string(key))
	return nil
}

// Iterate visits keys in [start, end) in ascending order. The range is
// snapshotted before fn is called.
func (m *MemoryPersistence) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return persistence.ErrClosed
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if persistence.InRange([]byte(k), start, end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = persistence.CopyValue(m.data[k])
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), values[i]) {
			return nil
		}
	}
	return nil
}

// Apply writes all ops under a single lock.
func (m *MemoryPersistence) Apply(ops []persistence.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	for _, op := range ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		m.data[string(op.Key)] = persistence.CopyValue(op.Value)
	}
	return nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
