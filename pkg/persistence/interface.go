package persistence

// KVStore is an ordered byte-keyed map with point lookups and range scans.
// Contract code only ever sees this interface.
//
// Conventions shared by all implementations:
// - Get returns (nil, nil) for a missing key. Not found is not an error.
// - Delete of a missing key is a no-op.
// - Iterate visits keys in ascending byte order.
type KVStore interface {
	// Get returns a copy of the value stored at key, or nil if absent.
	Get(key []byte) ([]byte, error)

	// Set stores value at key, replacing any existing value.
	Set(key, value []byte) error

	// Delete removes key. Idempotent.
	Delete(key []byte) error

	// Iterate calls fn for each key in [start, end) in ascending order.
	// A nil start begins at the first key; a nil end is unbounded.
	// Iteration stops when fn returns false.
	// fn must not mutate the store.
	Iterate(start, end []byte, fn func(key, value []byte) bool) error
}

// Op is a single write in an atomic batch.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Store is a durable KVStore backend owned by the host process.
// All implementations must be thread-safe.
type Store interface {
	KVStore

	// Apply writes every op in a single atomic transaction. Either all ops
	// become visible or none do.
	Apply(ops []Op) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the store is operational.
	// Should be called during startup to fail fast.
	HealthCheck() error
}
