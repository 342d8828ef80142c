package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalRecord serializes a stored record to JSON bytes.
func MarshalRecord[T any](record *T) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil %T", record)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T to JSON: %w", record, err)
	}

	return data, nil
}

// UnmarshalRecord deserializes a stored record from JSON bytes.
func UnmarshalRecord[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to %T: %w", record, err)
	}

	return &record, nil
}

// LoadRecord reads and decodes the record at key.
// Returns nil if the key doesn't exist, error only on storage or decode failure.
func LoadRecord[T any](store KVStore, key []byte) (*T, error) {
	data, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil // Not found is not an error
	}
	return UnmarshalRecord[T](data)
}

// SaveRecord encodes record and stores it at key.
func SaveRecord[T any](store KVStore, key []byte, record *T) error {
	data, err := MarshalRecord(record)
	if err != nil {
		return err
	}
	return store.Set(key, data)
}
