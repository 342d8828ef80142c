package persistence

import (
	"bytes"
	"errors"
)

// ErrClosed is returned by every operation on a store after Close.
var ErrClosed = errors.New("persistence layer is closed")

// Type selects a Store backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeBadger Type = "badger"
	TypeRedis  Type = "redis"
)

// SupportedTypes lists the backends accepted by configuration.
func SupportedTypes() []Type {
	return []Type{TypeMemory, TypeBadger, TypeRedis}
}

// CopyBytes returns a copy of b, preserving nil.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// CopyValue returns a copy of a stored value that is never nil, so a present
// key with an empty value stays distinguishable from a missing key.
func CopyValue(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists (prefix is all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := CopyBytes(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// InRange reports whether key lies in [start, end). Nil bounds are open.
func InRange(key, start, end []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}
