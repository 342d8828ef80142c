package persistence

import (
	"bytes"
	"sort"
)

// Overlay buffers writes on top of a parent KVStore. Reads see the buffered
// writes first. Nothing reaches the parent until the caller hands Ops() to
// Store.Apply, so a failed invocation is discarded by dropping the overlay.
//
// Overlay is not thread-safe; the host creates one per invocation.
type Overlay struct {
	parent  KVStore
	pending map[string]Op
}

// NewOverlay creates an empty write buffer over parent.
func NewOverlay(parent KVStore) *Overlay {
	return &Overlay{
		parent:  parent,
		pending: make(map[string]Op),
	}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if op, ok := o.pending[string(key)]; ok {
		if op.Delete {
			return nil, nil
		}
		return CopyValue(op.Value), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Set(key, value []byte) error {
	o.pending[string(key)] = Op{Key: CopyBytes(key), Value: CopyValue(value)}
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	o.pending[string(key)] = Op{Key: CopyBytes(key), Delete: true}
	return nil
}

// Iterate streams the parent range and merges the buffered writes into it in
// key order. Buffered keys in the range are snapshotted when iteration starts.
func (o *Overlay) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	pending := o.rangeOps(start, end)
	next := 0
	stopped := false

	// emitUntil yields buffered writes ordered before key, or all of them
	// when key is nil.
	emitUntil := func(key []byte) {
		for next < len(pending) && !stopped {
			op := pending[next]
			if key != nil && bytes.Compare(op.Key, key) >= 0 {
				return
			}
			next++
			if !op.Delete && !fn(CopyBytes(op.Key), CopyValue(op.Value)) {
				stopped = true
			}
		}
	}

	err := o.parent.Iterate(start, end, func(key, value []byte) bool {
		emitUntil(key)
		if stopped {
			return false
		}
		if next < len(pending) && bytes.Equal(pending[next].Key, key) {
			op := pending[next]
			next++
			if op.Delete {
				return true
			}
			stopped = !fn(CopyBytes(op.Key), CopyValue(op.Value))
			return !stopped
		}
		stopped = !fn(key, value)
		return !stopped
	})
	if err != nil {
		return err
	}

	emitUntil(nil)
	return nil
}

// rangeOps returns the buffered writes in [start, end) sorted by key.
func (o *Overlay) rangeOps(start, end []byte) []Op {
	ops := make([]Op, 0)
	for _, op := range o.pending {
		if InRange(op.Key, start, end) {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		return bytes.Compare(ops[i].Key, ops[j].Key) < 0
	})
	return ops
}

// Ops returns the buffered writes sorted by key.
func (o *Overlay) Ops() []Op {
	ops := make([]Op, 0, len(o.pending))
	for _, op := range o.pending {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return bytes.Compare(ops[i].Key, ops[j].Key) < 0
	})
	return ops
}

// Flush writes the buffered ops into another KVStore, usually the overlay this
// one was opened on, and clears the buffer.
func (o *Overlay) Flush(into KVStore) error {
	for _, op := range o.Ops() {
		var err error
		if op.Delete {
			err = into.Delete(op.Key)
		} else {
			err = into.Set(op.Key, op.Value)
		}
		if err != nil {
			return err
		}
	}
	o.pending = make(map[string]Op)
	return nil
}
