package persistence

// PrefixStore namespaces every key of a parent KVStore under a fixed prefix.
type PrefixStore struct {
	parent KVStore
	prefix []byte
}

// NewPrefixStore returns a view of parent restricted to keys starting with prefix.
func NewPrefixStore(parent KVStore, prefix []byte) *PrefixStore {
	return &PrefixStore{parent: parent, prefix: CopyBytes(prefix)}
}

func (p *PrefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *PrefixStore) Get(key []byte) ([]byte, error) {
	return p.parent.Get(p.key(key))
}

func (p *PrefixStore) Set(key, value []byte) error {
	return p.parent.Set(p.key(key), value)
}

func (p *PrefixStore) Delete(key []byte) error {
	return p.parent.Delete(p.key(key))
}

func (p *PrefixStore) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	pstart := p.prefix
	if start != nil {
		pstart = p.key(start)
	}
	var pend []byte
	if end != nil {
		pend = p.key(end)
	} else {
		pend = PrefixEnd(p.prefix)
	}
	return p.parent.Iterate(pstart, pend, func(key, value []byte) bool {
		return fn(key[len(p.prefix):], value)
	})
}
