package storage

import (
	"sort"
	"strings"
)

// MemDB is a simple in-memory reference implementation of the L0
// Backend KV contract, sufficient for tests and for a standalone
// single-process deployment. Production deployments back Database
// with a real ordered KV engine; this module never depends on one.
type MemDB struct {
	data map[string][]byte
	keys []string
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (d *MemDB) insertKey(k string) {
	i := sort.SearchStrings(d.keys, k)
	if i < len(d.keys) && d.keys[i] == k {
		return
	}
	d.keys = append(d.keys, "")
	copy(d.keys[i+1:], d.keys[i:])
	d.keys[i] = k
}

// Snapshot returns a point-in-time copy-on-read view of the database.
func (d *MemDB) Snapshot() Snapshot {
	dataCopy := make(map[string][]byte, len(d.data))
	for k, v := range d.data {
		dataCopy[k] = v
	}
	keysCopy := make([]string, len(d.keys))
	copy(keysCopy, d.keys)
	return &memSnapshot{data: dataCopy, keys: keysCopy}
}

// Merge atomically applies p: either every change lands or (on
// internal inconsistency, which MemDB never produces) none does.
func (d *MemDB) Merge(p *Patch) error {
	next := make(map[string][]byte, len(d.data))
	for k, v := range d.data {
		next[k] = v
	}
	for _, prefix := range p.Addresses() {
		vc := p.changes[prefix]
		for _, k := range vc.keys {
			c := vc.data[k]
			backendKey := prefix + k
			if c.IsDelete() {
				delete(next, backendKey)
			} else {
				next[backendKey] = c.Value()
			}
		}
		if vc.cleared {
			for bk := range next {
				if len(bk) >= len(prefix) && bk[:len(prefix)] == prefix {
					if _, stillSet := vc.data[bk[len(prefix):]]; !stillSet {
						delete(next, bk)
					}
				}
			}
		}
	}
	d.data = next
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.keys = keys
	return nil
}

type memSnapshot struct {
	data map[string][]byte
	keys []string
}

func (s *memSnapshot) Get(addr IndexAddress, key []byte) ([]byte, bool) {
	v, ok := s.data[string(addr.Bytes())+string(key)]
	return v, ok
}

func (s *memSnapshot) Iterator(addr IndexAddress, from []byte) Iterator {
	prefix := string(addr.Bytes())
	start := prefix + string(from)
	i := sort.SearchStrings(s.keys, start)
	return &memIterator{snap: s, prefix: prefix, idx: i - 1}
}

type memIterator struct {
	snap   *memSnapshot
	prefix string
	idx    int
}

func (it *memIterator) Next() bool {
	it.idx++
	if it.idx >= len(it.snap.keys) {
		return false
	}
	return strings.HasPrefix(it.snap.keys[it.idx], it.prefix)
}

func (it *memIterator) Key() []byte {
	k := it.snap.keys[it.idx]
	return []byte(k[len(it.prefix):])
}

func (it *memIterator) Value() []byte {
	return it.snap.data[it.snap.keys[it.idx]]
}
