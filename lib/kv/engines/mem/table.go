package mem

import (
	"github.com/mdorier/mochi-rkv/lib/kv/alloc"
)

// entry owns the backend-side copies of one pair. Both buffers come from
// the component allocators and are returned to them on delete.
type entry struct {
	key []byte
	val []byte
}

// table is a hash-map memdb.Table. Lookups convert the key bytes to a map
// key in place; inserts copy through the allocators.
type table struct {
	m        map[string]*entry
	keyAlloc alloc.Allocator
	valAlloc alloc.Allocator
}

func newTable(buckets int, keyAlloc, valAlloc alloc.Allocator) *table {
	return &table{
		m:        make(map[string]*entry, buckets),
		keyAlloc: keyAlloc,
		valAlloc: valAlloc,
	}
}

func (t *table) Get(key []byte) ([]byte, bool) {
	e, ok := t.m[string(key)]
	if !ok {
		return nil, false
	}
	return e.val, true
}

func (t *table) Set(key, val []byte) {
	if e, ok := t.m[string(key)]; ok {
		newVal := t.valAlloc.Alloc(len(val))
		copy(newVal, val)
		t.valAlloc.Free(e.val)
		e.val = newVal
		return
	}
	k := t.keyAlloc.Alloc(len(key))
	copy(k, key)
	v := t.valAlloc.Alloc(len(val))
	copy(v, val)
	t.m[string(k)] = &entry{key: k, val: v}
}

func (t *table) Delete(key []byte) {
	e, ok := t.m[string(key)]
	if !ok {
		return
	}
	delete(t.m, string(key))
	t.keyAlloc.Free(e.key)
	t.valAlloc.Free(e.val)
}

func (t *table) Len() int { return len(t.m) }

func (t *table) Range(fn func(key, val []byte) bool) {
	for _, e := range t.m {
		if !fn(e.key, e.val) {
			return
		}
	}
}

func (t *table) Clear() {
	for _, e := range t.m {
		t.keyAlloc.Free(e.key)
		t.valAlloc.Free(e.val)
	}
	t.m = make(map[string]*entry)
}

func (t *table) Destroy() {
	t.Clear()
	t.keyAlloc.Finalize()
	t.valAlloc.Finalize()
}
