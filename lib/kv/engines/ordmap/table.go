package ordmap

import (
	"bytes"

	"github.com/google/btree"

	"github.com/mdorier/mochi-rkv/lib/kv/alloc"
)

// pair is one key/value item in the tree. The buffers are owned by the
// backend and come from the component allocators.
type pair struct {
	key []byte
	val []byte
}

func lessPair(a, b pair) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// table is a B-tree memdb.OrderedTable.
type table struct {
	tree     *btree.BTreeG[pair]
	keyAlloc alloc.Allocator
	valAlloc alloc.Allocator
}

func newTable(degree int, keyAlloc, valAlloc alloc.Allocator) *table {
	return &table{
		tree:     btree.NewG(degree, lessPair),
		keyAlloc: keyAlloc,
		valAlloc: valAlloc,
	}
}

func (t *table) Get(key []byte) ([]byte, bool) {
	p, ok := t.tree.Get(pair{key: key})
	if !ok {
		return nil, false
	}
	return p.val, true
}

func (t *table) Set(key, val []byte) {
	v := t.valAlloc.Alloc(len(val))
	copy(v, val)
	if old, ok := t.tree.Get(pair{key: key}); ok {
		t.valAlloc.Free(old.val)
		t.tree.ReplaceOrInsert(pair{key: old.key, val: v})
		return
	}
	k := t.keyAlloc.Alloc(len(key))
	copy(k, key)
	t.tree.ReplaceOrInsert(pair{key: k, val: v})
}

func (t *table) Delete(key []byte) {
	if p, ok := t.tree.Delete(pair{key: key}); ok {
		t.keyAlloc.Free(p.key)
		t.valAlloc.Free(p.val)
	}
}

func (t *table) Len() int { return t.tree.Len() }

func (t *table) Range(fn func(key, val []byte) bool) {
	t.tree.Ascend(func(p pair) bool {
		return fn(p.key, p.val)
	})
}

// AscendFrom implements memdb.OrderedTable.
func (t *table) AscendFrom(fromKey []byte, inclusive bool, fn func(key, val []byte) bool) {
	if len(fromKey) == 0 {
		t.tree.Ascend(func(p pair) bool {
			return fn(p.key, p.val)
		})
		return
	}
	first := true
	t.tree.AscendGreaterOrEqual(pair{key: fromKey}, func(p pair) bool {
		if first {
			first = false
			if !inclusive && bytes.Equal(p.key, fromKey) {
				return true
			}
		}
		return fn(p.key, p.val)
	})
}

func (t *table) Clear() {
	t.tree.Ascend(func(p pair) bool {
		t.keyAlloc.Free(p.key)
		t.valAlloc.Free(p.val)
		return true
	})
	t.tree.Clear(false)
}

func (t *table) Destroy() {
	t.Clear()
	t.keyAlloc.Finalize()
	t.valAlloc.Finalize()
}
