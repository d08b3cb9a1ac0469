// Package pebble adapts the cockroachdb/pebble embedded engine to the
// Database contract. It is an LSM backend with ordered listings and
// batched writes.
package pebble

import (
	"errors"
	"os"

	"github.com/cockroachdb/pebble"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/engines/internal/diskdb"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// BackendName is the registry name of this backend.
const BackendName = "pebble"

func init() {
	kv.RegisterBackend(BackendName,
		func(config string) (kv.Database, kv.Status) {
			return New(config)
		}, nil)
}

// New opens a pebble-backed database from a JSON configuration string.
// Recognized options:
//
//	path            (string, required)
//	cache_size      (uint, default 67108864)
//	memtable_size   (uint, default 33554432)
//	max_open_files  (uint, default 1000)
//	sync            (bool, default false)
//	use_write_batch (bool, default true)
//
// Unknown keys are accepted and echoed back by Config().
func New(config string) (kv.Database, kv.Status) {
	cfg, err := util.ParseConfig(config)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	path, err := util.StringOption(cfg, "path", "")
	if err != nil || path == "" {
		return nil, kv.StatusInvalidConf
	}
	cacheSize, err := util.UintOption(cfg, "cache_size", 64<<20)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	memtableSize, err := util.UintOption(cfg, "memtable_size", 32<<20)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	maxOpenFiles, err := util.UintOption(cfg, "max_open_files", 1000)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	sync, err := util.BoolOption(cfg, "sync", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	useBatch, err := util.BoolOption(cfg, "use_write_batch", true)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}

	cache := pebble.NewCache(int64(cacheSize))
	defer cache.Unref()
	handle, err := pebble.Open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: memtableSize,
		MaxOpenFiles: int(maxOpenFiles),
	})
	if err != nil {
		return nil, kv.StatusIOError
	}

	wo := pebble.NoSync
	if sync {
		wo = pebble.Sync
	}
	eng := &engine{db: handle, path: path, wo: wo}
	return diskdb.New(diskdb.Options{
		Type:        BackendName,
		Config:      cfg,
		Engine:      eng,
		Sorted:      true,
		AtomicBatch: useBatch,
		MapErr:      mapError,
	}), kv.StatusOK
}

func mapError(err error) kv.Status {
	if err == nil {
		return kv.StatusOK
	}
	if pebble.IsCorruptionError(err) {
		return kv.StatusCorruption
	}
	return kv.StatusIOError
}

// --------------------------------------------------------------------------
// Engine Mapping
// --------------------------------------------------------------------------

type engine struct {
	db   *pebble.DB
	path string
	wo   *pebble.WriteOptions
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := e.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), val...)
	closer.Close()
	return out, true, nil
}

func (e *engine) Has(key []byte) (bool, error) {
	_, closer, err := e.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (e *engine) Apply(muts []diskdb.Mutation, atomic bool) error {
	if atomic {
		batch := e.db.NewBatch()
		defer batch.Close()
		for _, m := range muts {
			if m.Del {
				if err := batch.Delete(m.Key, nil); err != nil {
					return err
				}
			} else if err := batch.Set(m.Key, m.Val, nil); err != nil {
				return err
			}
		}
		return batch.Commit(e.wo)
	}
	for _, m := range muts {
		var err error
		if m.Del {
			err = e.db.Delete(m.Key, e.wo)
		} else {
			err = e.db.Set(m.Key, m.Val, e.wo)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) NewIter(start []byte) (diskdb.Iter, error) {
	opts := &pebble.IterOptions{}
	if len(start) > 0 {
		opts.LowerBound = start
	}
	it, err := e.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	w := &iter{it: it}
	w.valid = it.First()
	return w, nil
}

func (e *engine) Count() (uint64, error) {
	it, err := e.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var n uint64
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, it.Error()
}

func (e *engine) Close() error { return e.db.Close() }

func (e *engine) DestroyFiles() error { return os.RemoveAll(e.path) }

type iter struct {
	it    *pebble.Iterator
	valid bool
}

func (i *iter) Valid() bool   { return i.valid }
func (i *iter) Key() []byte   { return i.it.Key() }
func (i *iter) Value() []byte { return i.it.Value() }
func (i *iter) Next()         { i.valid = i.it.Next() }
func (i *iter) Err() error    { return i.it.Error() }
func (i *iter) Release()      { i.it.Close() }
