// Package bolt adapts the bbolt embedded engine to the Database contract.
// It is a B-tree backend with ordered, cursor-based listings; every batch
// commits as a single update transaction.
package bolt

import (
	"bytes"
	"os"

	"go.etcd.io/bbolt"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/engines/internal/diskdb"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// BackendName is the registry name of this backend.
const BackendName = "bolt"

func init() {
	kv.RegisterBackend(BackendName,
		func(config string) (kv.Database, kv.Status) {
			return New(config)
		}, nil)
}

// New opens a bbolt-backed database from a JSON configuration string.
// Recognized options:
//
//	path              (string, required)
//	bucket            (string, default "rkv")
//	no_sync           (bool, default false)
//	initial_mmap_size (uint, default 0)
//	page_size         (uint, default 0: engine default)
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
	bucket, err := util.StringOption(cfg, "bucket", "rkv")
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	noSync, err := util.BoolOption(cfg, "no_sync", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	mmapSize, err := util.UintOption(cfg, "initial_mmap_size", 0)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	pageSize, err := util.UintOption(cfg, "page_size", 0)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}

	handle, err := bbolt.Open(path, 0o600, &bbolt.Options{
		NoSync:          noSync,
		InitialMmapSize: int(mmapSize),
		PageSize:        int(pageSize),
	})
	if err != nil {
		return nil, kv.StatusIOError
	}
	name := []byte(bucket)
	if err := handle.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		handle.Close()
		return nil, kv.StatusIOError
	}

	eng := &engine{db: handle, path: path, bucket: name}
	return diskdb.New(diskdb.Options{
		Type:        BackendName,
		Config:      cfg,
		Engine:      eng,
		Sorted:      true,
		AtomicBatch: true,
	}), kv.StatusOK
}

// --------------------------------------------------------------------------
// Engine Mapping
// --------------------------------------------------------------------------

type engine struct {
	db     *bbolt.DB
	path   string
	bucket []byte
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	var found bool
	err := e.db.View(func(tx *bbolt.Tx) error {
		// A cursor distinguishes a missing key from an empty value, which
		// Bucket.Get conflates.
		k, v := tx.Bucket(e.bucket).Cursor().Seek(key)
		if bytes.Equal(k, key) {
			val = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return val, found, err
}

func (e *engine) Has(key []byte) (bool, error) {
	var found bool
	err := e.db.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(e.bucket).Cursor().Seek(key)
		found = bytes.Equal(k, key)
		return nil
	})
	return found, err
}

func (e *engine) Apply(muts []diskdb.Mutation, _ bool) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(e.bucket)
		for _, m := range muts {
			if m.Del {
				if err := b.Delete(m.Key); err != nil {
					return err
				}
			} else if err := b.Put(m.Key, m.Val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *engine) NewIter(start []byte) (diskdb.Iter, error) {
	tx, err := e.db.Begin(false)
	if err != nil {
		return nil, err
	}
	c := tx.Bucket(e.bucket).Cursor()
	it := &iter{tx: tx, c: c}
	if len(start) == 0 {
		it.k, it.v = c.First()
	} else {
		it.k, it.v = c.Seek(start)
	}
	return it, nil
}

func (e *engine) Count() (uint64, error) {
	var n uint64
	err := e.db.View(func(tx *bbolt.Tx) error {
		n = uint64(tx.Bucket(e.bucket).Stats().KeyN)
		return nil
	})
	return n, err
}

func (e *engine) Close() error { return e.db.Close() }

func (e *engine) DestroyFiles() error { return os.Remove(e.path) }

// iter pins a read transaction so the cursor stays valid across calls.
type iter struct {
	tx *bbolt.Tx
	c  *bbolt.Cursor
	k  []byte
	v  []byte
}

func (i *iter) Valid() bool   { return i.k != nil }
func (i *iter) Key() []byte   { return i.k }
func (i *iter) Value() []byte { return i.v }
func (i *iter) Next()         { i.k, i.v = i.c.Next() }
func (i *iter) Err() error    { return nil }
func (i *iter) Release()      { i.tx.Rollback() }
