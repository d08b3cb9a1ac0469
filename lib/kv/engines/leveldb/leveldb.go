// Package leveldb adapts the goleveldb embedded engine to the Database
// contract. It is a log-structured, sorted backend with ordered listings,
// key watching, and an option to commit each batch through an atomic write
// batch.
package leveldb

import (
	"os"
	"time"

	ldb "github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/engines/internal/diskdb"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// BackendName is the registry name of this backend.
const BackendName = "leveldb"

func init() {
	kv.RegisterBackend(BackendName,
		func(config string) (kv.Database, kv.Status) {
			return New(config)
		}, nil)
}

// New opens a leveldb-backed database from a JSON configuration string.
// Recognized options:
//
//	path                    (string, required)
//	create_if_missing       (bool, default false)
//	error_if_exists         (bool, default false)
//	paranoid_checks         (bool, default false)
//	write_buffer_size       (uint, default 4194304)
//	max_open_files          (uint, default 1000)
//	block_size              (uint, default 4096)
//	block_restart_interval  (uint, default 16)
//	max_file_size           (uint, default 2097152)
//	reuse_logs              (bool, default false; accepted, no equivalent)
//	compression             (bool, default true: snappy)
//	wait_timeout_ms         (uint, default 30000)
//	read_options.verify_checksums (bool, default false)
//	read_options.fill_cache       (bool, default true)
//	write_options.sync            (bool, default false)
//	write_options.use_write_batch (bool, default false)
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

	options := &opt.Options{}
	createIfMissing, err := util.BoolOption(cfg, "create_if_missing", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.ErrorIfMissing = !createIfMissing
	if options.ErrorIfExist, err = util.BoolOption(cfg, "error_if_exists", false); err != nil {
		return nil, kv.StatusInvalidConf
	}
	paranoid, err := util.BoolOption(cfg, "paranoid_checks", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	if paranoid {
		options.Strict = opt.StrictAll
	}
	writeBuffer, err := util.UintOption(cfg, "write_buffer_size", 4*1024*1024)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.WriteBuffer = int(writeBuffer)
	maxOpenFiles, err := util.UintOption(cfg, "max_open_files", 1000)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.OpenFilesCacheCapacity = int(maxOpenFiles)
	blockSize, err := util.UintOption(cfg, "block_size", 4*1024)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.BlockSize = int(blockSize)
	restart, err := util.UintOption(cfg, "block_restart_interval", 16)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.BlockRestartInterval = int(restart)
	maxFileSize, err := util.UintOption(cfg, "max_file_size", 2*1024*1024)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	options.CompactionTableSize = int(maxFileSize)
	if _, err = util.BoolOption(cfg, "reuse_logs", false); err != nil {
		return nil, kv.StatusInvalidConf
	}
	compression, err := util.BoolOption(cfg, "compression", true)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	if compression {
		options.Compression = opt.SnappyCompression
	} else {
		options.Compression = opt.NoCompression
	}
	waitMs, err := util.UintOption(cfg, "wait_timeout_ms", 30000)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}

	readCfg, err := util.ObjectOption(cfg, "read_options")
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	ro := &opt.ReadOptions{}
	verifyChecksums, err := util.BoolOption(readCfg, "verify_checksums", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	if verifyChecksums {
		ro.Strict = opt.StrictBlockChecksum
	}
	fillCache, err := util.BoolOption(readCfg, "fill_cache", true)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	ro.DontFillCache = !fillCache

	writeCfg, err := util.ObjectOption(cfg, "write_options")
	if err != nil {
		return nil, kv.StatusInvalidConf
	}
	wo := &opt.WriteOptions{}
	if wo.Sync, err = util.BoolOption(writeCfg, "sync", false); err != nil {
		return nil, kv.StatusInvalidConf
	}
	useBatch, err := util.BoolOption(writeCfg, "use_write_batch", false)
	if err != nil {
		return nil, kv.StatusInvalidConf
	}

	handle, err := ldb.OpenFile(path, options)
	if err != nil {
		if ldberrors.IsCorrupted(err) {
			return nil, kv.StatusCorruption
		}
		return nil, kv.StatusIOError
	}

	eng := &engine{db: handle, path: path, ro: ro, wo: wo}
	return diskdb.New(diskdb.Options{
		Type:        BackendName,
		Config:      cfg,
		Engine:      eng,
		Sorted:      true,
		Watch:       true,
		AtomicBatch: useBatch,
		WaitTimeout: time.Duration(waitMs) * time.Millisecond,
		MapErr:      mapError,
	}), kv.StatusOK
}

func mapError(err error) kv.Status {
	switch {
	case err == nil:
		return kv.StatusOK
	case ldberrors.IsCorrupted(err):
		return kv.StatusCorruption
	default:
		return kv.StatusIOError
	}
}

// --------------------------------------------------------------------------
// Engine Mapping
// --------------------------------------------------------------------------

type engine struct {
	db   *ldb.DB
	path string
	ro   *opt.ReadOptions
	wo   *opt.WriteOptions
}

func (e *engine) Get(key []byte) ([]byte, bool, error) {
	val, err := e.db.Get(key, e.ro)
	if err == ldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (e *engine) Has(key []byte) (bool, error) {
	return e.db.Has(key, e.ro)
}

func (e *engine) Apply(muts []diskdb.Mutation, atomic bool) error {
	if atomic {
		batch := new(ldb.Batch)
		for _, m := range muts {
			if m.Del {
				batch.Delete(m.Key)
			} else {
				batch.Put(m.Key, m.Val)
			}
		}
		return e.db.Write(batch, e.wo)
	}
	for _, m := range muts {
		var err error
		if m.Del {
			err = e.db.Delete(m.Key, e.wo)
		} else {
			err = e.db.Put(m.Key, m.Val, e.wo)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) NewIter(start []byte) (diskdb.Iter, error) {
	it := e.db.NewIterator(nil, e.ro)
	w := &iter{it: it}
	if len(start) == 0 {
		w.valid = it.First()
	} else {
		w.valid = it.Seek(start)
	}
	return w, nil
}

func (e *engine) Count() (uint64, error) {
	it := e.db.NewIterator(nil, e.ro)
	defer it.Release()
	var n uint64
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, it.Error()
}

func (e *engine) Close() error { return e.db.Close() }

func (e *engine) DestroyFiles() error { return os.RemoveAll(e.path) }

type iter struct {
	it    iterator.Iterator
	valid bool
}

func (i *iter) Valid() bool   { return i.valid }
func (i *iter) Key() []byte   { return i.it.Key() }
func (i *iter) Value() []byte { return i.it.Value() }
func (i *iter) Next()         { i.valid = i.it.Next() }
func (i *iter) Err() error    { return i.it.Error() }
func (i *iter) Release()      { i.it.Release() }
