package memdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/logging"
)

// The snapshot is a concatenation of records
// (ksize:u64 LE, kbytes, vsize:u64 LE, vbytes), no header, no checksum.
const snapshotFile = "snapshot.dat"

// --------------------------------------------------------------------------
// Migration Handle
// --------------------------------------------------------------------------

// migrationHandle pins a snapshot of the database. It holds the read lock
// for its whole lifetime so writers cannot tear the snapshot; Close
// releases the lock and, unless Cancel was called, transitions the backend
// into the terminal migrated state.
type migrationHandle struct {
	db       *DB
	root     string
	canceled bool
	closed   bool
}

func (h *migrationHandle) Root() string { return h.root }

func (h *migrationHandle) Files() []string { return []string{snapshotFile} }

func (h *migrationHandle) Cancel() { h.canceled = true }

func (h *migrationHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if !h.canceled {
		// Reject new operations before dropping the read lock, then wait
		// for in-flight readers and discard the live data.
		h.db.migrated.Store(true)
	}
	h.db.lock.RUnlock()
	err := os.RemoveAll(h.root)
	if !h.canceled {
		h.db.lock.Lock()
		h.db.table.Clear()
		h.db.watcher.Close()
		h.db.lock.Unlock()
		logging.Engine.Debug().Str("backend", h.db.typ).Msg("migration completed, backend is terminal")
	}
	return err
}

// StartMigration implements kv.Database.
func (db *DB) StartMigration() (kv.MigrationHandle, kv.Status) {
	if db.migrated.Load() {
		return nil, kv.StatusMigrated
	}
	db.lock.RLock()
	root, err := os.MkdirTemp("", "rkv-"+db.typ+"-snapshot-")
	if err != nil {
		db.lock.RUnlock()
		return nil, kv.StatusIOError
	}
	if err := db.writeSnapshot(filepath.Join(root, snapshotFile)); err != nil {
		os.RemoveAll(root)
		db.lock.RUnlock()
		logging.Engine.Error().Err(err).Str("backend", db.typ).Msg("snapshot failed")
		return nil, kv.StatusIOError
	}
	logging.Engine.Debug().Str("backend", db.typ).Str("root", root).Msg("snapshot written")
	return &migrationHandle{db: db, root: root}, kv.StatusOK
}

// writeSnapshot streams every pair to path. Caller holds the read lock.
func (db *DB) writeSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, 1<<20)
	header := db.scratch.Alloc(8)
	defer db.scratch.Free(header)

	var werr error
	db.table.Range(func(key, val []byte) bool {
		binary.LittleEndian.PutUint64(header, uint64(len(key)))
		if _, werr = bw.Write(header); werr != nil {
			return false
		}
		if _, werr = bw.Write(key); werr != nil {
			return false
		}
		binary.LittleEndian.PutUint64(header, uint64(len(val)))
		if _, werr = bw.Write(header); werr != nil {
			return false
		}
		if _, werr = bw.Write(val); werr != nil {
			return false
		}
		return true
	})
	if werr != nil {
		f.Close()
		return werr
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --------------------------------------------------------------------------
// Recovery
// --------------------------------------------------------------------------

// Recover populates a freshly created database core from migration
// snapshot files. The whole file must be consumed; a short read destroys
// the partial backend and yields StatusIOError.
func Recover(opts Options, root string, files []string) (*DB, kv.Status) {
	if len(files) != 1 {
		return nil, kv.StatusInvalidArg
	}
	db := New(opts)
	f, err := os.Open(filepath.Join(root, files[0]))
	if err != nil {
		db.Destroy()
		return nil, kv.StatusIOError
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	var header [8]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break // clean end of the record stream
			}
			db.Destroy()
			return nil, kv.StatusIOError
		}
		ksize := binary.LittleEndian.Uint64(header[:])
		if ksize == 0 {
			db.Destroy()
			return nil, kv.StatusCorruption
		}
		key := make([]byte, ksize)
		if _, err := io.ReadFull(br, key); err != nil {
			db.Destroy()
			return nil, kv.StatusIOError
		}
		if _, err := io.ReadFull(br, header[:]); err != nil {
			db.Destroy()
			return nil, kv.StatusIOError
		}
		vsize := binary.LittleEndian.Uint64(header[:])
		val := make([]byte, vsize)
		if _, err := io.ReadFull(br, val); err != nil {
			db.Destroy()
			return nil, kv.StatusIOError
		}
		db.table.Set(key, val)
	}
	logging.Engine.Debug().Str("backend", db.typ).Int("pairs", db.table.Len()).Msg("recovered from snapshot")
	return db, kv.StatusOK
}
