// Package memdb implements the batched operation semantics shared by the
// in-memory backends. An engine supplies a Table (the actual storage
// structure plus its allocators) and memdb layers the buffer protocol,
// locking, key watching and migration snapshotting on top of it.
package memdb

import (
	"sync/atomic"
	"time"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/alloc"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// --------------------------------------------------------------------------
// Table Abstraction
// --------------------------------------------------------------------------

// Table is the storage structure behind an in-memory backend. Set must copy
// key and value into backend-owned memory (through the engine's
// allocators); slices returned by Get or passed to Range callbacks alias
// backend-owned memory and stay valid while the caller holds the database
// lock.
type Table interface {
	Get(key []byte) (val []byte, ok bool)
	Set(key, val []byte)
	Delete(key []byte)
	Len() int
	Range(fn func(key, val []byte) bool)
	// Clear discards every entry but keeps the table usable.
	Clear()
	// Destroy releases entries and finalizes the engine's allocators.
	Destroy()
}

// OrderedTable is implemented by tables with lexicographically ordered
// iteration; it enables ListKeys and ListKeyValues.
type OrderedTable interface {
	Table
	// AscendFrom visits pairs in key order starting at fromKey (from the
	// first key when fromKey is empty). When the iteration lands exactly on
	// fromKey and inclusive is false, the first pair is skipped.
	AscendFrom(fromKey []byte, inclusive bool, fn func(key, val []byte) bool)
}

// --------------------------------------------------------------------------
// Database Core
// --------------------------------------------------------------------------

// Options configures a memdb core.
type Options struct {
	Type        string         // backend type name
	Config      map[string]any // effective configuration, echoed by Config()
	Table       Table
	UseLock     bool
	WaitTimeout time.Duration   // timeout for ModeWait suspensions
	Scratch     alloc.Allocator // scratch buffers (append merges, snapshot headers)
}

// baseModes are the mode bits every in-memory backend understands.
const baseModes = kv.ModeAppend | kv.ModeConsume | kv.ModeWait |
	kv.ModeNewOnly | kv.ModeExistOnly | kv.ModeUpdateNew

// listModes are additionally understood by sorted tables.
const listModes = kv.ModeInclusive | kv.ModeNoPrefix | kv.ModeIgnoreKeys |
	kv.ModeKeepLast | kv.ModeSuffix

// DB implements kv.Database on top of a Table.
type DB struct {
	typ         string
	cfg         map[string]any
	table       Table
	lock        optLock
	watcher     *kv.KeyWatcher
	waitTimeout time.Duration
	scratch     alloc.Allocator
	supported   kv.Mode
	migrated    atomic.Bool
}

// New builds a database core around the given table.
func New(opts Options) *DB {
	scratch := opts.Scratch
	if scratch == nil {
		scratch, _ = alloc.New("default", "")
	}
	supported := baseModes
	if _, ok := opts.Table.(OrderedTable); ok {
		supported |= listModes
	}
	return &DB{
		typ:         opts.Type,
		cfg:         opts.Config,
		table:       opts.Table,
		lock:        newOptLock(opts.UseLock),
		watcher:     kv.NewKeyWatcher(),
		waitTimeout: opts.WaitTimeout,
		scratch:     scratch,
		supported:   supported,
	}
}

// Type implements kv.Database.
func (db *DB) Type() string { return db.typ }

// Config implements kv.Database.
func (db *DB) Config() string { return util.DumpConfig(db.cfg) }

// IsSorted implements kv.Database.
func (db *DB) IsSorted() bool {
	_, ok := db.table.(OrderedTable)
	return ok
}

// SupportsMode implements kv.Database.
func (db *DB) SupportsMode(mode kv.Mode) bool {
	return mode.SubsetOf(db.supported)
}

// check runs the mode and terminal-state gates shared by every operation.
func (db *DB) check(mode kv.Mode) kv.Status {
	if !db.SupportsMode(mode) {
		return kv.StatusInvalidMode
	}
	if db.migrated.Load() {
		return kv.StatusMigrated
	}
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Count implements kv.Database.
func (db *DB) Count(mode kv.Mode) (uint64, kv.Status) {
	if st := db.check(mode); st != kv.StatusOK {
		return 0, st
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	return uint64(db.table.Len()), kv.StatusOK
}

// waitRead suspends the caller until key appears, following the wait
// protocol: the read lock is released before blocking and reacquired
// afterwards. Returns OK when the caller should re-check the key.
//
// Thread-safety: called with the read lock held; returns with it held.
func (db *DB) waitRead(key []byte) kv.Status {
	wt := db.watcher.Add(key)
	db.lock.RUnlock()
	st := wt.Wait(db.waitTimeout)
	db.lock.RLock()
	if st != kv.WaitKeyPresent {
		return kv.StatusTimedOut
	}
	if db.migrated.Load() {
		return kv.StatusMigrated
	}
	return kv.StatusOK
}

// Exists implements kv.Database.
func (db *DB) Exists(mode kv.Mode, keys kv.UserMem, ksizes []uint64, flags kv.BitField) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if len(ksizes) > flags.Size {
		return kv.StatusInvalidArg
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	var offset uint64
	for i, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		for {
			if _, ok := db.table.Get(key); ok {
				flags.Set(i, true)
				break
			}
			if !mode.Has(kv.ModeWait) {
				flags.Set(i, false)
				break
			}
			if st := db.waitRead(key); st != kv.StatusOK {
				return st
			}
		}
		offset += ks
	}
	return kv.StatusOK
}

// Length implements kv.Database.
func (db *DB) Length(mode kv.Mode, keys kv.UserMem, ksizes []uint64, vsizes []uint64) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if len(ksizes) != len(vsizes) {
		return kv.StatusInvalidArg
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	var offset uint64
	for i, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		for {
			if val, ok := db.table.Get(key); ok {
				vsizes[i] = uint64(len(val))
				break
			}
			if !mode.Has(kv.ModeWait) {
				vsizes[i] = kv.KeyNotFound
				break
			}
			if st := db.waitRead(key); st != kv.StatusOK {
				return st
			}
		}
		offset += ks
	}
	return kv.StatusOK
}

// Get implements kv.Database.
func (db *DB) Get(mode kv.Mode, packed bool, keys kv.UserMem, ksizes []uint64,
	vals *kv.UserMem, vsizes []uint64) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if len(ksizes) != len(vsizes) {
		return kv.StatusInvalidArg
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	if !packed {
		if st := kv.CheckValues(*vals, vsizes); st != kv.StatusOK {
			return st
		}
	}

	db.lock.RLock()
	var keyOff, valOff uint64
	if !packed {
		for i, ks := range ksizes {
			key := keys.Data[keyOff : keyOff+ks]
			val, found, st := db.getWait(mode, key)
			if st != kv.StatusOK {
				db.lock.RUnlock()
				return st
			}
			cap := vsizes[i]
			switch {
			case !found:
				vsizes[i] = kv.KeyNotFound
			case uint64(len(val)) > cap:
				vsizes[i] = kv.BufTooSmall
			default:
				copy(vals.Data[valOff:], val)
				vsizes[i] = uint64(len(val))
			}
			keyOff += ks
			valOff += cap
		}
	} else {
		remaining := vals.Size
		tooSmall := false
		for i, ks := range ksizes {
			key := keys.Data[keyOff : keyOff+ks]
			val, found, st := db.getWait(mode, key)
			if st != kv.StatusOK {
				db.lock.RUnlock()
				return st
			}
			switch {
			case !found:
				vsizes[i] = kv.KeyNotFound
			case tooSmall || uint64(len(val)) > remaining:
				vsizes[i] = kv.BufTooSmall
				tooSmall = true
			default:
				copy(vals.Data[valOff:], val)
				vsizes[i] = uint64(len(val))
				valOff += uint64(len(val))
				remaining -= uint64(len(val))
			}
			keyOff += ks
		}
		vals.Size = valOff
	}
	db.lock.RUnlock()

	if mode.Has(kv.ModeConsume) {
		// The erase happens after the whole batch has been read; absent
		// keys make it a no-op.
		return db.Erase(mode&^kv.ModeWait, keys, ksizes)
	}
	return kv.StatusOK
}

// getWait resolves one key, suspending under ModeWait until it appears.
//
// Thread-safety: called with the read lock held; returns with it held.
func (db *DB) getWait(mode kv.Mode, key []byte) ([]byte, bool, kv.Status) {
	for {
		if val, ok := db.table.Get(key); ok {
			return val, true, kv.StatusOK
		}
		if !mode.Has(kv.ModeWait) {
			return nil, false, kv.StatusOK
		}
		if st := db.waitRead(key); st != kv.StatusOK {
			return nil, false, st
		}
	}
}

// Fetch implements kv.Database.
func (db *DB) Fetch(mode kv.Mode, keys kv.UserMem, ksizes []uint64, cb kv.FetchCallback) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	db.lock.RLock()
	var offset uint64
	for _, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		val, found, st := db.getWait(mode, key)
		if st != kv.StatusOK {
			db.lock.RUnlock()
			return st
		}
		if st := cb(key, val, found); st != kv.StatusOK {
			db.lock.RUnlock()
			return st
		}
		offset += ks
	}
	db.lock.RUnlock()

	if mode.Has(kv.ModeConsume) {
		return db.Erase(mode&^kv.ModeWait, keys, ksizes)
	}
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put implements kv.Database.
func (db *DB) Put(mode kv.Mode, keys kv.UserMem, ksizes []uint64,
	vals kv.UserMem, vsizes []uint64) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if len(ksizes) != len(vsizes) {
		return kv.StatusInvalidArg
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	if st := kv.CheckValues(vals, vsizes); st != kv.StatusOK {
		return st
	}
	single := len(ksizes) == 1

	db.lock.Lock()
	defer db.lock.Unlock()
	var keyOff, valOff uint64
	for i, ks := range ksizes {
		key := keys.Data[keyOff : keyOff+ks]
		val := vals.Data[valOff : valOff+vsizes[i]]
		keyOff += ks
		valOff += vsizes[i]

		old, exists := db.table.Get(key)
		if mode.Has(kv.ModeNewOnly) && exists {
			if single {
				return kv.StatusKeyExists
			}
			continue
		}
		if mode.Has(kv.ModeExistOnly) && !exists {
			if single {
				return kv.StatusNotFound
			}
			continue
		}
		if mode.Has(kv.ModeAppend) && exists {
			merged := db.scratch.Alloc(len(old) + len(val))
			copy(merged, old)
			copy(merged[len(old):], val)
			db.table.Set(key, merged)
			db.scratch.Free(merged)
		} else {
			db.table.Set(key, val)
		}
		if mode.Has(kv.ModeNotify) {
			// With ModeUpdateNew only newly inserted keys wake waiters.
			if !mode.Has(kv.ModeUpdateNew) || !exists {
				db.watcher.Notify(key)
			}
		}
	}
	return kv.StatusOK
}

// Erase implements kv.Database.
func (db *DB) Erase(mode kv.Mode, keys kv.UserMem, ksizes []uint64) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	db.lock.Lock()
	defer db.lock.Unlock()
	var offset uint64
	for _, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		for {
			if _, ok := db.table.Get(key); ok {
				db.table.Delete(key)
				break
			}
			if !mode.Has(kv.ModeWait) {
				break
			}
			wt := db.watcher.Add(key)
			db.lock.Unlock()
			st := wt.Wait(db.waitTimeout)
			db.lock.Lock()
			if st != kv.WaitKeyPresent {
				return kv.StatusTimedOut
			}
			if db.migrated.Load() {
				return kv.StatusMigrated
			}
		}
		offset += ks
	}
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Listings
// --------------------------------------------------------------------------

// ListKeys implements kv.Database. Unordered tables return
// StatusNotSupported.
func (db *DB) ListKeys(mode kv.Mode, packed bool, fromKey, filter []byte,
	keys *kv.UserMem, ksizes []uint64) kv.Status {
	return db.list(mode, packed, fromKey, filter, keys, ksizes, nil, nil)
}

// ListKeyValues implements kv.Database.
func (db *DB) ListKeyValues(mode kv.Mode, packed bool, fromKey, filter []byte,
	keys *kv.UserMem, ksizes []uint64, vals *kv.UserMem, vsizes []uint64) kv.Status {
	if len(ksizes) != len(vsizes) {
		return kv.StatusInvalidArg
	}
	return db.list(mode, packed, fromKey, filter, keys, ksizes, vals, vsizes)
}

func (db *DB) list(mode kv.Mode, packed bool, fromKey, filter []byte,
	keys *kv.UserMem, ksizes []uint64, vals *kv.UserMem, vsizes []uint64) kv.Status {
	ordered, ok := db.table.(OrderedTable)
	if !ok {
		return kv.StatusNotSupported
	}
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	db.lock.RLock()
	defer db.lock.RUnlock()
	keyFilter := kv.NewListFilter(mode, filter)
	em := kv.NewListEmitter(mode, packed, keys, ksizes, vals, vsizes)
	ordered.AscendFrom(fromKey, mode.Has(kv.ModeInclusive), func(k, v []byte) bool {
		if em.Full() {
			return false
		}
		if !keyFilter.Match(k) {
			return true
		}
		em.Emit(k, v)
		return true
	})
	em.Finish()
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Destroy implements kv.Database.
func (db *DB) Destroy() kv.Status {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.watcher.Close()
	db.table.Destroy()
	db.scratch.Finalize()
	return kv.StatusOK
}

// Close implements kv.Database. In-memory backends hold no runtime
// resources beyond their data.
func (db *DB) Close() error { return nil }
