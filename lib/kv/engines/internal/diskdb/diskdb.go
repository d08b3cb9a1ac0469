// Package diskdb implements the batched operation semantics shared by the
// on-disk backend adapters. An adapter supplies an Engine (the embedded
// database primitives plus its error mapping) and diskdb layers the buffer
// protocol, locking, key watching and listing semantics on top, keeping
// each adapter a thin mapping of configuration and primitives.
package diskdb

import (
	"sync"
	"time"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// --------------------------------------------------------------------------
// Engine Abstraction
// --------------------------------------------------------------------------

// Mutation is one write in a batch: a put, or a delete when Del is set.
type Mutation struct {
	Del bool
	Key []byte
	Val []byte
}

// Iter walks keys in lexicographic order. Key and Value slices are only
// valid until the next call to Next or Release.
type Iter interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Err() error
	Release()
}

// Engine is the minimal surface an embedded database must expose. Slices
// returned by Get are owned by the caller (engines copy out of their
// internal buffers).
type Engine interface {
	Get(key []byte) (val []byte, found bool, err error)
	Has(key []byte) (bool, error)
	// Apply applies the mutations. With atomic=true the whole batch must
	// commit as one write; otherwise engines may apply item by item.
	Apply(muts []Mutation, atomic bool) error
	// NewIter returns an iterator positioned at the first key >= start
	// (at the first key overall when start is empty).
	NewIter(start []byte) (Iter, error)
	Count() (uint64, error)
	// DestroyFiles removes the backing files. Called after Close.
	Close() error
	DestroyFiles() error
}

// --------------------------------------------------------------------------
// Database Core
// --------------------------------------------------------------------------

// Options configures a diskdb core.
type Options struct {
	Type        string
	Config      map[string]any // effective configuration, echoed by Config()
	Engine      Engine
	Sorted      bool // engine iterates in key order: listings enabled
	Watch       bool // enable ModeWait / ModeNotify
	AtomicBatch bool // commit each Put/Erase batch as one engine write
	WaitTimeout time.Duration
	// MapErr translates an engine error into a Status. nil defaults to
	// StatusIOError for every error.
	MapErr func(error) kv.Status
}

const baseModes = kv.ModeAppend | kv.ModeConsume | kv.ModeNewOnly |
	kv.ModeExistOnly | kv.ModeUpdateNew

const listModes = kv.ModeInclusive | kv.ModeNoPrefix | kv.ModeIgnoreKeys |
	kv.ModeKeepLast | kv.ModeSuffix

// DB implements kv.Database on top of an Engine.
type DB struct {
	typ         string
	cfg         map[string]any
	engine      Engine
	sorted      bool
	atomicBatch bool
	mu          sync.RWMutex
	watcher     *kv.KeyWatcher // nil when watching is disabled
	waitTimeout time.Duration
	mapErr      func(error) kv.Status
	supported   kv.Mode
}

// New builds a database core around the given engine.
func New(opts Options) *DB {
	supported := baseModes
	var watcher *kv.KeyWatcher
	if opts.Watch {
		supported |= kv.ModeWait
		watcher = kv.NewKeyWatcher()
	}
	if opts.Sorted {
		supported |= listModes
	}
	mapErr := opts.MapErr
	if mapErr == nil {
		mapErr = func(error) kv.Status { return kv.StatusIOError }
	}
	return &DB{
		typ:         opts.Type,
		cfg:         opts.Config,
		engine:      opts.Engine,
		sorted:      opts.Sorted,
		atomicBatch: opts.AtomicBatch,
		watcher:     watcher,
		waitTimeout: opts.WaitTimeout,
		mapErr:      mapErr,
		supported:   supported,
	}
}

// Type implements kv.Database.
func (db *DB) Type() string { return db.typ }

// Config implements kv.Database.
func (db *DB) Config() string { return util.DumpConfig(db.cfg) }

// IsSorted implements kv.Database.
func (db *DB) IsSorted() bool { return db.sorted }

// SupportsMode implements kv.Database.
func (db *DB) SupportsMode(mode kv.Mode) bool {
	return mode.SubsetOf(db.supported)
}

func (db *DB) check(mode kv.Mode) kv.Status {
	if !db.SupportsMode(mode) {
		return kv.StatusInvalidMode
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
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, err := db.engine.Count()
	if err != nil {
		return 0, db.mapErr(err)
	}
	return n, kv.StatusOK
}

// waitRead suspends the caller until key appears. Called with the read
// lock held; returns with it held.
func (db *DB) waitRead(key []byte) kv.Status {
	wt := db.watcher.Add(key)
	db.mu.RUnlock()
	st := wt.Wait(db.waitTimeout)
	db.mu.RLock()
	if st != kv.WaitKeyPresent {
		return kv.StatusTimedOut
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
	db.mu.RLock()
	defer db.mu.RUnlock()
	var offset uint64
	for i, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		for {
			found, err := db.engine.Has(key)
			if err != nil {
				return db.mapErr(err)
			}
			if found {
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
	db.mu.RLock()
	defer db.mu.RUnlock()
	var offset uint64
	for i, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		for {
			val, found, err := db.engine.Get(key)
			if err != nil {
				return db.mapErr(err)
			}
			if found {
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

// getWait resolves one key, suspending under ModeWait until it appears.
// Called with the read lock held; returns with it held.
func (db *DB) getWait(mode kv.Mode, key []byte) ([]byte, bool, kv.Status) {
	for {
		val, found, err := db.engine.Get(key)
		if err != nil {
			return nil, false, db.mapErr(err)
		}
		if found {
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

	db.mu.RLock()
	var keyOff, valOff uint64
	if !packed {
		for i, ks := range ksizes {
			key := keys.Data[keyOff : keyOff+ks]
			val, found, st := db.getWait(mode, key)
			if st != kv.StatusOK {
				db.mu.RUnlock()
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
				db.mu.RUnlock()
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
	db.mu.RUnlock()

	if mode.Has(kv.ModeConsume) {
		return db.Erase(mode&^kv.ModeWait, keys, ksizes)
	}
	return kv.StatusOK
}

// Fetch implements kv.Database.
func (db *DB) Fetch(mode kv.Mode, keys kv.UserMem, ksizes []uint64, cb kv.FetchCallback) kv.Status {
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	if st := kv.CheckKeys(keys, ksizes); st != kv.StatusOK {
		return st
	}
	db.mu.RLock()
	var offset uint64
	for _, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		val, found, st := db.getWait(mode, key)
		if st != kv.StatusOK {
			db.mu.RUnlock()
			return st
		}
		if st := cb(key, val, found); st != kv.StatusOK {
			db.mu.RUnlock()
			return st
		}
		offset += ks
	}
	db.mu.RUnlock()

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

	db.mu.Lock()
	defer db.mu.Unlock()

	muts := make([]Mutation, 0, len(ksizes))
	var notify [][]byte
	var keyOff, valOff uint64
	for i, ks := range ksizes {
		key := keys.Data[keyOff : keyOff+ks]
		val := vals.Data[valOff : valOff+vsizes[i]]
		keyOff += ks
		valOff += vsizes[i]

		old, exists, err := db.engine.Get(key)
		if err != nil {
			return db.mapErr(err)
		}
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
			merged := make([]byte, 0, len(old)+len(val))
			merged = append(merged, old...)
			merged = append(merged, val...)
			val = merged
		}
		muts = append(muts, Mutation{Key: key, Val: val})
		if db.watcher != nil && mode.Has(kv.ModeNotify) {
			if !mode.Has(kv.ModeUpdateNew) || !exists {
				notify = append(notify, key)
			}
		}
		if !db.atomicBatch {
			if err := db.engine.Apply(muts, false); err != nil {
				return db.mapErr(err)
			}
			muts = muts[:0]
			for _, k := range notify {
				db.watcher.Notify(k)
			}
			notify = notify[:0]
		}
	}
	if db.atomicBatch {
		if err := db.engine.Apply(muts, true); err != nil {
			return db.mapErr(err)
		}
		for _, k := range notify {
			db.watcher.Notify(k)
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
	db.mu.Lock()
	defer db.mu.Unlock()

	muts := make([]Mutation, 0, len(ksizes))
	var offset uint64
	for _, ks := range ksizes {
		key := keys.Data[offset : offset+ks]
		offset += ks
		if mode.Has(kv.ModeWait) && db.watcher != nil {
			for {
				found, err := db.engine.Has(key)
				if err != nil {
					return db.mapErr(err)
				}
				if found {
					break
				}
				wt := db.watcher.Add(key)
				db.mu.Unlock()
				st := wt.Wait(db.waitTimeout)
				db.mu.Lock()
				if st != kv.WaitKeyPresent {
					return kv.StatusTimedOut
				}
			}
		}
		muts = append(muts, Mutation{Del: true, Key: key})
		if !db.atomicBatch {
			if err := db.engine.Apply(muts, false); err != nil {
				return db.mapErr(err)
			}
			muts = muts[:0]
		}
	}
	if db.atomicBatch {
		if err := db.engine.Apply(muts, true); err != nil {
			return db.mapErr(err)
		}
	}
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Listings
// --------------------------------------------------------------------------

// ListKeys implements kv.Database.
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
	if !db.sorted {
		return kv.StatusNotSupported
	}
	if st := db.check(mode); st != kv.StatusOK {
		return st
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	it, err := db.engine.NewIter(fromKey)
	if err != nil {
		return db.mapErr(err)
	}
	defer it.Release()

	// The iterator lands on fromKey itself when present; skip it unless
	// the listing is inclusive.
	if it.Valid() && len(fromKey) > 0 && !mode.Has(kv.ModeInclusive) &&
		string(it.Key()) == string(fromKey) {
		it.Next()
	}

	keyFilter := kv.NewListFilter(mode, filter)
	em := kv.NewListEmitter(mode, packed, keys, ksizes, vals, vsizes)
	// The emitter may defer a key copy until Finish (ModeKeepLast), but
	// iterator slices die on Next, so hand it stable copies.
	var lastKey []byte
	for ; it.Valid() && !em.Full(); it.Next() {
		k := it.Key()
		if !keyFilter.Match(k) {
			continue
		}
		if mode.Has(kv.ModeKeepLast) {
			lastKey = append(lastKey[:0], k...)
			k = lastKey
		}
		em.Emit(k, it.Value())
	}
	if err := it.Err(); err != nil {
		return db.mapErr(err)
	}
	em.Finish()
	return kv.StatusOK
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// StartMigration implements kv.Database. The snapshot format is defined
// for in-memory backends; disk adapters do not support it.
func (db *DB) StartMigration() (kv.MigrationHandle, kv.Status) {
	return nil, kv.StatusNotSupported
}

// Destroy implements kv.Database: closes the engine and removes its files.
func (db *DB) Destroy() kv.Status {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.watcher != nil {
		db.watcher.Close()
	}
	if err := db.engine.Close(); err != nil {
		return db.mapErr(err)
	}
	if err := db.engine.DestroyFiles(); err != nil {
		return db.mapErr(err)
	}
	return kv.StatusOK
}

// Close implements kv.Database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.watcher != nil {
		db.watcher.Close()
	}
	return db.engine.Close()
}
