package kv

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// FetchCallback receives one key/value pair from Database.Fetch. The key
// and value slices alias backend-owned memory and are only valid for the
// duration of the call. found is false when the key is not present (val is
// then nil). A non-OK return aborts the batch.
type FetchCallback func(key, val []byte, found bool) Status

// Database is the contract every storage engine implements. All batched
// operations share the same buffer protocol: keys and values travel as
// packed blobs described by parallel size vectors, outputs are written into
// caller-owned memory, and per-item outcomes are reported through the
// sentinel sizes KeyNotFound, BufTooSmall and NoMoreKeys.
//
// Operations never mutate caller input buffers; they mutate only output
// buffers and the backend's own state. On a call-level failure (non-OK
// Status) the content of output buffers is undefined.
type Database interface {
	// Type returns the backend type name (e.g. "mem").
	Type() string

	// Config returns the effective configuration as a JSON document,
	// including defaults and any unknown keys the caller supplied.
	Config() string

	// IsSorted reports whether listings return keys in lexicographic order.
	IsSorted() bool

	// SupportsMode reports whether every bit of mode is understood by this
	// backend. Operations called with unsupported bits return
	// StatusInvalidMode.
	SupportsMode(mode Mode) bool

	// Count returns the number of stored key/value pairs.
	Count(mode Mode) (uint64, Status)

	// Exists sets flags[i] to whether the i-th key exists. The caller
	// guarantees flags covers at least len(ksizes) bits. With ModeWait,
	// absent keys suspend the caller until the key is inserted.
	Exists(mode Mode, keys UserMem, ksizes []uint64, flags BitField) Status

	// Length writes the value length of each key into vsizes, or
	// KeyNotFound for absent keys (unless ModeWait).
	Length(mode Mode, keys UserMem, ksizes []uint64, vsizes []uint64) Status

	// Put inserts or updates the given pairs. Honors ModeAppend,
	// ModeNewOnly, ModeExistOnly and ModeNotify.
	Put(mode Mode, keys UserMem, ksizes []uint64, vals UserMem, vsizes []uint64) Status

	// Get reads the values of the given keys into vals. With packed=false
	// each slot i has fixed capacity vsizes[i] and the output cursor
	// advances by that capacity regardless of the outcome; with packed=true
	// values are concatenated and vals.Size is updated to the total bytes
	// written. See the package documentation for the canonical loops.
	Get(mode Mode, packed bool, keys UserMem, ksizes []uint64, vals *UserMem, vsizes []uint64) Status

	// Fetch streams each requested pair to cb without copying into caller
	// buffers. A non-OK return from cb aborts the batch with that status.
	Fetch(mode Mode, keys UserMem, ksizes []uint64, cb FetchCallback) Status

	// Erase deletes each key if present. Absent keys are not an error
	// unless ModeWait is set.
	Erase(mode Mode, keys UserMem, ksizes []uint64) Status

	// ListKeys scans keys in order starting after fromKey (at fromKey
	// itself with ModeInclusive, from the first key when fromKey is empty),
	// emitting up to len(ksizes) keys matching the filter. Trailing unused
	// slots receive NoMoreKeys. Unordered backends return
	// StatusNotSupported.
	ListKeys(mode Mode, packed bool, fromKey, filter []byte, keys *UserMem, ksizes []uint64) Status

	// ListKeyValues is ListKeys plus parallel value output with identical
	// packing rules and sentinels.
	ListKeyValues(mode Mode, packed bool, fromKey, filter []byte,
		keys *UserMem, ksizes []uint64, vals *UserMem, vsizes []uint64) Status

	// StartMigration produces a consistent snapshot handle. The handle
	// holds a read lock on the backend for its lifetime; closing it without
	// Cancel transitions the backend into the terminal migrated state.
	StartMigration() (MigrationHandle, Status)

	// Destroy removes the resources (files, memory) associated with the
	// database. The backend is unusable afterwards.
	Destroy() Status

	// Close releases runtime resources without destroying data.
	Close() error
}

// --------------------------------------------------------------------------
// Migration Handle
// --------------------------------------------------------------------------

// MigrationHandle owns a consistent snapshot of a backend's state, pinned
// by a read lock so concurrent writers cannot tear it. The files it exposes
// follow the snapshot format: a concatenation of records
// (ksize:u64 LE, kbytes, vsize:u64 LE, vbytes), no header, no checksum.
type MigrationHandle interface {
	// Root returns the directory holding the snapshot files.
	Root() string

	// Files returns the snapshot file names within Root.
	Files() []string

	// Cancel aborts the migration: Close will release the lock, delete the
	// snapshot files and leave the backend usable.
	Cancel()

	// Close releases the read lock. Unless Cancel was called first, the
	// backend transitions to the migrated terminal state and discards its
	// live data.
	Close() error
}
