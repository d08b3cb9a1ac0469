// Package kv defines a uniform, batched, buffer-oriented interface over
// pluggable embedded key/value storage engines, together with the small
// protocol types every engine shares.
//
// The package focuses on:
//   - A single Database interface implemented by every storage engine
//   - A caller-memory buffer protocol (UserMem, BitField, size vectors)
//     with packed and unpacked layouts
//   - A Mode bitset parameterizing each operation
//   - A closed Status taxonomy and sentinel sizes for per-item outcomes
//   - A KeyWatcher primitive letting readers block until a key appears
//   - A process-wide backend registry mapping type names to factories
//
// Buffer protocol:
//
// Batched operations exchange variable-length items through packed blobs: a
// flat byte region paired with a size vector, where the i-th item occupies
// the bytes between the prefix sums of the sizes. All buffers are owned by
// the caller; backends never allocate result buffers, never free caller
// memory and never retain references past call return.
//
// Output size vectors double as per-item status channels. Three reserved
// values from the top of the uint64 range — KeyNotFound, BufTooSmall and
// NoMoreKeys — mark slots whose key was absent, whose buffer was too small,
// or which a listing left unused. Everything else in a size vector is an
// actual item size.
//
// Get supports two output layouts. With packed=false each output slot keeps
// the caller-specified capacity and the cursor advances by that capacity no
// matter the outcome, so slot offsets are predictable. With packed=true
// values are concatenated tightly and, once one value does not fit, every
// later slot is marked BufTooSmall.
//
// Engines:
//
// The engines/mem package provides the reference unordered backend (hash
// map, pluggable allocators, optional reader/writer locking, migration
// snapshots). The engines/ordmap package adds ordered listings on top of a
// B-tree. The engines/leveldb, engines/bolt and engines/pebble packages
// adapt on-disk engines to the same contract.
//
// The kvtest package holds a conformance suite that any Database
// implementation can run.
package kv
