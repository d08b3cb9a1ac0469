// Package mem provides the reference unordered backend: a hash-map engine
// with a configurable initial bucket count, pluggable allocators, an
// optional reader/writer lock, key watching and migration snapshotting.
// Being unordered, it does not support listings.
package mem

import (
	"time"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/alloc"
	"github.com/mdorier/mochi-rkv/lib/kv/engines/internal/memdb"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// BackendName is the registry name of this backend.
const BackendName = "mem"

func init() {
	kv.RegisterBackend(BackendName,
		func(config string) (kv.Database, kv.Status) {
			return New(config)
		},
		func(config, migrationConfig, root string, files []string) (kv.Database, kv.Status) {
			return Recover(config, migrationConfig, root, files)
		})
}

// New creates an unordered in-memory backend from a JSON configuration
// string. Recognized options:
//
//	use_lock               (bool,   default true)
//	initial_bucket_count   (uint,   default 23)
//	wait_timeout_ms        (uint,   default 30000)
//	disable_doc_mixin_lock (bool,   default false; accepted for the document
//	                        mixin layer, unused here)
//	allocators.key_allocator / value_allocator / node_allocator
//	                       (string, default "default") with matching
//	                       *_config sub-documents
//
// Unknown keys are accepted and echoed back by Config().
func New(config string) (kv.Database, kv.Status) {
	opts, st := buildOptions(config)
	if st != kv.StatusOK {
		return nil, st
	}
	return memdb.New(opts), kv.StatusOK
}

// Recover reconstructs a backend from migration snapshot files.
func Recover(config, migrationConfig string, root string, files []string) (kv.Database, kv.Status) {
	_ = migrationConfig
	opts, st := buildOptions(config)
	if st != kv.StatusOK {
		return nil, st
	}
	return memdb.Recover(opts, root, files)
}

func buildOptions(config string) (memdb.Options, kv.Status) {
	cfg, err := util.ParseConfig(config)
	if err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	useLock, err := util.BoolOption(cfg, "use_lock", true)
	if err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	buckets, err := util.UintOption(cfg, "initial_bucket_count", 23)
	if err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	waitMs, err := util.UintOption(cfg, "wait_timeout_ms", 30000)
	if err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	if _, err := util.BoolOption(cfg, "disable_doc_mixin_lock", false); err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	keyAlloc, valAlloc, nodeAlloc, st := allocators(cfg)
	if st != kv.StatusOK {
		return memdb.Options{}, st
	}
	return memdb.Options{
		Type:        BackendName,
		Config:      cfg,
		Table:       newTable(int(buckets), keyAlloc, valAlloc),
		UseLock:     useLock,
		WaitTimeout: time.Duration(waitMs) * time.Millisecond,
		Scratch:     nodeAlloc,
	}, kv.StatusOK
}

// allocators resolves the three component allocators from the
// "allocators" sub-document, filling in defaults.
func allocators(cfg map[string]any) (key, val, node alloc.Allocator, st kv.Status) {
	sub, err := util.ObjectOption(cfg, "allocators")
	if err != nil {
		return nil, nil, nil, kv.StatusInvalidConf
	}
	one := func(which string) (alloc.Allocator, kv.Status) {
		name, err := util.StringOption(sub, which+"_allocator", "default")
		if err != nil {
			return nil, kv.StatusInvalidConf
		}
		acfg, err := util.ObjectOption(sub, which+"_allocator_config")
		if err != nil {
			return nil, kv.StatusInvalidConf
		}
		a, err := alloc.New(name, util.DumpConfig(acfg))
		if err != nil {
			return nil, kv.StatusInvalidConf
		}
		return a, kv.StatusOK
	}
	if key, st = one("key"); st != kv.StatusOK {
		return nil, nil, nil, st
	}
	if val, st = one("value"); st != kv.StatusOK {
		return nil, nil, nil, st
	}
	if node, st = one("node"); st != kv.StatusOK {
		return nil, nil, nil, st
	}
	return key, val, node, kv.StatusOK
}
