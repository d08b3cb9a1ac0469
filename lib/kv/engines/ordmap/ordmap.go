// Package ordmap provides the reference ordered backend: a B-tree engine
// with lexicographically ordered listings (fromKey, inclusive bounds,
// prefix and suffix filters) on top of the same feature set as the
// unordered mem backend, including watchers and migration snapshots.
package ordmap

import (
	"time"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/alloc"
	"github.com/mdorier/mochi-rkv/lib/kv/engines/internal/memdb"
	"github.com/mdorier/mochi-rkv/lib/kv/util"
)

// BackendName is the registry name of this backend.
const BackendName = "ordmap"

func init() {
	kv.RegisterBackend(BackendName,
		func(config string) (kv.Database, kv.Status) {
			return New(config)
		},
		func(config, migrationConfig, root string, files []string) (kv.Database, kv.Status) {
			return Recover(config, migrationConfig, root, files)
		})
}

// New creates an ordered in-memory backend from a JSON configuration
// string. Recognized options:
//
//	use_lock        (bool, default true)
//	btree_degree    (uint, default 32)
//	wait_timeout_ms (uint, default 30000)
//	allocators.key_allocator / value_allocator / node_allocator
//	                (string, default "default") with matching *_config
//	                sub-documents
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
	degree, err := util.UintOption(cfg, "btree_degree", 32)
	if err != nil || degree < 2 {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	waitMs, err := util.UintOption(cfg, "wait_timeout_ms", 30000)
	if err != nil {
		return memdb.Options{}, kv.StatusInvalidConf
	}
	keyAlloc, valAlloc, nodeAlloc, st := allocators(cfg)
	if st != kv.StatusOK {
		return memdb.Options{}, st
	}
	return memdb.Options{
		Type:        BackendName,
		Config:      cfg,
		Table:       newTable(int(degree), keyAlloc, valAlloc),
		UseLock:     useLock,
		WaitTimeout: time.Duration(waitMs) * time.Millisecond,
		Scratch:     nodeAlloc,
	}, kv.StatusOK
}

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
