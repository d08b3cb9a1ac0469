package ordmap

import (
	"encoding/json"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/kvtest"
)

func Test(t *testing.T) {
	kvtest.RunDatabaseTests(t, "OrdMap", func() kv.Database {
		db, st := New(`{"wait_timeout_ms": 2000}`)
		if st != kv.StatusOK {
			t.Fatalf("creating backend: %s", st)
		}
		return db
	})
}

func Benchmark(b *testing.B) {
	kvtest.RunDatabaseBenchmarks(b, "OrdMap", func() kv.Database {
		db, st := New("")
		if st != kv.StatusOK {
			b.Fatalf("creating backend: %s", st)
		}
		return db
	})
}

func TestConfigDefaults(t *testing.T) {
	db, st := New("")
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	if !db.IsSorted() {
		t.Error("ordmap backend does not claim to be sorted")
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(db.Config()), &cfg); err != nil {
		t.Fatalf("Config() is not valid JSON: %v", err)
	}
	if cfg["btree_degree"] != float64(32) {
		t.Errorf("btree_degree = %v, want 32", cfg["btree_degree"])
	}
	if cfg["use_lock"] != true {
		t.Errorf("use_lock = %v, want true", cfg["use_lock"])
	}
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		`[1, 2, 3]`,
		`{"btree_degree": 1}`,
		`{"btree_degree": "big"}`,
	} {
		if _, st := New(config); st != kv.StatusInvalidConf {
			t.Errorf("New(%q): status %s, want InvalidConfig", config, st)
		}
	}
}

// Ordered iteration must interleave freshly inserted keys correctly.
func TestInterleavedInsertList(t *testing.T) {
	db, st := New("")
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	put := func(key string) {
		keys := kv.Wrap([]byte(key))
		vals := kv.Wrap([]byte("x"))
		if st := db.Put(kv.ModeDefault, keys, []uint64{uint64(len(key))}, vals, []uint64{1}); st != kv.StatusOK {
			t.Fatalf("Put(%q) failed with status %s", key, st)
		}
	}
	put("m")
	put("a")
	put("z")
	put("f")

	buf := make([]byte, 16)
	keys := kv.Wrap(buf)
	ksizes := make([]uint64, 4)
	if st := db.ListKeys(kv.ModeDefault, true, nil, nil, &keys, ksizes); st != kv.StatusOK {
		t.Fatalf("ListKeys failed with status %s", st)
	}
	if string(buf[:keys.Size]) != "afmz" {
		t.Errorf("listed keys = %q, want afmz", buf[:keys.Size])
	}
}
