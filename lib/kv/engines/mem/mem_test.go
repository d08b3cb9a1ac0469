package mem

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/kvtest"
)

func Test(t *testing.T) {
	kvtest.RunDatabaseTests(t, "Mem", func() kv.Database {
		db, st := New(`{"wait_timeout_ms": 2000}`)
		if st != kv.StatusOK {
			t.Fatalf("creating backend: %s", st)
		}
		return db
	})
}

func Benchmark(b *testing.B) {
	kvtest.RunDatabaseBenchmarks(b, "Mem", func() kv.Database {
		db, st := New("")
		if st != kv.StatusOK {
			b.Fatalf("creating backend: %s", st)
		}
		return db
	})
}

func TestConfigDefaults(t *testing.T) {
	db, st := New(`{"custom_key": 42}`)
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	var cfg map[string]any
	if err := json.Unmarshal([]byte(db.Config()), &cfg); err != nil {
		t.Fatalf("Config() is not valid JSON: %v", err)
	}
	if cfg["use_lock"] != true {
		t.Errorf("use_lock = %v, want true", cfg["use_lock"])
	}
	if cfg["initial_bucket_count"] != float64(23) {
		t.Errorf("initial_bucket_count = %v, want 23", cfg["initial_bucket_count"])
	}
	if cfg["custom_key"] != float64(42) {
		t.Errorf("unknown key not echoed: %v", cfg["custom_key"])
	}
	allocs, ok := cfg["allocators"].(map[string]any)
	if !ok {
		t.Fatalf("allocators missing from config: %v", cfg)
	}
	for _, which := range []string{"key_allocator", "value_allocator", "node_allocator"} {
		if allocs[which] != "default" {
			t.Errorf("%s = %v, want default", which, allocs[which])
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		`not json`,
		`{"use_lock": "yes"}`,
		`{"initial_bucket_count": -1}`,
		`{"allocators": {"key_allocator": "no-such-allocator"}}`,
	} {
		if _, st := New(config); st != kv.StatusInvalidConf {
			t.Errorf("New(%q): status %s, want InvalidConfig", config, st)
		}
	}
}

func TestPoolAllocator(t *testing.T) {
	db, st := New(`{"allocators": {
		"key_allocator": "pool",
		"value_allocator": "pool"
	}}`)
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	keys := kv.Wrap([]byte("kv"))
	ksizes := []uint64{2}
	vals := kv.Wrap([]byte("pooled-value"))
	vsizes := []uint64{12}
	if st := db.Put(kv.ModeDefault, keys, ksizes, vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Put failed with status %s", st)
	}
	buf := make([]byte, 16)
	out := kv.Wrap(buf)
	rsizes := []uint64{0}
	if st := db.Get(kv.ModeDefault, true, keys, ksizes, &out, rsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	if string(buf[:out.Size]) != "pooled-value" {
		t.Errorf("got %q, want pooled-value", buf[:out.Size])
	}
}

func TestNoLock(t *testing.T) {
	db, st := New(`{"use_lock": false}`)
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	keys := kv.Wrap([]byte("k"))
	ksizes := []uint64{1}
	vals := kv.Wrap([]byte("v"))
	vsizes := []uint64{1}
	if st := db.Put(kv.ModeDefault, keys, ksizes, vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Put failed with status %s", st)
	}
	if n, st := db.Count(kv.ModeDefault); st != kv.StatusOK || n != 1 {
		t.Errorf("Count = (%d, %s), want (1, OK)", n, st)
	}
}

func TestWaitTimeout(t *testing.T) {
	db, st := New(`{"wait_timeout_ms": 50}`)
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	keys := kv.Wrap([]byte("never"))
	ksizes := []uint64{5}
	buf := make([]byte, 8)
	vals := kv.Wrap(buf)
	vsizes := []uint64{8}
	if st := db.Get(kv.ModeWait, false, keys, ksizes, &vals, vsizes); st != kv.StatusTimedOut {
		t.Errorf("Get(WAIT) on missing key: status %s, want TimedOut", st)
	}
}

func TestListingsNotSupported(t *testing.T) {
	db, st := New("")
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	defer db.Destroy()

	if db.IsSorted() {
		t.Error("mem backend claims to be sorted")
	}
	buf := make([]byte, 16)
	keys := kv.Wrap(buf)
	ksizes := make([]uint64, 2)
	if st := db.ListKeys(kv.ModeDefault, true, nil, nil, &keys, ksizes); st != kv.StatusNotSupported {
		t.Errorf("ListKeys: status %s, want OperationUnsupported", st)
	}
}

func TestRecoverErrors(t *testing.T) {
	dir := t.TempDir()

	// Missing file.
	if _, st := Recover("", "", dir, []string{"no-such-file"}); st != kv.StatusIOError {
		t.Errorf("Recover with missing file: status %s, want IOError", st)
	}

	// Wrong number of files.
	if _, st := Recover("", "", dir, nil); st != kv.StatusInvalidArg {
		t.Errorf("Recover with no files: status %s, want InvalidArgs", st)
	}

	// Truncated record: a key size promising more bytes than the file has.
	trunc := filepath.Join(dir, "truncated")
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], 100)
	if err := os.WriteFile(trunc, append(header[:], 'x'), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, st := Recover("", "", dir, []string{"truncated"}); st != kv.StatusIOError {
		t.Errorf("Recover with truncated file: status %s, want IOError", st)
	}

	// Zero key size marks corruption.
	corrupt := filepath.Join(dir, "corrupt")
	binary.LittleEndian.PutUint64(header[:], 0)
	if err := os.WriteFile(corrupt, header[:], 0o600); err != nil {
		t.Fatal(err)
	}
	if _, st := Recover("", "", dir, []string{"corrupt"}); st != kv.StatusCorruption {
		t.Errorf("Recover with zero key size: status %s, want Corruption", st)
	}
}
