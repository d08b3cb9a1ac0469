package leveldb

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/kvtest"
)

func newFactory(t testing.TB, extra string) kvtest.Factory {
	return func() kv.Database {
		dir, err := os.MkdirTemp("", "rkv-leveldb-test-")
		if err != nil {
			t.Fatal(err)
		}
		config := fmt.Sprintf(`{"path": %q, "create_if_missing": true%s}`, dir, extra)
		db, st := New(config)
		if st != kv.StatusOK {
			t.Fatalf("creating backend: %s", st)
		}
		return db
	}
}

func Test(t *testing.T) {
	kvtest.RunDatabaseTests(t, "LevelDB", newFactory(t, `, "wait_timeout_ms": 2000`))
}

func TestWriteBatch(t *testing.T) {
	kvtest.RunDatabaseTests(t, "LevelDB-Batch",
		newFactory(t, `, "write_options": {"use_write_batch": true}`))
}

func Benchmark(b *testing.B) {
	kvtest.RunDatabaseBenchmarks(b, "LevelDB", newFactory(b, ""))
}

func TestConfigDefaults(t *testing.T) {
	db := newFactory(t, "")()
	defer db.Destroy()

	var cfg map[string]any
	if err := json.Unmarshal([]byte(db.Config()), &cfg); err != nil {
		t.Fatalf("Config() is not valid JSON: %v", err)
	}
	checks := map[string]any{
		"error_if_exists":        false,
		"paranoid_checks":        false,
		"write_buffer_size":      float64(4 * 1024 * 1024),
		"max_open_files":         float64(1000),
		"block_size":             float64(4096),
		"block_restart_interval": float64(16),
		"max_file_size":          float64(2 * 1024 * 1024),
		"reuse_logs":             false,
		"compression":            true,
	}
	for key, want := range checks {
		if cfg[key] != want {
			t.Errorf("%s = %v, want %v", key, cfg[key], want)
		}
	}
	ro, ok := cfg["read_options"].(map[string]any)
	if !ok || ro["verify_checksums"] != false || ro["fill_cache"] != true {
		t.Errorf("read_options = %v, want defaults", cfg["read_options"])
	}
	wo, ok := cfg["write_options"].(map[string]any)
	if !ok || wo["sync"] != false || wo["use_write_batch"] != false {
		t.Errorf("write_options = %v, want defaults", cfg["write_options"])
	}
}

func TestMissingPath(t *testing.T) {
	if _, st := New(`{}`); st != kv.StatusInvalidConf {
		t.Errorf("New without path: status %s, want InvalidConfig", st)
	}
}

func TestErrorIfMissing(t *testing.T) {
	dir, err := os.MkdirTemp("", "rkv-leveldb-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	// create_if_missing defaults to false and the directory holds no
	// database yet.
	config := fmt.Sprintf(`{"path": %q}`, dir+"/db")
	if _, st := New(config); st == kv.StatusOK {
		t.Error("opening a missing database without create_if_missing succeeded")
	}
}

func TestDestroyRemovesFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "rkv-leveldb-test-")
	if err != nil {
		t.Fatal(err)
	}
	path := dir + "/db"
	config := fmt.Sprintf(`{"path": %q, "create_if_missing": true}`, path)
	db, st := New(config)
	if st != kv.StatusOK {
		t.Fatalf("creating backend: %s", st)
	}
	if st := db.Destroy(); st != kv.StatusOK {
		t.Fatalf("Destroy failed with status %s", st)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("database files still present after Destroy: %v", err)
	}
	os.RemoveAll(dir)
}
