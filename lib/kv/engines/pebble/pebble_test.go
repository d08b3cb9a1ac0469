package pebble

import (
	"fmt"
	"os"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/kvtest"
)

func newFactory(t testing.TB, extra string) kvtest.Factory {
	return func() kv.Database {
		dir, err := os.MkdirTemp("", "rkv-pebble-test-")
		if err != nil {
			t.Fatal(err)
		}
		config := fmt.Sprintf(`{"path": %q%s}`, dir+"/db", extra)
		db, st := New(config)
		if st != kv.StatusOK {
			t.Fatalf("creating backend: %s", st)
		}
		return db
	}
}

func Test(t *testing.T) {
	kvtest.RunDatabaseTests(t, "Pebble", newFactory(t, ""))
}

func TestPerItemWrites(t *testing.T) {
	kvtest.RunDatabaseTests(t, "Pebble-NoBatch", newFactory(t, `, "use_write_batch": false`))
}

func Benchmark(b *testing.B) {
	kvtest.RunDatabaseBenchmarks(b, "Pebble", newFactory(b, ""))
}

func TestMissingPath(t *testing.T) {
	if _, st := New(`{}`); st != kv.StatusInvalidConf {
		t.Errorf("New without path: status %s, want InvalidConfig", st)
	}
}

func TestInvalidConfig(t *testing.T) {
	for _, config := range []string{
		`not json`,
		`{"path": "/tmp/x", "cache_size": "big"}`,
		`{"path": 42}`,
	} {
		if _, st := New(config); st != kv.StatusInvalidConf {
			t.Errorf("New(%q): status %s, want InvalidConfig", config, st)
		}
	}
}
