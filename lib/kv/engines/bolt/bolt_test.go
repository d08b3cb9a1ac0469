package bolt

import (
	"fmt"
	"os"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
	"github.com/mdorier/mochi-rkv/lib/kv/kvtest"
)

func newFactory(t testing.TB) kvtest.Factory {
	return func() kv.Database {
		dir, err := os.MkdirTemp("", "rkv-bolt-test-")
		if err != nil {
			t.Fatal(err)
		}
		config := fmt.Sprintf(`{"path": %q}`, dir+"/data.db")
		db, st := New(config)
		if st != kv.StatusOK {
			t.Fatalf("creating backend: %s", st)
		}
		return db
	}
}

func Test(t *testing.T) {
	kvtest.RunDatabaseTests(t, "Bolt", newFactory(t))
}

func Benchmark(b *testing.B) {
	kvtest.RunDatabaseBenchmarks(b, "Bolt", newFactory(b))
}

func TestMissingPath(t *testing.T) {
	if _, st := New(`{}`); st != kv.StatusInvalidConf {
		t.Errorf("New without path: status %s, want InvalidConfig", st)
	}
}

func TestNoWaitSupport(t *testing.T) {
	db := newFactory(t)()
	defer db.Destroy()

	if db.SupportsMode(kv.ModeWait) {
		t.Error("bolt backend advertises ModeWait")
	}
	keys := kv.Wrap([]byte("k"))
	buf := make([]byte, 8)
	vals := kv.Wrap(buf)
	if st := db.Get(kv.ModeWait, true, keys, []uint64{1}, &vals, []uint64{0}); st != kv.StatusInvalidMode {
		t.Errorf("Get(WAIT): status %s, want ModeUnsupported", st)
	}
}

func TestMigrationNotSupported(t *testing.T) {
	db := newFactory(t)()
	defer db.Destroy()

	if _, st := db.StartMigration(); st != kv.StatusNotSupported {
		t.Errorf("StartMigration: status %s, want OperationUnsupported", st)
	}
}
