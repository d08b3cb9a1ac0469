package kvtest

import (
	"fmt"
	"testing"

	"github.com/mdorier/mochi-rkv/lib/kv"
)

// RunDatabaseBenchmarks runs a benchmark suite for a Database
// implementation.
func RunDatabaseBenchmarks(b *testing.B, name string, factory Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory())
		})
		b.Run("PutExisting", func(b *testing.B) {
			benchmarkPutExisting(b, factory())
		})
		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})
		b.Run("GetBatch16", func(b *testing.B) {
			benchmarkGetBatch(b, factory(), 16)
		})
		b.Run("Erase", func(b *testing.B) {
			benchmarkErase(b, factory())
		})
	})
}

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("bench-key-%08d", i))
}

var benchValue = []byte("benchmark-value-0123456789abcdef")

func benchmarkPut(b *testing.B, db kv.Database) {
	defer db.Destroy()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		kmem, ksizes := pack(benchKey(i))
		vmem, vsizes := pack(benchValue)
		if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
			b.Fatalf("Put failed with status %s", st)
		}
	}
}

func benchmarkPutExisting(b *testing.B, db kv.Database) {
	defer db.Destroy()
	kmem, ksizes := pack(benchKey(0))
	vmem, vsizes := pack(benchValue)
	if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
		b.Fatalf("Put failed with status %s", st)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
			b.Fatalf("Put failed with status %s", st)
		}
	}
}

func benchmarkGet(b *testing.B, db kv.Database) {
	defer db.Destroy()
	const preload = 1024
	for i := 0; i < preload; i++ {
		kmem, ksizes := pack(benchKey(i))
		vmem, vsizes := pack(benchValue)
		if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
			b.Fatalf("Put failed with status %s", st)
		}
	}
	buf := make([]byte, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		kmem, ksizes := pack(benchKey(i % preload))
		vals := kv.Wrap(buf)
		vsizes := []uint64{0}
		if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
			b.Fatalf("Get failed with status %s", st)
		}
	}
}

func benchmarkGetBatch(b *testing.B, db kv.Database, batch int) {
	defer db.Destroy()
	for i := 0; i < batch; i++ {
		kmem, ksizes := pack(benchKey(i))
		vmem, vsizes := pack(benchValue)
		if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
			b.Fatalf("Put failed with status %s", st)
		}
	}
	items := make([][]byte, batch)
	for i := range items {
		items[i] = benchKey(i)
	}
	kmem, ksizes := pack(items...)
	buf := make([]byte, batch*64)
	vsizes := make([]uint64, batch)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vals := kv.Wrap(buf)
		if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
			b.Fatalf("Get failed with status %s", st)
		}
	}
}

func benchmarkErase(b *testing.B, db kv.Database) {
	defer db.Destroy()
	for i := 0; i < b.N; i++ {
		kmem, ksizes := pack(benchKey(i))
		vmem, vsizes := pack(benchValue)
		if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
			b.Fatalf("Put failed with status %s", st)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		kmem, ksizes := pack(benchKey(i))
		if st := db.Erase(kv.ModeDefault, kmem, ksizes); st != kv.StatusOK {
			b.Fatalf("Erase failed with status %s", st)
		}
	}
}
