// Package kvtest provides a reusable conformance suite and benchmarks for
// kv.Database implementations. Engine packages run the suite from their own
// tests with a factory creating a fresh backend per subtest.
package kvtest

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/mdorier/mochi-rkv/lib/kv"
)

// Factory creates a new, empty Database instance.
type Factory func() kv.Database

// RunDatabaseTests runs the conformance suite for a Database
// implementation. Subtests that need a feature the backend does not
// advertise (listings, waiting, migration) are skipped.
func RunDatabaseTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("EmptyDatabase", func(t *testing.T) { testEmptyDatabase(t, factory()) })
		t.Run("PutGetRoundTrip", func(t *testing.T) { testPutGetRoundTrip(t, factory()) })
		t.Run("PackedGet", func(t *testing.T) { testPackedGet(t, factory()) })
		t.Run("PackedGetTooSmall", func(t *testing.T) { testPackedGetTooSmall(t, factory()) })
		t.Run("UnpackedLayout", func(t *testing.T) { testUnpackedLayout(t, factory()) })
		t.Run("Length", func(t *testing.T) { testLength(t, factory()) })
		t.Run("Exists", func(t *testing.T) { testExists(t, factory()) })
		t.Run("EraseThenGet", func(t *testing.T) { testEraseThenGet(t, factory()) })
		t.Run("Consume", func(t *testing.T) { testConsume(t, factory()) })
		t.Run("NewOnlyExistOnly", func(t *testing.T) { testNewOnlyExistOnly(t, factory()) })
		t.Run("Append", func(t *testing.T) { testAppend(t, factory()) })
		t.Run("Fetch", func(t *testing.T) { testFetch(t, factory()) })
		t.Run("InvalidArgs", func(t *testing.T) { testInvalidArgs(t, factory()) })
		t.Run("ConfigEcho", func(t *testing.T) { testConfigEcho(t, factory()) })
		t.Run("OrderedListing", func(t *testing.T) { testOrderedListing(t, factory()) })
		t.Run("ListingPrefixPacked", func(t *testing.T) { testListingPrefixPacked(t, factory()) })
		t.Run("ListingModes", func(t *testing.T) { testListingModes(t, factory()) })
		t.Run("ListKeyValues", func(t *testing.T) { testListKeyValues(t, factory()) })
		t.Run("WatcherLiveness", func(t *testing.T) { testWatcherLiveness(t, factory()) })
		t.Run("Migration", func(t *testing.T) { testMigration(t, factory()) })
		t.Run("MigrationCancel", func(t *testing.T) { testMigrationCancel(t, factory()) })
		t.Run("SupportsModeClosure", func(t *testing.T) { testSupportsModeClosure(t, factory()) })
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// pack concatenates items into a single blob with its size vector.
func pack(items ...[]byte) (kv.UserMem, []uint64) {
	var blob []byte
	sizes := make([]uint64, 0, len(items))
	for _, it := range items {
		blob = append(blob, it...)
		sizes = append(sizes, uint64(len(it)))
	}
	return kv.Wrap(blob), sizes
}

// mustPut inserts the pairs and fails the test on a non-OK status.
func mustPut(t testing.TB, db kv.Database, mode kv.Mode, keys, vals [][]byte) {
	t.Helper()
	kmem, ksizes := pack(keys...)
	vmem, vsizes := pack(vals...)
	if st := db.Put(mode, kmem, ksizes, vmem, vsizes); st != kv.StatusOK {
		t.Fatalf("Put failed with status %s", st)
	}
}

// getOne reads a single key with a packed get and the given capacity.
func getOne(t testing.TB, db kv.Database, key []byte, capacity int) ([]byte, uint64) {
	t.Helper()
	kmem, ksizes := pack(key)
	buf := make([]byte, capacity)
	vals := kv.Wrap(buf)
	vsizes := []uint64{0}
	if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	return buf[:vals.Size], vsizes[0]
}

// skipUnlessSorted skips the test when the backend cannot list.
func skipUnlessSorted(t *testing.T, db kv.Database) {
	t.Helper()
	if !db.IsSorted() {
		db.Destroy()
		t.Skip("backend is not sorted")
	}
}

// --------------------------------------------------------------------------
// Basic operations
// --------------------------------------------------------------------------

func testEmptyDatabase(t *testing.T, db kv.Database) {
	defer db.Destroy()

	if n, st := db.Count(kv.ModeDefault); st != kv.StatusOK || n != 0 {
		t.Errorf("Count on empty database: got (%d, %s), want (0, OK)", n, st)
	}

	kmem, ksizes := pack([]byte("x"))
	flags := kv.WrapBits(make([]byte, 1), 1)
	if st := db.Exists(kv.ModeDefault, kmem, ksizes, flags); st != kv.StatusOK {
		t.Fatalf("Exists failed with status %s", st)
	}
	if flags.Get(0) {
		t.Error("Exists on empty database returned true")
	}

	buf := make([]byte, 4)
	vals := kv.Wrap(buf)
	vsizes := []uint64{4}
	if st := db.Get(kv.ModeDefault, false, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	if vsizes[0] != kv.KeyNotFound {
		t.Errorf("Get on missing key: vsizes[0] = %d, want KeyNotFound", vsizes[0])
	}
}

func testPutGetRoundTrip(t *testing.T, db kv.Database) {
	defer db.Destroy()

	keys := [][]byte{[]byte("k"), []byte("binary\x00key"), []byte{0xff, 0xfe}}
	vals := [][]byte{[]byte("value"), {}, []byte("\x00\x01\x02")}
	mustPut(t, db, kv.ModeDefault, keys, vals)

	for i := range keys {
		got, size := getOne(t, db, keys[i], 64)
		if size != uint64(len(vals[i])) {
			t.Errorf("key %q: size = %d, want %d", keys[i], size, len(vals[i]))
		}
		if !bytes.Equal(got, vals[i]) {
			t.Errorf("key %q: value = %q, want %q", keys[i], got, vals[i])
		}
	}

	if n, st := db.Count(kv.ModeDefault); st != kv.StatusOK || n != uint64(len(keys)) {
		t.Errorf("Count = (%d, %s), want (%d, OK)", n, st, len(keys))
	}
}

func testPackedGet(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a"), []byte("bb")},
		[][]byte{[]byte("1"), []byte("22")})

	kmem, ksizes := pack([]byte("a"), []byte("bb"))
	buf := make([]byte, 3)
	vals := kv.Wrap(buf)
	vsizes := make([]uint64, 2)
	if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	if vsizes[0] != 1 || vsizes[1] != 2 {
		t.Errorf("vsizes = %v, want [1 2]", vsizes)
	}
	if vals.Size != 3 {
		t.Errorf("vals.Size = %d, want 3", vals.Size)
	}
	if !bytes.Equal(buf, []byte("122")) {
		t.Errorf("packed values = %q, want %q", buf, "122")
	}
}

func testPackedGetTooSmall(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a"), []byte("bb")},
		[][]byte{[]byte("1"), []byte("22")})

	kmem, ksizes := pack([]byte("a"), []byte("bb"))
	buf := make([]byte, 2)
	vals := kv.Wrap(buf)
	vsizes := make([]uint64, 2)
	if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	if vsizes[0] != 1 {
		t.Errorf("vsizes[0] = %d, want 1", vsizes[0])
	}
	if vsizes[1] != kv.BufTooSmall {
		t.Errorf("vsizes[1] = %d, want BufTooSmall", vsizes[1])
	}
	if vals.Size != 1 {
		t.Errorf("vals.Size = %d, want 1", vals.Size)
	}
}

func testUnpackedLayout(t *testing.T, db kv.Database) {
	defer db.Destroy()

	// A hit that fits, a miss, and a hit that does not fit. The output
	// cursor must advance by the slot capacity in every case.
	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("k1"), []byte("k3")},
		[][]byte{[]byte("aaaa"), []byte("cccccc")})

	kmem, ksizes := pack([]byte("k1"), []byte("k2"), []byte("k3"))
	buf := bytes.Repeat([]byte{0xee}, 10)
	vals := kv.Wrap(buf)
	vsizes := []uint64{4, 4, 2}
	if st := db.Get(kv.ModeDefault, false, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get failed with status %s", st)
	}
	if vsizes[0] != 4 {
		t.Errorf("vsizes[0] = %d, want 4", vsizes[0])
	}
	if vsizes[1] != kv.KeyNotFound {
		t.Errorf("vsizes[1] = %d, want KeyNotFound", vsizes[1])
	}
	if vsizes[2] != kv.BufTooSmall {
		t.Errorf("vsizes[2] = %d, want BufTooSmall", vsizes[2])
	}
	if !bytes.Equal(buf[0:4], []byte("aaaa")) {
		t.Errorf("slot 0 = %q, want %q", buf[0:4], "aaaa")
	}
	// Slots of the miss and the oversize value stay untouched.
	if !bytes.Equal(buf[4:10], bytes.Repeat([]byte{0xee}, 6)) {
		t.Errorf("slots 1 and 2 were written: %v", buf[4:10])
	}
}

func testLength(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a"), []byte("bb")},
		[][]byte{[]byte("1"), []byte("22")})

	kmem, ksizes := pack([]byte("a"), []byte("bb"), []byte("zz"))
	vsizes := make([]uint64, 3)
	if st := db.Length(kv.ModeDefault, kmem, ksizes, vsizes); st != kv.StatusOK {
		t.Fatalf("Length failed with status %s", st)
	}
	if vsizes[0] != 1 || vsizes[1] != 2 {
		t.Errorf("vsizes = %v, want [1 2 ...]", vsizes)
	}
	if vsizes[2] != kv.KeyNotFound {
		t.Errorf("vsizes[2] = %d, want KeyNotFound", vsizes[2])
	}
}

func testExists(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a"), []byte("b")},
		[][]byte{[]byte("1"), []byte("2")})

	kmem, ksizes := pack([]byte("a"), []byte("x"), []byte("b"))
	flags := kv.WrapBits(make([]byte, 1), 3)
	if st := db.Exists(kv.ModeDefault, kmem, ksizes, flags); st != kv.StatusOK {
		t.Fatalf("Exists failed with status %s", st)
	}
	want := []bool{true, false, true}
	for i, w := range want {
		if flags.Get(i) != w {
			t.Errorf("flags[%d] = %v, want %v", i, flags.Get(i), w)
		}
	}

	// A bit field with fewer bits than keys is rejected.
	small := kv.WrapBits(make([]byte, 1), 2)
	if st := db.Exists(kv.ModeDefault, kmem, ksizes, small); st != kv.StatusInvalidArg {
		t.Errorf("Exists with undersized bit field: status %s, want InvalidArgs", st)
	}
}

func testEraseThenGet(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k")}, [][]byte{[]byte("v")})

	kmem, ksizes := pack([]byte("k"))
	if st := db.Erase(kv.ModeDefault, kmem, ksizes); st != kv.StatusOK {
		t.Fatalf("Erase failed with status %s", st)
	}
	_, size := getOne(t, db, []byte("k"), 8)
	if size != kv.KeyNotFound {
		t.Errorf("after erase: size = %d, want KeyNotFound", size)
	}

	// Erasing an absent key is not an error.
	if st := db.Erase(kv.ModeDefault, kmem, ksizes); st != kv.StatusOK {
		t.Errorf("Erase of absent key: status %s, want OK", st)
	}
}

func testConsume(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("k1"), []byte("k2")},
		[][]byte{[]byte("v1"), []byte("v2")})

	kmem, ksizes := pack([]byte("k1"), []byte("k2"), []byte("k3"))
	buf := make([]byte, 16)
	vals := kv.Wrap(buf)
	vsizes := make([]uint64, 3)
	if st := db.Get(kv.ModeConsume, true, kmem, ksizes, &vals, vsizes); st != kv.StatusOK {
		t.Fatalf("Get(CONSUME) failed with status %s", st)
	}
	if !bytes.Equal(buf[:vals.Size], []byte("v1v2")) {
		t.Errorf("consumed values = %q, want %q", buf[:vals.Size], "v1v2")
	}

	// Every found key is gone afterwards.
	for _, k := range [][]byte{[]byte("k1"), []byte("k2")} {
		_, size := getOne(t, db, k, 8)
		if size != kv.KeyNotFound {
			t.Errorf("key %q still present after consume", k)
		}
	}
}

func testNewOnlyExistOnly(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k")}, [][]byte{[]byte("old")})

	// Single-key NEW_ONLY on an existing key reports the collision.
	kmem, ksizes := pack([]byte("k"))
	vmem, vsizes := pack([]byte("new"))
	if st := db.Put(kv.ModeNewOnly, kmem, ksizes, vmem, vsizes); st != kv.StatusKeyExists {
		t.Errorf("single-key Put(NEW_ONLY) on existing key: status %s, want KeyExists", st)
	}
	got, _ := getOne(t, db, []byte("k"), 8)
	if !bytes.Equal(got, []byte("old")) {
		t.Errorf("value changed by rejected NEW_ONLY put: %q", got)
	}

	// Single-key EXIST_ONLY on a missing key reports the absence.
	kmem2, ksizes2 := pack([]byte("missing"))
	if st := db.Put(kv.ModeExistOnly, kmem2, ksizes2, vmem, vsizes); st != kv.StatusNotFound {
		t.Errorf("single-key Put(EXIST_ONLY) on missing key: status %s, want NotFound", st)
	}

	// Batched variants silently skip.
	keys := [][]byte{[]byte("k"), []byte("fresh")}
	vals := [][]byte{[]byte("skipped"), []byte("added")}
	mustPut(t, db, kv.ModeNewOnly, keys, vals)
	got, _ = getOne(t, db, []byte("k"), 16)
	if !bytes.Equal(got, []byte("old")) {
		t.Errorf("batched NEW_ONLY overwrote existing key: %q", got)
	}
	got, _ = getOne(t, db, []byte("fresh"), 16)
	if !bytes.Equal(got, []byte("added")) {
		t.Errorf("batched NEW_ONLY skipped a new key: %q", got)
	}

	keys = [][]byte{[]byte("k"), []byte("ghost")}
	vals = [][]byte{[]byte("updated"), []byte("dropped")}
	mustPut(t, db, kv.ModeExistOnly, keys, vals)
	got, _ = getOne(t, db, []byte("k"), 16)
	if !bytes.Equal(got, []byte("updated")) {
		t.Errorf("batched EXIST_ONLY did not update existing key: %q", got)
	}
	_, size := getOne(t, db, []byte("ghost"), 16)
	if size != kv.KeyNotFound {
		t.Error("batched EXIST_ONLY created a missing key")
	}
}

func testAppend(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeAppend, [][]byte{[]byte("k")}, [][]byte{[]byte("hello")})
	mustPut(t, db, kv.ModeAppend, [][]byte{[]byte("k")}, [][]byte{[]byte("world")})

	got, size := getOne(t, db, []byte("k"), 10)
	if size != 10 || !bytes.Equal(got, []byte("helloworld")) {
		t.Errorf("appended value = %q (size %d), want %q", got, size, "helloworld")
	}
}

func testFetch(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a"), []byte("b")},
		[][]byte{[]byte("1"), []byte("2")})

	kmem, ksizes := pack([]byte("a"), []byte("x"), []byte("b"))
	type item struct {
		key   string
		val   string
		found bool
	}
	var seen []item
	st := db.Fetch(kv.ModeDefault, kmem, ksizes, func(key, val []byte, found bool) kv.Status {
		seen = append(seen, item{string(key), string(val), found})
		return kv.StatusOK
	})
	if st != kv.StatusOK {
		t.Fatalf("Fetch failed with status %s", st)
	}
	want := []item{{"a", "1", true}, {"x", "", false}, {"b", "2", true}}
	if len(seen) != len(want) {
		t.Fatalf("Fetch visited %d items, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("item %d = %+v, want %+v", i, seen[i], want[i])
		}
	}

	// A non-OK callback aborts the batch with that status.
	calls := 0
	st = db.Fetch(kv.ModeDefault, kmem, ksizes, func([]byte, []byte, bool) kv.Status {
		calls++
		return kv.StatusOther
	})
	if st != kv.StatusOther {
		t.Errorf("aborting Fetch returned %s, want Other", st)
	}
	if calls != 1 {
		t.Errorf("aborting callback ran %d times, want 1", calls)
	}
}

func testInvalidArgs(t *testing.T, db kv.Database) {
	defer db.Destroy()

	// Zero-length keys are rejected.
	kmem, ksizes := pack([]byte{})
	vmem, vsizes := pack([]byte("v"))
	if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusInvalidArg {
		t.Errorf("Put with zero-length key: status %s, want InvalidArgs", st)
	}

	// Size vector mismatch is rejected.
	kmem, ksizes = pack([]byte("a"), []byte("b"))
	if st := db.Put(kv.ModeDefault, kmem, ksizes, vmem, vsizes); st != kv.StatusInvalidArg {
		t.Errorf("Put with mismatched size vectors: status %s, want InvalidArgs", st)
	}

	// Sizes overflowing the blob are rejected.
	kmem = kv.Wrap([]byte("ab"))
	if st := db.Erase(kv.ModeDefault, kmem, []uint64{3}); st != kv.StatusInvalidArg {
		t.Errorf("Erase with overflowing key size: status %s, want InvalidArgs", st)
	}
}

func testConfigEcho(t *testing.T, db kv.Database) {
	defer db.Destroy()

	if db.Type() == "" {
		t.Error("Type returned an empty string")
	}
	cfg := db.Config()
	if cfg == "" || cfg[0] != '{' {
		t.Errorf("Config returned %q, want a JSON object", cfg)
	}
}

// --------------------------------------------------------------------------
// Listings
// --------------------------------------------------------------------------

// listKeys collects listed keys as strings, failing on a non-OK status.
func listKeys(t testing.TB, db kv.Database, mode kv.Mode, packed bool,
	fromKey, filter []byte, slots, slotCap int) ([]string, []uint64, uint64) {
	t.Helper()
	buf := make([]byte, slots*slotCap)
	keys := kv.Wrap(buf)
	ksizes := make([]uint64, slots)
	if !packed {
		for i := range ksizes {
			ksizes[i] = uint64(slotCap)
		}
	}
	if st := db.ListKeys(mode, packed, fromKey, filter, &keys, ksizes); st != kv.StatusOK {
		t.Fatalf("ListKeys failed with status %s", st)
	}
	var out []string
	var off uint64
	for i, ks := range ksizes {
		if ks == kv.NoMoreKeys {
			break
		}
		if ks == kv.BufTooSmall || ks == 0 {
			if !packed {
				off += uint64(slotCap)
			}
			continue
		}
		if packed {
			out = append(out, string(buf[off:off+ks]))
			off += ks
		} else {
			out = append(out, string(buf[uint64(i*slotCap):uint64(i*slotCap)+ks]))
		}
	}
	return out, ksizes, keys.Size
}

func testOrderedListing(t *testing.T, db kv.Database) {
	skipUnlessSorted(t, db)
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("aa"), []byte("ab"), []byte("ba"), []byte("bb")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("4")})

	got, _, _ := listKeys(t, db, kv.ModeInclusive, false, []byte("ab"), nil, 8, 8)
	want := []string{"ab", "ba", "bb"}
	if len(got) != len(want) {
		t.Fatalf("inclusive listing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("inclusive listing[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got, _, _ = listKeys(t, db, kv.ModeDefault, false, []byte("ab"), nil, 8, 8)
	want = []string{"ba", "bb"}
	if len(got) != len(want) {
		t.Fatalf("exclusive listing = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("exclusive listing[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got, _, _ = listKeys(t, db, kv.ModeInclusive, false, []byte("ab"), []byte("a"), 8, 8)
	if len(got) != 1 || got[0] != "ab" {
		t.Errorf("prefix listing = %v, want [ab]", got)
	}
}

func testListingPrefixPacked(t *testing.T, db kv.Database) {
	skipUnlessSorted(t, db)
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("apple"), []byte("apricot"), []byte("banana")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3")})

	buf := make([]byte, 20)
	keys := kv.Wrap(buf)
	ksizes := make([]uint64, 3)
	if st := db.ListKeys(kv.ModeDefault, true, nil, []byte("ap"), &keys, ksizes); st != kv.StatusOK {
		t.Fatalf("ListKeys failed with status %s", st)
	}
	if !bytes.Equal(buf[:keys.Size], []byte("appleapricot")) {
		t.Errorf("packed keys = %q, want %q", buf[:keys.Size], "appleapricot")
	}
	if ksizes[0] != 5 || ksizes[1] != 7 {
		t.Errorf("ksizes = %v, want [5 7 ...]", ksizes)
	}
	if ksizes[2] != kv.NoMoreKeys {
		t.Errorf("ksizes[2] = %d, want NoMoreKeys", ksizes[2])
	}
	if keys.Size != 12 {
		t.Errorf("keys.Size = %d, want 12", keys.Size)
	}
}

func testListingModes(t *testing.T, db kv.Database) {
	skipUnlessSorted(t, db)
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("a.log"), []byte("b.dat"), []byte("c.log")},
		[][]byte{[]byte("1"), []byte("2"), []byte("3")})

	// Suffix filtering.
	got, _, _ := listKeys(t, db, kv.ModeSuffix, true, nil, []byte(".log"), 8, 8)
	if len(got) != 2 || got[0] != "a.log" || got[1] != "c.log" {
		t.Errorf("suffix listing = %v, want [a.log c.log]", got)
	}

	// NO_PREFIX disables the filter entirely.
	got, _, _ = listKeys(t, db, kv.ModeNoPrefix, true, nil, []byte(".log"), 8, 8)
	if len(got) != 3 {
		t.Errorf("no-prefix listing = %v, want all 3 keys", got)
	}

	// IGNORE_KEYS writes no key bytes.
	buf := make([]byte, 64)
	keys := kv.Wrap(buf)
	ksizes := make([]uint64, 3)
	if st := db.ListKeys(kv.ModeIgnoreKeys, true, nil, nil, &keys, ksizes); st != kv.StatusOK {
		t.Fatalf("ListKeys(IGNORE_KEYS) failed with status %s", st)
	}
	if keys.Size != 0 {
		t.Errorf("IGNORE_KEYS wrote %d key bytes", keys.Size)
	}
	for i := 0; i < 3; i++ {
		if ksizes[i] != 0 {
			t.Errorf("IGNORE_KEYS ksizes[%d] = %d, want 0", i, ksizes[i])
		}
	}

	// KEEP_LAST still returns the final key.
	keys = kv.Wrap(buf)
	ksizes = make([]uint64, 3)
	if st := db.ListKeys(kv.ModeKeepLast, true, nil, nil, &keys, ksizes); st != kv.StatusOK {
		t.Fatalf("ListKeys(KEEP_LAST) failed with status %s", st)
	}
	if ksizes[0] != 0 || ksizes[1] != 0 {
		t.Errorf("KEEP_LAST ksizes = %v, want leading zeros", ksizes)
	}
	if ksizes[2] != 5 || !bytes.Equal(buf[:keys.Size], []byte("c.log")) {
		t.Errorf("KEEP_LAST kept %q (ksizes %v), want c.log", buf[:keys.Size], ksizes)
	}
}

func testListKeyValues(t *testing.T, db kv.Database) {
	skipUnlessSorted(t, db)
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault,
		[][]byte{[]byte("k1"), []byte("k2"), []byte("k3")},
		[][]byte{[]byte("aa"), []byte("bbb"), []byte("c")})

	kbuf := make([]byte, 32)
	vbuf := make([]byte, 32)
	keys := kv.Wrap(kbuf)
	vals := kv.Wrap(vbuf)
	ksizes := make([]uint64, 4)
	vsizes := make([]uint64, 4)
	st := db.ListKeyValues(kv.ModeDefault, true, nil, nil, &keys, ksizes, &vals, vsizes)
	if st != kv.StatusOK {
		t.Fatalf("ListKeyValues failed with status %s", st)
	}
	if !bytes.Equal(kbuf[:keys.Size], []byte("k1k2k3")) {
		t.Errorf("keys = %q, want k1k2k3", kbuf[:keys.Size])
	}
	if !bytes.Equal(vbuf[:vals.Size], []byte("aabbbc")) {
		t.Errorf("values = %q, want aabbbc", vbuf[:vals.Size])
	}
	if ksizes[3] != kv.NoMoreKeys || vsizes[3] != kv.NoMoreKeys {
		t.Errorf("trailing slots = (%d, %d), want NoMoreKeys", ksizes[3], vsizes[3])
	}
}

// --------------------------------------------------------------------------
// Watcher
// --------------------------------------------------------------------------

func testWatcherLiveness(t *testing.T, db kv.Database) {
	if !db.SupportsMode(kv.ModeWait) {
		db.Destroy()
		t.Skip("backend does not support waiting")
	}
	defer db.Destroy()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	var gotStatus kv.Status
	go func() {
		defer wg.Done()
		kmem, ksizes := pack([]byte("pending"))
		buf := make([]byte, 8)
		vals := kv.Wrap(buf)
		vsizes := make([]uint64, 1)
		gotStatus = db.Get(kv.ModeWait, true, kmem, ksizes, &vals, vsizes)
		got = append([]byte(nil), buf[:vals.Size]...)
	}()

	time.Sleep(50 * time.Millisecond)
	mustPut(t, db, kv.ModeNotify, [][]byte{[]byte("pending")}, [][]byte{[]byte("X")})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiting reader did not wake up")
	}
	if gotStatus != kv.StatusOK {
		t.Fatalf("waiting Get returned %s", gotStatus)
	}
	if !bytes.Equal(got, []byte("X")) {
		t.Errorf("waiting Get read %q, want %q", got, "X")
	}
}

// --------------------------------------------------------------------------
// Migration
// --------------------------------------------------------------------------

func testMigration(t *testing.T, db kv.Database) {
	keys := [][]byte{[]byte("m1"), []byte("m2"), []byte("m3")}
	vals := [][]byte{[]byte("v1"), {}, []byte("a longer value")}
	mustPut(t, db, kv.ModeDefault, keys, vals)

	handle, st := db.StartMigration()
	if st == kv.StatusNotSupported {
		db.Destroy()
		t.Skip("backend does not support migration")
	}
	if st != kv.StatusOK {
		t.Fatalf("StartMigration failed with status %s", st)
	}
	if handle.Root() == "" || len(handle.Files()) == 0 {
		t.Fatalf("migration handle has no files: root %q, files %v", handle.Root(), handle.Files())
	}

	// Recover into a fresh instance while the handle pins the files.
	recovered, st := kv.RecoverDatabase(db.Type(), "{}", "{}", handle.Root(), handle.Files())
	if st != kv.StatusOK {
		t.Fatalf("RecoverDatabase failed with status %s", st)
	}
	defer recovered.Destroy()
	if err := handle.Close(); err != nil {
		t.Fatalf("closing migration handle: %v", err)
	}

	if n, st := recovered.Count(kv.ModeDefault); st != kv.StatusOK || n != uint64(len(keys)) {
		t.Errorf("recovered Count = (%d, %s), want (%d, OK)", n, st, len(keys))
	}
	for i := range keys {
		got, size := getOne(t, recovered, keys[i], 64)
		if size == kv.KeyNotFound {
			t.Errorf("key %q missing after recovery", keys[i])
			continue
		}
		if !bytes.Equal(got, vals[i]) {
			t.Errorf("key %q = %q after recovery, want %q", keys[i], got, vals[i])
		}
	}

	// The source is terminal.
	kmem, ksizes := pack([]byte("m1"))
	buf := make([]byte, 8)
	vmem := kv.Wrap(buf)
	vsizes := make([]uint64, 1)
	if st := db.Get(kv.ModeDefault, true, kmem, ksizes, &vmem, vsizes); st != kv.StatusMigrated {
		t.Errorf("Get on migrated source: status %s, want Migrated", st)
	}
	if _, st := db.StartMigration(); st != kv.StatusMigrated {
		t.Errorf("second StartMigration: status %s, want Migrated", st)
	}
	db.Destroy()
}

func testMigrationCancel(t *testing.T, db kv.Database) {
	defer db.Destroy()

	mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k")}, [][]byte{[]byte("v")})

	handle, st := db.StartMigration()
	if st == kv.StatusNotSupported {
		t.Skip("backend does not support migration")
	}
	if st != kv.StatusOK {
		t.Fatalf("StartMigration failed with status %s", st)
	}
	handle.Cancel()
	if err := handle.Close(); err != nil {
		t.Fatalf("closing canceled handle: %v", err)
	}

	// The backend stays fully usable.
	got, _ := getOne(t, db, []byte("k"), 8)
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("value lost after canceled migration: %q", got)
	}
	mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k2")}, [][]byte{[]byte("v2")})
}

// --------------------------------------------------------------------------
// Mode closure
// --------------------------------------------------------------------------

func testSupportsModeClosure(t *testing.T, db kv.Database) {
	defer db.Destroy()

	// Every advertised mode bit must be accepted by the operations it
	// parameterizes: never StatusInvalidMode.
	mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k")}, [][]byte{[]byte("v")})

	bits := []kv.Mode{
		kv.ModeInclusive, kv.ModeAppend, kv.ModeConsume, kv.ModeWait,
		kv.ModeNewOnly, kv.ModeExistOnly, kv.ModeNoPrefix, kv.ModeIgnoreKeys,
		kv.ModeKeepLast, kv.ModeSuffix, kv.ModeUpdateNew,
	}
	for _, bit := range bits {
		if !db.SupportsMode(bit) {
			continue
		}
		kmem, ksizes := pack([]byte("k"))
		buf := make([]byte, 8)
		vals := kv.Wrap(buf)
		vsizes := []uint64{8}
		if st := db.Get(bit, false, kmem, ksizes, &vals, vsizes); st == kv.StatusInvalidMode {
			t.Errorf("Get with advertised mode %b returned ModeUnsupported", bit)
		}
		// Consume erases the key; put it back for the next round.
		mustPut(t, db, kv.ModeDefault, [][]byte{[]byte("k")}, [][]byte{[]byte("v")})

		if db.IsSorted() {
			kbuf := make([]byte, 32)
			keys := kv.Wrap(kbuf)
			lsizes := make([]uint64, 2)
			if st := db.ListKeys(bit, true, nil, nil, &keys, lsizes); st == kv.StatusInvalidMode {
				t.Errorf("ListKeys with advertised mode %b returned ModeUnsupported", bit)
			}
		}
	}
}
