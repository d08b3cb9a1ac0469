package kv

import (
	"bytes"
	"testing"
)

func emitAll(e *ListEmitter, pairs ...[2][]byte) {
	for _, p := range pairs {
		if e.Full() {
			return
		}
		e.Emit(p[0], p[1])
	}
}

func TestEmitterPackedKeys(t *testing.T) {
	buf := make([]byte, 8)
	keys := Wrap(buf)
	ksizes := make([]uint64, 4)
	e := NewListEmitter(ModeDefault, true, &keys, ksizes, nil, nil)

	emitAll(e,
		[2][]byte{[]byte("aa"), nil},
		[2][]byte{[]byte("bbbb"), nil},
		[2][]byte{[]byte("cccc"), nil}) // does not fit: 2+4+4 > 8
	e.Finish()

	if !bytes.Equal(buf[:keys.Size], []byte("aabbbb")) {
		t.Errorf("packed keys = %q, want aabbbb", buf[:keys.Size])
	}
	if ksizes[0] != 2 || ksizes[1] != 4 {
		t.Errorf("ksizes = %v, want [2 4 ...]", ksizes)
	}
	if ksizes[2] != BufTooSmall {
		t.Errorf("ksizes[2] = %d, want BufTooSmall", ksizes[2])
	}
	if ksizes[3] != NoMoreKeys {
		t.Errorf("ksizes[3] = %d, want NoMoreKeys", ksizes[3])
	}
}

func TestEmitterPackedTooSmallIsSticky(t *testing.T) {
	buf := make([]byte, 4)
	keys := Wrap(buf)
	ksizes := make([]uint64, 3)
	e := NewListEmitter(ModeDefault, true, &keys, ksizes, nil, nil)

	emitAll(e,
		[2][]byte{[]byte("aaa"), nil},
		[2][]byte{[]byte("bbbb"), nil}, // 3+4 > 4: too small
		[2][]byte{[]byte("c"), nil})    // would fit, but the failure sticks
	e.Finish()

	if ksizes[0] != 3 {
		t.Errorf("ksizes[0] = %d, want 3", ksizes[0])
	}
	if ksizes[1] != BufTooSmall || ksizes[2] != BufTooSmall {
		t.Errorf("ksizes = %v, want sticky BufTooSmall", ksizes)
	}
	if keys.Size != 3 {
		t.Errorf("keys.Size = %d, want 3", keys.Size)
	}
}

func TestEmitterUnpackedSlots(t *testing.T) {
	buf := bytes.Repeat([]byte{0xee}, 12)
	keys := Wrap(buf)
	ksizes := []uint64{4, 4, 4}
	e := NewListEmitter(ModeDefault, false, &keys, ksizes, nil, nil)

	emitAll(e,
		[2][]byte{[]byte("aa"), nil},
		[2][]byte{[]byte("toolong"), nil},
		[2][]byte{[]byte("cc"), nil})
	e.Finish()

	if ksizes[0] != 2 || ksizes[1] != BufTooSmall || ksizes[2] != 2 {
		t.Errorf("ksizes = %v, want [2 BufTooSmall 2]", ksizes)
	}
	// Slot layout is fixed: item 2 sits at offset 8 regardless of item 1.
	if !bytes.Equal(buf[0:2], []byte("aa")) || !bytes.Equal(buf[8:10], []byte("cc")) {
		t.Errorf("slot contents = %q", buf)
	}
	if keys.Size != 12 {
		t.Errorf("keys.Size = %d, want 12 (sum of capacities)", keys.Size)
	}
}

func TestEmitterKeyValues(t *testing.T) {
	kbuf := make([]byte, 8)
	vbuf := make([]byte, 8)
	keys := Wrap(kbuf)
	vals := Wrap(vbuf)
	ksizes := make([]uint64, 2)
	vsizes := make([]uint64, 2)
	e := NewListEmitter(ModeDefault, true, &keys, ksizes, &vals, vsizes)

	emitAll(e,
		[2][]byte{[]byte("k1"), []byte("v1")},
		[2][]byte{[]byte("k2"), []byte("v2")})
	e.Finish()

	if !bytes.Equal(kbuf[:keys.Size], []byte("k1k2")) {
		t.Errorf("keys = %q", kbuf[:keys.Size])
	}
	if !bytes.Equal(vbuf[:vals.Size], []byte("v1v2")) {
		t.Errorf("values = %q", vbuf[:vals.Size])
	}
}

func TestEmitterIgnoreKeys(t *testing.T) {
	kbuf := make([]byte, 8)
	vbuf := make([]byte, 8)
	keys := Wrap(kbuf)
	vals := Wrap(vbuf)
	ksizes := make([]uint64, 2)
	vsizes := make([]uint64, 2)
	e := NewListEmitter(ModeIgnoreKeys, true, &keys, ksizes, &vals, vsizes)

	emitAll(e,
		[2][]byte{[]byte("k1"), []byte("v1")},
		[2][]byte{[]byte("k2"), []byte("v2")})
	e.Finish()

	if keys.Size != 0 {
		t.Errorf("keys.Size = %d, want 0", keys.Size)
	}
	if ksizes[0] != 0 || ksizes[1] != 0 {
		t.Errorf("ksizes = %v, want zeros", ksizes)
	}
	if !bytes.Equal(vbuf[:vals.Size], []byte("v1v2")) {
		t.Errorf("values = %q, want v1v2", vbuf[:vals.Size])
	}
}

func TestEmitterKeepLast(t *testing.T) {
	buf := make([]byte, 8)
	keys := Wrap(buf)
	ksizes := make([]uint64, 3)
	e := NewListEmitter(ModeKeepLast, true, &keys, ksizes, nil, nil)

	emitAll(e,
		[2][]byte{[]byte("k1"), nil},
		[2][]byte{[]byte("k2"), nil},
		[2][]byte{[]byte("last"), nil})
	e.Finish()

	if ksizes[0] != 0 || ksizes[1] != 0 {
		t.Errorf("ksizes = %v, want leading zeros", ksizes)
	}
	if ksizes[2] != 4 {
		t.Errorf("ksizes[2] = %d, want 4", ksizes[2])
	}
	if !bytes.Equal(buf[:keys.Size], []byte("last")) {
		t.Errorf("kept key = %q, want last", buf[:keys.Size])
	}
}

func TestFilterMatch(t *testing.T) {
	cases := []struct {
		mode    Mode
		pattern string
		key     string
		want    bool
	}{
		{ModeDefault, "", "anything", true},
		{ModeDefault, "ap", "apple", true},
		{ModeDefault, "ap", "banana", false},
		{ModeDefault, "longer-than-key", "k", false},
		{ModeSuffix, ".log", "a.log", true},
		{ModeSuffix, ".log", "a.dat", false},
		{ModeNoPrefix, "ap", "banana", true},
		{ModeNoPrefix | ModeSuffix, ".log", "a.dat", true},
	}
	for _, c := range cases {
		f := NewListFilter(c.mode, []byte(c.pattern))
		if got := f.Match([]byte(c.key)); got != c.want {
			t.Errorf("Match(mode=%b, pattern=%q, key=%q) = %v, want %v",
				c.mode, c.pattern, c.key, got, c.want)
		}
	}
}
