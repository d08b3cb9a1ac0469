package alloc

import "testing"

func TestDefaultAllocator(t *testing.T) {
	a, err := New("default", "")
	if err != nil {
		t.Fatal(err)
	}
	b := a.Alloc(16)
	if len(b) != 16 {
		t.Errorf("Alloc(16) returned %d bytes", len(b))
	}
	a.Free(b)
	a.Finalize()
}

func TestUnknownAllocator(t *testing.T) {
	if _, err := New("no-such-allocator", ""); err == nil {
		t.Error("unknown allocator name accepted")
	}
}

func TestPoolAllocator(t *testing.T) {
	a, err := New("pool", "{}")
	if err != nil {
		t.Fatal(err)
	}

	sizes := []int{1, 31, 32, 33, 100, 4096, 10000}
	for _, n := range sizes {
		b := a.Alloc(n)
		if len(b) != n {
			t.Errorf("Alloc(%d) returned %d bytes", n, len(b))
		}
		for i := range b {
			b[i] = byte(i)
		}
		a.Free(b)
	}

	// Recycled buffers keep the requested length.
	b := a.Alloc(20)
	if len(b) != 20 {
		t.Errorf("recycled Alloc(20) returned %d bytes", len(b))
	}
	a.Finalize()
}

func TestRegisterCustom(t *testing.T) {
	type marker struct{ systemAllocator }
	Register("custom-test", func(string) (Allocator, error) {
		return marker{}, nil
	})
	a, err := New("custom-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.(marker); !ok {
		t.Error("custom factory not used")
	}
}
