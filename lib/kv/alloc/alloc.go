// Package alloc provides the pluggable allocators used by the in-memory
// backends for their key and value buffers. Allocators are registered by
// name in a process-wide registry and instantiated from a JSON
// configuration string, so a backend configuration can select a different
// allocation strategy per component (keys, values, scratch buffers).
package alloc

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Allocator hands out byte buffers for backend-owned copies of keys and
// values. Free returns a buffer obtained from Alloc; Finalize releases any
// resources the allocator holds once the backend is destroyed.
type Allocator interface {
	Alloc(n int) []byte
	Free(b []byte)
	Finalize()
}

// Factory builds an allocator from an allocator-specific JSON
// configuration string.
type Factory func(config string) (Allocator, error)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

var factories = xsync.NewMapOf[string, Factory]()

// Register makes an allocator factory available under the given name.
func Register(name string, f Factory) {
	factories.Store(name, f)
}

// New instantiates the named allocator with its configuration string.
// Unknown names yield an error.
func New(name, config string) (Allocator, error) {
	f, ok := factories.Load(name)
	if !ok {
		return nil, fmt.Errorf("unknown allocator %q", name)
	}
	return f(config)
}

func init() {
	Register("default", func(string) (Allocator, error) {
		return systemAllocator{}, nil
	})
	Register("pool", func(string) (Allocator, error) {
		return newPoolAllocator(), nil
	})
}

// --------------------------------------------------------------------------
// System Allocator
// --------------------------------------------------------------------------

// systemAllocator is the default allocator: plain make, garbage-collected
// frees.
type systemAllocator struct{}

func (systemAllocator) Alloc(n int) []byte { return make([]byte, n) }
func (systemAllocator) Free([]byte)        {}
func (systemAllocator) Finalize()          {}

// --------------------------------------------------------------------------
// Pool Allocator
// --------------------------------------------------------------------------

// poolAllocator recycles buffers through size-classed sync.Pools. Buffers
// larger than the biggest class fall back to the system allocator.
type poolAllocator struct {
	pools [poolClasses]*sync.Pool
}

const (
	poolClasses  = 8
	poolMinShift = 5 // smallest class: 32 bytes
)

func newPoolAllocator() *poolAllocator {
	a := &poolAllocator{}
	for i := 0; i < poolClasses; i++ {
		size := 1 << (poolMinShift + i)
		a.pools[i] = &sync.Pool{
			New: func() any { return make([]byte, size) },
		}
	}
	return a
}

// class returns the pool index able to hold n bytes, or -1 for oversized
// requests.
func (a *poolAllocator) class(n int) int {
	for i := 0; i < poolClasses; i++ {
		if n <= 1<<(poolMinShift+i) {
			return i
		}
	}
	return -1
}

func (a *poolAllocator) Alloc(n int) []byte {
	c := a.class(n)
	if c < 0 {
		return make([]byte, n)
	}
	return a.pools[c].Get().([]byte)[:n]
}

func (a *poolAllocator) Free(b []byte) {
	c := a.class(cap(b))
	if c < 0 || cap(b) != 1<<(poolMinShift+c) {
		return
	}
	a.pools[c].Put(b[:cap(b)])
}

func (a *poolAllocator) Finalize() {
	for i := range a.pools {
		a.pools[i] = nil
	}
}
