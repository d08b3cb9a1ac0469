package memdb

import "sync"

// optLock is a reader/writer lock that can be disabled for single-threaded
// deployments (use_lock=false). With a nil mutex every method is a no-op,
// mirroring the null-lock handling of engines that make locking optional.
type optLock struct {
	mu *sync.RWMutex
}

func newOptLock(enabled bool) optLock {
	if !enabled {
		return optLock{}
	}
	return optLock{mu: &sync.RWMutex{}}
}

func (l optLock) RLock() {
	if l.mu != nil {
		l.mu.RLock()
	}
}

func (l optLock) RUnlock() {
	if l.mu != nil {
		l.mu.RUnlock()
	}
}

func (l optLock) Lock() {
	if l.mu != nil {
		l.mu.Lock()
	}
}

func (l optLock) Unlock() {
	if l.mu != nil {
		l.mu.Unlock()
	}
}
