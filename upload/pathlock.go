package upload

import "sync"

// pathLocks hands out one mutex per resolved file path so appends to the same
// file never interleave, while unrelated files write fully in parallel.
// Entries are refcounted and removed once the last holder releases, so the
// map does not grow with upload history.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// acquire blocks until the lock for key is held and returns its release
// function. Release is safe to call exactly once.
func (p *pathLocks) acquire(key string) func() {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
