package tools

import "sync"

// PathLocker provides per-path mutual exclusion for file writes.
// Each path gets its own mutex, so writes to different files never contend.
type PathLocker struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewPathLocker creates a new PathLocker.
func NewPathLocker() *PathLocker {
	return &PathLocker{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for path, creating it on first use.
func (l *PathLocker) Lock(path string) {
	l.mu.Lock()
	pathLock, exists := l.locks[path]
	if !exists {
		pathLock = &sync.Mutex{}
		l.locks[path] = pathLock
	}
	l.mu.Unlock()

	// Acquire outside the map lock
	pathLock.Lock()
}

// Unlock releases the mutex for path.
func (l *PathLocker) Unlock(path string) {
	l.mu.Lock()
	pathLock, exists := l.locks[path]
	l.mu.Unlock()

	if exists {
		pathLock.Unlock()
	}
}
