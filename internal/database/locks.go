package database

import (
	"fmt"
	"sync"
	"time"
)

// fileLock serialises transactions on one database file within the process.
type fileLock struct {
	sem  chan struct{}
	key  string
	refs int
}

func newFileLock(key string) *fileLock {
	return &fileLock{key: key, sem: make(chan struct{}, 1)}
}

// lock waits at most timeout for the file lock and fails with
// ErrLockTimeout when it is still held by another Connection.
func (l *fileLock) lock(timeout time.Duration) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	if timeout <= 0 {
		return ErrLockTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrLockTimeout, timeout)
	}
}

func (l *fileLock) unlock() {
	<-l.sem
}

type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*fileLock
}

// fileLocks is shared by every Connection of the process; entries live as
// long as a Connection references them.
var fileLocks = &lockRegistry{locks: make(map[string]*fileLock)}

// acquire returns the lock for key, creating it on first use. In-memory
// databases are private to their connection and get an unshared lock.
func (r *lockRegistry) acquire(t target) *fileLock {
	if t.memory {
		return newFileLock("")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[t.path]
	if !ok {
		l = newFileLock(t.path)
		r.locks[t.path] = l
	}
	l.refs++
	return l
}

func (r *lockRegistry) release(l *fileLock) {
	if l == nil || l.key == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l.refs--
	if l.refs <= 0 {
		delete(r.locks, l.key)
	}
}

func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
