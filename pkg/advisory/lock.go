// Package advisory provides the cooperative lock shared by scrubbers
// and mutators of a memory region. Scrubbers never wait for it, they
// skip their turn; mutators wait with a deadline.
package advisory

import (
	"context"
	"sync"
)

// Lock is an advisory lock. The zero value is unlocked.
type Lock struct {
	once sync.Once
	ch   chan struct{}
}

func (l *Lock) token() chan struct{} {
	l.once.Do(func() {
		l.ch = make(chan struct{}, 1)
	})
	return l.ch
}

// TryLock acquires the lock without blocking.
func (l *Lock) TryLock() bool {
	select {
	case l.token() <- struct{}{}:
		return true
	default:
		return false
	}
}

// LockContext waits for the lock until ctx is done.
func (l *Lock) LockContext(ctx context.Context) error {
	select {
	case l.token() <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock. It panics if the lock is not held.
func (l *Lock) Unlock() {
	select {
	case <-l.token():
	default:
		panic("advisory: unlock of unlocked lock")
	}
}
