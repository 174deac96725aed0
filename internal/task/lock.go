package task

import (
	"context"
	"sync"
)

// Lock is a FIFO-fair asynchronous mutex. Unlike sync.Mutex it hands the
// lock to waiters in arrival order, and a waiter can give up through its
// context. One process-wide Lock serializes all interaction handling,
// the scheduler loop bodies, and the shutdown sequence.
type Lock struct {
	mu     sync.Mutex
	locked bool
	queue  []*waiter
}

type waiter struct {
	ready     chan struct{}
	abandoned bool
}

func NewLock() *Lock {
	return &Lock{}
}

// Acquire suspends the caller until it is the exclusive holder or ctx is
// done. Acquire is not re-entrant: acquiring twice from the same logical
// owner deadlocks.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-w.ready:
		// Handed the lock in the same instant the context fired; keep
		// it so acquire/release stay balanced.
		l.mu.Unlock()
		return nil
	default:
	}
	w.abandoned = true
	l.mu.Unlock()
	return ctx.Err()
}

// Release hands the lock to the oldest live waiter, or frees it. It must
// be called exactly once per successful Acquire; unbalanced calls
// corrupt the lock state and are not defended against.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) > 0 {
		w := l.queue[0]
		l.queue = l.queue[1:]
		if w.abandoned {
			continue
		}
		close(w.ready)
		return
	}
	l.locked = false
}
