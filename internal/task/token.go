// Package task provides the cancellation and suspension primitives the
// schedulers are built on: a one-shot cancellation token, a FIFO-fair
// asynchronous lock, and a cancellable sleep.
package task

import "sync"

// Token is a one-shot cooperative cancellation signal. A background
// activity holds a Token for its lifetime; foreground code cancels it to
// ask the activity to stop at its next suspension point. Cancellation is
// only ever observed at suspension resume points, never mid-mutation.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
	callbacks []*tokenCallback
}

type tokenCallback struct {
	fn func()
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancelled returns a token that has already fired. Handlers use it as
// the stand-in for keys that have no running activity.
func Cancelled() *Token {
	t := NewToken()
	t.Cancel()
	return t
}

// Cancel fires the token. The first call runs every registered callback
// synchronously in registration order; later calls are no-ops.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	cbs := t.callbacks
	t.callbacks = nil
	close(t.done)
	t.mu.Unlock()

	for _, cb := range cbs {
		cb.fn()
	}
}

func (t *Token) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done returns a channel that is closed once the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run when the token fires. If the token has
// already fired, fn runs immediately; a callback can never miss the
// signal. The returned func unregisters fn and is a no-op after firing.
func (t *Token) OnCancel(fn func()) (remove func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	cb := &tokenCallback{fn: fn}
	t.callbacks = append(t.callbacks, cb)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, c := range t.callbacks {
			if c == cb {
				t.callbacks = append(t.callbacks[:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}
