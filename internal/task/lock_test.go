package task

import (
	"context"
	"sync"
	"testing"
	"time"
)

func (l *Lock) waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func waitForWaiters(t *testing.T, l *Lock, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for l.waiters() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters, have %d", n, l.waiters())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLockExclusion(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	var mu sync.Mutex
	holders := 0
	peak := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			holders++
			if holders > peak {
				peak = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("observed %d concurrent holders, want 1", peak)
	}
}

func TestLockFIFO(t *testing.T) {
	l := NewLock()
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	const n = 5
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			order <- i
			l.Release()
		}()
		waitForWaiters(t, l, i+1)
	}

	l.Release()
	for want := 0; want < n; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("waiter %d ran before waiter %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never ran", want)
		}
	}
}

func TestLockAcquireAbandoned(t *testing.T) {
	l := NewLock()
	bg := context.Background()

	if err := l.Acquire(bg); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(bg)
	errCh := make(chan error, 1)
	go func() { errCh <- l.Acquire(ctx) }()
	waitForWaiters(t, l, 1)
	cancel()

	if err := <-errCh; err == nil {
		t.Fatalf("abandoned waiter should see context error")
	}

	// A later waiter must still get the lock past the abandoned slot.
	got := make(chan struct{})
	go func() {
		if err := l.Acquire(bg); err != nil {
			t.Errorf("acquire: %v", err)
			return
		}
		close(got)
	}()
	waitForWaiters(t, l, 2)

	l.Release()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("live waiter never acquired after abandoned one")
	}
	l.Release()

	// Lock is free again.
	if err := l.Acquire(bg); err != nil {
		t.Fatalf("acquire after drain: %v", err)
	}
	l.Release()
}
