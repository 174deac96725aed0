package task

import (
	"context"
	"time"
)

// SleepFor suspends for d, or until tok fires, or until ctx is done,
// whichever comes first. A nil tok gives a plain delay. The caller is
// expected to check tok.IsCancelled after resuming, before mutating any
// persisted state.
func SleepFor(ctx context.Context, d time.Duration, tok *Token) error {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	var cancelled <-chan struct{}
	if tok != nil {
		cancelled = tok.Done()
	}

	select {
	case <-timer.C:
		return nil
	case <-cancelled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SleepUntil suspends until deadline, tok firing, or ctx being done,
// whichever comes first. A deadline in the past resumes immediately.
func SleepUntil(ctx context.Context, deadline time.Time, tok *Token) error {
	return SleepFor(ctx, time.Until(deadline), tok)
}
