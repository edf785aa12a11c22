package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor(t *testing.T) {
	original := newTimer
	t.Cleanup(func() { newTimer = original })

	var waited time.Duration
	newTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
		waited = d
		fired := make(chan time.Time, 1)
		fired <- time.Time{}
		return fired, func() bool { return false }
	}

	if err := WaitFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 3*time.Second {
		t.Fatalf("expected a 3s retry delay, got %v", waited)
	}

	waited = 0
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected zero wait to return immediately, got %v", err)
	}
	if waited != 0 {
		t.Fatalf("expected no timer for a zero wait, got %v", waited)
	}
}

func TestWaitForCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if err := WaitFor(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a canceled run to stop before the next attempt, got %v", err)
	}
}
