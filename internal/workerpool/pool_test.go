package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestRunClaimsEveryIndexOnce(t *testing.T) {
	const n = 1000
	seen := make([]atomic.Int32, n)

	Run(context.Background(), 8, n, func(ctx context.Context, i int) {
		seen[i].Add(1)
	})

	for i := range seen {
		if got := seen[i].Load(); got != 1 {
			t.Fatalf("index %d claimed %d times, want 1", i, got)
		}
	}
}

func TestRunClampsWorkerCount(t *testing.T) {
	var calls atomic.Int32

	// More workers than items and a nonpositive worker count both work
	Run(context.Background(), 100, 3, func(ctx context.Context, i int) {
		calls.Add(1)
	})
	Run(context.Background(), 0, 3, func(ctx context.Context, i int) {
		calls.Add(1)
	})

	if got := calls.Load(); got != 6 {
		t.Errorf("fn called %d times, want 6", got)
	}
}

func TestRunZeroItems(t *testing.T) {
	called := false
	Run(context.Background(), 4, 0, func(ctx context.Context, i int) {
		called = true
	})
	if called {
		t.Error("fn should not run for zero items")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	Run(ctx, 4, 1000, func(ctx context.Context, i int) {
		calls.Add(1)
	})

	if got := calls.Load(); got == 1000 {
		t.Error("expected cancellation to leave work unclaimed")
	}
}
