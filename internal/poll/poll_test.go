package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntilCompletes(t *testing.T) {
	remaining := 3
	status, err := Until(context.Background(), Config{
		Interval: time.Millisecond,
		Timeout:  time.Second,
	}, func(ctx context.Context) (int, error) {
		remaining--
		return remaining, nil
	})

	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
	if status != Complete {
		t.Errorf("status = %v, want Complete", status)
	}
}

func TestUntilTimesOut(t *testing.T) {
	status, err := Until(context.Background(), Config{
		Interval: time.Millisecond,
		Timeout:  20 * time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		return 5, nil
	})

	if status != TimedOut {
		t.Errorf("status = %v, want TimedOut", status)
	}
	if err != nil {
		t.Errorf("Until() error = %v, want nil when checks succeeded", err)
	}
}

func TestUntilStalls(t *testing.T) {
	status, _ := Until(context.Background(), Config{
		Interval:   time.Millisecond,
		Timeout:    time.Second,
		StallLimit: 3,
	}, func(ctx context.Context) (int, error) {
		return 5, nil // never makes progress
	})

	if status != Stalled {
		t.Errorf("status = %v, want Stalled", status)
	}
}

func TestUntilStallLimitDisabled(t *testing.T) {
	calls := 0
	status, _ := Until(context.Background(), Config{
		Interval: time.Millisecond,
		Timeout:  30 * time.Millisecond,
		// StallLimit zero: only the timeout ends a no-progress run
	}, func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})

	if status != TimedOut {
		t.Errorf("status = %v, want TimedOut", status)
	}
	if calls < 5 {
		t.Errorf("check ran %d times, expected it to keep polling", calls)
	}
}

func TestUntilCheckErrorCountsAsNoProgress(t *testing.T) {
	status, _ := Until(context.Background(), Config{
		Interval:   time.Millisecond,
		Timeout:    time.Second,
		StallLimit: 2,
	}, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})

	if status != Stalled {
		t.Errorf("status = %v, want Stalled (check errors are no-progress polls)", status)
	}
}

func TestUntilProgressResetsStallCount(t *testing.T) {
	remaining := 10
	status, err := Until(context.Background(), Config{
		Interval:   time.Millisecond,
		Timeout:    time.Second,
		StallLimit: 3,
	}, func(ctx context.Context) (int, error) {
		remaining -= 2
		if remaining < 0 {
			remaining = 0
		}
		return remaining, nil
	})

	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
	if status != Complete {
		t.Errorf("status = %v, want Complete", status)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Complete, "complete"},
		{Stalled, "stalled"},
		{TimedOut, "timed_out"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
