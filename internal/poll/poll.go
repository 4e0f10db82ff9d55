// Package poll implements a bounded polling loop with stall detection,
// shared by funding confirmation and receipt tracking.
package poll

import (
	"context"
	"time"
)

// Status is the terminal state of a polling loop.
type Status int

const (
	// Complete means the check reported zero remaining work.
	Complete Status = iota
	// Stalled means remaining work stopped shrinking for StallLimit consecutive polls.
	Stalled
	// TimedOut means the deadline elapsed with work remaining.
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Stalled:
		return "stalled"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Config controls a polling loop.
type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	StallLimit int // consecutive no-progress polls before giving up; 0 disables
}

// Until polls check until it reports zero remaining work, progress stalls,
// or the timeout elapses. The check runs once immediately, then on every
// interval tick. A check error counts as a no-progress poll; the last error
// is returned alongside the status so partial results stay usable.
func Until(ctx context.Context, cfg Config, check func(ctx context.Context) (remaining int, err error)) (Status, error) {
	deadline := time.Now().Add(cfg.Timeout)
	lastRemaining := -1
	stalls := 0
	var lastErr error

	for {
		remaining, err := check(ctx)
		if err != nil {
			lastErr = err
			stalls++
		} else {
			if remaining == 0 {
				return Complete, nil
			}
			if lastRemaining >= 0 && remaining >= lastRemaining {
				stalls++
			} else {
				stalls = 0
			}
			lastRemaining = remaining
		}

		if cfg.StallLimit > 0 && stalls >= cfg.StallLimit {
			return Stalled, lastErr
		}
		if !time.Now().Add(cfg.Interval).Before(deadline) {
			return TimedOut, lastErr
		}

		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
