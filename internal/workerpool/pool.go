// Package workerpool runs a bounded set of workers over an indexed work list.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Run starts up to workers goroutines that drain items [0, n) through a
// shared atomically incremented index, calling fn for each claimed index.
// Workers stop claiming new items once ctx is cancelled; items already
// claimed still run. Blocks until all workers finish.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	var next atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := next.Add(1) - 1
				if i >= int64(n) {
					return
				}
				fn(ctx, int(i))
			}
		}()
	}

	wg.Wait()
}
