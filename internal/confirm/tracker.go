// Package confirm polls receipts for broadcast-accepted transactions.
package confirm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gateway-fm/txblast/internal/broadcast"
	"github.com/gateway-fm/txblast/internal/metrics"
	"github.com/gateway-fm/txblast/internal/poll"
	"github.com/gateway-fm/txblast/internal/rpc"
)

const (
	pollInterval = 500 * time.Millisecond
	chunkSize    = 200 // hashes per batch request
)

// Tracker polls receipts in batched rounds until every accepted transaction
// has one or the timeout elapses. Partial results are valid.
type Tracker struct {
	client      rpc.Client
	concurrency int
	prom        *metrics.PrometheusMetrics // optional
	logger      *slog.Logger
}

// New creates a tracker. concurrency bounds the batch requests in flight
// per polling round.
func New(client rpc.Client, concurrency int, prom *metrics.PrometheusMetrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		client:      client,
		concurrency: concurrency,
		prom:        prom,
		logger:      logger,
	}
}

// Wait polls until all accepted hashes have receipts or timeout elapses.
// Returns whatever receipts were collected, keyed by hash.
func (t *Tracker) Wait(ctx context.Context, accepted []broadcast.Accepted, timeout time.Duration) map[string]*rpc.TransactionReceipt {
	receipts := make(map[string]*rpc.TransactionReceipt, len(accepted))
	if len(accepted) == 0 {
		return receipts
	}

	pending := make(map[string]struct{}, len(accepted))
	for _, a := range accepted {
		pending[a.Hash] = struct{}{}
	}

	t.logger.Info("Waiting for receipts",
		slog.Int("count", len(pending)),
		slog.Duration("timeout", timeout),
	)

	var mu sync.Mutex
	status, err := poll.Until(ctx, poll.Config{
		Interval: pollInterval,
		Timeout:  timeout,
	}, func(ctx context.Context) (int, error) {
		hashes := make([]string, 0, len(pending))
		for h := range pending {
			hashes = append(hashes, h)
		}

		// Fan the pending set out in fixed-size chunks, bounded concurrent
		chunks := make([][]string, 0, (len(hashes)+chunkSize-1)/chunkSize)
		for start := 0; start < len(hashes); start += chunkSize {
			chunks = append(chunks, hashes[start:min(start+chunkSize, len(hashes))])
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, t.concurrency)
		for _, chunk := range chunks {
			wg.Add(1)
			go func(chunk []string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				results, err := t.client.GetTransactionReceiptsBatch(ctx, chunk)
				if err != nil {
					t.logger.Debug("receipt batch failed", slog.String("err", err.Error()))
					return
				}
				mu.Lock()
				for i, r := range results {
					if r == nil {
						continue
					}
					receipts[chunk[i]] = r
					delete(pending, chunk[i])
					if t.prom != nil {
						t.prom.RecordReceipt(r.Status == 1)
					}
				}
				mu.Unlock()
			}(chunk)
		}
		wg.Wait()

		return len(pending), nil
	})

	if status != poll.Complete {
		t.logger.Warn("Receipt wait ended early",
			slog.String("status", status.String()),
			slog.Int("unconfirmed", len(pending)),
			slog.Any("err", err),
		)
	}

	t.logger.Info("Receipt collection done",
		slog.Int("confirmed", len(receipts)),
		slog.Int("pending", len(pending)),
	)
	return receipts
}
