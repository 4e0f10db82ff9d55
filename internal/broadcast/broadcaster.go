package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txblast/internal/metrics"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/internal/signer"
	"github.com/gateway-fm/txblast/internal/workerpool"
	"github.com/gateway-fm/txblast/pkg/types"
)

// Accepted records one transaction the endpoint accepted.
type Accepted struct {
	Hash   string
	Sender common.Address
	Seq    int
	Type   types.TxType
}

// Result is the outcome of draining the whole envelope queue.
type Result struct {
	Accepted    []Accepted
	Success     int
	Failure     int
	ErrorCounts map[types.ErrorClass]int
	Start       time.Time
	End         time.Time
}

// Duration returns the broadcast wall-clock span.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Broadcaster drains envelopes through a bounded worker pool.
// Sends are fire-and-forget: no retries, and a rejection never stops a worker.
type Broadcaster struct {
	client  rpc.Client
	workers int
	prom    *metrics.PrometheusMetrics // optional
	logger  *slog.Logger
}

// New creates a broadcaster with the given worker count.
func New(client rpc.Client, workers int, prom *metrics.PrometheusMetrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		client:  client,
		workers: workers,
		prom:    prom,
		logger:  logger,
	}
}

// Send broadcasts every envelope and returns the accounting.
// Success + Failure always equals len(envelopes).
func (b *Broadcaster) Send(ctx context.Context, envelopes []signer.Envelope) *Result {
	outcomes := make([]*Accepted, len(envelopes))
	classes := make([]types.ErrorClass, len(envelopes))
	var success, failure metrics.Counter

	b.logger.Info("Broadcasting transactions",
		slog.Int("count", len(envelopes)),
		slog.Int("workers", b.workers),
	)

	start := time.Now()
	workerpool.Run(ctx, b.workers, len(envelopes), func(ctx context.Context, i int) {
		env := envelopes[i]

		sendStart := time.Now()
		hash, err := b.client.SendRawTransaction(ctx, env.Raw)
		if b.prom != nil {
			b.prom.RecordBroadcastLatency(time.Since(sendStart))
		}

		if err != nil {
			class := Classify(err)
			classes[i] = class
			failure.Inc()
			if b.prom != nil {
				b.prom.RecordTxFailed(string(env.Type))
				b.prom.RecordError(string(class))
			}
			return
		}

		if hash == "" {
			hash = env.Hash // some nodes return an empty result on accept
		}
		outcomes[i] = &Accepted{
			Hash:   hash,
			Sender: env.Sender,
			Seq:    env.Seq,
			Type:   env.Type,
		}
		success.Inc()
		if b.prom != nil {
			b.prom.RecordTxAccepted(string(env.Type))
		}
	})
	end := time.Now()

	result := &Result{
		Success:     int(success.Load()),
		Failure:     int(failure.Load()),
		ErrorCounts: make(map[types.ErrorClass]int),
		Start:       start,
		End:         end,
	}
	// Cancellation can leave unclaimed envelopes with no outcome; count them
	// as timeouts so the totals still add up.
	for i := range envelopes {
		if outcomes[i] != nil {
			result.Accepted = append(result.Accepted, *outcomes[i])
			continue
		}
		class := classes[i]
		if class == "" {
			class = types.ErrTimeout
		}
		result.ErrorCounts[class]++
	}
	result.Failure = len(envelopes) - result.Success

	b.logger.Info("Broadcast complete",
		slog.Int("accepted", result.Success),
		slog.Int("failed", result.Failure),
		slog.Duration("elapsed", result.Duration()),
	)
	return result
}
