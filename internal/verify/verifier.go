// Package verify cross-checks claimed broadcast results against chain state
// and computes throughput from two independent time bases.
package verify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gateway-fm/txblast/internal/broadcast"
	"github.com/gateway-fm/txblast/internal/payload"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/internal/workerpool"
	"github.com/gateway-fm/txblast/pkg/types"
)

// SampleSize is how many receipts the spread check inspects.
const SampleSize = 10

// Verifier checks claimed results against chain state. Verification reads
// the chain but never writes, so running it twice on the same inputs yields
// the same report.
type Verifier struct {
	client      rpc.Client
	concurrency int
	logger      *slog.Logger
}

// New creates a verifier.
func New(client rpc.Client, concurrency int, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Input is everything verification needs; the verifier adds nothing of its own.
type Input struct {
	Accepted      []broadcast.Accepted
	Receipts      map[string]*rpc.TransactionReceipt
	Expected      *payload.Expected
	BroadcastSpan time.Duration
	FullVerify    bool
}

// Verify runs block-inclusion and sample checks (plus full per-tx checks
// when requested) and reports dual time-base throughput.
func (v *Verifier) Verify(ctx context.Context, in Input) *types.VerifyReport {
	report := &types.VerifyReport{
		Mismatches:      make(map[types.MismatchReason]int),
		ConfirmedByType: make(map[types.TxType]int),
	}
	if len(in.Accepted) == 0 {
		return report
	}

	// Receipt-derived counts
	confirmedHashes := make(map[string]bool, len(in.Receipts))
	minBlock, maxBlock := uint64(0), uint64(0)
	for _, a := range in.Accepted {
		r := in.Receipts[a.Hash]
		if r == nil || r.BlockNumber == 0 {
			continue
		}
		if r.Status == 1 {
			report.Confirmed++
			report.ConfirmedByType[a.Type]++
			confirmedHashes[strings.ToLower(a.Hash)] = true
		} else {
			report.Reverted++
		}
		if minBlock == 0 || r.BlockNumber < minBlock {
			minBlock = r.BlockNumber
		}
		if r.BlockNumber > maxBlock {
			maxBlock = r.BlockNumber
		}
	}

	claimed := make(map[string]bool, len(in.Accepted))
	for _, a := range in.Accepted {
		claimed[strings.ToLower(a.Hash)] = false
	}

	var minTs, maxTs time.Time
	if minBlock > 0 {
		blocks := v.fetchBlockRange(ctx, minBlock, maxBlock)
		for _, b := range blocks {
			if b == nil {
				continue
			}
			ours := 0
			for _, h := range b.Transactions {
				if _, ok := claimed[strings.ToLower(h)]; ok {
					claimed[strings.ToLower(h)] = true
					ours++
				}
			}
			report.Blocks = append(report.Blocks, types.BlockStat{
				Number:    b.Number,
				Timestamp: b.Timestamp,
				TxCount:   b.TxCount,
				Ours:      ours,
				GasUsed:   b.GasUsed,
			})
			if minTs.IsZero() || b.Timestamp.Before(minTs) {
				minTs = b.Timestamp
			}
			if b.Timestamp.After(maxTs) {
				maxTs = b.Timestamp
			}
		}
	}

	for _, found := range claimed {
		if found {
			report.Included++
		}
	}
	report.Missing = len(in.Accepted) - report.Included

	// Evenly-spread sample over the receipts we actually have
	withReceipts := make([]broadcast.Accepted, 0, len(in.Receipts))
	for _, a := range in.Accepted {
		if in.Receipts[a.Hash] != nil {
			withReceipts = append(withReceipts, a)
		}
	}
	v.sampleCheck(ctx, in.Expected, withReceipts, report)

	if in.FullVerify {
		v.fullCheck(ctx, in.Expected, withReceipts, report)
	}

	// Throughput from both time bases. The block span uses block timestamps,
	// the wall-clock span uses the caller-measured broadcast window.
	blockSpan := maxTs.Sub(minTs).Seconds()
	report.BlockTPS = throughput("block", blockSpan, report.Included, report.Confirmed)
	report.WallClockTPS = throughput("wallclock", in.BroadcastSpan.Seconds(), report.Included, report.Confirmed)

	v.logger.Info("Verification complete",
		slog.Int("included", report.Included),
		slog.Int("confirmed", report.Confirmed),
		slog.Int("reverted", report.Reverted),
		slog.Int("missing", report.Missing),
		slog.Int("sampleChecked", report.SampleChecked),
		slog.Int("samplePassed", report.SamplePassed),
	)
	return report
}

// fetchBlockRange pulls [minBlock..maxBlock] hashes-only in batched chunks.
func (v *Verifier) fetchBlockRange(ctx context.Context, minBlock, maxBlock uint64) []*rpc.Block {
	const batch = 50
	nums := make([]uint64, 0, maxBlock-minBlock+1)
	for n := minBlock; n <= maxBlock; n++ {
		nums = append(nums, n)
	}

	blocks := make([]*rpc.Block, 0, len(nums))
	for start := 0; start < len(nums); start += batch {
		chunk := nums[start:min(start+batch, len(nums))]
		result, err := v.client.GetBlocksByNumberBatch(ctx, chunk)
		if err != nil {
			// Fall back to individual fetches when the node rejects batches
			v.logger.Debug("batch block fetch failed, falling back", slog.String("err", err.Error()))
			for _, n := range chunk {
				b, err := v.client.GetBlockByNumber(ctx, n)
				if err != nil {
					v.logger.Debug("block fetch failed", slog.Uint64("block", n), slog.String("err", err.Error()))
					continue
				}
				blocks = append(blocks, b)
			}
			continue
		}
		blocks = append(blocks, result...)
	}
	return blocks
}

// sampleCheck verifies SampleSize receipts evenly spread across the set.
func (v *Verifier) sampleCheck(ctx context.Context, expected *payload.Expected, accepted []broadcast.Accepted, report *types.VerifyReport) {
	if len(accepted) == 0 {
		return
	}

	n := min(SampleSize, len(accepted))
	stride := len(accepted) / n

	for i := 0; i < n; i++ {
		a := accepted[i*stride]
		reason, ok := v.checkTransaction(ctx, expected, a)
		report.SampleChecked++
		if ok {
			report.SamplePassed++
		} else {
			report.Mismatches[reason]++
		}
	}
}

// fullCheck runs the per-transaction checks over every receipt through the
// worker pool. Its pass count supersedes the inclusion count.
func (v *Verifier) fullCheck(ctx context.Context, expected *payload.Expected, accepted []broadcast.Accepted, report *types.VerifyReport) {
	passed := make([]bool, len(accepted))
	reasons := make([]types.MismatchReason, len(accepted))

	workerpool.Run(ctx, v.concurrency, len(accepted), func(ctx context.Context, i int) {
		reason, ok := v.checkTransaction(ctx, expected, accepted[i])
		passed[i] = ok
		reasons[i] = reason
	})

	verified := 0
	for i := range accepted {
		if passed[i] {
			verified++
		} else {
			report.Mismatches[reasons[i]]++
		}
	}

	report.FullyVerified = true
	report.Included = verified
}

// checkTransaction fetches a transaction and its receipt and asserts the
// run's expectations: known sender, expected recipient and value for the
// type, success status, positive block number.
func (v *Verifier) checkTransaction(ctx context.Context, expected *payload.Expected, a broadcast.Accepted) (types.MismatchReason, bool) {
	tx, err := v.client.GetTransactionByHash(ctx, a.Hash)
	if err != nil || tx == nil {
		return types.MismatchNotFound, false
	}
	if tx.BlockNumber == 0 {
		return types.MismatchUnmined, false
	}

	receipt, err := v.client.GetTransactionReceipt(ctx, a.Hash)
	if err != nil || receipt == nil {
		return types.MismatchNotFound, false
	}
	if receipt.Status != 1 || receipt.BlockNumber == 0 {
		return types.MismatchStatus, false
	}

	if !strings.EqualFold(tx.From, a.Sender.Hex()) {
		return types.MismatchFrom, false
	}
	if _, known := expected.Senders[a.Sender]; !known {
		return types.MismatchFrom, false
	}

	wantTo := expected.ExpectedTo(a.Type)
	if !strings.EqualFold(tx.To, wantTo.Hex()) {
		return types.MismatchTo, false
	}

	wantValue := expected.ExpectedValue(a.Type)
	if tx.Value == nil || tx.Value.Cmp(wantValue) != 0 {
		return types.MismatchValue, false
	}

	return "", true
}

func throughput(base string, spanSeconds float64, included, confirmed int) types.Throughput {
	t := types.Throughput{TimeBase: base, SpanSeconds: spanSeconds}
	if spanSeconds <= 0 {
		// Single-block or sub-second runs: report counts over one second
		spanSeconds = 1
	}
	t.IncludedTPS = float64(included) / spanSeconds
	t.ConfirmedTPS = float64(confirmed) / spanSeconds
	return t
}
