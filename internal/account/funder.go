package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/txblast/internal/contract"
	"github.com/gateway-fm/txblast/internal/poll"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/internal/workerpool"
)

const (
	fundingTimeout    = 2 * time.Minute
	fundingInterval   = 500 * time.Millisecond
	fundingStallLimit = 20 // consecutive polls without a new nonzero balance
)

// Funder creates and funds ephemeral sender accounts from a single funder key.
type Funder struct {
	funder   *Account
	client   rpc.Client
	chainID  *big.Int
	gasPrice *big.Int
	logger   *slog.Logger
}

// NewFunder creates a funder around the given account.
func NewFunder(client rpc.Client, funder *Account, chainID, gasPrice *big.Int, logger *slog.Logger) *Funder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Funder{
		funder:   funder,
		client:   client,
		chainID:  chainID,
		gasPrice: gasPrice,
		logger:   logger,
	}
}

// Account returns the funder account itself.
func (f *Funder) Account() *Account {
	return f.funder
}

// CreateSenders generates count fresh keypairs using parallel key generation.
func (f *Funder) CreateSenders(count int) ([]*Account, error) {
	senders := make([]*Account, count)

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > 16 {
		numWorkers = 16 // Diminishing returns beyond this
	}

	f.logger.Info("Generating sender accounts",
		slog.Int("count", count),
		slog.Int("workers", numWorkers),
	)

	var wg sync.WaitGroup
	errChan := make(chan error, numWorkers)
	workSize := (count + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * workSize
		end := min(start+workSize, count)
		if start >= count {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				privateKey, err := crypto.GenerateKey()
				if err != nil {
					select {
					case errChan <- fmt.Errorf("key %d: %w", i, err):
					default:
					}
					return
				}
				senders[i] = NewAccount(privateKey)
			}
		}(start, end)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}

	return senders, nil
}

// Fund sends amount of native currency to each sender and waits for the
// balances to land. All funder nonces are reserved and every transaction is
// signed before the first broadcast, so the funder's nonce sequence stays
// gapless even when individual sends fail. Returns the subset of senders
// whose balance became nonzero; the caller decides whether a partial set
// is enough to proceed.
func (f *Funder) Fund(ctx context.Context, senders []*Account, amount *big.Int, concurrency int) ([]*Account, error) {
	if len(senders) == 0 {
		return nil, nil
	}

	if err := f.funder.ResyncFromChain(ctx, f.client); err != nil {
		return nil, fmt.Errorf("resync funder nonce: %w", err)
	}

	// Use a high tip so funding txs are included ahead of the run's own txs
	fundingTip := big.NewInt(1000 * 1e9) // 1000 gwei
	signer := types.LatestSignerForChainID(f.chainID)

	raws := make([][]byte, len(senders))
	for i, recipient := range senders {
		n := f.funder.ReserveNonce()

		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   f.chainID,
			Nonce:     n.Value(),
			GasTipCap: fundingTip,
			GasFeeCap: new(big.Int).Add(f.gasPrice, fundingTip),
			Gas:       contract.TransferGasLimit,
			To:        &recipient.Address,
			Value:     amount,
		})

		signed, err := types.SignTx(tx, signer, f.funder.PrivateKey)
		if err != nil {
			n.Rollback()
			return nil, fmt.Errorf("sign funding tx %d: %w", i, err)
		}

		data, err := signed.MarshalBinary()
		if err != nil {
			n.Rollback()
			return nil, fmt.Errorf("encode funding tx %d: %w", i, err)
		}

		n.Commit()
		raws[i] = data
	}

	f.logger.Info("Broadcasting funding transactions",
		slog.Int("count", len(raws)),
		slog.Int("concurrency", concurrency),
	)

	sent := make([]bool, len(senders))
	var sentCount atomic.Int32
	workerpool.Run(ctx, concurrency, len(raws), func(ctx context.Context, i int) {
		if _, err := f.client.SendRawTransaction(ctx, raws[i]); err != nil {
			f.logger.Warn("Failed to fund account",
				slog.Int("idx", i),
				slog.String("err", err.Error()))
			return
		}
		sent[i] = true
		sentCount.Add(1)
	})

	if sentCount.Load() == 0 {
		return nil, fmt.Errorf("no funding transactions accepted")
	}

	f.logger.Info("Funding transactions sent, waiting for balances",
		slog.Int("sent", int(sentCount.Load())),
	)

	funded := f.waitForBalances(ctx, senders, sent)

	f.logger.Info("Account funding complete",
		slog.Int("funded", len(funded)),
		slog.Int("requested", len(senders)),
	)
	return funded, nil
}

// waitForBalances polls recipient balances in batches until every
// broadcast-successful recipient has a nonzero balance, progress stalls,
// or the timeout elapses. Returns the funded subset in sender order.
func (f *Funder) waitForBalances(ctx context.Context, senders []*Account, sent []bool) []*Account {
	pending := make(map[int]struct{})
	addrs := make([]string, len(senders))
	for i, acc := range senders {
		addrs[i] = acc.Address.Hex()
		if sent[i] {
			pending[i] = struct{}{}
		}
	}

	status, err := poll.Until(ctx, poll.Config{
		Interval:   fundingInterval,
		Timeout:    fundingTimeout,
		StallLimit: fundingStallLimit,
	}, func(ctx context.Context) (int, error) {
		batch := make([]int, 0, len(pending))
		batchAddrs := make([]string, 0, len(pending))
		for i := range pending {
			batch = append(batch, i)
			batchAddrs = append(batchAddrs, addrs[i])
		}

		balances, err := f.client.GetBalancesBatch(ctx, batchAddrs)
		if err != nil {
			return len(pending), err
		}

		for j, bal := range balances {
			if bal != nil && bal.Sign() > 0 {
				delete(pending, batch[j])
			}
		}
		return len(pending), nil
	})

	if status != poll.Complete {
		f.logger.Warn("Balance wait ended early",
			slog.String("status", status.String()),
			slog.Int("unfunded", len(pending)),
			slog.Any("err", err),
		)
	}

	funded := make([]*Account, 0, len(senders))
	for i, acc := range senders {
		if !sent[i] {
			continue
		}
		if _, still := pending[i]; still {
			continue
		}
		funded = append(funded, acc)
	}
	return funded
}

// FundToken sends amount of an ERC-20 token to each sender using sequential
// funder nonces, then waits for the funder's confirmed nonce to catch up.
func (f *Funder) FundToken(ctx context.Context, senders []*Account, token common.Address, amount *big.Int, concurrency int) error {
	if len(senders) == 0 {
		return nil
	}

	if err := f.funder.ResyncFromChain(ctx, f.client); err != nil {
		return fmt.Errorf("resync funder nonce: %w", err)
	}
	startNonce := f.funder.PeekNonce()

	signer := types.LatestSignerForChainID(f.chainID)

	raws := make([][]byte, len(senders))
	for i, recipient := range senders {
		n := f.funder.ReserveNonce()

		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   f.chainID,
			Nonce:     n.Value(),
			GasTipCap: big.NewInt(1e9),
			GasFeeCap: f.gasPrice,
			Gas:       contract.ERC20GasLimit,
			To:        &token,
			Value:     big.NewInt(0),
			Data:      contract.EncodeTransfer(recipient.Address, amount),
		})

		signed, err := types.SignTx(tx, signer, f.funder.PrivateKey)
		if err != nil {
			n.Rollback()
			return fmt.Errorf("sign token transfer %d: %w", i, err)
		}
		data, err := signed.MarshalBinary()
		if err != nil {
			n.Rollback()
			return fmt.Errorf("encode token transfer %d: %w", i, err)
		}
		n.Commit()
		raws[i] = data
	}

	var sentCount atomic.Int32
	workerpool.Run(ctx, concurrency, len(raws), func(ctx context.Context, i int) {
		if _, err := f.client.SendRawTransaction(ctx, raws[i]); err != nil {
			f.logger.Warn("Failed to send token transfer",
				slog.Int("idx", i),
				slog.String("err", err.Error()))
			return
		}
		sentCount.Add(1)
	})

	expected := startNonce + uint64(len(senders))
	if err := f.waitForConfirmedNonce(ctx, f.funder.Address.Hex(), expected); err != nil {
		f.logger.Warn("Token funding confirmation incomplete", slog.String("err", err.Error()))
	}

	f.logger.Info("Token funding complete",
		slog.Int("sent", int(sentCount.Load())),
		slog.Int("requested", len(senders)),
	)
	return nil
}

// ApproveRouter has every sender approve the router for the token, each with
// its own nonce, then waits for the approvals to confirm.
func (f *Funder) ApproveRouter(ctx context.Context, senders []*Account, token, router common.Address, concurrency int) error {
	if len(senders) == 0 {
		return nil
	}

	signer := types.LatestSignerForChainID(f.chainID)

	raws := make([][]byte, len(senders))
	expected := make([]uint64, len(senders))
	for i, sender := range senders {
		n := sender.ReserveNonce()

		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   f.chainID,
			Nonce:     n.Value(),
			GasTipCap: big.NewInt(1e9),
			GasFeeCap: f.gasPrice,
			Gas:       contract.ApproveGasLimit,
			To:        &token,
			Value:     big.NewInt(0),
			Data:      contract.EncodeApprove(router, contract.MaxUint256),
		})

		signed, err := types.SignTx(tx, signer, sender.PrivateKey)
		if err != nil {
			n.Rollback()
			return fmt.Errorf("sign approval %d: %w", i, err)
		}
		data, err := signed.MarshalBinary()
		if err != nil {
			n.Rollback()
			return fmt.Errorf("encode approval %d: %w", i, err)
		}
		n.Commit()
		raws[i] = data
		expected[i] = n.Value() + 1
	}

	workerpool.Run(ctx, concurrency, len(raws), func(ctx context.Context, i int) {
		if _, err := f.client.SendRawTransaction(ctx, raws[i]); err != nil {
			f.logger.Warn("Failed to send approval",
				slog.Int("idx", i),
				slog.String("err", err.Error()))
		}
	})

	if err := f.waitForSenderNonces(ctx, senders, expected); err != nil {
		f.logger.Warn("Approval confirmation incomplete", slog.String("err", err.Error()))
	}
	return nil
}

// waitForConfirmedNonce polls the confirmed nonce of a single address until
// it reaches expected or the funding timeout elapses.
func (f *Funder) waitForConfirmedNonce(ctx context.Context, address string, expected uint64) error {
	status, err := poll.Until(ctx, poll.Config{
		Interval:   fundingInterval,
		Timeout:    fundingTimeout,
		StallLimit: fundingStallLimit,
	}, func(ctx context.Context) (int, error) {
		nonce, err := f.client.GetConfirmedNonce(ctx, address)
		if err != nil {
			return 1, err
		}
		if nonce >= expected {
			return 0, nil
		}
		return int(expected - nonce), nil
	})
	if status != poll.Complete {
		return fmt.Errorf("nonce confirmation %s: %w", status, err)
	}
	return nil
}

// waitForSenderNonces polls confirmed nonces for all senders in one batch
// request per round until every sender reached its expected nonce.
func (f *Funder) waitForSenderNonces(ctx context.Context, senders []*Account, expected []uint64) error {
	pending := make(map[int]struct{}, len(senders))
	for i := range senders {
		pending[i] = struct{}{}
	}

	status, err := poll.Until(ctx, poll.Config{
		Interval:   fundingInterval,
		Timeout:    fundingTimeout,
		StallLimit: fundingStallLimit,
	}, func(ctx context.Context) (int, error) {
		batch := make([]int, 0, len(pending))
		calls := make([]rpc.BatchRequest, 0, len(pending))
		for i := range pending {
			batch = append(batch, i)
			calls = append(calls, rpc.BatchRequest{
				Method: "eth_getTransactionCount",
				Params: []interface{}{senders[i].Address.Hex(), "latest"},
			})
		}

		responses, err := f.client.BatchCall(ctx, calls)
		if err != nil {
			return len(pending), err
		}

		for j, resp := range responses {
			if resp.Error != nil {
				continue
			}
			var nonceHex string
			if err := json.Unmarshal(resp.Result, &nonceHex); err != nil {
				continue
			}
			nonce, err := hexutil.DecodeUint64(nonceHex)
			if err != nil {
				continue
			}
			if nonce >= expected[batch[j]] {
				delete(pending, batch[j])
			}
		}
		return len(pending), nil
	})
	if status != poll.Complete {
		return fmt.Errorf("approval confirmation %s: %w", status, err)
	}
	return nil
}
