// Package payload turns a requested transaction mix into concrete,
// fully-parameterized transaction intents.
package payload

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/internal/contract"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/pkg/types"
)

// Intent is one transaction waiting to be signed. Everything the signer
// needs is resolved here; the signer never touches the chain.
type Intent struct {
	Seq      int
	Type     types.TxType
	Sender   *account.Account
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	Data     []byte
}

// Expected captures what verification should find on chain for each
// transaction type generated in this run.
type Expected struct {
	Senders map[common.Address]struct{}
	Sink    common.Address // native transfer recipient
	Value   *big.Int       // per-tx native value
	Token   common.Address
	Router  common.Address
}

// ExpectedTo returns the recipient the verifier should see for a tx type.
func (e *Expected) ExpectedTo(t types.TxType) common.Address {
	switch t {
	case types.TxTypeTokenTransfer:
		return e.Token
	case types.TxTypeSwap:
		return e.Router
	default:
		return e.Sink
	}
}

// ExpectedValue returns the native value the verifier should see for a tx type.
func (e *Expected) ExpectedValue(t types.TxType) *big.Int {
	if t == types.TxTypeTransfer {
		return e.Value
	}
	return big.NewInt(0)
}

// Config holds generation parameters.
type Config struct {
	TxCount     int
	Mix         types.Mix
	Value       *big.Int // native value per transfer
	GasBuffer   float64  // fee multiplier, must be > 1.0
	Token       common.Address
	Router      common.Address
	SecondToken common.Address
}

// Generator builds the intent list for a run.
type Generator struct {
	client rpc.Client
	cfg    Config
	logger *slog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(client rpc.Client, cfg Config, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, cfg: cfg, logger: logger}
}

// NormalizeMix scales the raw mix percentages so they sum to exactly 100.
// The rounding remainder goes to the largest share.
func NormalizeMix(m types.Mix) (types.Mix, error) {
	total := m.Total()
	if total <= 0 {
		return types.Mix{}, fmt.Errorf("mix percentages sum to %d, need > 0", total)
	}
	if m.Transfer < 0 || m.TokenTransfer < 0 || m.Swap < 0 {
		return types.Mix{}, fmt.Errorf("mix percentages must be non-negative")
	}
	if total == 100 {
		return m, nil
	}

	shares := [3]int{m.Transfer, m.TokenTransfer, m.Swap}
	scaled := [3]int{}
	sum := 0
	for i, s := range shares {
		scaled[i] = s * 100 / total
		sum += scaled[i]
	}

	// Assign the remainder to the largest share
	largest := 0
	for i := 1; i < 3; i++ {
		if shares[i] > shares[largest] {
			largest = i
		}
	}
	scaled[largest] += 100 - sum

	return types.Mix{Transfer: scaled[0], TokenTransfer: scaled[1], Swap: scaled[2]}, nil
}

// CountsFor converts a normalized mix into per-type counts summing to txCount.
// Counts may differ by one from exact proportions; the remainder goes to the
// largest share.
func CountsFor(txCount int, m types.Mix) [3]int {
	shares := [3]int{m.Transfer, m.TokenTransfer, m.Swap}
	counts := [3]int{}
	sum := 0
	for i, s := range shares {
		counts[i] = txCount * s / 100
		sum += counts[i]
	}

	largest := 0
	for i := 1; i < 3; i++ {
		if shares[i] > shares[largest] {
			largest = i
		}
	}
	counts[largest] += txCount - sum
	return counts
}

// typeSequence spreads the per-type counts across the whole run instead of
// emitting them in blocks, using error diffusion over the counts.
func typeSequence(txCount int, counts [3]int) []types.TxType {
	order := [3]types.TxType{types.TxTypeTransfer, types.TxTypeTokenTransfer, types.TxTypeSwap}
	seq := make([]types.TxType, 0, txCount)
	acc := [3]float64{}

	remaining := counts
	for len(seq) < txCount {
		best := -1
		for i := range acc {
			if remaining[i] == 0 {
				continue
			}
			acc[i] += float64(counts[i])
			if best < 0 || acc[i] > acc[best] {
				best = i
			}
		}
		acc[best] -= float64(txCount)
		remaining[best]--
		seq = append(seq, order[best])
	}
	return seq
}

// Generate emits exactly cfg.TxCount intents, round-robin across senders and
// interleaved by type, with strictly sequential per-sender nonces and one
// buffered fee estimate shared by every intent. The returned Expected set
// feeds verification.
func (g *Generator) Generate(ctx context.Context, senders []*account.Account) ([]Intent, *Expected, *big.Int, error) {
	if g.cfg.TxCount <= 0 {
		return nil, nil, nil, fmt.Errorf("tx count must be positive")
	}
	if len(senders) == 0 {
		return nil, nil, nil, fmt.Errorf("no senders available")
	}
	if g.cfg.GasBuffer <= 1.0 {
		return nil, nil, nil, fmt.Errorf("gas buffer must be > 1.0, got %v", g.cfg.GasBuffer)
	}

	mix, err := NormalizeMix(g.cfg.Mix)
	if err != nil {
		return nil, nil, nil, err
	}

	zero := common.Address{}
	if mix.NeedsToken() && g.cfg.Token == zero {
		return nil, nil, nil, fmt.Errorf("mix includes token transfers but no token address is configured")
	}
	if mix.NeedsRouter() && (g.cfg.Router == zero || g.cfg.SecondToken == zero) {
		return nil, nil, nil, fmt.Errorf("mix includes swaps but router or second token address is not configured")
	}

	// One fee estimate for the whole batch, with headroom for base fee drift
	gasPrice, err := g.client.GetGasPrice(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch gas price: %w", err)
	}
	feeCap := new(big.Int).SetUint64(uint64(float64(gasPrice) * g.cfg.GasBuffer))

	// One nonce query per sender, then strictly local sequential allocation
	for i, s := range senders {
		if err := s.Resync(ctx, g.client); err != nil {
			return nil, nil, nil, fmt.Errorf("resync sender %d nonce: %w", i, err)
		}
	}

	counts := CountsFor(g.cfg.TxCount, mix)
	seq := typeSequence(g.cfg.TxCount, counts)

	// A single throwaway sink gives native transfers a verifiable recipient
	var sink common.Address
	rand.Read(sink[:])

	expected := &Expected{
		Senders: make(map[common.Address]struct{}, len(senders)),
		Sink:    sink,
		Value:   g.cfg.Value,
		Token:   g.cfg.Token,
		Router:  g.cfg.Router,
	}
	for _, s := range senders {
		expected.Senders[s.Address] = struct{}{}
	}

	swapDeadline := big.NewInt(time.Now().Add(time.Hour).Unix())

	intents := make([]Intent, g.cfg.TxCount)
	for i := range intents {
		sender := senders[i%len(senders)]
		n := sender.ReserveNonce()
		n.Commit()

		intent := Intent{
			Seq:    i,
			Type:   seq[i],
			Sender: sender,
			Nonce:  n.Value(),
		}

		switch seq[i] {
		case types.TxTypeTransfer:
			intent.To = sink
			intent.Value = g.cfg.Value
			intent.GasLimit = contract.TransferGasLimit

		case types.TxTypeTokenTransfer:
			// Random recipient keeps SSTOREs cold for realistic gas
			var recipient common.Address
			rand.Read(recipient[:])
			intent.To = g.cfg.Token
			intent.Value = big.NewInt(0)
			intent.GasLimit = contract.ERC20GasLimit
			intent.Data = contract.EncodeTransfer(recipient, big.NewInt(1))

		case types.TxTypeSwap:
			intent.To = g.cfg.Router
			intent.Value = big.NewInt(0)
			intent.GasLimit = contract.SwapGasLimit
			intent.Data = contract.EncodeExactInputSingle(contract.ExactInputSingleParams{
				TokenIn:          g.cfg.Token,
				TokenOut:         g.cfg.SecondToken,
				Fee:              3000,
				Recipient:        sender.Address,
				Deadline:         swapDeadline,
				AmountIn:         big.NewInt(1000),
				AmountOutMinimum: big.NewInt(0),
			})
		}

		intents[i] = intent
	}

	g.logger.Info("Generated transaction intents",
		slog.Int("count", len(intents)),
		slog.Int("senders", len(senders)),
		slog.Int("transfers", counts[0]),
		slog.Int("tokenTransfers", counts[1]),
		slog.Int("swaps", counts[2]),
	)

	return intents, expected, feeCap, nil
}
