// Package signer pre-signs transaction intents into immutable raw envelopes.
package signer

import (
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txblast/internal/payload"
	ptypes "github.com/gateway-fm/txblast/pkg/types"
)

// DefaultBatchSize is how many intents are signed concurrently at a time.
const DefaultBatchSize = 256

// Envelope is a signed transaction ready for broadcast. Immutable after
// signing: raw bytes, hash and metadata never change downstream.
type Envelope struct {
	Raw    []byte
	Hash   string
	Sender common.Address
	Seq    int
	Type   ptypes.TxType
}

// Signer signs intents in bounded concurrent batches.
type Signer struct {
	chainID   *big.Int
	feeCap    *big.Int
	tipCap    *big.Int
	batchSize int
	logger    *slog.Logger
}

// New creates a signer. feeCap is the buffered fee estimate applied to every
// transaction; the tip is fixed at 1 gwei.
func New(chainID, feeCap *big.Int, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		chainID:   chainID,
		feeCap:    feeCap,
		tipCap:    big.NewInt(1e9),
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// SignAll signs every intent and returns the envelopes in intent order.
// A failed signature is logged and dropped, so the output may be shorter
// than the input; downstream counts use the actual output length.
func (s *Signer) SignAll(intents []payload.Intent) []Envelope {
	results := make([]*Envelope, len(intents))
	signer := types.LatestSignerForChainID(s.chainID)

	for start := 0; start < len(intents); start += s.batchSize {
		end := min(start+s.batchSize, len(intents))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				env, err := s.sign(signer, intents[i])
				if err != nil {
					s.logger.Warn("Failed to sign transaction, dropping",
						slog.Int("seq", intents[i].Seq),
						slog.String("type", string(intents[i].Type)),
						slog.String("err", err.Error()),
					)
					return
				}
				results[i] = env
			}(i)
		}
		wg.Wait()
	}

	envelopes := make([]Envelope, 0, len(intents))
	for _, env := range results {
		if env != nil {
			envelopes = append(envelopes, *env)
		}
	}

	if len(envelopes) < len(intents) {
		s.logger.Warn("Some intents failed to sign",
			slog.Int("signed", len(envelopes)),
			slog.Int("requested", len(intents)),
		)
	}
	return envelopes
}

func (s *Signer) sign(signer types.Signer, intent payload.Intent) (*Envelope, error) {
	to := intent.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     intent.Nonce,
		GasTipCap: s.tipCap,
		GasFeeCap: s.feeCap,
		Gas:       intent.GasLimit,
		To:        &to,
		Value:     intent.Value,
		Data:      intent.Data,
	})

	signed, err := types.SignTx(tx, signer, intent.Sender.PrivateKey)
	if err != nil {
		return nil, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Raw:    raw,
		Hash:   signed.Hash().Hex(),
		Sender: intent.Sender.Address,
		Seq:    intent.Seq,
		Type:   intent.Type,
	}, nil
}
