package signer

import (
	"math/big"
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/internal/contract"
	"github.com/gateway-fm/txblast/internal/payload"
	"github.com/gateway-fm/txblast/pkg/types"
)

func makeIntents(t *testing.T, n int) []payload.Intent {
	t.Helper()
	acc, err := account.NewRandomAccount()
	if err != nil {
		t.Fatal(err)
	}
	sink, err := account.NewRandomAccount()
	if err != nil {
		t.Fatal(err)
	}

	intents := make([]payload.Intent, n)
	for i := range intents {
		intents[i] = payload.Intent{
			Seq:      i,
			Type:     types.TxTypeTransfer,
			Sender:   acc,
			Nonce:    uint64(i),
			To:       sink.Address,
			Value:    big.NewInt(1000),
			GasLimit: contract.TransferGasLimit,
		}
	}
	return intents
}

func TestSignAllPreservesOrder(t *testing.T) {
	chainID := big.NewInt(1337)
	intents := makeIntents(t, 20)

	envs := New(chainID, big.NewInt(2_000_000_000), nil).SignAll(intents)

	if len(envs) != len(intents) {
		t.Fatalf("signed %d envelopes, want %d", len(envs), len(intents))
	}
	for i, env := range envs {
		if env.Seq != i {
			t.Errorf("envelope %d has Seq %d", i, env.Seq)
		}
		if len(env.Raw) == 0 {
			t.Errorf("envelope %d has empty raw bytes", i)
		}
		if env.Hash == "" {
			t.Errorf("envelope %d has empty hash", i)
		}
		if env.Sender != intents[i].Sender.Address {
			t.Errorf("envelope %d carries wrong sender", i)
		}
		if env.Type != intents[i].Type {
			t.Errorf("envelope %d carries wrong type", i)
		}
	}
}

func TestSignAllRecoverableSender(t *testing.T) {
	chainID := big.NewInt(1337)
	intents := makeIntents(t, 1)

	envs := New(chainID, big.NewInt(2_000_000_000), nil).SignAll(intents)
	if len(envs) != 1 {
		t.Fatalf("signed %d envelopes, want 1", len(envs))
	}

	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(envs[0].Raw); err != nil {
		t.Fatalf("raw envelope does not decode: %v", err)
	}
	if tx.Type() != gethtypes.DynamicFeeTxType {
		t.Errorf("tx type = %d, want dynamic fee", tx.Type())
	}
	if tx.Hash().Hex() != envs[0].Hash {
		t.Errorf("envelope hash %s != decoded hash %s", envs[0].Hash, tx.Hash().Hex())
	}

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(chainID), &tx)
	if err != nil {
		t.Fatalf("sender recovery failed: %v", err)
	}
	if from != intents[0].Sender.Address {
		t.Errorf("recovered sender %s, want %s", from.Hex(), intents[0].Sender.Address.Hex())
	}
	if tx.Nonce() != intents[0].Nonce {
		t.Errorf("nonce = %d, want %d", tx.Nonce(), intents[0].Nonce)
	}
	if tx.Value().Cmp(intents[0].Value) != 0 {
		t.Errorf("value = %s, want %s", tx.Value(), intents[0].Value)
	}
}

func TestSignAllEmpty(t *testing.T) {
	envs := New(big.NewInt(1), big.NewInt(1), nil).SignAll(nil)
	if len(envs) != 0 {
		t.Errorf("signed %d envelopes from empty input", len(envs))
	}
}

func TestSignAllSpansBatches(t *testing.T) {
	chainID := big.NewInt(1337)
	intents := makeIntents(t, DefaultBatchSize+10)

	envs := New(chainID, big.NewInt(2_000_000_000), nil).SignAll(intents)
	if len(envs) != len(intents) {
		t.Fatalf("signed %d envelopes, want %d", len(envs), len(intents))
	}
	for i, env := range envs {
		if env.Seq != i {
			t.Fatalf("envelope %d has Seq %d, batch boundary broke ordering", i, env.Seq)
		}
	}
}
