package payload

import (
	"context"
	"math/big"
	"testing"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/pkg/types"
)

// genClient implements rpc.Client for generation tests.
type genClient struct {
	rpc.Client
	gasPrice uint64
	nonces   map[string]uint64
}

func (c *genClient) GetGasPrice(ctx context.Context) (uint64, error) {
	return c.gasPrice, nil
}

func (c *genClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	return c.nonces[address], nil
}

func TestNormalizeMix(t *testing.T) {
	tests := []struct {
		name    string
		in      types.Mix
		want    types.Mix
		wantErr bool
	}{
		{
			name: "already normalized",
			in:   types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10},
			want: types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10},
		},
		{
			name: "scales to 100",
			in:   types.Mix{Transfer: 7, TokenTransfer: 2, Swap: 1},
			want: types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10},
		},
		{
			name: "remainder goes to largest share",
			in:   types.Mix{Transfer: 1, TokenTransfer: 1, Swap: 1},
			want: types.Mix{Transfer: 34, TokenTransfer: 33, Swap: 33},
		},
		{
			name: "single type",
			in:   types.Mix{Transfer: 5},
			want: types.Mix{Transfer: 100},
		},
		{
			name:    "zero total",
			in:      types.Mix{},
			wantErr: true,
		},
		{
			name:    "negative share",
			in:      types.Mix{Transfer: 110, TokenTransfer: -10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMix(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeMix() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("NormalizeMix() = %+v, want %+v", got, tt.want)
			}
			if got.Total() != 100 {
				t.Errorf("normalized total = %d, want 100", got.Total())
			}
		})
	}
}

func TestCountsForSumsExactly(t *testing.T) {
	tests := []struct {
		txCount int
		mix     types.Mix
		want    [3]int
	}{
		{100, types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10}, [3]int{70, 20, 10}},
		{10, types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10}, [3]int{7, 2, 1}},
		{7, types.Mix{Transfer: 34, TokenTransfer: 33, Swap: 33}, [3]int{3, 2, 2}},
		{1, types.Mix{Transfer: 50, TokenTransfer: 50}, [3]int{1, 0, 0}},
		{3, types.Mix{Transfer: 100}, [3]int{3, 0, 0}},
	}

	for _, tt := range tests {
		got := CountsFor(tt.txCount, tt.mix)
		if got != tt.want {
			t.Errorf("CountsFor(%d, %+v) = %v, want %v", tt.txCount, tt.mix, got, tt.want)
		}
		if got[0]+got[1]+got[2] != tt.txCount {
			t.Errorf("counts %v sum to %d, want %d", got, got[0]+got[1]+got[2], tt.txCount)
		}
	}
}

func TestTypeSequenceInterleaves(t *testing.T) {
	counts := [3]int{70, 20, 10}
	seq := typeSequence(100, counts)

	if len(seq) != 100 {
		t.Fatalf("sequence length = %d, want 100", len(seq))
	}

	got := map[types.TxType]int{}
	for _, tt := range seq {
		got[tt]++
	}
	if got[types.TxTypeTransfer] != 70 || got[types.TxTypeTokenTransfer] != 20 || got[types.TxTypeSwap] != 10 {
		t.Errorf("sequence counts = %v, want 70/20/10", got)
	}

	// Interleaved, not blocked: the first ten entries must not be one type
	first := map[types.TxType]bool{}
	for _, tt := range seq[:10] {
		first[tt] = true
	}
	if len(first) < 2 {
		t.Errorf("first 10 entries all %v, expected interleaving", seq[0])
	}
}

func makeSenders(t *testing.T, n int) []*account.Account {
	t.Helper()
	senders := make([]*account.Account, n)
	for i := range senders {
		acc, err := account.NewRandomAccount()
		if err != nil {
			t.Fatal(err)
		}
		senders[i] = acc
	}
	return senders
}

func TestGenerateDistribution(t *testing.T) {
	senders := makeSenders(t, 10)
	client := &genClient{gasPrice: 1_000_000_000, nonces: map[string]uint64{}}

	gen := NewGenerator(client, Config{
		TxCount:   100,
		Mix:       types.Mix{Transfer: 100},
		Value:     big.NewInt(1000),
		GasBuffer: 1.2,
	}, nil)

	intents, expected, feeCap, err := gen.Generate(context.Background(), senders)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(intents) != 100 {
		t.Fatalf("generated %d intents, want 100", len(intents))
	}
	if feeCap.Uint64() != 1_200_000_000 {
		t.Errorf("feeCap = %d, want 1200000000", feeCap.Uint64())
	}

	// Round-robin: intent i goes to sender i % 10
	for i, intent := range intents {
		if intent.Sender != senders[i%len(senders)] {
			t.Fatalf("intent %d assigned to wrong sender", i)
		}
		if intent.Seq != i {
			t.Errorf("intent %d has Seq %d", i, intent.Seq)
		}
	}

	// Per-sender nonces strictly sequential from zero, no gaps
	next := map[*account.Account]uint64{}
	for i, intent := range intents {
		if intent.Nonce != next[intent.Sender] {
			t.Fatalf("intent %d: nonce %d, want %d", i, intent.Nonce, next[intent.Sender])
		}
		next[intent.Sender]++
	}
	for _, n := range next {
		if n != 10 {
			t.Errorf("sender issued %d nonces, want 10", n)
		}
	}

	if len(expected.Senders) != 10 {
		t.Errorf("expected set has %d senders, want 10", len(expected.Senders))
	}
	for _, intent := range intents {
		if intent.To != expected.Sink {
			t.Error("transfer recipient differs from expected sink")
			break
		}
	}
}

func TestGenerateMixedTypes(t *testing.T) {
	senders := makeSenders(t, 10)
	client := &genClient{gasPrice: 1_000_000_000, nonces: map[string]uint64{}}

	token := senders[0].Address
	router := senders[1].Address
	second := senders[2].Address

	gen := NewGenerator(client, Config{
		TxCount:     100,
		Mix:         types.Mix{Transfer: 70, TokenTransfer: 20, Swap: 10},
		Value:       big.NewInt(1000),
		GasBuffer:   1.5,
		Token:       token,
		Router:      router,
		SecondToken: second,
	}, nil)

	intents, expected, _, err := gen.Generate(context.Background(), senders)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	counts := map[types.TxType]int{}
	for _, intent := range intents {
		counts[intent.Type]++
		switch intent.Type {
		case types.TxTypeTokenTransfer:
			if intent.To != token {
				t.Fatal("token transfer not addressed to token contract")
			}
			if len(intent.Data) == 0 {
				t.Fatal("token transfer without calldata")
			}
		case types.TxTypeSwap:
			if intent.To != router {
				t.Fatal("swap not addressed to router")
			}
		}
	}
	if counts[types.TxTypeTransfer] != 70 || counts[types.TxTypeTokenTransfer] != 20 || counts[types.TxTypeSwap] != 10 {
		t.Errorf("type counts = %v, want 70/20/10", counts)
	}

	if expected.ExpectedTo(types.TxTypeTokenTransfer) != token {
		t.Error("ExpectedTo(token-transfer) != token")
	}
	if expected.ExpectedTo(types.TxTypeSwap) != router {
		t.Error("ExpectedTo(swap) != router")
	}
	if expected.ExpectedValue(types.TxTypeSwap).Sign() != 0 {
		t.Error("ExpectedValue(swap) should be zero")
	}
	if expected.ExpectedValue(types.TxTypeTransfer).Cmp(big.NewInt(1000)) != 0 {
		t.Error("ExpectedValue(transfer) should be the configured value")
	}
}

func TestGenerateValidation(t *testing.T) {
	senders := makeSenders(t, 1)
	client := &genClient{gasPrice: 1, nonces: map[string]uint64{}}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero tx count", Config{TxCount: 0, Mix: types.Mix{Transfer: 100}, GasBuffer: 1.2}},
		{"gas buffer too low", Config{TxCount: 1, Mix: types.Mix{Transfer: 100}, GasBuffer: 1.0}},
		{"token mix without token", Config{TxCount: 1, Mix: types.Mix{TokenTransfer: 100}, GasBuffer: 1.2}},
		{"swap mix without router", Config{TxCount: 1, Mix: types.Mix{Swap: 100}, GasBuffer: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(client, tt.cfg, nil)
			if _, _, _, err := gen.Generate(context.Background(), senders); err == nil {
				t.Error("expected error")
			}
		})
	}
}
