package confirm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txblast/internal/broadcast"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/pkg/types"
)

// receiptClient implements rpc.Client for tracker tests. receipts maps hash
// to the receipt the node would return; absent hashes stay pending.
type receiptClient struct {
	rpc.Client

	mu       sync.Mutex
	receipts map[string]*rpc.TransactionReceipt
	rounds   int
}

func (c *receiptClient) GetTransactionReceiptsBatch(ctx context.Context, txHashes []string) ([]*rpc.TransactionReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds++
	results := make([]*rpc.TransactionReceipt, len(txHashes))
	for i, h := range txHashes {
		results[i] = c.receipts[h]
	}
	return results, nil
}

func makeAccepted(n int) []broadcast.Accepted {
	accepted := make([]broadcast.Accepted, n)
	for i := range accepted {
		accepted[i] = broadcast.Accepted{
			Hash:   fmt.Sprintf("0x%064x", i),
			Sender: common.BigToAddress(common.Big1),
			Seq:    i,
			Type:   types.TxTypeTransfer,
		}
	}
	return accepted
}

func TestWaitCollectsAllReceipts(t *testing.T) {
	accepted := makeAccepted(5)
	client := &receiptClient{receipts: map[string]*rpc.TransactionReceipt{}}
	for _, a := range accepted {
		client.receipts[a.Hash] = &rpc.TransactionReceipt{Status: 1, BlockNumber: 100}
	}

	receipts := New(client, 4, nil, nil).Wait(context.Background(), accepted, 5*time.Second)

	if len(receipts) != len(accepted) {
		t.Fatalf("collected %d receipts, want %d", len(receipts), len(accepted))
	}
	for _, a := range accepted {
		if receipts[a.Hash] == nil {
			t.Errorf("no receipt for %s", a.Hash)
		}
	}
}

func TestWaitReturnsPartialOnTimeout(t *testing.T) {
	accepted := makeAccepted(4)
	client := &receiptClient{receipts: map[string]*rpc.TransactionReceipt{
		// Only the first two ever confirm
		accepted[0].Hash: {Status: 1, BlockNumber: 10},
		accepted[1].Hash: {Status: 0, BlockNumber: 10},
	}}

	receipts := New(client, 2, nil, nil).Wait(context.Background(), accepted, 1200*time.Millisecond)

	if len(receipts) != 2 {
		t.Fatalf("collected %d receipts, want 2", len(receipts))
	}
	if receipts[accepted[2].Hash] != nil || receipts[accepted[3].Hash] != nil {
		t.Error("receipt map contains entries for unconfirmed transactions")
	}
}

func TestWaitStopsPollingOnceDone(t *testing.T) {
	accepted := makeAccepted(3)
	client := &receiptClient{receipts: map[string]*rpc.TransactionReceipt{}}
	for _, a := range accepted {
		client.receipts[a.Hash] = &rpc.TransactionReceipt{Status: 1, BlockNumber: 1}
	}

	start := time.Now()
	New(client, 4, nil, nil).Wait(context.Background(), accepted, 30*time.Second)

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait took %v with all receipts available on the first round", elapsed)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.rounds == 0 {
		t.Error("no batch rounds issued")
	}
}

func TestWaitEmptyInput(t *testing.T) {
	client := &receiptClient{receipts: map[string]*rpc.TransactionReceipt{}}
	receipts := New(client, 4, nil, nil).Wait(context.Background(), nil, time.Second)
	if len(receipts) != 0 {
		t.Errorf("got %d receipts for empty input", len(receipts))
	}
	if client.rounds != 0 {
		t.Errorf("issued %d rounds for empty input", client.rounds)
	}
}

func TestWaitChunksLargeSets(t *testing.T) {
	n := chunkSize + 50
	accepted := makeAccepted(n)
	client := &receiptClient{receipts: map[string]*rpc.TransactionReceipt{}}
	for _, a := range accepted {
		client.receipts[a.Hash] = &rpc.TransactionReceipt{Status: 1, BlockNumber: 7}
	}

	receipts := New(client, 4, nil, nil).Wait(context.Background(), accepted, 10*time.Second)

	if len(receipts) != n {
		t.Fatalf("collected %d receipts, want %d", len(receipts), n)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.rounds < 2 {
		t.Errorf("issued %d batch calls, want at least 2 for a set above the chunk size", client.rounds)
	}
}
