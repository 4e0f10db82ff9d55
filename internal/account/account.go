// Package account manages funder and ephemeral sender accounts.
package account

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/txblast/internal/rpc"
)

// Account holds an account's keys and its exclusively-owned nonce counter.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	nonce      uint64
	mu         sync.Mutex
}

// NewAccount creates an account from a private key.
func NewAccount(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key.
func NewAccountFromHex(hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return NewAccount(privateKey), nil
}

// NewRandomAccount creates an account with a freshly generated key.
func NewRandomAccount() (*Account, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewAccount(privateKey), nil
}

// Nonce represents a reserved nonce that must be committed or rolled back.
// Use defer n.Rollback() immediately after reserving to ensure cleanup.
type Nonce struct {
	value     uint64
	account   *Account
	committed atomic.Bool
}

// Value returns the nonce value.
func (n *Nonce) Value() uint64 {
	return n.value
}

// Commit marks the nonce as successfully used.
// Safe to call multiple times (idempotent).
func (n *Nonce) Commit() {
	n.committed.Store(true)
}

// Rollback returns the nonce to the pool if not committed.
// Safe to call multiple times (idempotent).
// Typically called via defer.
func (n *Nonce) Rollback() {
	if n.committed.Swap(true) {
		return // Already committed or rolled back
	}
	n.account.rollback(n.value)
}

// ReserveNonce reserves the next nonce for use.
// The returned Nonce MUST be either Committed or Rolled back.
// Use defer n.Rollback() for automatic cleanup on error paths.
//
// Example:
//
//	n := acc.ReserveNonce()
//	defer n.Rollback() // Auto-rollback on any error
//	if err := doSomething(n.Value()); err != nil {
//	    return err // Rollback happens via defer
//	}
//	n.Commit() // Success - prevent rollback
func (a *Account) ReserveNonce() *Nonce {
	a.mu.Lock()
	nonce := a.nonce
	a.nonce++
	a.mu.Unlock()

	return &Nonce{
		value:   nonce,
		account: a,
	}
}

// rollback decrements nonce if it was the last one issued.
func (a *Account) rollback(nonce uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// Only rollback if this was the most recent nonce
	// (prevents issues with out-of-order rollbacks)
	if a.nonce == nonce+1 {
		a.nonce = nonce
	}
}

// Resync fetches the pending nonce from the chain and updates local state.
// Uses set-if-higher to avoid races with concurrent nonce reservations.
func (a *Account) Resync(ctx context.Context, client rpc.Client) error {
	nonce, err := client.GetNonce(ctx, a.Address.Hex())
	if err != nil {
		return err
	}
	a.mu.Lock()
	if nonce > a.nonce {
		a.nonce = nonce
	}
	a.mu.Unlock()
	return nil
}

// ResyncFromChain fetches the confirmed nonce from the latest block.
// Use this when starting a fresh run so nonces match true chain state.
func (a *Account) ResyncFromChain(ctx context.Context, client rpc.Client) error {
	nonce, err := client.GetConfirmedNonce(ctx, a.Address.Hex())
	if err != nil {
		return err
	}
	a.mu.Lock()
	if nonce > a.nonce {
		a.nonce = nonce
	}
	a.mu.Unlock()
	return nil
}

// SetNonce sets the nonce value directly.
// Prefer Resync for fetching from chain, or ReserveNonce for normal use.
func (a *Account) SetNonce(nonce uint64) {
	a.mu.Lock()
	a.nonce = nonce
	a.mu.Unlock()
}

// PeekNonce returns the current nonce without incrementing.
func (a *Account) PeekNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

// DefaultFunderKey is Anvil/Hardhat default account 0, handy for local devnets.
const DefaultFunderKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
