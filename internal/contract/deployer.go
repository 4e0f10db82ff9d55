package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/txblast/internal/rpc"
)

// Deployer deploys contracts with sequential nonces from a single key.
type Deployer struct {
	client   rpc.Client
	chainID  *big.Int
	gasPrice *big.Int
	logger   *slog.Logger
}

// NewDeployer creates a new contract deployer.
func NewDeployer(client rpc.Client, chainID, gasPrice *big.Int, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		client:   client,
		chainID:  chainID,
		gasPrice: gasPrice,
		logger:   logger,
	}
}

// Deploy deploys a single contract from key and waits for its code to appear.
// If code already exists at the precomputed address the deployment is skipped.
func (d *Deployer) Deploy(ctx context.Context, key *ecdsa.PrivateKey, name string, bytecode []byte) (common.Address, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := d.client.GetNonce(ctx, from.Hex())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	// Precompute the contract address for this nonce
	contractAddr := crypto.CreateAddress(from, nonce)

	exists, err := d.contractExists(ctx, contractAddr)
	if err != nil {
		d.logger.Warn("Failed to check contract existence, will deploy",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	} else if exists {
		d.logger.Info("Contract already deployed, skipping",
			slog.String("name", name),
			slog.String("address", contractAddr.Hex()),
		)
		return contractAddr, nil
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(0),
		GasFeeCap: d.gasPrice,
		Gas:       3000000, // High gas limit for deployment
		To:        nil,     // Contract creation
		Value:     big.NewInt(0),
		Data:      bytecode,
	})

	signer := types.LatestSignerForChainID(d.chainID)
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to sign tx: %w", err)
	}

	rlp, err := signedTx.MarshalBinary()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to marshal tx: %w", err)
	}

	if _, err := d.client.SendRawTransaction(ctx, rlp); err != nil {
		return common.Address{}, fmt.Errorf("failed to send tx: %w", err)
	}

	d.logger.Info("Deploying contract",
		slog.String("name", name),
		slog.String("expected_address", contractAddr.Hex()),
	)

	return d.waitForDeployment(ctx, name, contractAddr)
}

// contractExists checks if a contract is deployed at the given address.
func (d *Deployer) contractExists(ctx context.Context, addr common.Address) (bool, error) {
	code, err := d.client.GetCode(ctx, addr.Hex())
	if err != nil {
		return false, err
	}
	return code != "" && code != "0x", nil
}

// waitForDeployment waits for a contract's code to appear with exponential backoff.
func (d *Deployer) waitForDeployment(ctx context.Context, name string, contractAddr common.Address) (common.Address, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 2 * time.Second
	deadline := time.Now().Add(60 * time.Second)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return common.Address{}, ctx.Err()
		case <-time.After(backoff):
		}

		code, err := d.client.GetCode(ctx, contractAddr.Hex())
		if err == nil && code != "" && code != "0x" {
			return contractAddr, nil
		}

		backoff = min(backoff*2, maxBackoff)
	}

	return common.Address{}, fmt.Errorf("timeout waiting for %s deployment", name)
}
