// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/pkg/types"
)

// Config holds the run configuration.
type Config struct {
	RPCURL string
	WSURL  string // optional, enables the newHeads block watcher

	TxCount     int
	SenderCount int
	Concurrency int

	ValueWei   string // native value per transfer, decimal wei
	FundingWei string // native funding per sender, decimal wei
	GasBuffer  float64

	Mix types.Mix

	FullVerify     bool
	TokenAddr      string
	RouterAddr     string
	SecondToken    string
	ReceiptTimeout time.Duration

	FunderKey    string
	DatabasePath string
	MetricsAddr  string // optional, empty disables the /metrics listener
}

// Defaults
const (
	DefaultRPCURL         = "http://localhost:8545"
	DefaultTxCount        = 1000
	DefaultSenderCount    = 50
	DefaultConcurrency    = 64
	DefaultValueWei       = "1000000000000000"     // 0.001 ETH
	DefaultFundingWei     = "1000000000000000000"  // 1 ETH
	DefaultGasBuffer      = 1.2
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultDatabasePath   = "./data/txblast.db"
)

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:         DefaultRPCURL,
		TxCount:        DefaultTxCount,
		SenderCount:    DefaultSenderCount,
		Concurrency:    DefaultConcurrency,
		ValueWei:       DefaultValueWei,
		FundingWei:     DefaultFundingWei,
		GasBuffer:      DefaultGasBuffer,
		Mix:            types.Mix{Transfer: 100},
		ReceiptTimeout: DefaultReceiptTimeout,
		FunderKey:      account.DefaultFunderKey,
		DatabasePath:   DefaultDatabasePath,
	}

	// Load from environment variables first
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("FUNDER_KEY"); v != "" {
		cfg.FunderKey = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("TX_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TxCount = n
		}
	}
	if v := os.Getenv("SENDER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SenderCount = n
		}
	}

	// Define command-line flags
	var (
		rpcURL      = flag.String("rpc", cfg.RPCURL, "JSON-RPC endpoint URL")
		wsURL       = flag.String("ws", cfg.WSURL, "WebSocket endpoint URL for newHeads (optional)")
		txCount     = flag.Int("txs", cfg.TxCount, "Number of transactions to send")
		senderCount = flag.Int("senders", cfg.SenderCount, "Number of ephemeral sender accounts")
		concurrency = flag.Int("concurrency", cfg.Concurrency, "Broadcast worker count")
		valueWei    = flag.String("value", cfg.ValueWei, "Native value per transfer in wei")
		fundingWei  = flag.String("funding", cfg.FundingWei, "Native funding per sender in wei")
		gasBuffer   = flag.Float64("gasbuffer", cfg.GasBuffer, "Fee estimate multiplier (> 1.0)")
		mixTransfer = flag.Int("mix-transfer", cfg.Mix.Transfer, "Percentage of native transfers")
		mixToken    = flag.Int("mix-token", cfg.Mix.TokenTransfer, "Percentage of token transfers")
		mixSwap     = flag.Int("mix-swap", cfg.Mix.Swap, "Percentage of swaps")
		fullVerify  = flag.Bool("full-verify", false, "Verify every transaction instead of a sample")
		tokenAddr   = flag.String("token", cfg.TokenAddr, "ERC-20 token address (deployed if empty and needed)")
		routerAddr  = flag.String("router", cfg.RouterAddr, "DEX router address (required for swaps)")
		secondToken = flag.String("second-token", cfg.SecondToken, "Swap output token address (required for swaps)")
		receiptWait = flag.Duration("receipt-timeout", cfg.ReceiptTimeout, "How long to wait for receipts")
		funderKey   = flag.String("funder-key", cfg.FunderKey, "Hex private key of the funder account")
		dbPath      = flag.String("db", cfg.DatabasePath, "SQLite run-history path")
		metricsAddr = flag.String("metrics", cfg.MetricsAddr, "Prometheus listen address (empty disables)")
	)

	flag.Parse()

	cfg.RPCURL = *rpcURL
	cfg.WSURL = *wsURL
	cfg.TxCount = *txCount
	cfg.SenderCount = *senderCount
	cfg.Concurrency = *concurrency
	cfg.ValueWei = *valueWei
	cfg.FundingWei = *fundingWei
	cfg.GasBuffer = *gasBuffer
	cfg.Mix = types.Mix{Transfer: *mixTransfer, TokenTransfer: *mixToken, Swap: *mixSwap}
	cfg.FullVerify = *fullVerify
	cfg.TokenAddr = *tokenAddr
	cfg.RouterAddr = *routerAddr
	cfg.SecondToken = *secondToken
	cfg.ReceiptTimeout = *receiptWait
	cfg.FunderKey = *funderKey
	cfg.DatabasePath = *dbPath
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.TxCount <= 0 {
		return fmt.Errorf("tx count must be positive")
	}
	if c.SenderCount <= 0 {
		return fmt.Errorf("sender count must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.GasBuffer <= 1.0 {
		return fmt.Errorf("gas buffer must be > 1.0")
	}
	if c.Mix.Total() <= 0 {
		return fmt.Errorf("mix percentages must sum to a positive value")
	}
	if c.Mix.Transfer < 0 || c.Mix.TokenTransfer < 0 || c.Mix.Swap < 0 {
		return fmt.Errorf("mix percentages must be non-negative")
	}
	if _, err := c.Value(); err != nil {
		return err
	}
	if _, err := c.Funding(); err != nil {
		return err
	}
	if c.Mix.Swap > 0 && (c.RouterAddr == "" || c.SecondToken == "") {
		return fmt.Errorf("swaps require -router and -second-token")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive")
	}
	if c.FunderKey == "" {
		return fmt.Errorf("funder key is required")
	}
	return nil
}

// Value returns the per-transfer native value.
func (c *Config) Value() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.ValueWei, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid value wei: %q", c.ValueWei)
	}
	return v, nil
}

// Funding returns the per-sender funding amount.
func (c *Config) Funding() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.FundingWei, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid funding wei: %q", c.FundingWei)
	}
	return v, nil
}
