// txblast floods a JSON-RPC endpoint with a configurable transaction mix,
// then verifies on chain what actually happened.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/txblast/internal/account"
	"github.com/gateway-fm/txblast/internal/blockwatch"
	"github.com/gateway-fm/txblast/internal/broadcast"
	"github.com/gateway-fm/txblast/internal/config"
	"github.com/gateway-fm/txblast/internal/confirm"
	"github.com/gateway-fm/txblast/internal/contract"
	"github.com/gateway-fm/txblast/internal/metrics"
	"github.com/gateway-fm/txblast/internal/payload"
	"github.com/gateway-fm/txblast/internal/rpc"
	"github.com/gateway-fm/txblast/internal/signer"
	"github.com/gateway-fm/txblast/internal/storage"
	"github.com/gateway-fm/txblast/internal/verify"
	"github.com/gateway-fm/txblast/pkg/types"
)

// tokenGrant is the per-sender ERC-20 balance minted before token runs.
var tokenGrant = big.NewInt(1_000_000)

func main() {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Run failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	report := &types.RunReport{
		ID:          fmt.Sprintf("blast-%d", time.Now().UnixNano()),
		StartedAt:   time.Now(),
		RPCURL:      cfg.RPCURL,
		Concurrency: cfg.Concurrency,
		TxRequested: cfg.TxCount,
	}

	var prom *metrics.PrometheusMetrics
	if cfg.MetricsAddr != "" {
		prom = metrics.NewPrometheusMetrics(prometheus.DefaultRegisterer)
		metrics.Serve(cfg.MetricsAddr, logger)
	}
	setPhase := func(phase string) {
		if prom != nil {
			prom.SetPhase(phase)
		}
	}

	clientCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	clientCfg.Logger = logger
	client := rpc.NewHTTPClient(clientCfg)

	// Connectivity check. An unreachable endpoint is the one thing nothing
	// downstream can recover from.
	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	report.ChainID = chainID.Int64()
	logger.Info("Connected", slog.String("rpc", cfg.RPCURL), slog.Int64("chainId", report.ChainID))

	gasPriceWei, err := client.GetGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch gas price: %w", err)
	}
	gasPrice := new(big.Int).SetUint64(gasPriceWei)

	var watcher *blockwatch.Watcher
	if cfg.WSURL != "" {
		watcher = blockwatch.New(cfg.WSURL, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Block watcher disabled", slog.String("err", err.Error()))
			watcher = nil
		} else {
			defer watcher.Stop()
		}
	}

	mix, err := payload.NormalizeMix(cfg.Mix)
	if err != nil {
		return err
	}
	report.Mix = mix

	funderAcc, err := account.NewAccountFromHex(cfg.FunderKey)
	if err != nil {
		return fmt.Errorf("funder key: %w", err)
	}
	funder := account.NewFunder(client, funderAcc, chainID, gasPrice, logger)

	// Resolve or deploy the token before funding so token grants can ride
	// the same funder nonce sequence.
	var token, router, secondToken common.Address
	if cfg.TokenAddr != "" {
		token = common.HexToAddress(cfg.TokenAddr)
	} else if mix.NeedsToken() {
		deployer := contract.NewDeployer(client, chainID, gasPrice, logger)
		token, err = deployer.Deploy(ctx, funderAcc.PrivateKey, "erc20", contract.ERC20Bytecode)
		if err != nil {
			return fmt.Errorf("deploy token: %w", err)
		}
	}
	if cfg.RouterAddr != "" {
		router = common.HexToAddress(cfg.RouterAddr)
	}
	if cfg.SecondToken != "" {
		secondToken = common.HexToAddress(cfg.SecondToken)
	}

	// Phase: fund
	setPhase("funding")
	report.SendersRequested = cfg.SenderCount

	senders, err := funder.CreateSenders(cfg.SenderCount)
	if err != nil {
		return fmt.Errorf("create senders: %w", err)
	}

	fundingAmount, _ := cfg.Funding()
	funded, err := funder.Fund(ctx, senders, fundingAmount, cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("fund senders: %w", err)
	}
	if len(funded) == 0 {
		return fmt.Errorf("no senders funded, cannot proceed")
	}
	report.SendersFunded = len(funded)
	if prom != nil {
		prom.FundedSenders.Set(float64(len(funded)))
	}
	if len(funded) < cfg.SenderCount {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("only %d of %d senders funded", len(funded), cfg.SenderCount))
	}

	if mix.NeedsToken() {
		if err := funder.FundToken(ctx, funded, token, tokenGrant, cfg.Concurrency); err != nil {
			return fmt.Errorf("fund tokens: %w", err)
		}
	}
	if mix.NeedsRouter() {
		if err := funder.ApproveRouter(ctx, funded, token, router, cfg.Concurrency); err != nil {
			return fmt.Errorf("approve router: %w", err)
		}
	}

	// Phase: generate
	setPhase("generating")
	value, _ := cfg.Value()
	gen := payload.NewGenerator(client, payload.Config{
		TxCount:     cfg.TxCount,
		Mix:         mix,
		Value:       value,
		GasBuffer:   cfg.GasBuffer,
		Token:       token,
		Router:      router,
		SecondToken: secondToken,
	}, logger)

	intents, expected, feeCap, err := gen.Generate(ctx, funded)
	if err != nil {
		return fmt.Errorf("generate intents: %w", err)
	}

	// Phase: sign
	setPhase("signing")
	envelopes := signer.New(chainID, feeCap, logger).SignAll(intents)
	report.TxSigned = len(envelopes)
	if len(envelopes) == 0 {
		return fmt.Errorf("no transactions signed, cannot proceed")
	}
	if len(envelopes) < len(intents) {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d of %d intents failed to sign", len(intents)-len(envelopes), len(intents)))
	}

	// Phase: broadcast
	setPhase("broadcasting")
	result := broadcast.New(client, cfg.Concurrency, prom, logger).Send(ctx, envelopes)
	report.TxAccepted = result.Success
	report.TxFailed = result.Failure
	report.ErrorCounts = result.ErrorCounts
	report.BroadcastSeconds = result.Duration().Seconds()

	// Phase: confirm
	setPhase("confirming")
	receipts := confirm.New(client, cfg.Concurrency, prom, logger).
		Wait(ctx, result.Accepted, cfg.ReceiptTimeout)

	// Phase: verify
	setPhase("verifying")
	verifyReport := verify.New(client, cfg.Concurrency, logger).Verify(ctx, verify.Input{
		Accepted:      result.Accepted,
		Receipts:      receipts,
		Expected:      expected,
		BroadcastSpan: result.Duration(),
		FullVerify:    cfg.FullVerify,
	})
	report.Verify = verifyReport
	report.TxConfirmed = verifyReport.Confirmed
	if prom != nil {
		for txType, count := range verifyReport.ConfirmedByType {
			for i := 0; i < count; i++ {
				prom.RecordTxConfirmed(string(txType))
			}
		}
	}

	setPhase("done")
	report.CompletedAt = time.Now()

	printReport(logger, report, watcher)

	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Warn("Run history unavailable", slog.String("err", err.Error()))
		return nil
	}
	defer store.Close()
	if err := store.SaveRun(ctx, storage.FromReport(report)); err != nil {
		logger.Warn("Failed to persist run", slog.String("err", err.Error()))
	} else {
		logger.Info("Run persisted", slog.String("id", report.ID), slog.String("db", cfg.DatabasePath))
	}

	return nil
}

func printReport(logger *slog.Logger, report *types.RunReport, watcher *blockwatch.Watcher) {
	v := report.Verify

	logger.Info("Run complete",
		slog.String("id", report.ID),
		slog.Int("requested", report.TxRequested),
		slog.Int("signed", report.TxSigned),
		slog.Int("accepted", report.TxAccepted),
		slog.Int("failed", report.TxFailed),
		slog.Int("confirmed", report.TxConfirmed),
		slog.Float64("broadcastSeconds", report.BroadcastSeconds),
	)
	logger.Info("Throughput",
		slog.Float64("blockTps", v.BlockTPS.ConfirmedTPS),
		slog.Float64("blockSpanSeconds", v.BlockTPS.SpanSeconds),
		slog.Float64("wallclockTps", v.WallClockTPS.ConfirmedTPS),
	)
	for _, b := range v.Blocks {
		logger.Debug("Block",
			slog.Uint64("number", b.Number),
			slog.Int("txs", b.TxCount),
			slog.Int("ours", b.Ours),
			slog.Uint64("gasUsed", b.GasUsed),
		)
	}
	if len(report.ErrorCounts) > 0 {
		attrs := make([]any, 0, len(report.ErrorCounts)*2)
		for class, count := range report.ErrorCounts {
			attrs = append(attrs, slog.Int(string(class), count))
		}
		logger.Info("Broadcast errors", attrs...)
	}
	if v.Missing > 0 {
		logger.Warn("Accepted transactions missing from chain", slog.Int("missing", v.Missing))
	}
	for _, w := range report.Warnings {
		logger.Warn(w)
	}
	if watcher != nil {
		logger.Info("Blocks observed over websocket", slog.Int("count", len(watcher.Heads())))
	}
}
