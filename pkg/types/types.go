// Package types contains public result types for the tx blaster.
// These types form the external reporting interface and are persisted
// to the run-history store, so they must remain backwards-compatible.
package types

import "time"

// TxType is the logical transaction type generated during a run.
type TxType string

const (
	TxTypeTransfer      TxType = "transfer"
	TxTypeTokenTransfer TxType = "token-transfer"
	TxTypeSwap          TxType = "swap"
)

// ErrorClass is a broadcast failure category.
type ErrorClass string

const (
	ErrGasPriceTooLow         ErrorClass = "gas_price_too_low"
	ErrNonceTooLow            ErrorClass = "nonce_too_low"
	ErrNonceTooHigh           ErrorClass = "nonce_too_high"
	ErrAlreadyKnown           ErrorClass = "already_known"
	ErrReplacementUnderpriced ErrorClass = "replacement_underpriced"
	ErrInsufficientFunds      ErrorClass = "insufficient_funds"
	ErrGasLimitTooLow         ErrorClass = "gas_limit_too_low"
	ErrExecutionReverted      ErrorClass = "execution_reverted"
	ErrTimeout                ErrorClass = "timeout"
	ErrConnection             ErrorClass = "connection_error"
	ErrOther                  ErrorClass = "other"
)

// Mix holds the requested transaction-type percentages.
// Percentages are normalized to sum to 100 before generation.
type Mix struct {
	Transfer      int `json:"transfer"`
	TokenTransfer int `json:"tokenTransfer"`
	Swap          int `json:"swap"`
}

// Total returns the sum of the raw (possibly unnormalized) percentages.
func (m Mix) Total() int {
	return m.Transfer + m.TokenTransfer + m.Swap
}

// NeedsToken reports whether the mix requires a deployed token contract.
func (m Mix) NeedsToken() bool {
	return m.TokenTransfer > 0 || m.Swap > 0
}

// NeedsRouter reports whether the mix requires a DEX router.
func (m Mix) NeedsRouter() bool {
	return m.Swap > 0
}

// BlockStat is the per-block breakdown produced by verification.
type BlockStat struct {
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	TxCount   int       `json:"txCount"`  // all transactions in the block
	Ours      int       `json:"ours"`     // transactions claimed by this run
	GasUsed   uint64    `json:"gasUsed"`
}

// MismatchReason names why a sampled transaction failed verification.
type MismatchReason string

const (
	MismatchNotFound MismatchReason = "not_found"
	MismatchUnmined  MismatchReason = "unmined"
	MismatchStatus   MismatchReason = "status"
	MismatchFrom     MismatchReason = "from_mismatch"
	MismatchTo       MismatchReason = "to_mismatch"
	MismatchValue    MismatchReason = "value_mismatch"
)

// Throughput is a TPS figure computed from one time base.
// Included counts any receipt status, Confirmed requires success.
type Throughput struct {
	TimeBase     string  `json:"timeBase"` // "block" or "wallclock"
	SpanSeconds  float64 `json:"spanSeconds"`
	IncludedTPS  float64 `json:"includedTps"`
	ConfirmedTPS float64 `json:"confirmedTps"`
}

// VerifyReport is the result of on-chain verification.
type VerifyReport struct {
	Included       int                    `json:"included"`       // found in block hash lists (any status)
	Confirmed      int                    `json:"confirmed"`      // receipt status success
	Reverted       int                    `json:"reverted"`       // receipt status failure
	Missing        int                    `json:"missing"`        // claimed but not found in any block
	FullyVerified  bool                   `json:"fullyVerified"`  // true when full verification ran
	SampleChecked  int                    `json:"sampleChecked"`
	SamplePassed   int                    `json:"samplePassed"`
	Mismatches     map[MismatchReason]int `json:"mismatches,omitempty"`
	ConfirmedByType map[TxType]int        `json:"confirmedByType,omitempty"`
	Blocks         []BlockStat            `json:"blocks,omitempty"`
	BlockTPS       Throughput             `json:"blockTps"`
	WallClockTPS   Throughput             `json:"wallclockTps"`
}

// RunReport is the final record of a completed run.
type RunReport struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	RPCURL      string `json:"rpcUrl"`
	ChainID     int64  `json:"chainId"`
	Mix         Mix    `json:"mix"`
	Concurrency int    `json:"concurrency"`

	SendersRequested int `json:"sendersRequested"`
	SendersFunded    int `json:"sendersFunded"`

	TxRequested int `json:"txRequested"`
	TxSigned    int `json:"txSigned"`
	TxAccepted  int `json:"txAccepted"` // broadcast accepted by the endpoint
	TxFailed    int `json:"txFailed"`   // broadcast rejected
	TxConfirmed int `json:"txConfirmed"`

	BroadcastSeconds float64              `json:"broadcastSeconds"`
	ErrorCounts      map[ErrorClass]int   `json:"errorCounts,omitempty"`
	Verify           *VerifyReport        `json:"verify,omitempty"`
	Warnings         []string             `json:"warnings,omitempty"`
}
