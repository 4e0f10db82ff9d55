package storage

import (
	"time"

	"github.com/gateway-fm/txblast/pkg/types"
)

// StoredRun is a run-history row. The report payload keeps the same shape
// the run printed, with a few hot columns lifted out for listing and sorting.
type StoredRun struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	RPCURL      string `json:"rpcUrl"`
	ChainID     int64  `json:"chainId"`
	Concurrency int    `json:"concurrency"`

	SendersRequested int `json:"sendersRequested"`
	SendersFunded    int `json:"sendersFunded"`

	TxRequested int `json:"txRequested"`
	TxSigned    int `json:"txSigned"`
	TxAccepted  int `json:"txAccepted"`
	TxFailed    int `json:"txFailed"`
	TxConfirmed int `json:"txConfirmed"`

	BroadcastSeconds float64 `json:"broadcastSeconds"`
	BlockTPS         float64 `json:"blockTps"`
	WallClockTPS     float64 `json:"wallclockTps"`

	Mix         *types.Mix                 `json:"mix,omitempty"`
	ErrorCounts map[types.ErrorClass]int   `json:"errorCounts,omitempty"`
	Verify      *types.VerifyReport        `json:"verify,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`

	CustomName *string `json:"customName,omitempty"`
	IsFavorite bool    `json:"isFavorite"`
}

// PaginatedRuns is a page of stored runs.
type PaginatedRuns struct {
	Runs   []StoredRun `json:"runs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// RunMetadataUpdate carries optional metadata changes; nil fields are left alone.
type RunMetadataUpdate struct {
	CustomName *string `json:"customName,omitempty"`
	IsFavorite *bool   `json:"isFavorite,omitempty"`
}

// FromReport converts a completed run report into its stored form.
func FromReport(r *types.RunReport) *StoredRun {
	run := &StoredRun{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		RPCURL:           r.RPCURL,
		ChainID:          r.ChainID,
		Concurrency:      r.Concurrency,
		SendersRequested: r.SendersRequested,
		SendersFunded:    r.SendersFunded,
		TxRequested:      r.TxRequested,
		TxSigned:         r.TxSigned,
		TxAccepted:       r.TxAccepted,
		TxFailed:         r.TxFailed,
		TxConfirmed:      r.TxConfirmed,
		BroadcastSeconds: r.BroadcastSeconds,
		ErrorCounts:      r.ErrorCounts,
		Verify:           r.Verify,
		Warnings:         r.Warnings,
	}
	mix := r.Mix
	run.Mix = &mix
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		run.CompletedAt = &completed
	}
	if r.Verify != nil {
		run.BlockTPS = r.Verify.BlockTPS.ConfirmedTPS
		run.WallClockTPS = r.Verify.WallClockTPS.ConfirmedTPS
	}
	return run
}
