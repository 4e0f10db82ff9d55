// Package storage persists run history to SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gateway-fm/txblast/pkg/types"
)

// unmarshalJSON unmarshals JSON and logs any errors without failing.
// Used for report fields where a corrupt blob should not fail the query.
func unmarshalJSON(data string, v any, field string, runID string) {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		slog.Warn("failed to unmarshal JSON field",
			"field", field,
			"runID", runID,
			"error", err.Error(),
			"dataLen", len(data))
	}
}

// SQLiteStore keeps run history in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the run-history database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode for better concurrent performance
	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=NORMAL&_cache_size=10000&_foreign_keys=ON", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		rpc_url TEXT NOT NULL,
		chain_id INTEGER DEFAULT 0,
		concurrency INTEGER DEFAULT 0,
		senders_requested INTEGER DEFAULT 0,
		senders_funded INTEGER DEFAULT 0,
		tx_requested INTEGER DEFAULT 0,
		tx_signed INTEGER DEFAULT 0,
		tx_accepted INTEGER DEFAULT 0,
		tx_failed INTEGER DEFAULT 0,
		tx_confirmed INTEGER DEFAULT 0,
		broadcast_seconds REAL DEFAULT 0,
		block_tps REAL DEFAULT 0,
		wallclock_tps REAL DEFAULT 0,
		mix TEXT,
		error_counts TEXT,
		verify_report TEXT,
		warnings TEXT,
		custom_name TEXT,
		is_favorite INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Additive migrations for databases created before a column existed.
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"runs", "custom_name", "ALTER TABLE runs ADD COLUMN custom_name TEXT"},
		{"runs", "is_favorite", "ALTER TABLE runs ADD COLUMN is_favorite INTEGER DEFAULT 0"},
		{"runs", "warnings", "ALTER TABLE runs ADD COLUMN warnings TEXT"},
	}

	for _, m := range migrations {
		if !s.columnExists(m.table, m.column) {
			if _, err := s.db.Exec(m.ddl); err != nil {
				// Log but don't fail - migration might have already been applied
				fmt.Fprintf(os.Stderr, "warning: migration failed for %s.%s: %v\n", m.table, m.column, err)
			}
		}
	}

	return nil
}

// columnExists checks if a column exists in a table.
// Identifiers are validated before interpolation.
func (s *SQLiteStore) columnExists(table, column string) bool {
	if !isValidIdentifier(table) || !isValidIdentifier(column) {
		return false
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = '%s'", table, column)
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// isValidIdentifier checks if a string is a valid SQLite identifier.
func isValidIdentifier(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a completed run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *StoredRun) error {
	mixJSON, _ := json.Marshal(run.Mix)
	errorsJSON, _ := json.Marshal(run.ErrorCounts)
	verifyJSON, _ := json.Marshal(run.Verify)
	warningsJSON, _ := json.Marshal(run.Warnings)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, started_at, completed_at, rpc_url, chain_id, concurrency,
			senders_requested, senders_funded,
			tx_requested, tx_signed, tx_accepted, tx_failed, tx_confirmed,
			broadcast_seconds, block_tps, wallclock_tps,
			mix, error_counts, verify_report, warnings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, run.CompletedAt, run.RPCURL, run.ChainID, run.Concurrency,
		run.SendersRequested, run.SendersFunded,
		run.TxRequested, run.TxSigned, run.TxAccepted, run.TxFailed, run.TxConfirmed,
		run.BroadcastSeconds, run.BlockTPS, run.WallClockTPS,
		string(mixJSON), string(errorsJSON), string(verifyJSON), string(warningsJSON))

	return err
}

const runColumns = `id, started_at, completed_at, rpc_url, COALESCE(chain_id, 0), COALESCE(concurrency, 0),
	COALESCE(senders_requested, 0), COALESCE(senders_funded, 0),
	COALESCE(tx_requested, 0), COALESCE(tx_signed, 0), COALESCE(tx_accepted, 0),
	COALESCE(tx_failed, 0), COALESCE(tx_confirmed, 0),
	COALESCE(broadcast_seconds, 0), COALESCE(block_tps, 0), COALESCE(wallclock_tps, 0),
	mix, error_counts, verify_report, warnings,
	custom_name, COALESCE(is_favorite, 0)`

// GetRun retrieves a single run by ID. Returns (nil, nil) when missing.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*StoredRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns a paginated list of runs, favorites first, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) (*PaginatedRuns, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+` FROM runs
		ORDER BY is_favorite DESC, started_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedRuns{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteRun deletes a run. Returns an error when the ID does not exist.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// UpdateRunMetadata updates the custom name and/or favorite flag of a run.
func (s *SQLiteStore) UpdateRunMetadata(ctx context.Context, id string, update *RunMetadataUpdate) error {
	var updates []string
	var args []interface{}

	if update.CustomName != nil {
		updates = append(updates, "custom_name = ?")
		args = append(args, *update.CustomName)
	}
	if update.IsFavorite != nil {
		updates = append(updates, "is_favorite = ?")
		if *update.IsFavorite {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	if len(updates) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE runs SET %s WHERE id = ?", strings.Join(updates, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*StoredRun, error) {
	var run StoredRun
	var completedAt sql.NullTime
	var mixJSON, errorsJSON, verifyJSON, warningsJSON sql.NullString
	var customName sql.NullString
	var isFavorite int

	err := row.Scan(&run.ID, &run.StartedAt, &completedAt, &run.RPCURL, &run.ChainID, &run.Concurrency,
		&run.SendersRequested, &run.SendersFunded,
		&run.TxRequested, &run.TxSigned, &run.TxAccepted, &run.TxFailed, &run.TxConfirmed,
		&run.BroadcastSeconds, &run.BlockTPS, &run.WallClockTPS,
		&mixJSON, &errorsJSON, &verifyJSON, &warningsJSON,
		&customName, &isFavorite)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if customName.Valid {
		run.CustomName = &customName.String
	}
	run.IsFavorite = isFavorite == 1

	if mixJSON.Valid && mixJSON.String != "" && mixJSON.String != "null" {
		run.Mix = &types.Mix{}
		unmarshalJSON(mixJSON.String, run.Mix, "mix", run.ID)
	}
	if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
		unmarshalJSON(errorsJSON.String, &run.ErrorCounts, "error_counts", run.ID)
	}
	if verifyJSON.Valid && verifyJSON.String != "" && verifyJSON.String != "null" {
		run.Verify = &types.VerifyReport{}
		unmarshalJSON(verifyJSON.String, run.Verify, "verify_report", run.ID)
	}
	if warningsJSON.Valid && warningsJSON.String != "" && warningsJSON.String != "null" {
		unmarshalJSON(warningsJSON.String, &run.Warnings, "warnings", run.ID)
	}

	return &run, nil
}
