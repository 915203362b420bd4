package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// Pool interface for abstracting pgx connection pool
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresLedger stores ledger entries in the ledger_entries table
type PostgresLedger struct {
	pool Pool
}

// NewPostgresLedger creates a ledger on an existing pool. The schema must
// already be migrated.
func NewPostgresLedger(pool Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// HasDownloaded checks for an entry with the given item ID
func (l *PostgresLedger) HasDownloaded(ctx context.Context, itemID string) (bool, error) {
	sql := "SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE item_id = $1)"

	var exists bool
	if err := l.pool.QueryRow(ctx, sql, itemID).Scan(&exists); err != nil {
		return false, writeFailure(handlePostgreSQLError(err, "check ledger entry"), "failed to check ledger entry")
	}
	return exists, nil
}

// RecordDownloaded upserts the entry; xmax is zero only for freshly inserted rows
func (l *PostgresLedger) RecordDownloaded(ctx context.Context, entry model.LedgerEntry) (bool, error) {
	if entry.ItemID == "" {
		return false, apperrors.New(apperrors.CodeLedgerWrite, "ledger entry has no item ID")
	}
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = time.Now().UTC()
	}

	sql := `INSERT INTO ledger_entries (item_id, channel_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE SET completed_at = EXCLUDED.completed_at
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := l.pool.QueryRow(ctx, sql, entry.ItemID, entry.ChannelID, entry.CompletedAt).Scan(&inserted)
	if err != nil {
		return false, writeFailure(handlePostgreSQLError(err, "record ledger entry"), "failed to record ledger entry")
	}
	return inserted, nil
}

// Entries lists entries ordered by completion time
func (l *PostgresLedger) Entries(ctx context.Context, channelID string) ([]model.LedgerEntry, error) {
	sql := `SELECT item_id, channel_id, completed_at FROM ledger_entries
		WHERE ($1::text = '' OR channel_id = $1)
		ORDER BY completed_at, item_id`

	rows, err := l.pool.Query(ctx, sql, channelID)
	if err != nil {
		return nil, writeFailure(handlePostgreSQLError(err, "list ledger entries"), "failed to list ledger entries")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ItemID, &e.ChannelID, &e.CompletedAt); err != nil {
			return nil, writeFailure(err, "failed to scan ledger row")
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, writeFailure(err, "failed to iterate ledger rows")
	}

	return entries, nil
}

// Close releases the pool
func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}
