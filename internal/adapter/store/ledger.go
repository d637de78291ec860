package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wayfinder/internal/domain"
)

// LedgerArchive implements domain.LedgerArchive on the ledger table.
// Entries are append-only; the archive is not capped.
type LedgerArchive struct {
	db *sql.DB
}

var _ domain.LedgerArchive = (*LedgerArchive)(nil)

func (a *LedgerArchive) Append(ctx context.Context, e domain.LedgerEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		"INSERT INTO ledger (action_id, action_type, status, resolved_at, body) VALUES (?, ?, ?, ?, ?)",
		int64(e.ID), e.ActionType, string(e.Status), e.ResolvedAt.UTC().Format(time.RFC3339Nano), string(body),
	)
	if err != nil {
		return fmt.Errorf("archive action %d: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (a *LedgerArchive) Recent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, "SELECT body FROM ledger ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	return scanEntries(rows)
}

// ForAction returns every archived entry of one action, oldest first.
func (a *LedgerArchive) ForAction(ctx context.Context, id uint64) ([]domain.LedgerEntry, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT body FROM ledger WHERE action_id = ? ORDER BY seq", int64(id))
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e domain.LedgerEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
