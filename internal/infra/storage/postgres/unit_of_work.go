package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

// UnitOfWork bundles persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// InsertLogEntry appends one action log row.
func (u *UnitOfWork) InsertLogEntry(ctx context.Context, entry domain.LogEntry) error {
	query := `
		INSERT INTO action_log (id, finding_key, finding_type, action, channel, status, reason, details, created_at)
		VALUES (:id, :finding_key, :finding_type, :action, :channel, :status, :reason, :details, :created_at)
	`
	if _, err := u.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// TrimLog keeps only the newest capacity rows for key.
func (u *UnitOfWork) TrimLog(ctx context.Context, key string, capacity int) error {
	query := `
		DELETE FROM action_log
		WHERE finding_key = $1 AND id NOT IN (
			SELECT id FROM action_log
			WHERE finding_key = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`
	if _, err := u.tx.ExecContext(ctx, query, key, capacity); err != nil {
		return fmt.Errorf("failed to trim action log: %w", err)
	}
	return nil
}
