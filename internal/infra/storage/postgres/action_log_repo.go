package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
)

const logColumns = `id, finding_key, finding_type, action, channel, status, reason, details, created_at`

// ActionLogRepo implements storage.ActionLog as a durable event table.
type ActionLogRepo struct {
	db       *DB
	capacity int
}

// NewActionLogRepo creates a new PostgreSQL action log.
func NewActionLogRepo(db *DB, capacity int) *ActionLogRepo {
	if capacity <= 0 {
		capacity = storage.DefaultLogCapacity
	}
	return &ActionLogRepo{db: db, capacity: capacity}
}

// Append inserts the entry and trims the key's history in one transaction.
func (r *ActionLogRepo) Append(ctx context.Context, entry domain.LogEntry) error {
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = uow.Rollback()
	}()

	if err := uow.InsertLogEntry(ctx, entry); err != nil {
		return err
	}
	if err := uow.TrimLog(ctx, entry.Key, r.capacity); err != nil {
		return err
	}
	return uow.Commit()
}

// Entries returns the retained entries for key, oldest first.
func (r *ActionLogRepo) Entries(ctx context.Context, key string) ([]domain.LogEntry, error) {
	query := `
		SELECT ` + logColumns + ` FROM action_log
		WHERE finding_key = $1
		ORDER BY created_at ASC, id ASC
	`
	var entries []domain.LogEntry
	if err := r.db.SelectContext(ctx, &entries, query, key); err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, nil
}

// LastSuccessfulSend returns the newest successful send of findingType for key.
func (r *ActionLogRepo) LastSuccessfulSend(
	ctx context.Context,
	key string,
	findingType domain.FindingType,
) (*domain.LogEntry, error) {
	query := `
		SELECT ` + logColumns + ` FROM action_log
		WHERE finding_key = $1 AND finding_type = $2 AND status = $3 AND action IN ($4, $5)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var entry domain.LogEntry
	err := r.db.GetContext(ctx, &entry, query,
		key, findingType, domain.LogStatusSuccess, domain.ActionSendSMS, domain.ActionSendEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last send: %w", err)
	}
	return &entry, nil
}

// DeleteOlderThan removes entries created before threshold.
func (r *ActionLogRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM action_log WHERE created_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to prune action log: %w", err)
	}
	return res.RowsAffected()
}
