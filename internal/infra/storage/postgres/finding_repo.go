package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
)

const findingColumns = `id, batch_id, type, severity, value_cents, title, description,
	recommended_action, handled, handled_at, autopilot_queued, autopilot_queued_at, created_at`

// FindingRepo implements storage.FindingRepository using PostgreSQL.
//
// Every transition is a single conditional UPDATE ... RETURNING so concurrent
// callers touching the same ids cannot both apply it.
type FindingRepo struct {
	db *DB
}

// NewFindingRepo creates a new PostgreSQL finding repository.
func NewFindingRepo(db *DB) *FindingRepo {
	return &FindingRepo{db: db}
}

// Save inserts or replaces a finding.
func (r *FindingRepo) Save(ctx context.Context, f *domain.Finding) error {
	if err := f.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO findings (` + findingColumns + `)
		VALUES (:id, :batch_id, :type, :severity, :value_cents, :title, :description,
			:recommended_action, :handled, :handled_at, :autopilot_queued, :autopilot_queued_at, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			type = EXCLUDED.type,
			severity = EXCLUDED.severity,
			value_cents = EXCLUDED.value_cents,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			recommended_action = EXCLUDED.recommended_action,
			handled = EXCLUDED.handled,
			handled_at = EXCLUDED.handled_at,
			autopilot_queued = EXCLUDED.autopilot_queued,
			autopilot_queued_at = EXCLUDED.autopilot_queued_at
	`
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		return fmt.Errorf("failed to save finding: %w", err)
	}
	return nil
}

// Get retrieves a finding by id.
func (r *FindingRepo) Get(ctx context.Context, id string) (*domain.Finding, error) {
	var f domain.Finding
	err := r.db.GetContext(ctx, &f, `SELECT `+findingColumns+` FROM findings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrFindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get finding: %w", err)
	}
	return &f, nil
}

// ListUnhandled retrieves all open findings.
func (r *FindingRepo) ListUnhandled(ctx context.Context) ([]*domain.Finding, error) {
	var rows []*domain.Finding
	query := `SELECT ` + findingColumns + ` FROM findings WHERE NOT handled ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list unhandled findings: %w", err)
	}
	return rows, nil
}

// ListHandledAfter retrieves findings handled strictly after the cut-off.
func (r *FindingRepo) ListHandledAfter(ctx context.Context, after time.Time) ([]*domain.Finding, error) {
	var rows []*domain.Finding
	query := `
		SELECT ` + findingColumns + ` FROM findings
		WHERE handled AND handled_at > $1
		ORDER BY handled_at DESC, id
	`
	if err := r.db.SelectContext(ctx, &rows, query, after); err != nil {
		return nil, fmt.Errorf("failed to list handled findings: %w", err)
	}
	return rows, nil
}

// ListHandledBefore retrieves findings handled at or before the cut-off.
func (r *FindingRepo) ListHandledBefore(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*domain.Finding, error) {
	var rows []*domain.Finding
	query := `
		SELECT ` + findingColumns + ` FROM findings
		WHERE handled AND handled_at <= $1
		ORDER BY handled_at DESC, id
		LIMIT $2
	`
	// LIMIT NULL means no limit
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	if err := r.db.SelectContext(ctx, &rows, query, before, lim); err != nil {
		return nil, fmt.Errorf("failed to list confirmed findings: %w", err)
	}
	return rows, nil
}

// MarkHandled closes an open finding and clears its queue flags.
func (r *FindingRepo) MarkHandled(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE findings
		SET handled = TRUE, handled_at = $2, autopilot_queued = FALSE, autopilot_queued_at = NULL
		WHERE id = $1 AND NOT handled
		RETURNING id
	`
	var updated string
	err := r.db.GetContext(ctx, &updated, query, id, at)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to mark finding handled: %w", err)
	}

	handled, err := r.handledState(ctx, id)
	if err != nil {
		return err
	}
	if handled {
		return storage.ErrAlreadyHandled
	}
	return fmt.Errorf("failed to mark finding handled: concurrent update on %s", id)
}

// Unhandle reopens a handled finding, enforcing the window when handledAfter is set.
func (r *FindingRepo) Unhandle(ctx context.Context, id string, handledAfter time.Time) error {
	query := `
		UPDATE findings
		SET handled = FALSE, handled_at = NULL
		WHERE id = $1 AND handled AND ($2::timestamptz IS NULL OR handled_at > $2)
		RETURNING id
	`
	cutoff := sql.NullTime{Time: handledAfter, Valid: !handledAfter.IsZero()}
	var updated string
	err := r.db.GetContext(ctx, &updated, query, id, cutoff)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to unhandle finding: %w", err)
	}

	handled, err := r.handledState(ctx, id)
	if err != nil {
		return err
	}
	if !handled {
		return storage.ErrNotHandled
	}
	return storage.ErrUndoExpired
}

// handledState classifies why a conditional update touched no row.
func (r *FindingRepo) handledState(ctx context.Context, id string) (bool, error) {
	var handled bool
	err := r.db.GetContext(ctx, &handled, `SELECT handled FROM findings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrFindingNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get finding state: %w", err)
	}
	return handled, nil
}

// Enqueue flags open findings for automated handling.
func (r *FindingRepo) Enqueue(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE findings
		SET autopilot_queued = TRUE, autopilot_queued_at = $2
		WHERE id = ANY($1) AND NOT handled
		RETURNING ` + findingColumns
	var rows []*domain.Finding
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids), at); err != nil {
		return nil, fmt.Errorf("failed to enqueue findings: %w", err)
	}
	return rows, nil
}

// Dequeue clears queue flags on open, queued findings.
func (r *FindingRepo) Dequeue(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE findings
		SET autopilot_queued = FALSE, autopilot_queued_at = NULL
		WHERE id = ANY($1) AND NOT handled AND autopilot_queued
		RETURNING id
	`
	var updated []string
	if err := r.db.SelectContext(ctx, &updated, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to dequeue findings: %w", err)
	}
	return updated, nil
}

// ExecuteBatch closes open, queued findings.
func (r *FindingRepo) ExecuteBatch(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE findings
		SET handled = TRUE, handled_at = $2, autopilot_queued = FALSE, autopilot_queued_at = NULL
		WHERE id = ANY($1) AND NOT handled AND autopilot_queued
		RETURNING ` + findingColumns
	var rows []*domain.Finding
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids), at); err != nil {
		return nil, fmt.Errorf("failed to execute findings: %w", err)
	}
	return rows, nil
}

// RestoreBatch reopens findings handled after the cut-off.
func (r *FindingRepo) RestoreBatch(ctx context.Context, ids []string, handledAfter time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE findings
		SET handled = FALSE, handled_at = NULL
		WHERE id = ANY($1) AND handled AND handled_at > $2
		RETURNING id
	`
	var restored []string
	if err := r.db.SelectContext(ctx, &restored, query, pq.Array(ids), handledAfter); err != nil {
		return nil, fmt.Errorf("failed to restore findings: %w", err)
	}
	return restored, nil
}
