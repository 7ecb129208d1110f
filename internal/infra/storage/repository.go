package storage

import (
	"context"
	"errors"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

var (
	// ErrFindingNotFound is returned when a finding doesn't exist
	ErrFindingNotFound = errors.New("finding not found")

	// ErrAlreadyHandled is returned when closing a finding that is already closed
	ErrAlreadyHandled = errors.New("finding already handled")

	// ErrNotHandled is returned when reopening a finding that is still open
	ErrNotHandled = errors.New("finding not handled")

	// ErrUndoExpired is returned when the undo window has elapsed
	ErrUndoExpired = errors.New("undo window expired")
)

// DefaultLogCapacity bounds the number of log entries kept per finding key.
const DefaultLogCapacity = 200

// FindingRepository handles finding storage and lifecycle transitions.
//
// Batch transitions are conditional: each one only touches rows matching its
// predicate and returns the rows it actually changed.
type FindingRepository interface {
	// Save inserts or replaces a finding
	Save(ctx context.Context, f *domain.Finding) error

	// Get retrieves a finding by id
	Get(ctx context.Context, id string) (*domain.Finding, error)

	// ListUnhandled retrieves all findings with handled=false
	ListUnhandled(ctx context.Context) ([]*domain.Finding, error)

	// ListHandledAfter retrieves handled findings with handled_at > after,
	// most recent first
	ListHandledAfter(ctx context.Context, after time.Time) ([]*domain.Finding, error)

	// ListHandledBefore retrieves handled findings with handled_at <= before,
	// most recent first, up to limit
	ListHandledBefore(ctx context.Context, before time.Time, limit int) ([]*domain.Finding, error)

	// MarkHandled closes an open finding and clears its queue flags
	MarkHandled(ctx context.Context, id string, at time.Time) error

	// Unhandle reopens a handled finding. A non-zero handledAfter enforces the
	// undo window (ErrUndoExpired unless handled_at > handledAfter); the zero
	// value bypasses it and is reserved for the internal reset path.
	Unhandle(ctx context.Context, id string, handledAfter time.Time) error

	// Enqueue flags unhandled findings for automated handling
	Enqueue(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error)

	// Dequeue clears queue flags on unhandled, queued findings
	Dequeue(ctx context.Context, ids []string) ([]string, error)

	// ExecuteBatch closes unhandled, queued findings
	ExecuteBatch(ctx context.Context, ids []string, at time.Time) ([]*domain.Finding, error)

	// RestoreBatch reopens handled findings with handled_at > handledAfter
	RestoreBatch(ctx context.Context, ids []string, handledAfter time.Time) ([]string, error)
}

// ActionLog is the append-only, per-key bounded history of attempted actions.
type ActionLog interface {
	// Append records an entry under entry.Key
	Append(ctx context.Context, entry domain.LogEntry) error

	// Entries returns the retained entries for key, oldest first
	Entries(ctx context.Context, key string) ([]domain.LogEntry, error)

	// LastSuccessfulSend returns the most recent SUCCESS SEND_SMS/SEND_EMAIL
	// entry for key and findingType, or nil
	LastSuccessfulSend(
		ctx context.Context,
		key string,
		findingType domain.FindingType,
	) (*domain.LogEntry, error)
}

// Locker is a short-lived advisory mutex keyed by finding identity.
type Locker interface {
	// Acquire returns true if no live lock existed for key
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release removes the lock unconditionally
	Release(ctx context.Context, key string) error
}

// LastSuccessfulSend scans entries (oldest first) for the latest successful
// send of findingType. Shared by backends that keep entries in a list.
func LastSuccessfulSend(entries []domain.LogEntry, findingType domain.FindingType) *domain.LogEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Status == domain.LogStatusSuccess && e.Action.IsSend() && e.FindingType == findingType {
			return &e
		}
	}
	return nil
}
