package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
	"github.com/boucer/prospek360-recovery-engine/internal/metrics"
)

// StoreCloser marks findings treated in the finding store.
type StoreCloser struct {
	repo storage.FindingRepository
	now  func() time.Time
}

// NewStoreCloser creates a closer backed by repo.
func NewStoreCloser(repo storage.FindingRepository, now func() time.Time) *StoreCloser {
	if now == nil {
		now = time.Now
	}
	return &StoreCloser{repo: repo, now: now}
}

// MarkTreated closes the finding. Closing an already handled finding is a no-op.
func (c *StoreCloser) MarkTreated(ctx context.Context, findingID string) error {
	err := c.repo.MarkHandled(ctx, findingID, c.now())
	if errors.Is(err, storage.ErrAlreadyHandled) {
		return nil
	}
	if err == nil {
		metrics.FindingTransitions.WithLabelValues("autopilot_close").Inc()
	}
	return err
}
