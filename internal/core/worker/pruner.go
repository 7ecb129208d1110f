package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/config"
	"github.com/boucer/prospek360-recovery-engine/internal/metrics"
)

// LogPruner removes durable action log entries older than a threshold.
type LogPruner interface {
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

// Pruner deletes old action log rows based on retention policy.
type Pruner struct {
	cfg  config.RetentionConfig
	repo LogPruner
	now  func() time.Time
	log  *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(
	cfg config.RetentionConfig,
	repo LogPruner,
) *Pruner {
	return &Pruner{
		cfg:  cfg,
		repo: repo,
		now:  time.Now,
		log:  slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.ActionLog <= 0 {
		return // Retention disabled
	}

	interval := p.cfg.PruneInterval
	if interval <= 0 {
		interval = max(min(p.cfg.ActionLog/10, time.Hour), time.Minute)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := p.now().Add(-p.cfg.ActionLog)

	deleted, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune action log", "threshold", threshold, "error", err)
		return
	}
	if deleted > 0 {
		metrics.ActionLogPruned.Add(float64(deleted))
		p.log.Info("Pruned action log", "deleted", deleted, "threshold", threshold)
	}
}
