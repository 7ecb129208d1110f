// Package recovery exposes the finding lifecycle and autopilot operations
// used by the HTTP API and the CLI.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/orchestrator"
	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/core/lifecycle"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
	"github.com/boucer/prospek360-recovery-engine/internal/metrics"
)

// Config holds service settings.
type Config struct {
	Policy            lifecycle.Policy // Undo window (default: 5m)
	LeverDefaultLimit int              // Candidates returned when limit <= 0 (default: 10)
	LeverMaxLimit     int              // Upper bound on candidates (default: 100)
	Now               func() time.Time // Clock (default: time.Now)
}

// DefaultConfig returns default service configuration.
func DefaultConfig() Config {
	return Config{
		Policy:            lifecycle.DefaultPolicy(),
		LeverDefaultLimit: 10,
		LeverMaxLimit:     100,
		Now:               time.Now,
	}
}

// Service coordinates the finding store, action log and orchestrator.
type Service struct {
	cfg     Config
	repo    storage.FindingRepository
	actions storage.ActionLog
	orch    *orchestrator.Orchestrator
	log     *slog.Logger
}

// NewService creates a new recovery service.
func NewService(
	cfg Config,
	repo storage.FindingRepository,
	actions storage.ActionLog,
	orch *orchestrator.Orchestrator,
) *Service {
	def := DefaultConfig()
	if cfg.LeverDefaultLimit <= 0 {
		cfg.LeverDefaultLimit = def.LeverDefaultLimit
	}
	if cfg.LeverMaxLimit <= 0 {
		cfg.LeverMaxLimit = def.LeverMaxLimit
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Service{
		cfg:     cfg,
		repo:    repo,
		actions: actions,
		orch:    orch,
		log:     slog.Default().With("component", "recovery"),
	}
}

// Policy returns the undo window policy in use.
func (s *Service) Policy() lifecycle.Policy {
	return s.cfg.Policy
}

// Import stores new findings, assigning ids and creation times when absent.
func (s *Service) Import(ctx context.Context, findings []*domain.Finding) ([]*domain.Finding, error) {
	now := s.cfg.Now()
	out := make([]*domain.Finding, 0, len(findings))
	for _, f := range findings {
		f = f.Clone()
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		if err := s.repo.Save(ctx, f); err != nil {
			return out, fmt.Errorf("failed to save finding %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	metrics.FindingTransitions.WithLabelValues("import").Add(float64(len(out)))
	return out, nil
}

// Get returns a single finding.
func (s *Service) Get(ctx context.Context, id string) (*domain.Finding, error) {
	return s.repo.Get(ctx, id)
}

// EnqueueResult summarizes an enqueue call.
type EnqueueResult struct {
	QueuedCount      int      `json:"queued_count"`
	QueuedValueCents int64    `json:"queued_value_cents"`
	IDs              []string `json:"ids"`
}

// Enqueue flags unhandled findings for automated handling.
func (s *Service) Enqueue(ctx context.Context, ids []string) (*EnqueueResult, error) {
	queued, err := s.repo.Enqueue(ctx, ids, s.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue findings: %w", err)
	}
	res := &EnqueueResult{IDs: []string{}}
	for _, f := range queued {
		res.QueuedCount++
		res.QueuedValueCents += f.ValueCents
		res.IDs = append(res.IDs, f.ID)
	}
	metrics.FindingTransitions.WithLabelValues("enqueue").Add(float64(res.QueuedCount))
	return res, nil
}

// DequeueResult summarizes a dequeue call.
type DequeueResult struct {
	DequeuedCount int      `json:"dequeued_count"`
	IDs           []string `json:"ids"`
}

// Dequeue removes findings from the autopilot queue.
func (s *Service) Dequeue(ctx context.Context, ids []string) (*DequeueResult, error) {
	dequeued, err := s.repo.Dequeue(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue findings: %w", err)
	}
	metrics.FindingTransitions.WithLabelValues("dequeue").Add(float64(len(dequeued)))
	return &DequeueResult{DequeuedCount: len(dequeued), IDs: nonNil(dequeued)}, nil
}

// ExecuteResult summarizes a batch close.
type ExecuteResult struct {
	HandledCount    int      `json:"handled_count"`
	TotalValueCents int64    `json:"total_value_cents"`
	IDs             []string `json:"ids"`
}

// Execute closes queued findings. It does not run the autopilot pipeline.
func (s *Service) Execute(ctx context.Context, ids []string) (*ExecuteResult, error) {
	closed, err := s.repo.ExecuteBatch(ctx, ids, s.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to execute findings: %w", err)
	}
	res := &ExecuteResult{IDs: []string{}}
	for _, f := range closed {
		res.HandledCount++
		res.TotalValueCents += f.ValueCents
		res.IDs = append(res.IDs, f.ID)
	}
	metrics.FindingTransitions.WithLabelValues("execute").Add(float64(res.HandledCount))
	metrics.RecoveredValueCents.Add(float64(res.TotalValueCents))
	s.log.Info("Executed findings", "count", res.HandledCount, "valueCents", res.TotalValueCents)
	return res, nil
}

// UndoResult summarizes a batch undo.
type UndoResult struct {
	RestoredCount int      `json:"restored_count"`
	IDs           []string `json:"ids"`
}

// Undo reopens handled findings still inside the undo window.
func (s *Service) Undo(ctx context.Context, ids []string) (*UndoResult, error) {
	restored, err := s.repo.RestoreBatch(ctx, ids, s.cfg.Policy.HandledAfter(s.cfg.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to undo findings: %w", err)
	}
	metrics.FindingTransitions.WithLabelValues("undo").Add(float64(len(restored)))
	return &UndoResult{RestoredCount: len(restored), IDs: nonNil(restored)}, nil
}

// UndoOne reopens a single finding, reporting why it cannot be undone.
func (s *Service) UndoOne(ctx context.Context, id string) error {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !f.Handled {
		return storage.ErrNotHandled
	}

	now := s.cfg.Now()
	if stage := s.cfg.Policy.Classify(f, now); !lifecycle.CanTransition(stage, lifecycle.StageOpen) {
		return fmt.Errorf("%w: %w", storage.ErrUndoExpired, lifecycle.ErrInvalidTransition)
	}

	// The store re-checks the cut-off atomically.
	if err := s.repo.Unhandle(ctx, id, s.cfg.Policy.HandledAfter(now)); err != nil {
		return err
	}
	metrics.FindingTransitions.WithLabelValues("undo").Inc()
	return nil
}

// Reset reopens a handled finding regardless of the undo window.
// Admin-only: reached from the reset-finding command, never from the API.
func (s *Service) Reset(ctx context.Context, id string) error {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	stage := s.cfg.Policy.Classify(f, s.cfg.Now())

	// Zero cut-off bypasses the undo window on purpose.
	if err := s.repo.Unhandle(ctx, id, time.Time{}); err != nil {
		return err
	}
	metrics.FindingTransitions.WithLabelValues("reset").Inc()
	if lifecycle.CanTransition(stage, lifecycle.StageOpen) {
		s.log.Info("Finding reset inside undo window", "findingID", id, "stage", stage)
		return nil
	}
	s.log.Warn("Finding reset outside undo window", "findingID", id, "stage", stage)
	return nil
}

// HandledItem is a handled finding with its position in the undo window.
type HandledItem struct {
	Finding   *domain.Finding `json:"finding"`
	Stage     lifecycle.Stage `json:"stage"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ListPending returns handled findings that can still be undone.
func (s *Service) ListPending(ctx context.Context) ([]HandledItem, error) {
	now := s.cfg.Now()
	findings, err := s.repo.ListHandledAfter(ctx, s.cfg.Policy.HandledAfter(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending findings: %w", err)
	}
	return s.items(findings, now), nil
}

// ListConfirmed returns the most recent handled findings past the window.
func (s *Service) ListConfirmed(ctx context.Context, limit int) ([]HandledItem, error) {
	now := s.cfg.Now()
	findings, err := s.repo.ListHandledBefore(ctx, s.cfg.Policy.HandledAfter(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed findings: %w", err)
	}
	return s.items(findings, now), nil
}

func (s *Service) items(findings []*domain.Finding, now time.Time) []HandledItem {
	out := make([]HandledItem, 0, len(findings))
	for _, f := range findings {
		out = append(out, HandledItem{
			Finding:   f,
			Stage:     s.cfg.Policy.Classify(f, now),
			ExpiresAt: s.cfg.Policy.ExpiresAt(*f.HandledAt),
		})
	}
	return out
}

// RunOrchestrator runs the autopilot pipeline for a caller-built context.
func (s *Service) RunOrchestrator(ctx context.Context, c *domain.AutoPilotContext) *orchestrator.Result {
	return s.orch.Run(ctx, c)
}

// Extras carries action-specific values that are not stored on the finding.
type Extras struct {
	InvoiceAmountCents int64  `json:"invoice_amount_cents,omitempty"`
	PaymentLink        string `json:"payment_link,omitempty"`
	ActivationLink     string `json:"activation_link,omitempty"`
	BusinessName       string `json:"business_name,omitempty"`
}

// RunForFinding loads a stored finding and runs the autopilot pipeline on it.
func (s *Service) RunForFinding(
	ctx context.Context,
	id string,
	contact domain.Contact,
	extras Extras,
) (*orchestrator.Result, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c := domain.NewAutoPilotContext(f, contact)
	c.InvoiceAmountCents = extras.InvoiceAmountCents
	if c.InvoiceAmountCents == 0 && f.Type == domain.FindingTypePaymentPending {
		c.InvoiceAmountCents = f.ValueCents
	}
	c.PaymentLink = extras.PaymentLink
	c.ActivationLink = extras.ActivationLink
	c.BusinessName = extras.BusinessName
	return s.orch.Run(ctx, c), nil
}

// ActionLog returns the retained log entries for a finding key.
func (s *Service) ActionLog(ctx context.Context, key string) ([]domain.LogEntry, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("empty key")
	}
	entries, err := s.actions.Entries(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read action log: %w", err)
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	return entries, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
