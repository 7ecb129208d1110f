package control

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/orchestrator"
)

// ErrPermanent marks an adapter error that must not be retried.
var ErrPermanent = errors.New("permanent adapter failure")

// Backoff is an exponential retry policy for task creation.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff keeps the total wait well under the autopilot lock TTL.
// 250ms, 500ms, 1s
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  3,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (b Backoff) GetDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks the error is transient and attempts remain.
func (b Backoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= b.MaxAttempts {
		return false
	}
	return !errors.Is(err, ErrPermanent) && !errors.Is(err, context.Canceled)
}

// RetryTaskCreator retries transient task creation failures.
// Sends are never retried here: a timed-out send may have been delivered.
type RetryTaskCreator struct {
	inner   orchestrator.TaskCreator
	backoff Backoff
	log     *slog.Logger
}

func NewRetryTaskCreator(inner orchestrator.TaskCreator, backoff Backoff) *RetryTaskCreator {
	return &RetryTaskCreator{
		inner:   inner,
		backoff: backoff,
		log:     slog.Default().With("component", "tasks"),
	}
}

func (r *RetryTaskCreator) CreateTask(ctx context.Context, title, description string) (string, error) {
	for attempt := 0; ; attempt++ {
		id, err := r.inner.CreateTask(ctx, title, description)
		if err == nil {
			return id, nil
		}
		if !r.backoff.ShouldRetry(err, attempt+1) {
			return "", err
		}

		delay := r.backoff.GetDelay(attempt)
		r.log.Warn("Task creation failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}
