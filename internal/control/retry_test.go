package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type flakyTasks struct {
	failures int
	err      error
	calls    int
}

func (f *flakyTasks) CreateTask(ctx context.Context, title, description string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return "task-ok", nil
}

func fastBackoff() Backoff {
	return Backoff{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3}
}

func TestBackoff_GetDelay(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second, 2 * time.Second}
	for attempt, d := range want {
		if got := b.GetDelay(attempt); got != d {
			t.Errorf("attempt %d: expected %s, got %s", attempt, d, got)
		}
	}
}

func TestRetryTaskCreator(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantErr   bool
		wantCalls int
	}{
		{"first try", 0, nil, false, 1},
		{"recovers after transient", 2, errors.New("503"), false, 3},
		{"gives up after max attempts", 5, errors.New("503"), true, 3},
		{"permanent is not retried", 5, fmt.Errorf("bad request: %w", ErrPermanent), true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyTasks{failures: tt.failures, err: tt.err}
			r := NewRetryTaskCreator(inner, fastBackoff())

			id, err := r.CreateTask(context.Background(), "title", "desc")
			if tt.wantErr != (err != nil) {
				t.Fatalf("expected error=%t, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && id != "task-ok" {
				t.Errorf("expected task id, got %q", id)
			}
			if inner.calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, inner.calls)
			}
		})
	}
}

func TestRetryTaskCreator_ContextCancelled(t *testing.T) {
	inner := &flakyTasks{failures: 5, err: errors.New("503")}
	r := NewRetryTaskCreator(inner, Backoff{InitialDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.CreateTask(ctx, "t", "d"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
