package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/config"
)

type mockLogPruner struct {
	mu         sync.Mutex
	thresholds []time.Time
	err        error
}

func (m *mockLogPruner) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = append(m.thresholds, threshold)
	return 3, m.err
}

func (m *mockLogPruner) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.thresholds)
}

func TestPruner_DisabledReturnsImmediately(t *testing.T) {
	repo := &mockLogPruner{}
	p := NewPruner(config.RetentionConfig{}, repo)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return when retention is disabled")
	}
	if repo.calls() != 0 {
		t.Errorf("expected no prune, got %d", repo.calls())
	}
}

func TestPruner_PrunesWithThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockLogPruner{}
	p := NewPruner(config.RetentionConfig{ActionLog: 24 * time.Hour, PruneInterval: time.Hour}, repo)
	p.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for repo.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected initial prune")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	<-done

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if want := now.Add(-24 * time.Hour); !repo.thresholds[0].Equal(want) {
		t.Errorf("expected threshold %s, got %s", want, repo.thresholds[0])
	}
}

func TestPruner_ErrorIsLogged(t *testing.T) {
	repo := &mockLogPruner{err: errors.New("db down")}
	p := NewPruner(config.RetentionConfig{ActionLog: time.Hour}, repo)

	// Must not panic.
	p.prune(context.Background())
	if repo.calls() != 1 {
		t.Errorf("expected 1 call, got %d", repo.calls())
	}
}
