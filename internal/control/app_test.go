package control

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/boucer/prospek360-recovery-engine/internal/core/config"
	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage/postgres"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

func memoryConfig() Config {
	return Config{
		Port: 0, // Random port
		Autopilot: config.AutopilotConfig{
			LockTTL:       time.Minute,
			LogCapacity:   50,
			UndoWindow:    5 * time.Minute,
			LeverMaxLimit: 100,
		},
	}
}

func TestApp_Lifecycle(t *testing.T) {
	app, err := NewApp(memoryConfig())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.store == nil || app.db != nil || app.redisClient != nil {
		t.Fatal("expected memory mode without database or redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the server goroutine spin up
	time.Sleep(50 * time.Millisecond)

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_ServiceEndToEnd(t *testing.T) {
	app, err := NewApp(memoryConfig())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer app.Close()

	ctx := context.Background()
	svc := app.Service()
	saved, err := svc.Import(ctx, []*domain.Finding{
		{Type: domain.FindingTypeFollowUpRequired, Severity: 3, ValueCents: 1500, Title: "Rappeler"},
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	res, err := svc.RunForFinding(ctx, saved[0].ID, domain.Contact{Email: "client@example.com"}, recovery.Extras{})
	if err != nil {
		t.Fatalf("RunForFinding failed: %v", err)
	}
	if !res.OK || !res.Closed {
		t.Errorf("expected task + close-out through logging adapters, got %+v", res)
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected finding pending after close-out, got %d", len(pending))
	}
}

func TestApp_UnreachableRedisFallsBack(t *testing.T) {
	cfg := memoryConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer app.Close()

	if app.redisClient != nil {
		t.Error("expected redis to be disabled when unreachable")
	}
}

func TestConfigFrom(t *testing.T) {
	fileCfg := &config.AppConfig{
		Server:    config.ServerConfig{Port: 9000},
		Autopilot: config.AutopilotConfig{LockTTL: time.Second},
	}
	cfg := ConfigFrom(fileCfg)
	if cfg.Port != 9000 || cfg.Autopilot.LockTTL != time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestApp_GracefulShutdownWithPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	cfg := memoryConfig()
	cfg.Database = postgres.Config{URL: url}
	cfg.Retention = config.RetentionConfig{ActionLog: time.Hour, PruneInterval: time.Minute}

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	if app.pruner == nil {
		t.Error("expected pruner with postgres retention")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let it run for a bit
	time.Sleep(500 * time.Millisecond)

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() { done <- app.Stop(stopCtx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}
}
