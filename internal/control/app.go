package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/boucer/prospek360-recovery-engine/internal/api"
	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/orchestrator"
	"github.com/boucer/prospek360-recovery-engine/internal/core/config"
	"github.com/boucer/prospek360-recovery-engine/internal/core/lifecycle"
	"github.com/boucer/prospek360-recovery-engine/internal/core/worker"
	redisclient "github.com/boucer/prospek360-recovery-engine/internal/infra/redis"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage/memory"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage/postgres"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg         Config
	service     *recovery.Service
	server      *api.Server
	pruner      *worker.Pruner
	store       *memory.MemoryStorage
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Config holds the application configuration.
type Config struct {
	Port      int
	Database  postgres.Config
	Redis     redisclient.Config
	Autopilot config.AutopilotConfig
	Retention config.RetentionConfig

	// Adapters default to the logging implementations when nil.
	Messenger orchestrator.Messenger
	Tasks     orchestrator.TaskCreator
}

// ConfigFrom transforms the loaded file configuration.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		Port:      cfg.Server.Port,
		Database:  cfg.Database,
		Redis:     cfg.Redis,
		Autopilot: cfg.Autopilot,
		Retention: cfg.Retention,
	}
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg Config) (*App, error) {
	ctx := context.Background()
	log := slog.Default()

	var findingRepo storage.FindingRepository
	var actionLog storage.ActionLog
	var locker storage.Locker
	var store *memory.MemoryStorage
	var db *postgres.DB
	var pruner *worker.Pruner
	checks := make(map[string]api.HealthCheck)

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}

		findingRepo = postgres.NewFindingRepo(db)
		logRepo := postgres.NewActionLogRepo(db, cfg.Autopilot.LogCapacity)
		actionLog = logRepo
		if cfg.Retention.ActionLog > 0 {
			pruner = worker.NewPruner(cfg.Retention, logRepo)
		}
		checks["database"] = db.Health
		log.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		findingRepo = memory.NewFindingRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Initialize Redis for the shared lock and, without a database, the log
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using process-local lock", "error", err)
		} else {
			locker = redisclient.NewLocker(redisClient)
			if actionLog == nil {
				actionLog = redisclient.NewActionLog(redisClient, cfg.Autopilot.LogCapacity)
			}
			checks["redis"] = redisClient.Health
			log.Info("Using Redis lock")
		}
	}

	if store == nil && (locker == nil || actionLog == nil) {
		store = memory.NewMemoryStorage()
	}
	if locker == nil {
		locker = memory.NewLocker(store)
	}
	if actionLog == nil {
		actionLog = memory.NewActionLog(store, cfg.Autopilot.LogCapacity)
	}

	// 3. Initialize Autopilot
	messenger := cfg.Messenger
	if messenger == nil {
		messenger = NewLogMessenger()
	}
	var tasks orchestrator.TaskCreator = NewLogTaskCreator()
	if cfg.Tasks != nil {
		tasks = cfg.Tasks
	}
	tasks = NewRetryTaskCreator(tasks, DefaultBackoff())

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.LockTTL = cfg.Autopilot.LockTTL
	orchCfg.CloseAfterFallback = cfg.Autopilot.ShouldCloseAfterFallback()
	orch := orchestrator.New(
		orchCfg,
		locker,
		actionLog,
		messenger,
		tasks,
		recovery.NewStoreCloser(findingRepo, nil),
	)

	// 4. Initialize Service and API
	svcCfg := recovery.DefaultConfig()
	svcCfg.Policy = lifecycle.Policy{Window: cfg.Autopilot.UndoWindow}
	svcCfg.LeverMaxLimit = cfg.Autopilot.LeverMaxLimit
	service := recovery.NewService(svcCfg, findingRepo, actionLog, orch)

	return &App{
		cfg:         cfg,
		service:     service,
		server:      api.NewServer(service, cfg.Port, checks),
		pruner:      pruner,
		store:       store,
		db:          db,
		redisClient: redisClient,
		log:         log,
	}, nil
}

// Service returns the recovery service, for one-shot CLI commands.
func (a *App) Service() *recovery.Service {
	return a.service
}

// Start starts the API server and background workers. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error {
		a.log.Info("Starting API server", "port", a.cfg.Port)
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	if a.pruner != nil {
		g.Go(func() error {
			a.log.Info("Starting action log pruner", "retention", a.cfg.Retention.ActionLog)
			a.pruner.Start(gctx)
			return nil
		})
	}

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}

	return nil
}

// Wait blocks until a component fails or the app is stopped.
func (a *App) Wait() error {
	if a.group == nil {
		return errors.New("app not started")
	}
	return a.group.Wait()
}

// Stop shuts the server down and waits for background workers.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping recovery engine...")

	err := a.server.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		if waitErr := a.group.Wait(); waitErr != nil {
			err = errors.Join(err, waitErr)
		}
	}
	return errors.Join(err, a.Close())
}

// Close releases backend connections.
func (a *App) Close() error {
	var err error
	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warn("Failed to close Redis", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			a.log.Warn("Failed to close database", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}
	return err
}
