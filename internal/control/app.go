package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/rescue/internal/core/config"
	"github.com/vietddude/rescue/internal/core/worker"
	"github.com/vietddude/rescue/internal/emitter"
	"github.com/vietddude/rescue/internal/health"
	"github.com/vietddude/rescue/internal/infra/ai"
	redisclient "github.com/vietddude/rescue/internal/infra/redis"
	"github.com/vietddude/rescue/internal/infra/storage"
	"github.com/vietddude/rescue/internal/infra/storage/bolt"
	"github.com/vietddude/rescue/internal/infra/storage/memory"
	"github.com/vietddude/rescue/internal/infra/storage/postgres"
	"github.com/vietddude/rescue/internal/recovery"
)

const artifactTTL = 24 * time.Hour

// App is the main application struct that owns the recovery engine and the
// services around it.
type App struct {
	cfg          *config.AppConfig
	configPath   string
	engine       *recovery.Engine
	archive      storage.ArchiveRepository
	artifacts    storage.ArtifactStore
	redisClient  *redisclient.Client
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// AppOption configures an App.
type AppOption func(*App)

// WithConfigPath enables hot reload of the recovery tunables from path.
func WithConfigPath(path string) AppOption {
	return func(a *App) { a.configPath = path }
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg *config.AppConfig, opts ...AppOption) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	// 1. Initialize Redis
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			if cfg.Events.Publish {
				return nil, err
			}
			a.log.Warn("Failed to connect to Redis, using in-memory artifact cache", "error", err)
		} else {
			a.redisClient = client
		}
	}

	// 2. Initialize Archive
	archive, err := OpenArchive(cfg.Archive)
	if err != nil {
		a.closeRedis()
		return nil, err
	}
	a.archive = archive

	// 3. Initialize Emitters
	sinks := make([]emitter.Emitter, 0, 2)
	if cfg.Events.Log {
		sinks = append(sinks, emitter.NewAsync(emitter.NewLogEmitter(a.log), "log", cfg.Events.QueueSize))
	}
	if cfg.Events.Publish && a.redisClient != nil {
		pub := redisclient.NewEventPublisher(a.redisClient, cfg.Redis.Channel)
		sinks = append(sinks, emitter.NewAsync(pub, "redis", cfg.Events.QueueSize))
	}

	// 4. Initialize Engine
	a.engine = recovery.NewEngine(cfg.Recovery,
		recovery.WithEmitter(emitter.NewMulti(sinks...)),
		recovery.WithLogger(a.log),
	)

	deps := recovery.BuiltinDeps{}
	gen, err := ai.New(cfg.AI)
	switch {
	case errors.Is(err, ai.ErrDisabled):
		a.log.Info("No AI provider configured, simplified regeneration disabled")
	case err != nil:
		a.closeAll()
		return nil, fmt.Errorf("failed to init ai provider: %w", err)
	default:
		deps.Generator = gen
		a.log.Info("Using AI provider", "provider", cfg.AI.Provider, "model", cfg.AI.Model)
	}
	if a.redisClient != nil {
		a.artifacts = redisclient.NewArtifactCache(a.redisClient, artifactTTL)
	} else {
		a.artifacts = memory.NewArtifactCache()
	}
	deps.Releaser = a.artifacts
	if err := a.engine.RegisterBuiltins(deps); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("failed to register strategies: %w", err)
	}

	// 5. Initialize Pruner
	a.pruner = worker.NewPruner(a.engine.Ledger(), cfg.Recovery.Retention, cfg.Recovery.SweepInterval,
		worker.WithArchive(archive),
	)

	// 6. Initialize Health Monitor
	a.healthMon = health.NewMonitor(a.engine, health.Thresholds{
		DegradedUnresolved: cfg.Health.DegradedUnresolved,
		CriticalUnresolved: cfg.Health.CriticalUnresolved,
	}, cfg.Health.CheckInterval)
	if a.redisClient != nil {
		a.healthMon.AddCheck("redis", a.redisClient.Ping)
	}
	if archive != nil {
		a.healthMon.AddCheck("archive", func(ctx context.Context) error {
			_, err := archive.Count(ctx)
			return err
		})
	}
	a.healthServer = health.NewServer(a.healthMon, archive, cfg.Server.Port)

	return a, nil
}

// OpenArchive opens the archive named by cfg.Driver. It returns nil when archiving is disabled.
func OpenArchive(cfg config.ArchiveConfig) (storage.ArchiveRepository, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(context.Background(), cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL archive")
		return postgres.NewArchiveRepo(db), nil
	case "bolt":
		repo, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("Using bolt archive", "path", cfg.Path)
		return repo, nil
	case "memory":
		slog.Info("Using memory archive")
		return memory.NewArchiveRepo(), nil
	default:
		return nil, nil
	}
}

// Engine returns the recovery engine.
func (a *App) Engine() *recovery.Engine { return a.engine }

// Artifacts returns the cache phase runners store intermediate artifacts in.
// The resource cleanup strategy releases from the same cache.
func (a *App) Artifacts() storage.ArtifactStore { return a.artifacts }

// Handler returns the HTTP routes.
func (a *App) Handler() http.Handler { return a.healthServer.Handler() }

// Start starts the background services. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Pruner
	go func() {
		defer close(a.done)
		a.pruner.Start(ctx)
	}()

	// Watch config for tunable changes
	if a.configPath != "" {
		go func() {
			err := config.Watch(ctx, a.configPath, func(cfg *config.AppConfig) {
				a.engine.UpdateConfig(cfg.Recovery.AsUpdate())
			})
			if err != nil {
				a.log.Warn("Config hot reload disabled", "error", err)
			}
		}()
	}

	a.log.Info("Recovery service started", "port", a.cfg.Server.Port, "strategies", len(a.engine.Strategies()))
	return nil
}

// Stop stops the app, archiving what the ledger still holds.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping recovery service...")

	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	var errs []error
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}

	// Stop the engine before archiving so no attempt lands after the snapshot.
	if err := a.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if a.archive != nil {
		if history := a.engine.ErrorHistory(); len(history) > 0 {
			if err := a.archive.Save(ctx, history); err != nil {
				errs = append(errs, fmt.Errorf("archive: %w", err))
			}
		}
		if err := a.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive close: %w", err))
		}
	}
	a.closeRedis()
	return errors.Join(errs...)
}

// closeAll releases what NewApp opened before it failed.
func (a *App) closeAll() {
	_ = a.engine.Close()
	if a.archive != nil {
		_ = a.archive.Close()
	}
	a.closeRedis()
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
	a.redisClient = nil
}
