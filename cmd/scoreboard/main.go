package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/scoreboard/internal/badges"
	"github.com/aevon-lab/scoreboard/internal/circle"
	"github.com/aevon-lab/scoreboard/internal/content"
	corecfg "github.com/aevon-lab/scoreboard/internal/core/config"
	"github.com/aevon-lab/scoreboard/internal/core/idempotency"
	"github.com/aevon-lab/scoreboard/internal/core/storage"
	"github.com/aevon-lab/scoreboard/internal/core/storage/memory"
	"github.com/aevon-lab/scoreboard/internal/core/storage/postgres"
	"github.com/aevon-lab/scoreboard/internal/dispatch"
	"github.com/aevon-lab/scoreboard/internal/identity"
	"github.com/aevon-lab/scoreboard/internal/ingestion"
	"github.com/aevon-lab/scoreboard/internal/jobs"
	"github.com/aevon-lab/scoreboard/internal/migrations"
	"github.com/aevon-lab/scoreboard/internal/milestone"
	"github.com/aevon-lab/scoreboard/internal/notify"
	"github.com/aevon-lab/scoreboard/internal/projection"
	"github.com/aevon-lab/scoreboard/internal/scoring"
	"github.com/aevon-lab/scoreboard/internal/server"
	"github.com/aevon-lab/scoreboard/internal/streak"
	"github.com/aevon-lab/scoreboard/internal/tasks"
	"golang.org/x/sync/errgroup"
)

// backend is the storage plus the platform-owned lookups that come with it.
type backend struct {
	store     storage.Store
	directory identity.Directory
	content   content.Lookup
	views     jobs.ProfileViewSource
	health    server.HealthChecker
}

func main() {
	configPath := flag.String("config", "scoreboard.yaml", "Path to configuration file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	slog.SetDefault(newLogger(cfg.Logging))
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"timezone", cfg.Window.Location().String(),
		"rules_fingerprint", cfg.RuleStore.Fingerprint(),
		"jobs_enabled", cfg.Jobs.Enabled)

	// 3. Initialize Storage
	be, err := openBackend(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer be.store.Close()

	// 4. Initialize Engine
	ruleStore, window := cfg.RuleStore, cfg.Window
	keyer := idempotency.New(window)
	scores := scoring.NewService(be.store, ruleStore, keyer, window, scoring.ContentRewards(be.content))
	streaks := streak.NewTracker(be.store, ruleStore, window)
	badgeEngine := badges.NewEngine(be.store, be.store, be.store, streaks, ruleStore, window)
	taskTracker := tasks.NewTracker(be.store, ruleStore, scores, keyer, window, badgeEngine)
	emitter := notify.NewEmitter(notify.NewStoreSink(be.store, ruleStore), be.content)

	dispatcher := dispatch.New(dispatch.Components{
		Rules:      ruleStore,
		Keyer:      keyer,
		Scores:     scores,
		Events:     be.store,
		Streaks:    streaks,
		Milestones: milestone.NewEvaluator(be.store, ruleStore),
		Tasks:      taskTracker,
		Circles:    circle.NewTracker(be.store, taskTracker, scores, keyer),
		Badges:     badgeEngine,
		Notifier:   emitter,
		Directory:  be.directory,
		Content:    be.content,
	})

	// 5. Initialize Jobs
	maintenance := jobs.NewMaintenance(be.store, be.store, streaks, taskTracker, emitter, be.views, window, jobs.Options{
		EventRetention: cfg.Jobs.EventRetention(),
		DigestSize:     cfg.Jobs.LeaderboardDigestSize,
		Workers:        cfg.Jobs.WorkerCount,
	})
	scheduler := jobs.NewScheduler(cfg.Jobs.Tick(), window, maintenance.Jobs())

	// 6. Initialize Server
	ingestionSvc := ingestion.NewService(dispatcher, be.store, taskTracker, cfg.Server.MaxBodySizeMB)
	projectionSvc := projection.NewService(be.store, be.store, streaks, badgeEngine, taskTracker, ruleStore, window)

	srv := server.New(cfg.Server.Addr(), be.health, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Jobs.Enabled {
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
	} else {
		slog.Info("Job scheduler disabled by config")
	}

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}
	slog.Info("Shutdown complete")
}

func newLogger(cfg corecfg.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openBackend(cfg corecfg.DatabaseConfig) (*backend, error) {
	if cfg.Type == "memory" {
		slog.Warn("Using in-memory storage; state is lost on restart")
		return &backend{
			store:     memory.New(),
			directory: identity.Static{},
			content:   content.Static{},
		}, nil
	}

	adapter, err := postgres.NewAdapter(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunMigrations(adapter.DB(), cfg.AutoMigrate); err != nil {
		adapter.Close()
		return nil, err
	}
	if err := adapter.Prepare(); err != nil {
		adapter.Close()
		return nil, err
	}
	return &backend{
		store:     adapter,
		directory: adapter,
		content:   adapter,
		views:     adapter,
		health:    adapter,
	}, nil
}
