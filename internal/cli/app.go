package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thehansentribe/honorsfest/internal/config"
	"github.com/thehansentribe/honorsfest/internal/database"
	"github.com/thehansentribe/honorsfest/internal/journal"
	"github.com/thehansentribe/honorsfest/internal/repository"
	"github.com/thehansentribe/honorsfest/internal/seed"
	"github.com/thehansentribe/honorsfest/internal/service"
)

// app is the wired service: catalog store, optional journal, engine and
// catalog service.
type app struct {
	store   repository.Store
	journal *journal.Journal
	engine  *service.Engine
	catalog *service.CatalogService
	closers []func()
}

// openApp connects storage, rebuilds the seat state and applies the seed
// file when one is configured.
func openApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.UsesPostgres() {
		pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.DefaultPoolOptions())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "database", err)
		}
		pg := repository.NewPostgres(pool)
		a.closers = append(a.closers, pg.Close)
		a.store = pg
		log.Info("connected to postgres")
		if cfg.AutoMigrate {
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, WrapExitError(ExitCommandError, "migrate", err)
			}
		}
	} else {
		mem := repository.NewMemory()
		a.closers = append(a.closers, mem.Close)
		a.store = mem
		log.Warn("DATABASE_URL not set, using in-memory catalog")
	}

	opts := []service.Option{service.WithLogger(log)}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "journal", err)
		}
		a.journal = j
		a.closers = append(a.closers, func() {
			if err := j.Close(); err != nil {
				log.Warn("journal close failed", "err", err)
			}
		})
		opts = append(opts, service.WithRecorder(j))
		log.Info("seat journal open", "path", cfg.JournalPath)
	}

	a.engine = service.NewEngine(a.store, opts...)
	a.catalog = service.NewCatalogService(a.store, a.engine)
	if err := a.engine.Rebuild(ctx); err != nil {
		return nil, WrapExitError(ExitCommandError, "rebuild seat state", err)
	}

	if cfg.SeedFile != "" {
		if _, err := a.seed(ctx, cfg.SeedFile, log); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) seed(ctx context.Context, path string, log *slog.Logger) (*seed.Result, error) {
	fx, err := seed.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "seed", err)
	}
	res, err := seed.Apply(ctx, a.catalog, a.engine, fx)
	if err != nil {
		return res, WrapExitError(ExitFailure, "seed", err)
	}
	log.Info("seed applied", "file", path, "classes", len(res.Classes),
		"users", len(res.Users), "registrations", res.Registrations, "waitlisted", res.Waitlisted)
	return res, nil
}

// Close releases storage in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadConfig(override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, WrapExitError(ExitCommandError, "config", err)
		}
	}
	return cfg, nil
}

func describeStore(cfg *config.Config) string {
	if cfg.UsesPostgres() {
		return "postgres"
	}
	return fmt.Sprintf("memory (journal=%t)", cfg.JournalPath != "")
}
