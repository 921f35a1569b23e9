package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thehansentribe/honorsfest/internal/config"
	"github.com/thehansentribe/honorsfest/internal/handler"
	"github.com/thehansentribe/honorsfest/internal/i18n"
)

// ServeOptions overrides configuration loaded from the environment.
type ServeOptions struct {
	Addr        string
	DatabaseURL string
	JournalPath string
	SeedFile    string
	Migrate     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registration API server",
		Long: `Run the registration HTTP API.

Configuration comes from the environment (and .env); flags override it.
Without a database URL the catalog lives in memory and is lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.HTTPAddr = opts.Addr
				}
				if cmd.Flags().Changed("database-url") {
					c.DatabaseURL = opts.DatabaseURL
				}
				if cmd.Flags().Changed("journal") {
					c.JournalPath = opts.JournalPath
				}
				if cmd.Flags().Changed("seed") {
					c.SeedFile = opts.SeedFile
				}
				if cmd.Flags().Changed("migrate") {
					c.AutoMigrate = opts.Migrate
				}
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), rootOpts, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (HTTP_ADDR)")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL URL (DATABASE_URL)")
	cmd.Flags().StringVar(&opts.JournalPath, "journal", "", "SQLite seat journal path (JOURNAL_PATH)")
	cmd.Flags().StringVar(&opts.SeedFile, "seed", "", "YAML fixture applied at startup (SEED_FILE)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply migrations before serving (AUTO_MIGRATE)")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(rootOpts, cfg.LogLevel, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "logger", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var reader handler.JournalReader
	if a.journal != nil {
		reader = a.journal
	}
	h := handler.New(a.engine, a.catalog, reader, i18n.NewTranslator(cfg.DefaultLocale), log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(h, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr, "store", describeStore(cfg))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitCommandError, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "graceful shutdown failed", err)
	}
	log.Info("server stopped")
	return nil
}
