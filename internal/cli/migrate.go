package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thehansentribe/honorsfest/internal/config"
	"github.com/thehansentribe/honorsfest/internal/database"
)

// NewMigrateCommand creates the migrate command with up and down
// subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&dsn, "database-url", "", "PostgreSQL URL (DATABASE_URL)")

	resolve := func(cmd *cobra.Command) (string, error) {
		cfg, err := loadConfig(func(c *config.Config) {
			if cmd.Flags().Changed("database-url") {
				c.DatabaseURL = dsn
			}
		})
		if err != nil {
			return "", err
		}
		if !cfg.UsesPostgres() {
			return "", NewExitError(ExitCommandError, "migrate needs DATABASE_URL or --database-url")
		}
		return cfg.DatabaseURL, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			if err := database.RunMigrations(url); err != nil {
				return WrapExitError(ExitCommandError, "migrate up", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolve(cmd)
			if err != nil {
				return err
			}
			if err := database.RollbackMigrations(url, steps); err != nil {
				return WrapExitError(ExitCommandError, "migrate down", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d step(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
