package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/arylic-gateway/internal/infrastructure/database"
)

// migrateTimeout bounds a single migrate subcommand.
const migrateTimeout = 30 * time.Second

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the known-device database schema",
		Long: `Inspect or change the schema of the known-device store.

The database path comes from the same configuration as serve. The gateway
applies pending migrations itself on start; these commands are for
inspection and rollback.`,
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDatabase(func(ctx context.Context, db *database.DB, out io.Writer) error {
				status, err := db.MigrationStatus(ctx)
				if err != nil {
					return err
				}
				printStatus(out, db.Path(), status)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDatabase(func(ctx context.Context, db *database.DB, out io.Writer) error {
				before, err := db.MigrationStatus(ctx)
				if err != nil {
					return err
				}
				if err := db.Migrate(ctx); err != nil {
					return err
				}
				for _, m := range before.Pending {
					fmt.Fprintf(out, "applied %s %s\n", m.Version, m.Name)
				}
				if len(before.Pending) == 0 {
					fmt.Fprintln(out, "schema is up to date")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the newest applied migration",
			Args:  cobra.NoArgs,
			RunE: withDatabase(func(ctx context.Context, db *database.DB, out io.Writer) error {
				m, err := db.MigrateDown(ctx)
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintln(out, "nothing to roll back")
					return nil
				}
				fmt.Fprintf(out, "rolled back %s %s\n", m.Version, m.Name)
				return nil
			}),
		},
	)
	return migrate
}

// withDatabase opens the configured database around fn. The store does not
// need to be enabled for serve; only its path is used.
func withDatabase(fn func(ctx context.Context, db *database.DB, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(resolveConfigPath(configPath))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is not set")
		}

		db, err := database.Open(database.FromConfig(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close() //nolint:errcheck // read-mostly CLI

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()
		return fn(ctx, db, cmd.OutOrStdout())
	}
}

func printStatus(out io.Writer, path string, status database.SchemaStatus) {
	fmt.Fprintf(out, "database: %s\n", path)
	current := status.Current()
	if current == "" {
		current = "none"
	}
	fmt.Fprintf(out, "current:  %s\n\n", current)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED")
	for _, m := range status.Applied {
		fmt.Fprintf(w, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s\tpending\t-\n", m.Version)
	}
	w.Flush() //nolint:errcheck // writes to the command output
}
