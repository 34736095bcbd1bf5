package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/platform/database"
)

func newDBCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the PostgreSQL schema",
	}

	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSchema(cmd.Context(), flags, func(ctx context.Context, a *app, ms *database.MigrationService) error {
				if steps != 0 {
					if err := ms.Steps(ctx, a.db, a.cfg.DatabaseName, steps); err != nil {
						return err
					}
				} else if err := ms.MigrateDB(ctx, a.db, a.cfg.DatabaseName); err != nil {
					return err
				}
				status, err := ms.Status(ctx, a.db, a.cfg.DatabaseName)
				if err != nil {
					return err
				}
				return writeJSON(cmd, status)
			})
		},
	}
	migrate.Flags().IntVar(&steps, "steps", 0, "Migrate n versions up, or down when negative, instead of to the configured version")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSchema(cmd.Context(), flags, func(ctx context.Context, a *app, ms *database.MigrationService) error {
				status, err := ms.Status(ctx, a.db, a.cfg.DatabaseName)
				if err != nil {
					return err
				}
				return writeJSON(cmd, status)
			})
		},
	}

	cmd.AddCommand(migrate, status)
	return cmd
}

func withSchema(ctx context.Context, flags *globalFlags, fn func(ctx context.Context, a *app, ms *database.MigrationService) error) error {
	if flags.memory {
		return fmt.Errorf("schema commands need PostgreSQL, drop --memory")
	}
	return withApp(ctx, flags, func(ctx context.Context, a *app) error {
		ms := database.NewMigrationService(a.logger, database.MigrationConfig{
			FolderPath:   a.cfg.DatabaseMigrationFolderPath,
			Version:      uint(max(a.cfg.DatabaseMigrationVersion, 0)),
			Force:        a.cfg.DatabaseMigrationForce,
			AutoRollback: a.cfg.DatabaseMigrationAutoRollback,
		})
		return fn(ctx, a, ms)
	})
}
