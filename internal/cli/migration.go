package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/migration"
)

func newMigrationCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migration",
		Short: "Migrate legacy deal contacts into canonical records",
	}

	validate := &cobra.Command{
		Use:   "validate <scope>",
		Short: "Check whether a scope's legacy rows are ready to migrate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				result, err := a.pipeline.ValidateReadiness(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}

	var runOpts migration.RunOptions
	run := &cobra.Command{
		Use:   "run <scope>",
		Short: "Migrate a scope's legacy rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				runOpts.ActorID = flags.actor
				result, err := a.pipeline.Run(ctx, args[0], runOpts)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				return result.PartialFailure()
			})
		},
	}
	run.Flags().BoolVar(&runOpts.DryRun, "dry-run", false, "Report what would change without writing")
	run.Flags().BoolVar(&runOpts.SkipDuplicateCheck, "skip-duplicate-check", false, "Create every record without matching")

	var rollbackOpts migration.RollbackOptions
	rollback := &cobra.Command{
		Use:   "rollback <scope>",
		Short: "Undo a scope's migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				rollbackOpts.ActorID = flags.actor
				result, err := a.pipeline.Rollback(ctx, args[0], rollbackOpts)
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	rollback.Flags().BoolVar(&rollbackOpts.DryRun, "dry-run", false, "Report what would be removed without writing")

	cmd.AddCommand(validate, run, rollback)
	return cmd
}
