package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newMergeCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Fold duplicate records into a primary record",
	}
	cmd.AddCommand(
		newMergeTypeCommand(flags, models.EntityTypeCompany),
		newMergeTypeCommand(flags, models.EntityTypePerson),
	)
	return cmd
}

func newMergeTypeCommand(flags *globalFlags, entityType models.EntityType) *cobra.Command {
	return &cobra.Command{
		Use:   lower(entityType) + " <primary-id> <duplicate-id>...",
		Short: "Merge " + lower(entityType) + " duplicates into the primary",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				var (
					result *models.MergeResult
					err    error
				)
				if entityType == models.EntityTypeCompany {
					result, err = a.merger.MergeCompanies(ctx, args[0], args[1:], flags.actor)
				} else {
					result, err = a.merger.MergePeople(ctx, args[0], args[1:], flags.actor)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
}
