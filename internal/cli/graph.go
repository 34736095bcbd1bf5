package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
)

func newGraphCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the merge lineage projection",
	}

	lineage := &cobra.Command{
		Use:   "lineage <company|person> <id>",
		Short: "List every record merged into id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjection(cmd, flags, args, func(ctx context.Context, a *app, entityType models.EntityType) error {
				edges, err := a.projector.Lineage(ctx, entityType, args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd, edges)
			})
		},
	}

	survivor := &cobra.Command{
		Use:   "survivor <company|person> <id>",
		Short: "Follow merges from id to the record that absorbed it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjection(cmd, flags, args, func(ctx context.Context, a *app, entityType models.EntityType) error {
				id, err := a.projector.Survivor(ctx, entityType, args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]string{"id": args[1], "survivor": id})
			})
		},
	}

	cmd.AddCommand(lineage, survivor)
	return cmd
}

func withProjection(cmd *cobra.Command, flags *globalFlags, args []string, fn func(ctx context.Context, a *app, entityType models.EntityType) error) error {
	entityType, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
		if a.projector == nil {
			return fmt.Errorf("graph projection is disabled, set GRAPH_PROJECTION_ENABLED=true")
		}
		return fn(ctx, a, entityType)
	})
}
