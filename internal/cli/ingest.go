package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/intake"
)

func newIngestCommand(flags *globalFlags) *cobra.Command {
	var autoCreate bool

	cmd := &cobra.Command{
		Use:   "ingest [file|-]",
		Short: "Parse contact text and resolve every fragment against canonical records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeInput, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeInput()

			raw, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				result, err := a.intake.Ingest(ctx, intake.IngestRequest{
					Input:      string(raw),
					ActorID:    flags.actor,
					AutoCreate: autoCreate,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&autoCreate, "auto-create", false, "Create records for fragments with no match")
	return cmd
}
