package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/dupqueue"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newQueueCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Work the duplicate review queue",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list <company|person>",
		Short: "List pending duplicate candidates, highest score first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := models.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				pending, err := a.queue.ListPending(ctx, entityType, limit)
				if err != nil {
					return err
				}
				if pending == nil {
					pending = []*models.DuplicateCandidate{}
				}
				return writeJSON(cmd, pending)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum candidates returned")

	var primaryID string
	resolve := &cobra.Command{
		Use:   "resolve <candidate-id> <merged|not_duplicate|skipped>",
		Short: "Resolve a candidate, merging the pair when the resolution is merged",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				result, err := a.queue.Resolve(ctx, dupqueue.ResolveRequest{
					CandidateID: args[0],
					Resolution:  models.Resolution(strings.ToUpper(args[1])),
					PrimaryID:   primaryID,
					ResolvedBy:  flags.actor,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	resolve.Flags().StringVar(&primaryID, "primary", "", "Record that survives a merge")

	var entries []string
	resolveBatch := &cobra.Command{
		Use:   "resolve-batch --candidate <id=resolution[:primary]>...",
		Short: "Resolve several candidates in one transaction, all or nothing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]dupqueue.ResolveRequest, 0, len(entries))
			for _, entry := range entries {
				req, err := parseBatchEntry(entry)
				if err != nil {
					return err
				}
				req.ResolvedBy = flags.actor
				reqs = append(reqs, req)
			}
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				results, err := a.queue.ResolveBatch(ctx, reqs)
				if err != nil {
					return err
				}
				return writeJSON(cmd, results)
			})
		},
	}
	resolveBatch.Flags().StringArrayVar(&entries, "candidate", nil, "Candidate resolution as id=resolution[:primary], repeatable")
	_ = resolveBatch.MarkFlagRequired("candidate")

	get := &cobra.Command{
		Use:   "get <candidate-id>",
		Short: "Show one candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				candidate, err := a.queue.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, candidate)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <candidate-id>",
		Short: "Delete a pending candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				if err := a.queue.Delete(ctx, args[0]); err != nil {
					return err
				}
				return writeJSON(cmd, map[string]string{"deleted": args[0]})
			})
		},
	}

	cmd.AddCommand(list, resolve, resolveBatch, get, del)
	return cmd
}

// parseBatchEntry reads id=resolution[:primary].
func parseBatchEntry(entry string) (dupqueue.ResolveRequest, error) {
	id, rest, ok := strings.Cut(entry, "=")
	if !ok || id == "" || rest == "" {
		return dupqueue.ResolveRequest{}, fmt.Errorf("invalid --candidate %q, expected id=resolution[:primary]", entry)
	}
	resolution, primaryID, _ := strings.Cut(rest, ":")
	return dupqueue.ResolveRequest{
		CandidateID: id,
		Resolution:  models.Resolution(strings.ToUpper(resolution)),
		PrimaryID:   primaryID,
	}, nil
}
