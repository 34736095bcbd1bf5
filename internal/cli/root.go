// Package cli is the fern command line. Every command prints JSON to stdout
// and logs to stderr.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	memory  bool
	seed    string
	envFile string
	actor   string
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "fern",
		Short: "Canonical company and person identity resolution",
		Long: `fern parses contact text, matches it against canonical companies and
people, merges duplicates, works the duplicate review queue and migrates
legacy deal contacts into canonical records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&flags.memory, "memory", false, "Use an in-memory store instead of PostgreSQL")
	root.PersistentFlags().StringVar(&flags.seed, "seed", "", "JSON fixture loaded into the in-memory store")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file to load")
	root.PersistentFlags().StringVar(&flags.actor, "as", "", "Actor recorded on writes")

	root.AddCommand(
		newDBCommand(flags),
		newParseCommand(),
		newIngestCommand(flags),
		newMatchCommand(flags),
		newMergeCommand(flags),
		newQueueCommand(flags),
		newMigrationCommand(flags),
		newEventsCommand(flags),
		newGraphCommand(flags),
	)
	return root
}
