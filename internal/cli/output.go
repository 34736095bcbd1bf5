package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// lower renders an entity type as a subcommand name.
func lower(entityType models.EntityType) string {
	return strings.ToLower(string(entityType))
}
