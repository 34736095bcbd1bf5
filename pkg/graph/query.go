package graph

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// MergeEdge is one MERGED_INTO hop. Depth counts hops from the queried record.
type MergeEdge struct {
	ID          string `json:"id"`
	MergedInto  string `json:"merged_into"`
	AuditID     string `json:"audit_id"`
	PerformedAt string `json:"performed_at"`
	Depth       int    `json:"depth"`
}

// Lineage lists every record merged into id, directly or through a chain of
// earlier merges, nearest first.
func (p *Projector) Lineage(ctx context.Context, entityType models.EntityType, id string) ([]MergeEdge, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Lineage")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH path = (d:%[1]s)-[:%[2]s*1..]->(p:%[1]s {id: $id})
		WITH d, path, relationships(path)[0] AS r, nodes(path)[1] AS into
		RETURN d.id AS id, into.id AS merged_into, r.audit_id AS audit_id,
			r.performed_at AS performed_at, size(relationships(path)) AS depth
		ORDER BY depth, id
	`, entityType.Label(), relMergedInto)

	rows, err := p.runner.Read(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	edges := make([]MergeEdge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, MergeEdge{
			ID:          asString(row["id"]),
			MergedInto:  asString(row["merged_into"]),
			AuditID:     asString(row["audit_id"]),
			PerformedAt: asString(row["performed_at"]),
			Depth:       asInt(row["depth"]),
		})
	}
	return edges, nil
}

// Survivor follows MERGED_INTO edges from id to the active record at the end
// of the chain. A record that was never merged is its own survivor.
func (p *Projector) Survivor(ctx context.Context, entityType models.EntityType, id string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Survivor")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (n:%[1]s {id: $id})-[:%[2]s*1..]->(root:%[1]s)
		WHERE NOT (root)-[:%[2]s]->()
		RETURN root.id AS id
		LIMIT 1
	`, entityType.Label(), relMergedInto)

	rows, err := p.runner.Read(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return id, nil
	}
	return asString(rows[0]["id"]), nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
