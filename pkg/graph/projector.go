package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const relMergedInto = "MERGED_INTO"

// Projector mirrors committed merges as (absorbed)-[:MERGED_INTO]->(primary)
// edges. The relational store stays the source of truth.
type Projector struct {
	runner Runner
	logger ectologger.Logger
}

func NewProjector(runner Runner, logger ectologger.Logger) *Projector {
	return &Projector{
		runner: runner,
		logger: logger,
	}
}

// EnsureIndexes creates the id index per label.
func (p *Projector) EnsureIndexes(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.EnsureIndexes")
	defer span.End()

	var statements []Statement
	for _, entityType := range []models.EntityType{models.EntityTypeCompany, models.EntityTypePerson} {
		statements = append(statements, Statement{Cypher: fmt.Sprintf("CREATE INDEX ON :%s(id)", entityType.Label())})
	}
	return p.runner.Write(ctx, statements...)
}

// MergeCommitted projects a merge. Failures are logged and never reach the
// merge caller.
func (p *Projector) MergeCommitted(ctx context.Context, result *models.MergeResult) {
	if p == nil || p.runner == nil {
		return
	}
	if err := p.ProjectMerge(ctx, result); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_id": result.PrimaryID,
			"audit_id":   result.AuditID,
		}).Warn("Failed to project merge into graph")
	}
}

func (p *Projector) ProjectMerge(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectMerge")
	defer span.End()

	if result == nil || len(result.TombstonedIDs) == 0 {
		return nil
	}

	cypher := fmt.Sprintf(`
		MERGE (p:%[1]s {id: $primary_id})
		SET p.active = true, p.name = $name, p.updated_at = $performed_at
		WITH p
		UNWIND $absorbed AS absorbed_id
		MERGE (d:%[1]s {id: absorbed_id})
		SET d.active = false, d.merged_into = p.id
		MERGE (d)-[r:%[2]s {audit_id: $audit_id}]->(p)
		SET r.actor_id = $actor_id, r.performed_at = $performed_at
	`, result.EntityType.Label(), relMergedInto)

	err := p.runner.Write(ctx, Statement{
		Cypher: cypher,
		Params: map[string]any{
			"primary_id":   result.PrimaryID,
			"name":         displayName(result),
			"absorbed":     result.TombstonedIDs,
			"audit_id":     result.AuditID,
			"actor_id":     result.ActorID,
			"performed_at": result.PerformedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": result.EntityType,
		"primary_id":  result.PrimaryID,
		"absorbed":    len(result.TombstonedIDs),
	}).Debug("Projected merge into graph")
	return nil
}

func displayName(result *models.MergeResult) string {
	switch {
	case result.Company != nil:
		return result.Company.Name
	case result.Person != nil:
		return result.Person.FullName()
	}
	return ""
}
