package graph

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeRunner struct {
	writes   [][]Statement
	reads    []string
	rows     []map[string]any
	writeErr error
}

func (r *fakeRunner) Write(_ context.Context, statements ...Statement) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes = append(r.writes, statements)
	return nil
}

func (r *fakeRunner) Read(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	r.reads = append(r.reads, cypher)
	return r.rows, nil
}

func newProjector(runner Runner) *Projector {
	return NewProjector(runner, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestProjectMerge(t *testing.T) {
	runner := &fakeRunner{}
	projector := newProjector(runner)
	performed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := projector.ProjectMerge(context.Background(), &models.MergeResult{
		EntityType:    models.EntityTypePerson,
		PrimaryID:     "p1",
		Person:        &models.Person{ID: "p1", FirstName: "Jane", LastName: "Doe"},
		TombstonedIDs: []string{"p2", "p3"},
		AuditID:       "audit-1",
		ActorID:       "u1",
		PerformedAt:   performed,
	})
	require.NoError(t, err)

	require.Len(t, runner.writes, 1)
	require.Len(t, runner.writes[0], 1)
	stmt := runner.writes[0][0]
	assert.Contains(t, stmt.Cypher, "MERGE (p:Person {id: $primary_id})")
	assert.Contains(t, stmt.Cypher, "[r:MERGED_INTO {audit_id: $audit_id}]")
	assert.Equal(t, map[string]any{
		"primary_id":   "p1",
		"name":         "Jane Doe",
		"absorbed":     []string{"p2", "p3"},
		"audit_id":     "audit-1",
		"actor_id":     "u1",
		"performed_at": "2026-01-02T03:04:05Z",
	}, stmt.Params)
}

func TestProjectMerge_NothingAbsorbed(t *testing.T) {
	runner := &fakeRunner{}
	require.NoError(t, newProjector(runner).ProjectMerge(context.Background(), &models.MergeResult{PrimaryID: "c1"}))
	assert.Empty(t, runner.writes)
}

func TestMergeCommitted_SwallowsFailures(t *testing.T) {
	runner := &fakeRunner{writeErr: stderrors.New("bolt down")}
	projector := newProjector(runner)

	assert.NotPanics(t, func() {
		projector.MergeCommitted(context.Background(), &models.MergeResult{
			EntityType:    models.EntityTypeCompany,
			PrimaryID:     "c1",
			TombstonedIDs: []string{"c2"},
		})
	})

	var nilProjector *Projector
	assert.NotPanics(t, func() {
		nilProjector.MergeCommitted(context.Background(), &models.MergeResult{})
	})
}

func TestEnsureIndexes(t *testing.T) {
	runner := &fakeRunner{}
	require.NoError(t, newProjector(runner).EnsureIndexes(context.Background()))
	require.Len(t, runner.writes, 1)
	assert.Equal(t, []Statement{
		{Cypher: "CREATE INDEX ON :Company(id)"},
		{Cypher: "CREATE INDEX ON :Person(id)"},
	}, runner.writes[0])
}

func TestLineage(t *testing.T) {
	runner := &fakeRunner{rows: []map[string]any{
		{"id": "c2", "merged_into": "c1", "audit_id": "a2", "performed_at": "2026-01-02T00:00:00Z", "depth": int64(1)},
		{"id": "c3", "merged_into": "c2", "audit_id": "a1", "performed_at": "2026-01-01T00:00:00Z", "depth": int64(2)},
	}}

	edges, err := newProjector(runner).Lineage(context.Background(), models.EntityTypeCompany, "c1")
	require.NoError(t, err)
	assert.Equal(t, []MergeEdge{
		{ID: "c2", MergedInto: "c1", AuditID: "a2", PerformedAt: "2026-01-02T00:00:00Z", Depth: 1},
		{ID: "c3", MergedInto: "c2", AuditID: "a1", PerformedAt: "2026-01-01T00:00:00Z", Depth: 2},
	}, edges)
	require.Len(t, runner.reads, 1)
	assert.Contains(t, runner.reads[0], "(d:Company)-[:MERGED_INTO*1..]->(p:Company {id: $id})")
}

func TestSurvivor(t *testing.T) {
	tests := []struct {
		name     string
		rows     []map[string]any
		expected string
	}{
		{name: "merged", rows: []map[string]any{{"id": "c1"}}, expected: "c1"},
		{name: "never merged", expected: "c9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survivor, err := newProjector(&fakeRunner{rows: tt.rows}).Survivor(context.Background(), models.EntityTypeCompany, "c9")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, survivor)
		})
	}
}
