package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
  "companies": [
    {"id": "acme", "name": "Acme", "domain": "acme.com"},
    {"id": "acme-dup", "name": "Acme Inc", "website": "https://www.acmeinc.com"},
    {"id": "globex", "name": "Globex"}
  ],
  "people": [
    {"id": "jane", "first_name": "Jane", "last_name": "Doe", "email": "jane@acme.com", "company_id": "acme-dup"}
  ],
  "relations": [
    {"type": "deal_buyers", "entity_id": "acme-dup", "values": {"deal_id": "deal-9"}}
  ],
  "candidates": [
    {"id": "cand-1", "entity_type": "COMPANY", "record_a_id": "acme", "record_b_id": "acme-dup", "score": 0.8},
    {"id": "cand-2", "entity_type": "COMPANY", "record_a_id": "acme", "record_b_id": "globex", "score": 0.6}
  ],
  "legacy_contacts": [
    {"scope": "deal-1", "company_name": "Initech", "website": "https://initech.com", "first_name": "Peter", "last_name": "Gibbons", "email": "peter@initech.com", "is_primary": true},
    {"scope": "deal-1", "company_name": "Acme", "website": "https://acme.com", "first_name": "Jane", "last_name": "Doe", "email": "jane@acme.com"}
  ]
}`

// runCLI executes one command against a fresh in-memory store seeded with
// seedJSON and returns its stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KAFKA_PRODUCER_ENABLED", "false")
	t.Setenv("GRAPH_PROJECTION_ENABLED", "false")
	t.Setenv("OTLP_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "error")

	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o600))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--memory", "--seed", seed, "--env-file", filepath.Join(dir, "missing.env"), "--as", "tester"}, args...))

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestParseCommand(t *testing.T) {
	out, err := runCLI(t, "Jane Doe\nVP of Sales at Acme Corp\njane.doe@acme.com\n", "parse")
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, "freeform", result["format"])
	assert.Contains(t, result["emails"], "jane.doe@acme.com")
}

func TestMatchCompanyCommand(t *testing.T) {
	out, err := runCLI(t, "", "match", "company", "--name", "Acme", "--domain", "acme.com", "--exclude", "acme-dup")
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, "LINK_EXISTING", result["suggested_action"])
	candidates, ok := result["candidates"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "acme", candidates[0].(map[string]any)["id"])
}

func TestMergeCompanyCommand(t *testing.T) {
	out, err := runCLI(t, "", "merge", "company", "acme", "acme-dup")
	require.NoError(t, err)

	result := decode(t, out)
	assert.Equal(t, "acme", result["primary_id"])
	assert.Equal(t, []any{"acme-dup"}, result["tombstoned_ids"])
	assert.Equal(t, "tester", result["actor_id"])
}

func TestMergeCommand_RequiresDuplicates(t *testing.T) {
	_, err := runCLI(t, "", "merge", "person", "jane")
	require.Error(t, err)
}

func TestMigrationCommands(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		assert func(t *testing.T, result map[string]any)
	}{
		{
			name: "validate",
			args: []string{"migration", "validate", "deal-1"},
			assert: func(t *testing.T, result map[string]any) {
				assert.Equal(t, true, result["ready"])
			},
		},
		{
			name: "dry run",
			args: []string{"migration", "run", "deal-1", "--dry-run"},
			assert: func(t *testing.T, result map[string]any) {
				assert.Equal(t, true, result["dry_run"])
				assert.EqualValues(t, 1, result["companies_created"])
			},
		},
		{
			name: "execute",
			args: []string{"migration", "run", "deal-1"},
			assert: func(t *testing.T, result map[string]any) {
				assert.Equal(t, "completed", result["status"])
				assert.NotEmpty(t, result["run_id"])
				assert.EqualValues(t, 1, result["people_linked"])
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", tt.args...)
			require.NoError(t, err)
			tt.assert(t, decode(t, out))
		})
	}
}

func TestQueueCommands(t *testing.T) {
	out, err := runCLI(t, "", "queue", "list", "company")
	require.NoError(t, err)
	var pending []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &pending), out)
	require.Len(t, pending, 2)
	assert.Equal(t, "cand-1", pending[0]["id"])

	out, err = runCLI(t, "", "queue", "list", "person")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = runCLI(t, "", "queue", "list", "widget")
	require.Error(t, err)

	_, err = runCLI(t, "", "queue", "get", "missing")
	require.Error(t, err)
}

func TestQueueResolveBatchCommand(t *testing.T) {
	t.Run("resolves every candidate", func(t *testing.T) {
		out, err := runCLI(t, "", "queue", "resolve-batch",
			"--candidate", "cand-1=merged:acme",
			"--candidate", "cand-2=not_duplicate")
		require.NoError(t, err)

		var results []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &results), out)
		require.Len(t, results, 2)

		merged := results[0]["candidate"].(map[string]any)
		assert.Equal(t, "MERGED", merged["resolution"])
		assert.Equal(t, "acme", results[0]["merge"].(map[string]any)["primary_id"])

		rejected := results[1]["candidate"].(map[string]any)
		assert.Equal(t, "NOT_DUPLICATE", rejected["resolution"])
		assert.Equal(t, "tester", rejected["resolved_by"])
	})

	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{name: "missing flag", args: []string{}, message: "candidate"},
		{name: "malformed entry", args: []string{"--candidate", "cand-1"}, message: "id=resolution"},
		{name: "unknown candidate fails the batch", args: []string{"--candidate", "cand-1=merged:acme", "--candidate", "ghost=skipped"}, message: "ghost"},
		{name: "primary outside the pair", args: []string{"--candidate", "cand-2=merged:acme-dup"}, message: "acme-dup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", append([]string{"queue", "resolve-batch"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseBatchEntry(t *testing.T) {
	tests := []struct {
		entry     string
		id        string
		primaryID string
		expectErr bool
	}{
		{entry: "c1=merged:p1", id: "c1", primaryID: "p1"},
		{entry: "c1=skipped", id: "c1"},
		{entry: "=merged", expectErr: true},
		{entry: "c1=", expectErr: true},
		{entry: "c1", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			req, err := parseBatchEntry(tt.entry)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, req.CandidateID)
			assert.Equal(t, tt.primaryID, req.PrimaryID)
		})
	}
}

func TestGraphCommand_RequiresProjection(t *testing.T) {
	_, err := runCLI(t, "", "graph", "survivor", "company", "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRAPH_PROJECTION_ENABLED")
}

func TestDBCommand_RejectsMemory(t *testing.T) {
	_, err := runCLI(t, "", "db", "status")
	require.Error(t, err)
}
