package migrationrun

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return NewRepository(db, logger), mock
}

func TestRepository_CreateRun(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migration_runs (id, scope, dry_run, status, result")).
		WithArgs(sqlmock.AnyArg(), "deal-1", false, "running", sqlmock.AnyArg(), "user-1", now, nil, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &models.MigrationRun{Scope: "deal-1", Status: models.MigrationStatusRunning, ActorID: "user-1", StartedAt: now}
	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateRun(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		status   int
	}{
		{name: "updated", affected: 1},
		{name: "missing run is a 404", affected: 0, status: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepository(t)
			finished := time.Now().UTC()
			run := &models.MigrationRun{
				ID:         "run-1",
				Status:     models.MigrationStatusCompleted,
				Counts:     models.MigrationCounts{CompaniesCreated: 2, Errored: 1},
				Errors:     []models.RowError{{LegacyID: "7", Message: "boom"}},
				FinishedAt: &finished,
				DurationMs: 40,
			}

			mock.ExpectExec(regexp.QuoteMeta("UPDATE migration_runs SET status = $1, result = $2")).
				WithArgs("completed",
					`{"counts":{"companies_created":2,"companies_linked":0,"people_created":0,"people_linked":0,"relations_created":0,"queued_for_review":0,"skipped":0,"errored":1},"errors":[{"legacy_id":"7","code":"","message":"boom"}]}`,
					finished, int64(40), "run-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.UpdateRun(context.Background(), run)
			if tt.status != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.status, httperror.GetStatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_ListRuns(t *testing.T) {
	repo, mock := newRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM migration_runs WHERE scope = $1 ORDER BY started_at, id")).
		WithArgs("deal-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scope", "dry_run", "status", "result", "actor_id", "started_at", "finished_at", "duration_ms"}).
			AddRow("run-1", "deal-1", false, "completed", []byte(`{"counts":{"people_linked":3}}`), "user-1", now, now, 12))

	runs, err := repo.ListRuns(context.Background(), "deal-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.MigrationStatusCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].Counts.PeopleLinked)
	assert.Empty(t, runs[0].Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ItemLedger(t *testing.T) {
	repo, mock := newRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migration_items")).
		WithArgs(sqlmock.AnyArg(), "run-1", "deal-1", "7", "c1", true, nil, false, `{"deal_buyers":["r1"]}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := &models.MigrationItem{
		RunID:          "run-1",
		Scope:          "deal-1",
		LegacyID:       "7",
		CompanyID:      models.StringPtr("c1"),
		CompanyCreated: true,
		Relations:      map[string][]string{"deal_buyers": {"r1"}},
	}
	require.NoError(t, repo.CreateItem(ctx, item))
	assert.False(t, item.CreatedAt.IsZero())

	mock.ExpectQuery(regexp.QuoteMeta("FROM migration_items WHERE scope = $1 AND rolled_back_at IS NULL ORDER BY created_at, id")).
		WithArgs("deal-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "scope", "legacy_id", "company_id", "company_created", "person_id", "person_created", "relations", "created_at", "rolled_back_at"}).
			AddRow(item.ID, "run-1", "deal-1", "7", "c1", true, nil, false, []byte(`{"deal_buyers":["r1"]}`), now, nil))

	items, err := repo.ListActiveItems(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"r1"}, items[0].Relations["deal_buyers"])
	assert.Equal(t, "c1", models.Deref(items[0].CompanyID))
	assert.Nil(t, items[0].PersonID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkRolledBack(t *testing.T) {
	repo, mock := newRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE migration_items SET rolled_back_at = $1 WHERE scope = $2 AND rolled_back_at IS NULL")).
		WithArgs(sqlmock.AnyArg(), "deal-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE migration_runs SET status = $1 WHERE scope = $2 AND status <> $3")).
		WithArgs("rolled_back", "deal-1", "rolled_back").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRolledBack(context.Background(), "deal-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
