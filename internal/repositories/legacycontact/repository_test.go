package legacycontact

import (
	"context"
	"errors"
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

var legacyColumns = []string{"id", "scope", "company_name", "website", "first_name", "last_name", "email", "title", "phone",
	"role", "is_primary", "migrated_at", "migration_run_id"}

func newRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return NewRepository(db, logger), mock
}

func TestRepository_ListByScope(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		repo, mock := newRepository(t)
		now := time.Now().UTC()

		mock.ExpectQuery(regexp.QuoteMeta("FROM legacy_deal_contacts WHERE scope = $1 ORDER BY id")).
			WithArgs("deal-1").
			WillReturnRows(sqlmock.NewRows(legacyColumns).
				AddRow("1", "deal-1", "Acme", "https://acme.com", "Jane", "Doe", "jane@acme.com", nil, nil, "buyer", true, nil, nil).
				AddRow("2", "deal-1", "Globex", nil, nil, nil, nil, nil, nil, nil, false, now, "run-1"))

		rows, err := repo.ListByScope(context.Background(), "deal-1")
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.True(t, rows[0].HasContact())
		assert.True(t, rows[0].IsPrimary)
		assert.False(t, rows[0].IsMigrated())
		assert.Equal(t, "https://acme.com", models.Deref(rows[0].Website))

		assert.False(t, rows[1].HasContact())
		assert.True(t, rows[1].IsMigrated())
		assert.Equal(t, "run-1", models.Deref(rows[1].MigrationRunID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is a 500", func(t *testing.T) {
		repo, mock := newRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM legacy_deal_contacts")).WillReturnError(errors.New("connection reset"))

		_, err := repo.ListByScope(context.Background(), "deal-1")
		require.Error(t, err)
		assert.Equal(t, 500, httperror.GetStatusCode(err))
	})
}

func TestRepository_MarkMigrated(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		status   int
	}{
		{name: "stamped", affected: 1},
		{name: "missing row is a 404", affected: 0, status: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepository(t)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE legacy_deal_contacts SET migrated_at = $1, migration_run_id = $2 WHERE id = $3")).
				WithArgs(sqlmock.AnyArg(), "run-1", "7").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.MarkMigrated(context.Background(), "7", "run-1")
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

func TestRepository_ClearMigrated(t *testing.T) {
	repo, mock := newRepository(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE legacy_deal_contacts SET migrated_at = $1, migration_run_id = $2 WHERE scope = $3")).
		WithArgs(nil, nil, "deal-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, repo.ClearMigrated(context.Background(), "deal-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
