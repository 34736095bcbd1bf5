package relation

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
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

func relationType(t *testing.T, name string) models.RelationType {
	t.Helper()
	rt, ok := models.LookupRelationType(name)
	require.True(t, ok)
	return rt
}

func TestUniqueKeyExpr(t *testing.T) {
	tests := []struct {
		name     string
		relation string
		expected string
	}{
		{"single key column", models.RelationDealBuyers, "concat_ws('|', coalesce(deal_id::text, ''))"},
		{"composite key", models.RelationDealContacts, "concat_ws('|', coalesce(deal_id::text, ''), coalesce(role::text, ''))"},
		{"not unique", models.RelationConversationParticipants, "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, uniqueKeyExpr(relationType(t, tt.relation)))
		})
	}
}

func TestRepository_ListByEntity(t *testing.T) {
	repo, mock := newRepository(t)
	rt := relationType(t, models.RelationDealContacts)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, person_id AS entity_id, concat_ws('|'")).
		WithArgs("p1", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "unique_key"}).
			AddRow("r1", "d1", "deal-1|primary").
			AddRow("r2", "p1", "deal-1|primary"))

	rows, err := repo.ListByEntity(context.Background(), rt, []string{"p1", "d1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.RelationDealContacts, rows[0].Type)
	assert.Equal(t, "deal-1|primary", rows[0].UniqueKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserted", func(t *testing.T) {
		repo, mock := newRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO deal_buyers (id, company_id, deal_id) VALUES ($1, $2, $3) ON CONFLICT (company_id, deal_id) DO NOTHING RETURNING id")).
			WithArgs(sqlmock.AnyArg(), "c1", "deal-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))

		id, created, err := repo.Create(ctx, models.RelationInput{
			Type:     models.RelationDealBuyers,
			EntityID: "c1",
			Values:   map[string]string{"deal_id": "deal-1"},
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "r1", id)
	})

	t.Run("key already held", func(t *testing.T) {
		repo, mock := newRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (company_id, deal_id) DO NOTHING")).
			WillReturnError(sql.ErrNoRows)

		id, created, err := repo.Create(ctx, models.RelationInput{
			Type:     models.RelationDealBuyers,
			EntityID: "c1",
			Values:   map[string]string{"deal_id": "deal-1"},
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Empty(t, id)
	})

	t.Run("rejects unsafe column names", func(t *testing.T) {
		repo, _ := newRepository(t)
		_, _, err := repo.Create(ctx, models.RelationInput{
			Type:     models.RelationDealBuyers,
			EntityID: "c1",
			Values:   map[string]string{"deal_id; drop table x": "1"},
		})
		assert.Error(t, err)
	})

	t.Run("employees cannot be created directly", func(t *testing.T) {
		repo, _ := newRepository(t)
		_, _, err := repo.Create(ctx, models.RelationInput{Type: models.RelationEmployees, EntityID: "c1"})
		assert.Error(t, err)
	})
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes rows", func(t *testing.T) {
		repo, mock := newRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deal_contacts WHERE id IN ($1, $2)")).
			WithArgs("r1", "gone").
			WillReturnResult(sqlmock.NewResult(0, 1))

		deleted, err := repo.Delete(ctx, relationType(t, models.RelationDealContacts), []string{"r1", "gone"})
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("detach only clears the fk", func(t *testing.T) {
		repo, mock := newRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE canonical_people SET company_id = $1 WHERE id IN ($2) AND company_id IS NOT NULL")).
			WithArgs(nil, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		detached, err := repo.Delete(ctx, relationType(t, models.RelationEmployees), []string{"p1"})
		require.NoError(t, err)
		assert.Equal(t, 1, detached)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_RepointJoinsTransaction(t *testing.T) {
	repo, mock := newRepository(t)
	rt := relationType(t, models.RelationTaskAssignments)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE task_assignments SET person_id = $1 WHERE id IN ($2, $3)")).
		WithArgs("p", "r1", "r2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.db.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.Repoint(ctx, rt, []string{"r1", "r2"}, "p")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
