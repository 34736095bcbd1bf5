package pgstore

import (
	"context"
	"errors"
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

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger), logger), mock
}

func TestStore_RepositoriesShareTheTransaction(t *testing.T) {
	st, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE canonical_companies SET merged_into")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE canonical_people SET merged_into")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.WithTx(context.Background(), func(ctx context.Context) error {
		if err := st.Companies().Tombstone(ctx, []string{"d"}, "p"); err != nil {
			return err
		}
		return st.People().Tombstone(ctx, []string{"d"}, "p")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithSavepoint(t *testing.T) {
	tests := []struct {
		name      string
		innerErr  error
		outerErr  error
		expectErr bool
	}{
		{
			name:     "failed row is undone and the batch commits",
			innerErr: errors.New("row failed"),
		},
		{
			name:      "outer failure discards released rows",
			outerErr:  errors.New("abort"),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newStore(t)

			mock.ExpectBegin()
			mock.ExpectExec("SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("UPDATE legacy_deal_contacts SET migrated_at")).WillReturnResult(sqlmock.NewResult(0, 1))
			if tt.innerErr != nil {
				mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
			} else {
				mock.ExpectExec("RELEASE SAVEPOINT sp_").WillReturnResult(sqlmock.NewResult(0, 0))
			}
			if tt.outerErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			var innerErr error
			err := st.WithTx(context.Background(), func(ctx context.Context) error {
				innerErr = st.WithSavepoint(ctx, func(ctx context.Context) error {
					if err := st.Legacy().MarkMigrated(ctx, "7", "run-1"); err != nil {
						return err
					}
					return tt.innerErr
				})
				return tt.outerErr
			})

			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.innerErr, innerErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_SavepointOutsideTransactionBegins(t *testing.T) {
	st, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO merge_audit_logs")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.WithSavepoint(context.Background(), func(ctx context.Context) error {
		return st.Audit().Create(ctx, &models.MergeAuditLog{EntityType: models.EntityTypeCompany, PrimaryID: "p"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
