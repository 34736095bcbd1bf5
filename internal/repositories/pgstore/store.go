// Package pgstore composes the PostgreSQL repositories into a store.Store.
package pgstore

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/internal/repositories/candidate"
	"github.com/Ramsey-B/fern/internal/repositories/company"
	"github.com/Ramsey-B/fern/internal/repositories/legacycontact"
	"github.com/Ramsey-B/fern/internal/repositories/migrationrun"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/internal/repositories/relation"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Store binds every repository to one database handle. Repositories pick up
// the transaction WithTx stores in the context.
type Store struct {
	db         database.DB
	companies  *company.Repository
	people     *person.Repository
	relations  *relation.Repository
	candidates *candidate.Repository
	audit      *audit.Repository
	migrations *migrationrun.Repository
	legacy     *legacycontact.Repository
}

var _ store.Store = (*Store)(nil)

func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:         db,
		companies:  company.NewRepository(db, logger),
		people:     person.NewRepository(db, logger),
		relations:  relation.NewRepository(db, logger),
		candidates: candidate.NewRepository(db, logger),
		audit:      audit.NewRepository(db, logger),
		migrations: migrationrun.NewRepository(db, logger),
		legacy:     legacycontact.NewRepository(db, logger),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithTx(ctx, fn)
}

func (s *Store) WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithSavepoint(ctx, fn)
}

func (s *Store) Companies() store.CompanyStore    { return s.companies }
func (s *Store) People() store.PersonStore        { return s.people }
func (s *Store) Relations() store.RelationStore   { return s.relations }
func (s *Store) Candidates() store.CandidateStore { return s.candidates }
func (s *Store) Audit() store.AuditStore          { return s.audit }
func (s *Store) Migrations() store.MigrationStore { return s.migrations }
func (s *Store) Legacy() store.LegacyStore        { return s.legacy }
