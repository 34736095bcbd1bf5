// Package store declares the persistence ports the identity services depend on.
// internal/repositories implements them on PostgreSQL and memstore in memory.
package store

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store groups the repositories behind one transaction boundary.
type Store interface {
	// WithTx runs fn in a transaction carried by the returned context. A call
	// made while ctx already carries a transaction joins it. fn's error, or a
	// panic, rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithSavepoint runs fn inside the transaction ctx carries. fn's error
	// undoes only fn's writes and the outer transaction carries on. Without a
	// transaction it behaves as WithTx.
	WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error

	Companies() CompanyStore
	People() PersonStore
	Relations() RelationStore
	Candidates() CandidateStore
	Audit() AuditStore
	Migrations() MigrationStore
	Legacy() LegacyStore
}

// CompanyStore persists canonical companies. Find methods return active
// records only, ordered by id.
type CompanyStore interface {
	Get(ctx context.Context, id string) (*models.Company, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Company, error)
	// LockForUpdate takes row locks ordered by id. Missing ids are omitted.
	LockForUpdate(ctx context.Context, ids []string) ([]*models.Company, error)
	Create(ctx context.Context, company *models.Company) error
	Update(ctx context.Context, company *models.Company) error
	Tombstone(ctx context.Context, ids []string, primaryID string) error
	Delete(ctx context.Context, ids []string) error

	FindByDomain(ctx context.Context, domain string) ([]*models.Company, error)
	FindBySocialURL(ctx context.Context, socialURL string) ([]*models.Company, error)
	FindByNormalizedName(ctx context.Context, name string) ([]*models.Company, error)
	FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.Company, error)
}

// PersonStore persists canonical people. Find methods return active records
// only, ordered by id.
type PersonStore interface {
	Get(ctx context.Context, id string) (*models.Person, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Person, error)
	LockForUpdate(ctx context.Context, ids []string) ([]*models.Person, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	Tombstone(ctx context.Context, ids []string, primaryID string) error
	Delete(ctx context.Context, ids []string) error

	FindByEmail(ctx context.Context, email string) ([]*models.Person, error)
	FindBySocialURL(ctx context.Context, socialURL string) ([]*models.Person, error)
	FindByNormalizedName(ctx context.Context, name string) ([]*models.Person, error)
	FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.Person, error)
}

// RelationStore reads and rewrites the rows of every RelationType.
type RelationStore interface {
	// ListByEntity returns the rows whose FK is in entityIDs, ordered by
	// (entity, id).
	ListByEntity(ctx context.Context, rt models.RelationType, entityIDs []string) ([]*models.Relation, error)
	Repoint(ctx context.Context, rt models.RelationType, relationIDs []string, entityID string) error
	// Delete removes the rows, or clears the FK of DetachOnly types, and
	// returns how many rows it changed. Ids already gone are skipped.
	Delete(ctx context.Context, rt models.RelationType, relationIDs []string) (int, error)
	// Create inserts a row unless its unique key is already held. created is
	// false, and id empty, when nothing was inserted.
	Create(ctx context.Context, input models.RelationInput) (id string, created bool, err error)
}

// CandidateStore persists duplicate candidates.
type CandidateStore interface {
	// FindPendingPair returns nil when no PENDING row exists for the pair.
	FindPendingPair(ctx context.Context, entityType models.EntityType, a, b string) (*models.DuplicateCandidate, error)
	// Create inserts candidate. When a PENDING row already holds the unordered
	// pair, that row is returned with created false.
	Create(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, bool, error)
	Get(ctx context.Context, id string) (*models.DuplicateCandidate, error)
	GetForUpdate(ctx context.Context, id string) (*models.DuplicateCandidate, error)
	Update(ctx context.Context, candidate *models.DuplicateCandidate) error
	Delete(ctx context.Context, ids []string) error
	ListPending(ctx context.Context, entityType models.EntityType, limit int) ([]*models.DuplicateCandidate, error)
	ListPendingByEntities(ctx context.Context, entityType models.EntityType, ids []string) ([]*models.DuplicateCandidate, error)
}

// AuditStore persists merge audit logs.
type AuditStore interface {
	Create(ctx context.Context, log *models.MergeAuditLog) error
	// ListByEntities returns logs naming any of ids as primary or absorbed.
	ListByEntities(ctx context.Context, entityType models.EntityType, ids []string) ([]*models.MergeAuditLog, error)
}

// MigrationStore persists migration runs and their per-row ledger.
type MigrationStore interface {
	CreateRun(ctx context.Context, run *models.MigrationRun) error
	UpdateRun(ctx context.Context, run *models.MigrationRun) error
	ListRuns(ctx context.Context, scope string) ([]*models.MigrationRun, error)
	CreateItem(ctx context.Context, item *models.MigrationItem) error
	ListActiveItems(ctx context.Context, scope string) ([]*models.MigrationItem, error)
	// MarkRolledBack stamps every active item and non-rolled-back run of scope.
	MarkRolledBack(ctx context.Context, scope string) error
}

// LegacyStore reads and stamps legacy flat contact rows.
type LegacyStore interface {
	ListByScope(ctx context.Context, scope string) ([]*models.LegacyContact, error)
	MarkMigrated(ctx context.Context, id string, runID string) error
	ClearMigrated(ctx context.Context, scope string) error
}
