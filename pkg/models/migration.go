package models

import "time"

// LegacyContact is one row of the legacy flat buyer/contact model, scoped to a
// deal.
type LegacyContact struct {
	ID             string     `json:"id" db:"id"`
	Scope          string     `json:"scope" db:"scope"`
	CompanyName    string     `json:"company_name" db:"company_name"`
	Website        *string    `json:"website,omitempty" db:"website"`
	FirstName      *string    `json:"first_name,omitempty" db:"first_name"`
	LastName       *string    `json:"last_name,omitempty" db:"last_name"`
	Email          *string    `json:"email,omitempty" db:"email"`
	Title          *string    `json:"title,omitempty" db:"title"`
	Phone          *string    `json:"phone,omitempty" db:"phone"`
	Role           *string    `json:"role,omitempty" db:"role"`
	IsPrimary      bool       `json:"is_primary" db:"is_primary"`
	MigratedAt     *time.Time `json:"migrated_at,omitempty" db:"migrated_at"`
	MigrationRunID *string    `json:"migration_run_id,omitempty" db:"migration_run_id"`
}

func (l *LegacyContact) IsMigrated() bool {
	return l.MigratedAt != nil
}

// HasContact reports whether the row identifies a person.
func (l *LegacyContact) HasContact() bool {
	return Deref(l.FirstName) != "" || Deref(l.LastName) != "" || Deref(l.Email) != ""
}

type MigrationStatus string

const (
	MigrationStatusRunning    MigrationStatus = "running"
	MigrationStatusCompleted  MigrationStatus = "completed"
	MigrationStatusPartial    MigrationStatus = "partial"
	MigrationStatusRolledBack MigrationStatus = "rolled_back"
)

// MigrationRun is the persisted record of an execute-mode run.
type MigrationRun struct {
	ID         string          `json:"id" db:"id"`
	Scope      string          `json:"scope" db:"scope"`
	DryRun     bool            `json:"dry_run" db:"dry_run"`
	Status     MigrationStatus `json:"status" db:"status"`
	Counts     MigrationCounts `json:"counts" db:"-"`
	Errors     []RowError      `json:"errors,omitempty" db:"-"`
	ActorID    string          `json:"actor_id" db:"actor_id"`
	StartedAt  time.Time       `json:"started_at" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	DurationMs int64           `json:"duration_ms" db:"duration_ms"`
}

type MigrationCounts struct {
	CompaniesCreated int `json:"companies_created"`
	CompaniesLinked  int `json:"companies_linked"`
	PeopleCreated    int `json:"people_created"`
	PeopleLinked     int `json:"people_linked"`
	RelationsCreated int `json:"relations_created"`
	QueuedForReview  int `json:"queued_for_review"`
	Skipped          int `json:"skipped"`
	Errored          int `json:"errored"`
}

// Add accumulates other into c.
func (c *MigrationCounts) Add(other MigrationCounts) {
	c.CompaniesCreated += other.CompaniesCreated
	c.CompaniesLinked += other.CompaniesLinked
	c.PeopleCreated += other.PeopleCreated
	c.PeopleLinked += other.PeopleLinked
	c.RelationsCreated += other.RelationsCreated
	c.QueuedForReview += other.QueuedForReview
	c.Skipped += other.Skipped
	c.Errored += other.Errored
}

// RowError is a per-row failure keyed by the legacy row.
type RowError struct {
	LegacyID string `json:"legacy_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// MigrationItem is the ledger entry for one migrated legacy row.
type MigrationItem struct {
	ID             string              `json:"id" db:"id"`
	RunID          string              `json:"run_id" db:"run_id"`
	Scope          string              `json:"scope" db:"scope"`
	LegacyID       string              `json:"legacy_id" db:"legacy_id"`
	CompanyID      *string             `json:"company_id,omitempty" db:"company_id"`
	CompanyCreated bool                `json:"company_created" db:"company_created"`
	PersonID       *string             `json:"person_id,omitempty" db:"person_id"`
	PersonCreated  bool                `json:"person_created" db:"person_created"`
	Relations      map[string][]string `json:"relations" db:"-"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	RolledBackAt   *time.Time          `json:"rolled_back_at,omitempty" db:"rolled_back_at"`
}
