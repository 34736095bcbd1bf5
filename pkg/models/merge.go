package models

import "time"

type MergeSource string

const (
	MergeSourceManual         MergeSource = "manual"
	MergeSourceDuplicateQueue MergeSource = "duplicate_queue"
	MergeSourceMigration      MergeSource = "migration"
)

// MergeConflict records a scalar attribute the duplicates disagreed on. The
// primary's value was kept.
type MergeConflict struct {
	Field        string   `json:"field"`
	PrimaryValue *string  `json:"primary_value"`
	Values       []string `json:"values"`
	Resolution   string   `json:"resolution"`
}

// MergeAuditLog is written once per merge call.
type MergeAuditLog struct {
	ID          string                   `json:"id" db:"id"`
	EntityType  EntityType               `json:"entity_type" db:"entity_type"`
	PrimaryID   string                   `json:"primary_id" db:"primary_id"`
	AbsorbedIDs []string                 `json:"absorbed_ids" db:"-"`
	ActorID     string                   `json:"actor_id" db:"actor_id"`
	Source      MergeSource              `json:"source" db:"source"`
	Relations   map[string]RelationCount `json:"relations" db:"-"`
	Conflicts   []MergeConflict          `json:"conflicts,omitempty" db:"-"`
	PerformedAt time.Time                `json:"performed_at" db:"performed_at"`
}

// MergeResult is reported back to every merge caller.
type MergeResult struct {
	EntityType         EntityType               `json:"entity_type"`
	PrimaryID          string                   `json:"primary_id"`
	Company            *Company                 `json:"company,omitempty"`
	Person             *Person                  `json:"person,omitempty"`
	TombstonedIDs      []string                 `json:"tombstoned_ids"`
	Relations          map[string]RelationCount `json:"relations"`
	Conflicts          []MergeConflict          `json:"conflicts,omitempty"`
	CandidatesResolved []string                 `json:"candidates_resolved,omitempty"`
	AuditID            string                   `json:"audit_id"`
	ActorID            string                   `json:"actor_id"`
	PerformedAt        time.Time                `json:"performed_at"`
}

func (r *MergeResult) MovedTotal() int {
	total := 0
	for _, c := range r.Relations {
		total += c.Moved
	}
	return total
}

func (r *MergeResult) DroppedTotal() int {
	total := 0
	for _, c := range r.Relations {
		total += c.Dropped
	}
	return total
}
