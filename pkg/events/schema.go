package events

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	EventTypeMergeCompleted      EventType = "merge.completed"
	EventTypeCandidateEnqueued   EventType = "candidate.enqueued"
	EventTypeCandidateResolved   EventType = "candidate.resolved"
	EventTypeMigrationCompleted  EventType = "migration.completed"
	EventTypeMigrationRolledBack EventType = "migration.rolled_back"
)

// MergeCompletedEvent mirrors a committed merge.
type MergeCompletedEvent struct {
	PrimaryID   string                          `json:"primary_id"`
	AbsorbedIDs []string                        `json:"absorbed_ids"`
	AuditID     string                          `json:"audit_id"`
	Relations   map[string]models.RelationCount `json:"relations"`
	Conflicts   []models.MergeConflict          `json:"conflicts,omitempty"`
	PerformedAt time.Time                       `json:"performed_at"`
}

type CandidateEvent struct {
	CandidateID string             `json:"candidate_id"`
	RecordAID   string             `json:"record_a_id"`
	RecordBID   string             `json:"record_b_id"`
	Score       float64            `json:"score"`
	Resolution  *models.Resolution `json:"resolution,omitempty"`
	ResolvedBy  *string            `json:"resolved_by,omitempty"`
	MergeAudit  string             `json:"merge_audit_id,omitempty"`
}

type MigrationEvent struct {
	RunID      string                  `json:"run_id,omitempty"`
	Scope      string                  `json:"scope"`
	Status     models.MigrationStatus  `json:"status"`
	Counts     *models.MigrationCounts `json:"counts,omitempty"`
	Errored    int                     `json:"errored,omitempty"`
	Removed    []string                `json:"removed,omitempty"`
	Retained   []string                `json:"retained,omitempty"`
	DurationMs int64                   `json:"duration_ms,omitempty"`
}

func marshal(payload any) json.RawMessage {
	// Every payload is a plain struct; a marshal failure is not reachable.
	data, _ := json.Marshal(payload)
	return data
}
