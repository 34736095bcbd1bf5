package models

import "time"

type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "PENDING"
	CandidateStatusResolved CandidateStatus = "RESOLVED"
)

type Resolution string

const (
	ResolutionMerged       Resolution = "MERGED"
	ResolutionNotDuplicate Resolution = "NOT_DUPLICATE"
	ResolutionSkipped      Resolution = "SKIPPED"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionMerged, ResolutionNotDuplicate, ResolutionSkipped:
		return true
	}
	return false
}

// DuplicateCandidate is an unresolved judgment that two records may be the
// same entity. RecordAID and RecordBID carry no primary/duplicate meaning.
type DuplicateCandidate struct {
	ID         string          `json:"id" db:"id"`
	EntityType EntityType      `json:"entity_type" db:"entity_type"`
	RecordAID  string          `json:"record_a_id" db:"record_a_id"`
	RecordBID  string          `json:"record_b_id" db:"record_b_id"`
	Score      float64         `json:"score" db:"score"`
	Signals    []string        `json:"signals" db:"-"`
	Status     CandidateStatus `json:"status" db:"status"`
	Resolution *Resolution     `json:"resolution,omitempty" db:"resolution"`
	ResolvedBy *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

func (c *DuplicateCandidate) IsPending() bool {
	return c.Status == CandidateStatusPending
}

// Involves reports whether id is one side of the pair.
func (c *DuplicateCandidate) Involves(id string) bool {
	return c.RecordAID == id || c.RecordBID == id
}

// Other returns the side of the pair that is not id.
func (c *DuplicateCandidate) Other(id string) string {
	if c.RecordAID == id {
		return c.RecordBID
	}
	return c.RecordAID
}

// PairKey is the order-independent identity of the pair.
func PairKey(entityType EntityType, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return string(entityType) + ":" + a + ":" + b
}

func (c *DuplicateCandidate) PairKey() string {
	return PairKey(c.EntityType, c.RecordAID, c.RecordBID)
}
