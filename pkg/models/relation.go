package models

import "strings"

// RelationType describes one foreign-key column that references a canonical
// record. KeyColumns are the remaining columns of the table's unique key; an
// empty list means the relation carries no uniqueness constraint. Rows of a
// DetachOnly relation belong to another record, so removing the relation
// clears the FK instead of deleting the row.
type RelationType struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	EntityType EntityType `json:"entity_type"`
	FKColumn   string     `json:"fk_column"`
	KeyColumns []string   `json:"key_columns,omitempty"`
	DetachOnly bool       `json:"detach_only,omitempty"`
}

func (rt RelationType) Unique() bool {
	return len(rt.KeyColumns) > 0
}

const (
	RelationDealBuyers               = "deal_buyers"
	RelationCompanyOwnerships        = "company_ownerships"
	RelationEmployees                = "employees"
	RelationDealContacts             = "deal_contacts"
	RelationPersonOwnerships         = "person_ownerships"
	RelationTaskAssignments          = "task_assignments"
	RelationConversationParticipants = "conversation_participants"
)

// RelationTypes lists every reference to a canonical record. Merges re-point
// all of them.
var RelationTypes = []RelationType{
	{Name: RelationDealBuyers, Table: "deal_buyers", EntityType: EntityTypeCompany, FKColumn: "company_id", KeyColumns: []string{"deal_id"}},
	{Name: RelationCompanyOwnerships, Table: "ownerships", EntityType: EntityTypeCompany, FKColumn: "company_id", KeyColumns: []string{"person_id"}},
	{Name: RelationEmployees, Table: "canonical_people", EntityType: EntityTypeCompany, FKColumn: "company_id", DetachOnly: true},
	{Name: RelationDealContacts, Table: "deal_contacts", EntityType: EntityTypePerson, FKColumn: "person_id", KeyColumns: []string{"deal_id", "role"}},
	{Name: RelationPersonOwnerships, Table: "ownerships", EntityType: EntityTypePerson, FKColumn: "person_id", KeyColumns: []string{"company_id"}},
	{Name: RelationTaskAssignments, Table: "task_assignments", EntityType: EntityTypePerson, FKColumn: "person_id", KeyColumns: []string{"task_id"}},
	{Name: RelationConversationParticipants, Table: "conversation_participants", EntityType: EntityTypePerson, FKColumn: "person_id"},
}

func RelationTypesFor(entityType EntityType) []RelationType {
	var out []RelationType
	for _, rt := range RelationTypes {
		if rt.EntityType == entityType {
			out = append(out, rt)
		}
	}
	return out
}

func LookupRelationType(name string) (RelationType, bool) {
	for _, rt := range RelationTypes {
		if rt.Name == name {
			return rt, true
		}
	}
	return RelationType{}, false
}

// Relation is one row of a relation table, reduced to what merges need.
type Relation struct {
	ID        string            `json:"id" db:"id"`
	Type      string            `json:"type" db:"-"`
	EntityID  string            `json:"entity_id" db:"entity_id"`
	UniqueKey string            `json:"unique_key" db:"unique_key"`
	Values    map[string]string `json:"values,omitempty" db:"-"`
}

// RelationInput creates a relation row. Values holds every non-FK column.
type RelationInput struct {
	Type     string
	EntityID string
	Values   map[string]string
}

// KeyOf builds the unique key of a row from its values.
func (rt RelationType) KeyOf(values map[string]string) string {
	if !rt.Unique() {
		return ""
	}
	parts := make([]string, len(rt.KeyColumns))
	for i, col := range rt.KeyColumns {
		parts[i] = values[col]
	}
	return strings.Join(parts, "|")
}

// RelationCount reports how many rows a merge moved or dropped for one type.
type RelationCount struct {
	Moved   int `json:"moved"`
	Dropped int `json:"dropped"`
}
