package models

import (
	"fmt"
	"strings"
)

// EntityType identifies which canonical table a record lives in.
type EntityType string

const (
	EntityTypeCompany EntityType = "COMPANY"
	EntityTypePerson  EntityType = "PERSON"
)

func (t EntityType) Valid() bool {
	return t == EntityTypeCompany || t == EntityTypePerson
}

func (t EntityType) Label() string {
	switch t {
	case EntityTypeCompany:
		return "Company"
	case EntityTypePerson:
		return "Person"
	default:
		return "Entity"
	}
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Record is implemented by the canonical record types.
type Record interface {
	GetID() string
	IsTombstoned() bool
}

func strPtr(s string) *string {
	return &s
}

// StringPtr returns nil for blank input.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strPtr(s)
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
