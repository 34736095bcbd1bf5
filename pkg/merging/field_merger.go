package merging

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

const resolutionPrimaryKept = "primary_kept"

// scalarRecord is a canonical record whose optional attributes can be merged.
type scalarRecord interface {
	models.Record
	ScalarFields() map[string]**string
}

// FieldMerger folds the optional attributes of duplicates into the primary.
type FieldMerger struct{}

func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeScalars adopts a duplicate value only when the primary is unset and
// the duplicates agree on exactly one value. Whenever more than one distinct
// value exists among primary and duplicates, the primary value wins, unset
// included, and a conflict is reported. It returns whether primary changed.
func (m *FieldMerger) MergeScalars(primary scalarRecord, duplicates []scalarRecord) (bool, []models.MergeConflict) {
	fields := primary.ScalarFields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := false
	var conflicts []models.MergeConflict

	for _, name := range names {
		target := fields[name]
		candidates := m.distinctValues(name, duplicates)
		current := strings.TrimSpace(models.Deref(*target))

		if current == "" && len(candidates) == 1 {
			value := candidates[0]
			*target = &value
			changed = true
			continue
		}

		if conflict := m.detectConflict(name, current, candidates); conflict != nil {
			conflict.PrimaryValue = models.StringPtr(current)
			conflicts = append(conflicts, *conflict)
		}
	}

	return changed, conflicts
}

// distinctValues returns the non-empty values of field in duplicate order.
func (m *FieldMerger) distinctValues(field string, duplicates []scalarRecord) []string {
	var out []string
	seen := map[string]bool{}
	for _, d := range duplicates {
		value := strings.TrimSpace(models.Deref(*d.ScalarFields()[field]))
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func (m *FieldMerger) detectConflict(field, primary string, candidates []string) *models.MergeConflict {
	distinct := map[string]bool{}
	if primary != "" {
		distinct[primary] = true
	}
	for _, v := range candidates {
		distinct[v] = true
	}
	if len(distinct) < 2 {
		return nil
	}
	return &models.MergeConflict{
		Field:      field,
		Values:     candidates,
		Resolution: resolutionPrimaryKept,
	}
}
