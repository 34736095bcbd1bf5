package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// relations keeps relation tables as rows of columns. The employees relation
// lives on the people records themselves.
type relations struct{ s *Store }

func (r *relations) ListByEntity(_ context.Context, rt models.RelationType, entityIDs []string) ([]*models.Relation, error) {
	ids := idSet(entityIDs)
	var out []*models.Relation

	r.s.read(func(d *state) {
		if rt.Name == models.RelationEmployees {
			for _, p := range d.people {
				if p.CompanyID != nil && ids[*p.CompanyID] {
					out = append(out, &models.Relation{ID: p.ID, Type: rt.Name, EntityID: *p.CompanyID})
				}
			}
			return
		}

		for _, row := range d.relations[rt.Table] {
			entityID := row.columns[rt.FKColumn]
			if !ids[entityID] {
				continue
			}
			values := make(map[string]string, len(row.columns))
			for k, v := range row.columns {
				values[k] = v
			}
			out = append(out, &models.Relation{
				ID:        row.id,
				Type:      rt.Name,
				EntityID:  entityID,
				UniqueKey: rt.KeyOf(row.columns),
				Values:    values,
			})
		}
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *relations) Repoint(ctx context.Context, rt models.RelationType, relationIDs []string, entityID string) error {
	if len(relationIDs) == 0 {
		return nil
	}
	return r.s.write(ctx, func(d *state) error {
		if rt.Name == models.RelationEmployees {
			for _, id := range relationIDs {
				if p, ok := d.people[id]; ok {
					company := entityID
					p.CompanyID = &company
				}
			}
			return nil
		}

		table := d.relations[rt.Table]
		for _, id := range relationIDs {
			row, ok := table[id]
			if !ok {
				return notFound(rt.Name+" relation", id)
			}
			if rt.Unique() {
				key := rt.KeyOf(row.columns)
				if holder := findByKey(table, rt, entityID, key); holder != nil && holder.id != id {
					return conflict(fmt.Sprintf("%s key %q already held by %s", rt.Name, key, entityID))
				}
			}
			row.columns[rt.FKColumn] = entityID
		}
		return nil
	})
}

func (r *relations) Delete(ctx context.Context, rt models.RelationType, relationIDs []string) (int, error) {
	if len(relationIDs) == 0 {
		return 0, nil
	}
	deleted := 0
	err := r.s.write(ctx, func(d *state) error {
		if rt.DetachOnly {
			for _, id := range relationIDs {
				if p, ok := d.people[id]; ok && rt.Name == models.RelationEmployees && p.CompanyID != nil {
					p.CompanyID = nil
					deleted++
				}
			}
			return nil
		}
		for _, id := range relationIDs {
			if _, ok := d.relations[rt.Table][id]; ok {
				delete(d.relations[rt.Table], id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (r *relations) Create(ctx context.Context, input models.RelationInput) (string, bool, error) {
	rt, ok := models.LookupRelationType(input.Type)
	if !ok {
		return "", false, fmt.Errorf("unknown relation type %q", input.Type)
	}
	if rt.DetachOnly {
		return "", false, fmt.Errorf("relation type %q cannot be created directly", rt.Name)
	}

	var id string
	err := r.s.write(ctx, func(d *state) error {
		table, ok := d.relations[rt.Table]
		if !ok {
			table = make(map[string]*row)
			d.relations[rt.Table] = table
		}

		columns := make(map[string]string, len(input.Values)+1)
		for k, v := range input.Values {
			columns[k] = v
		}
		columns[rt.FKColumn] = input.EntityID

		if rt.Unique() && findByKey(table, rt, input.EntityID, rt.KeyOf(columns)) != nil {
			return nil
		}

		id = uuid.New().String()
		table[id] = &row{id: id, columns: columns}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func findByKey(table map[string]*row, rt models.RelationType, entityID, key string) *row {
	for _, row := range table {
		if row.columns[rt.FKColumn] == entityID && rt.KeyOf(row.columns) == key {
			return row
		}
	}
	return nil
}
