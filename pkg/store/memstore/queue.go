package memstore

import (
	"context"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

type candidates struct{ s *Store }

func (r *candidates) FindPendingPair(_ context.Context, entityType models.EntityType, a, b string) (*models.DuplicateCandidate, error) {
	key := models.PairKey(entityType, a, b)
	var out *models.DuplicateCandidate
	r.s.read(func(d *state) {
		for _, c := range d.candidates {
			if c.IsPending() && c.PairKey() == key {
				out = cloneCandidate(c)
				return
			}
		}
	})
	return out, nil
}

func (r *candidates) Create(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, bool, error) {
	var held *models.DuplicateCandidate
	err := r.s.write(ctx, func(d *state) error {
		if _, ok := d.candidates[candidate.ID]; ok {
			return conflict("candidate " + candidate.ID + " already exists")
		}
		if candidate.IsPending() {
			key := candidate.PairKey()
			for _, c := range d.candidates {
				if c.IsPending() && c.PairKey() == key {
					held = cloneCandidate(c)
					return nil
				}
			}
		}
		d.candidates[candidate.ID] = cloneCandidate(candidate)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if held != nil {
		return held, false, nil
	}
	return candidate, true, nil
}

func (r *candidates) Get(_ context.Context, id string) (*models.DuplicateCandidate, error) {
	var out *models.DuplicateCandidate
	r.s.read(func(d *state) {
		if c, ok := d.candidates[id]; ok {
			out = cloneCandidate(c)
		}
	})
	if out == nil {
		return nil, notFound("duplicate candidate", id)
	}
	return out, nil
}

func (r *candidates) GetForUpdate(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	return r.Get(ctx, id)
}

func (r *candidates) Update(ctx context.Context, candidate *models.DuplicateCandidate) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.candidates[candidate.ID]; !ok {
			return notFound("duplicate candidate", candidate.ID)
		}
		if candidate.IsPending() {
			key := candidate.PairKey()
			for id, c := range d.candidates {
				if id != candidate.ID && c.IsPending() && c.PairKey() == key {
					return conflict("pending candidate already exists for pair")
				}
			}
		}
		candidate.UpdatedAt = r.s.now()
		d.candidates[candidate.ID] = cloneCandidate(candidate)
		return nil
	})
}

func (r *candidates) Delete(ctx context.Context, ids []string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, id := range ids {
			delete(d.candidates, id)
		}
		return nil
	})
}

func (r *candidates) ListPending(_ context.Context, entityType models.EntityType, limit int) ([]*models.DuplicateCandidate, error) {
	out := r.list(func(c *models.DuplicateCandidate) bool {
		return entityType == "" || c.EntityType == entityType
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *candidates) ListPendingByEntities(_ context.Context, entityType models.EntityType, ids []string) ([]*models.DuplicateCandidate, error) {
	set := idSet(ids)
	out := r.list(func(c *models.DuplicateCandidate) bool {
		return c.EntityType == entityType && (set[c.RecordAID] || set[c.RecordBID])
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *candidates) list(match func(c *models.DuplicateCandidate) bool) []*models.DuplicateCandidate {
	var out []*models.DuplicateCandidate
	r.s.read(func(d *state) {
		for _, c := range d.candidates {
			if c.IsPending() && match(c) {
				out = append(out, cloneCandidate(c))
			}
		}
	})
	return out
}

type audits struct{ s *Store }

func (r *audits) Create(ctx context.Context, log *models.MergeAuditLog) error {
	return r.s.write(ctx, func(d *state) error {
		cp := *log
		cp.AbsorbedIDs = append([]string(nil), log.AbsorbedIDs...)
		d.audits = append(d.audits, &cp)
		return nil
	})
}

func (r *audits) ListByEntities(_ context.Context, entityType models.EntityType, ids []string) ([]*models.MergeAuditLog, error) {
	set := idSet(ids)
	var out []*models.MergeAuditLog
	r.s.read(func(d *state) {
		for _, log := range d.audits {
			if log.EntityType != entityType {
				continue
			}
			hit := set[log.PrimaryID]
			for _, id := range log.AbsorbedIDs {
				hit = hit || set[id]
			}
			if hit {
				cp := *log
				out = append(out, &cp)
			}
		}
	})
	return out, nil
}
