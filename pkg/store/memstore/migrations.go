package memstore

import (
	"context"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

type migrations struct{ s *Store }

func (r *migrations) CreateRun(ctx context.Context, run *models.MigrationRun) error {
	return r.s.write(ctx, func(d *state) error {
		cp := *run
		d.runs[run.ID] = &cp
		return nil
	})
}

func (r *migrations) UpdateRun(ctx context.Context, run *models.MigrationRun) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.runs[run.ID]; !ok {
			return notFound("migration run", run.ID)
		}
		cp := *run
		d.runs[run.ID] = &cp
		return nil
	})
}

func (r *migrations) ListRuns(_ context.Context, scope string) ([]*models.MigrationRun, error) {
	var out []*models.MigrationRun
	r.s.read(func(d *state) {
		for _, run := range d.runs {
			if run.Scope == scope {
				cp := *run
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *migrations) CreateItem(ctx context.Context, item *models.MigrationItem) error {
	return r.s.write(ctx, func(d *state) error {
		cp := *item
		d.items[item.ID] = &cp
		return nil
	})
}

func (r *migrations) ListActiveItems(_ context.Context, scope string) ([]*models.MigrationItem, error) {
	var out []*models.MigrationItem
	r.s.read(func(d *state) {
		for _, item := range d.items {
			if item.Scope == scope && item.RolledBackAt == nil {
				cp := *item
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *migrations) MarkRolledBack(ctx context.Context, scope string) error {
	return r.s.write(ctx, func(d *state) error {
		now := r.s.now()
		for _, item := range d.items {
			if item.Scope == scope && item.RolledBackAt == nil {
				item.RolledBackAt = &now
			}
		}
		for _, run := range d.runs {
			if run.Scope == scope && run.Status != models.MigrationStatusRolledBack {
				run.Status = models.MigrationStatusRolledBack
			}
		}
		return nil
	})
}

type legacy struct{ s *Store }

func (r *legacy) ListByScope(_ context.Context, scope string) ([]*models.LegacyContact, error) {
	var out []*models.LegacyContact
	r.s.read(func(d *state) {
		for _, l := range d.legacy {
			if l.Scope == scope {
				cp := *l
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *legacy) MarkMigrated(ctx context.Context, id string, runID string) error {
	return r.s.write(ctx, func(d *state) error {
		l, ok := d.legacy[id]
		if !ok {
			return notFound("legacy contact", id)
		}
		now := r.s.now()
		run := runID
		l.MigratedAt = &now
		l.MigrationRunID = &run
		return nil
	})
}

func (r *legacy) ClearMigrated(ctx context.Context, scope string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, l := range d.legacy {
			if l.Scope == scope {
				l.MigratedAt = nil
				l.MigrationRunID = nil
			}
		}
		return nil
	})
}
