package memstore

import (
	"context"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

type companies struct{ s *Store }

func (r *companies) Get(_ context.Context, id string) (*models.Company, error) {
	var out *models.Company
	r.s.read(func(d *state) {
		if c, ok := d.companies[id]; ok {
			cp := *c
			out = &cp
		}
	})
	if out == nil {
		return nil, notFound("company", id)
	}
	return out, nil
}

func (r *companies) GetMany(_ context.Context, ids []string) ([]*models.Company, error) {
	var out []*models.Company
	r.s.read(func(d *state) {
		for id := range idSet(ids) {
			if c, ok := d.companies[id]; ok {
				cp := *c
				out = append(out, &cp)
			}
		}
	})
	return sortRecords(out), nil
}

// LockForUpdate is GetMany; the transaction lock already serializes writers.
func (r *companies) LockForUpdate(ctx context.Context, ids []string) ([]*models.Company, error) {
	return r.GetMany(ctx, ids)
}

func (r *companies) Create(ctx context.Context, company *models.Company) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.companies[company.ID]; ok {
			return conflict("company " + company.ID + " already exists")
		}
		cp := *company
		d.companies[company.ID] = &cp
		return nil
	})
}

func (r *companies) Update(ctx context.Context, company *models.Company) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.companies[company.ID]; !ok {
			return notFound("company", company.ID)
		}
		company.UpdatedAt = r.s.now()
		cp := *company
		d.companies[company.ID] = &cp
		return nil
	})
}

func (r *companies) Tombstone(ctx context.Context, ids []string, primaryID string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, id := range ids {
			c, ok := d.companies[id]
			if !ok {
				return notFound("company", id)
			}
			primary := primaryID
			c.MergedInto = &primary
			c.UpdatedAt = r.s.now()
		}
		return nil
	})
}

func (r *companies) Delete(ctx context.Context, ids []string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, id := range ids {
			delete(d.companies, id)
		}
		return nil
	})
}

func (r *companies) find(match func(c *models.Company) bool, limit int) []*models.Company {
	var out []*models.Company
	r.s.read(func(d *state) {
		for _, c := range d.companies {
			if c.IsTombstoned() || !match(c) {
				continue
			}
			cp := *c
			out = append(out, &cp)
		}
	})
	out = sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *companies) FindByDomain(_ context.Context, domain string) ([]*models.Company, error) {
	if domain == "" {
		return nil, nil
	}
	return r.find(func(c *models.Company) bool { return models.Deref(c.Domain) == domain }, 0), nil
}

func (r *companies) FindBySocialURL(_ context.Context, socialURL string) ([]*models.Company, error) {
	if socialURL == "" {
		return nil, nil
	}
	return r.find(func(c *models.Company) bool { return models.Deref(c.SocialURL) == socialURL }, 0), nil
}

func (r *companies) FindByNormalizedName(_ context.Context, name string) ([]*models.Company, error) {
	if name == "" {
		return nil, nil
	}
	return r.find(func(c *models.Company) bool { return c.NormalizedName == name }, 0), nil
}

func (r *companies) FindByNamePrefix(_ context.Context, prefix string, limit int) ([]*models.Company, error) {
	if prefix == "" {
		return nil, nil
	}
	return r.find(func(c *models.Company) bool { return strings.HasPrefix(c.NormalizedName, prefix) }, limit), nil
}

type people struct{ s *Store }

func (r *people) Get(_ context.Context, id string) (*models.Person, error) {
	var out *models.Person
	r.s.read(func(d *state) {
		if p, ok := d.people[id]; ok {
			cp := *p
			out = &cp
		}
	})
	if out == nil {
		return nil, notFound("person", id)
	}
	return out, nil
}

func (r *people) GetMany(_ context.Context, ids []string) ([]*models.Person, error) {
	var out []*models.Person
	r.s.read(func(d *state) {
		for id := range idSet(ids) {
			if p, ok := d.people[id]; ok {
				cp := *p
				out = append(out, &cp)
			}
		}
	})
	return sortRecords(out), nil
}

func (r *people) LockForUpdate(ctx context.Context, ids []string) ([]*models.Person, error) {
	return r.GetMany(ctx, ids)
}

func (r *people) Create(ctx context.Context, person *models.Person) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.people[person.ID]; ok {
			return conflict("person " + person.ID + " already exists")
		}
		cp := *person
		d.people[person.ID] = &cp
		return nil
	})
}

func (r *people) Update(ctx context.Context, person *models.Person) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.people[person.ID]; !ok {
			return notFound("person", person.ID)
		}
		person.UpdatedAt = r.s.now()
		cp := *person
		d.people[person.ID] = &cp
		return nil
	})
}

func (r *people) Tombstone(ctx context.Context, ids []string, primaryID string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, id := range ids {
			p, ok := d.people[id]
			if !ok {
				return notFound("person", id)
			}
			primary := primaryID
			p.MergedInto = &primary
			p.UpdatedAt = r.s.now()
		}
		return nil
	})
}

func (r *people) Delete(ctx context.Context, ids []string) error {
	return r.s.write(ctx, func(d *state) error {
		for _, id := range ids {
			delete(d.people, id)
		}
		return nil
	})
}

func (r *people) find(match func(p *models.Person) bool, limit int) []*models.Person {
	var out []*models.Person
	r.s.read(func(d *state) {
		for _, p := range d.people {
			if p.IsTombstoned() || !match(p) {
				continue
			}
			cp := *p
			out = append(out, &cp)
		}
	})
	out = sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *people) FindByEmail(_ context.Context, email string) ([]*models.Person, error) {
	if email == "" {
		return nil, nil
	}
	return r.find(func(p *models.Person) bool { return models.Deref(p.Email) == email }, 0), nil
}

func (r *people) FindBySocialURL(_ context.Context, socialURL string) ([]*models.Person, error) {
	if socialURL == "" {
		return nil, nil
	}
	return r.find(func(p *models.Person) bool { return models.Deref(p.SocialURL) == socialURL }, 0), nil
}

func (r *people) FindByNormalizedName(_ context.Context, name string) ([]*models.Person, error) {
	if name == "" {
		return nil, nil
	}
	return r.find(func(p *models.Person) bool { return p.NormalizedName == name }, 0), nil
}

func (r *people) FindByNamePrefix(_ context.Context, prefix string, limit int) ([]*models.Person, error) {
	if prefix == "" {
		return nil, nil
	}
	return r.find(func(p *models.Person) bool { return strings.HasPrefix(p.NormalizedName, prefix) }, limit), nil
}
