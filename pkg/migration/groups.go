package migration

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// disjointSet is a union-find over row indexes.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}

// blockKeys are the matcher's blocking keys for a row's company and contact.
// Rows sharing any key may resolve to the same canonical record, or to each
// other's new records, so they must run in order.
func (p *Pipeline) blockKeys(row *models.LegacyContact) []string {
	keys := p.resolver.CompanyBlockKeys(models.CreateCompanyRequest{Name: row.CompanyName, Website: row.Website})
	return append(keys, p.resolver.PersonBlockKeys(models.CreatePersonRequest{
		FirstName: models.Deref(row.FirstName),
		LastName:  models.Deref(row.LastName),
		Email:     row.Email,
	})...)
}

// groupRows partitions rows into groups that share a key. Groups and the rows
// inside them keep the input order.
func groupRows(rows []*models.LegacyContact, keysOf func(*models.LegacyContact) []string) [][]*models.LegacyContact {
	ds := newDisjointSet(len(rows))
	owner := map[string]int{}
	for i, row := range rows {
		for _, key := range keysOf(row) {
			if j, ok := owner[key]; ok {
				ds.union(i, j)
				continue
			}
			owner[key] = i
		}
	}

	byRoot := map[int][]*models.LegacyContact{}
	first := map[int]int{}
	for i, row := range rows {
		root := ds.find(i)
		if _, ok := first[root]; !ok {
			first[root] = i
		}
		byRoot[root] = append(byRoot[root], row)
	}

	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return first[roots[i]] < first[roots[j]] })

	groups := make([][]*models.LegacyContact, len(roots))
	for i, root := range roots {
		groups[i] = byRoot[root]
	}
	return groups
}
