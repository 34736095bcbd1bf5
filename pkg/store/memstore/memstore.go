// Package memstore is an in-memory store.Store. Transactions are serialized
// with a mutex and roll back by restoring a snapshot taken when they began.
package memstore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

type txKey struct{}

type state struct {
	companies  map[string]*models.Company
	people     map[string]*models.Person
	relations  map[string]map[string]*row // table -> id -> row
	candidates map[string]*models.DuplicateCandidate
	audits     []*models.MergeAuditLog
	runs       map[string]*models.MigrationRun
	items      map[string]*models.MigrationItem
	legacy     map[string]*models.LegacyContact
}

// row is one relation table row keyed by column name.
type row struct {
	id      string
	columns map[string]string
}

func newState() *state {
	return &state{
		companies:  make(map[string]*models.Company),
		people:     make(map[string]*models.Person),
		relations:  make(map[string]map[string]*row),
		candidates: make(map[string]*models.DuplicateCandidate),
		runs:       make(map[string]*models.MigrationRun),
		items:      make(map[string]*models.MigrationItem),
		legacy:     make(map[string]*models.LegacyContact),
	}
}

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: newState(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithTx holds the transaction lock for the whole of fn. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	restore := func() {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		restore()
		return err
	}
	return nil
}

// WithSavepoint restores the state fn found when fn fails, leaving the outer
// transaction's earlier writes in place.
func (s *Store) WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if !inTx(ctx) {
		return s.WithTx(ctx, fn)
	}

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write applies fn under the data lock. Writes outside a transaction also take
// the transaction lock so they never interleave with a running transaction.
func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) Companies() store.CompanyStore    { return &companies{s} }
func (s *Store) People() store.PersonStore        { return &people{s} }
func (s *Store) Relations() store.RelationStore   { return &relations{s} }
func (s *Store) Candidates() store.CandidateStore { return &candidates{s} }
func (s *Store) Audit() store.AuditStore          { return &audits{s} }
func (s *Store) Migrations() store.MigrationStore { return &migrations{s} }
func (s *Store) Legacy() store.LegacyStore        { return &legacy{s} }

// AddLegacyContacts seeds legacy rows. Blank ids are assigned.
func (s *Store) AddLegacyContacts(rows ...*models.LegacyContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range rows {
		c := *r
		if c.ID == "" {
			c.ID = fmt.Sprintf("legacy-%s-%03d", c.Scope, len(s.data.legacy)+i+1)
		}
		s.data.legacy[c.ID] = &c
	}
}

func (d *state) clone() *state {
	out := newState()
	for id, c := range d.companies {
		cp := *c
		out.companies[id] = &cp
	}
	for id, p := range d.people {
		cp := *p
		out.people[id] = &cp
	}
	for table, rows := range d.relations {
		out.relations[table] = make(map[string]*row, len(rows))
		for id, r := range rows {
			out.relations[table][id] = r.clone()
		}
	}
	for id, c := range d.candidates {
		out.candidates[id] = cloneCandidate(c)
	}
	out.audits = append(out.audits, d.audits...)
	for id, r := range d.runs {
		cp := *r
		out.runs[id] = &cp
	}
	for id, i := range d.items {
		cp := *i
		out.items[id] = &cp
	}
	for id, l := range d.legacy {
		cp := *l
		out.legacy[id] = &cp
	}
	return out
}

func (r *row) clone() *row {
	cols := make(map[string]string, len(r.columns))
	for k, v := range r.columns {
		cols[k] = v
	}
	return &row{id: r.id, columns: cols}
}

func cloneCandidate(c *models.DuplicateCandidate) *models.DuplicateCandidate {
	cp := *c
	cp.Signals = append([]string(nil), c.Signals...)
	return &cp
}

func notFound(what, id string) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", what, id))
}

func conflict(msg string) error {
	return httperror.NewHTTPError(http.StatusConflict, msg)
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortRecords[T models.Record](records []T) []T {
	sort.Slice(records, func(i, j int) bool {
		return records[i].GetID() < records[j].GetID()
	})
	return records
}
