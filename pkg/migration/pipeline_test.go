package migration

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/dupqueue"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/store/memstore"
)

const scope = "deal-1"

type fakePublisher struct {
	events []*kafka.Event
}

func (p *fakePublisher) PublishEvent(_ context.Context, event *kafka.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) has(eventType events.EventType) bool {
	for _, e := range p.events {
		if e.EventType == string(eventType) {
			return true
		}
	}
	return false
}

type harness struct {
	pipeline  *Pipeline
	store     *memstore.Store
	merger    *merging.Engine
	publisher *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memstore.New()
	publisher := &fakePublisher{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	emitter := events.NewEmitter(publisher, logger)
	merger := merging.NewEngine(logger, st, emitter)
	queue := dupqueue.NewQueue(logger, st, merger, emitter)
	matcher, err := matching.NewEngine(logger, st, matching.DefaultConfig())
	require.NoError(t, err)
	resolver := resolution.NewResolver(logger, st, matcher, queue)
	pipeline, err := NewPipeline(logger, st, resolver, emitter, DefaultConfig())
	require.NoError(t, err)
	return &harness{pipeline: pipeline, store: st, merger: merger, publisher: publisher}
}

func str(s string) *string { return &s }

// seedDeal adds two contacts at Acme, a buyer with no contact and a row with
// no company name.
func seedDeal(st *memstore.Store) {
	st.AddLegacyContacts(
		&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("https://www.acme.com"), FirstName: str("Jane"), LastName: str("Doe"), Email: str("jane@acme.com"), IsPrimary: true},
		&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("acme.com"), FirstName: str("John"), LastName: str("Smith"), Email: str("john@acme.com"), Role: str("Advisor")},
		&models.LegacyContact{Scope: scope, CompanyName: "Globex"},
		&models.LegacyContact{Scope: scope, CompanyName: " ", FirstName: str("Bob"), LastName: str("Jones")},
	)
}

func seedValid(st *memstore.Store) {
	st.AddLegacyContacts(
		&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("https://www.acme.com"), FirstName: str("Jane"), LastName: str("Doe"), Email: str("jane@acme.com"), IsPrimary: true},
		&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("acme.com"), FirstName: str("John"), LastName: str("Smith"), Email: str("john@acme.com"), Role: str("Advisor")},
		&models.LegacyContact{Scope: scope, CompanyName: "Globex"},
	)
}

func itemFor(t *testing.T, h *harness, legacyID string) *models.MigrationItem {
	t.Helper()
	items, err := h.store.Migrations().ListActiveItems(context.Background(), scope)
	require.NoError(t, err)
	for _, item := range items {
		if item.LegacyID == legacyID {
			return item
		}
	}
	t.Fatalf("no ledger item for %s", legacyID)
	return nil
}

func TestNewPipeline_RejectsInvalidConfig(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	_, err := NewPipeline(logger, memstore.New(), nil, nil, Config{WorkerCount: 0})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestValidateReadiness(t *testing.T) {
	ctx := context.Background()

	t.Run("empty scope", func(t *testing.T) {
		h := newHarness(t)
		result, err := h.pipeline.ValidateReadiness(ctx, scope)
		require.NoError(t, err)
		assert.False(t, result.Ready)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, IssueScopeEmpty, result.Issues[0].Code)
	})

	t.Run("row issues", func(t *testing.T) {
		h := newHarness(t)
		h.store.AddLegacyContacts(
			&models.LegacyContact{ID: "l1", Scope: scope, CompanyName: "Acme", Email: str("not-an-email")},
			&models.LegacyContact{ID: "l2", Scope: scope, CompanyName: ""},
			&models.LegacyContact{ID: "l3", Scope: scope, CompanyName: "Globex", Role: str("CFO")},
		)

		result, err := h.pipeline.ValidateReadiness(ctx, scope)
		require.NoError(t, err)
		assert.False(t, result.Ready)
		assert.Equal(t, 3, result.TotalRows)
		assert.Equal(t, 3, result.PendingRows)

		codes := map[string]string{}
		for _, issue := range result.Issues {
			codes[issue.LegacyID] = issue.Code
		}
		assert.Equal(t, map[string]string{
			"l1": IssueInvalidEmail,
			"l2": IssueMissingCompanyName,
			"l3": IssueMissingContactIdentity,
		}, codes)
	})

	t.Run("warnings alone are ready", func(t *testing.T) {
		h := newHarness(t)
		h.store.AddLegacyContacts(&models.LegacyContact{ID: "l1", Scope: scope, CompanyName: "Acme", Email: str("bad@")})

		result, err := h.pipeline.ValidateReadiness(ctx, scope)
		require.NoError(t, err)
		assert.True(t, result.Ready)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, SeverityWarning, result.Issues[0].Severity)
	})

	t.Run("already migrated", func(t *testing.T) {
		h := newHarness(t)
		seedValid(h.store)
		_, err := h.pipeline.Run(ctx, scope, RunOptions{ActorID: "u1"})
		require.NoError(t, err)

		result, err := h.pipeline.ValidateReadiness(ctx, scope)
		require.NoError(t, err)
		assert.False(t, result.Ready)
		assert.Equal(t, 3, result.MigratedRows)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, IssueAlreadyMigrated, result.Issues[0].Code)
	})
}

func TestRun_Execute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedDeal(h.store)

	result, err := h.pipeline.Run(ctx, scope, RunOptions{ActorID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, models.MigrationStatusPartial, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, models.MigrationCounts{
		CompaniesCreated: 2,
		CompaniesLinked:  1,
		PeopleCreated:    2,
		RelationsCreated: 4,
		Errored:          1,
	}, result.MigrationCounts)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.RowError{LegacyID: "legacy-deal-1-004", Code: IssueMissingCompanyName, Message: "legacy contact has no company name"}, result.Errors[0])

	partial := result.PartialFailure()
	assert.True(t, errors.IsKind(partial, errors.KindPartialBatch))
	assert.Equal(t, []string{"legacy-deal-1-004"}, errors.IDsOf(partial))

	first := itemFor(t, h, "legacy-deal-1-001")
	second := itemFor(t, h, "legacy-deal-1-002")
	assert.True(t, first.CompanyCreated)
	assert.False(t, second.CompanyCreated)
	assert.Equal(t, *first.CompanyID, *second.CompanyID)

	company, err := h.store.Companies().Get(ctx, *first.CompanyID)
	require.NoError(t, err)
	assert.Equal(t, "acme.com", models.Deref(company.Domain))

	buyers, err := h.store.Relations().ListByEntity(ctx, mustType(t, models.RelationDealBuyers), []string{*first.CompanyID})
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, scope, buyers[0].UniqueKey)

	contacts, err := h.store.Relations().ListByEntity(ctx, mustType(t, models.RelationDealContacts), []string{*first.PersonID, *second.PersonID})
	require.NoError(t, err)
	keys := []string{}
	for _, c := range contacts {
		keys = append(keys, c.UniqueKey)
	}
	assert.ElementsMatch(t, []string{scope + "|primary", scope + "|advisor"}, keys)

	person, err := h.store.People().Get(ctx, *first.PersonID)
	require.NoError(t, err)
	assert.Equal(t, first.CompanyID, person.CompanyID)

	rows, err := h.store.Legacy().ListByScope(ctx, scope)
	require.NoError(t, err)
	migrated := 0
	for _, row := range rows {
		if row.IsMigrated() {
			migrated++
			assert.Equal(t, result.RunID, models.Deref(row.MigrationRunID))
		}
	}
	assert.Equal(t, 3, migrated)

	runs, err := h.store.Migrations().ListRuns(ctx, scope)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.MigrationStatusPartial, runs[0].Status)
	assert.Equal(t, "u1", runs[0].ActorID)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.True(t, h.publisher.has(events.EventTypeMigrationCompleted))
}

func TestRun_RefusesMigratedScope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedValid(h.store)

	result, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.MigrationStatusCompleted, result.Status)

	_, err = h.pipeline.Run(ctx, scope, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeScopeAlreadyMigrated, errors.CodeOf(err))
	assert.Equal(t, []string{scope}, errors.IDsOf(err))
}

func TestRun_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), "  ", RunOptions{})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	_, err = h.pipeline.Run(context.Background(), "deal-none", RunOptions{})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedDeal(h.store)

	dry, err := h.pipeline.Run(ctx, scope, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, dry.RunID)
	assert.True(t, dry.DryRun)

	found, err := h.store.Companies().FindByDomain(ctx, "acme.com")
	require.NoError(t, err)
	assert.Empty(t, found)
	runs, err := h.store.Migrations().ListRuns(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, runs)
	items, err := h.store.Migrations().ListActiveItems(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, items)
	rows, err := h.store.Legacy().ListByScope(ctx, scope)
	require.NoError(t, err)
	for _, row := range rows {
		assert.False(t, row.IsMigrated())
	}
	assert.Empty(t, h.publisher.events)

	readiness, err := h.pipeline.ValidateReadiness(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 4, readiness.PendingRows)
	assert.Zero(t, readiness.MigratedRows)

	executed, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, executed.MigrationCounts, dry.MigrationCounts)
	assert.Equal(t, executed.Errors, dry.Errors)
}

func TestRun_DryRunMatchesExecute(t *testing.T) {
	tests := []struct {
		name     string
		rows     []*models.LegacyContact
		expected models.MigrationCounts
	}{
		{
			name: "suffix and domain label link",
			rows: []*models.LegacyContact{
				{Scope: scope, CompanyName: "Acme Corp", Website: str("acme.com")},
				{Scope: scope, CompanyName: "Acme Corporation", Website: str("acme.io")},
			},
			expected: models.MigrationCounts{CompaniesCreated: 1, CompaniesLinked: 1, RelationsCreated: 1},
		},
		{
			name: "near match queues the second row",
			rows: []*models.LegacyContact{
				{Scope: scope, CompanyName: "Initech"},
				{Scope: scope, CompanyName: "Initech LLC"},
			},
			expected: models.MigrationCounts{CompaniesCreated: 2, QueuedForReview: 1, RelationsCreated: 2},
		},
		{
			name: "contacts sharing an email",
			rows: []*models.LegacyContact{
				{Scope: scope, CompanyName: "Globex", FirstName: str("Hank"), LastName: str("Scorpio"), Email: str("hank@globex.com")},
				{Scope: scope, CompanyName: "Globex", FirstName: str("H."), LastName: str("Scorpio"), Email: str("HANK@globex.com"), Role: str("CEO")},
			},
			expected: models.MigrationCounts{CompaniesCreated: 1, CompaniesLinked: 1, PeopleCreated: 1, PeopleLinked: 1, RelationsCreated: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.store.AddLegacyContacts(tt.rows...)

			dry, err := h.pipeline.Run(ctx, scope, RunOptions{DryRun: true})
			require.NoError(t, err)

			readiness, err := h.pipeline.ValidateReadiness(ctx, scope)
			require.NoError(t, err)
			assert.Zero(t, readiness.MigratedRows)

			executed, err := h.pipeline.Run(ctx, scope, RunOptions{})
			require.NoError(t, err)

			assert.Equal(t, tt.expected, executed.MigrationCounts)
			assert.Equal(t, executed.MigrationCounts, dry.MigrationCounts)
		})
	}
}

func TestRun_LinksExistingCompany(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	existing := models.CreateCompanyRequest{Name: "ACME Incorporated", Domain: str("acme.com")}.Build(time.Now().UTC())
	existing.ID = "existing"
	require.NoError(t, h.store.Companies().Create(ctx, existing))
	h.store.AddLegacyContacts(
		&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("https://acme.com")},
		&models.LegacyContact{Scope: scope, CompanyName: "Acme", Website: str("www.acme.com"), FirstName: str("Jane"), LastName: str("Doe")},
	)

	result, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CompaniesCreated)
	assert.Equal(t, 2, result.CompaniesLinked)
	assert.Equal(t, 1, result.PeopleCreated)
	assert.Equal(t, 2, result.RelationsCreated)

	item := itemFor(t, h, "legacy-deal-1-001")
	assert.Equal(t, "existing", *item.CompanyID)
	assert.False(t, item.CompanyCreated)

	rollback, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.NoError(t, err)
	assert.Empty(t, rollback.RemovedCompanies)
	assert.Equal(t, 2, rollback.RelationsDetached)

	_, err = h.store.Companies().Get(ctx, "existing")
	require.NoError(t, err)
	buyers, err := h.store.Relations().ListByEntity(ctx, mustType(t, models.RelationDealBuyers), []string{"existing"})
	require.NoError(t, err)
	assert.Empty(t, buyers)
}

func TestRun_QueuesNearMatchForReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	existing := models.CreateCompanyRequest{Name: "Initech"}.Build(time.Now().UTC())
	existing.ID = "existing"
	require.NoError(t, h.store.Companies().Create(ctx, existing))
	h.store.AddLegacyContacts(&models.LegacyContact{Scope: scope, CompanyName: "Initech LLC"})

	result, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompaniesCreated)
	assert.Equal(t, 1, result.QueuedForReview)

	pending, err := h.store.Candidates().ListPending(ctx, models.EntityTypeCompany, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rollback, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rollback.CandidatesDeleted)

	pending, err = h.store.Candidates().ListPending(ctx, models.EntityTypeCompany, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_SkipDuplicateCheckAlwaysCreates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	existing := models.CreateCompanyRequest{Name: "Acme Inc", Domain: str("acme.com")}.Build(time.Now().UTC())
	require.NoError(t, h.store.Companies().Create(ctx, existing))
	h.store.AddLegacyContacts(&models.LegacyContact{Scope: scope, CompanyName: "Acme Inc", Website: str("acme.com")})

	result, err := h.pipeline.Run(ctx, scope, RunOptions{SkipDuplicateCheck: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompaniesCreated)
	assert.Equal(t, 0, result.QueuedForReview)

	found, err := h.store.Companies().FindByDomain(ctx, "acme.com")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestRollback_RestoresState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedValid(h.store)

	_, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	acme := itemFor(t, h, "legacy-deal-1-001")
	globex := itemFor(t, h, "legacy-deal-1-003")

	result, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{ActorID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 4, result.RelationsDetached)
	assert.ElementsMatch(t, []string{*acme.CompanyID, *globex.CompanyID}, result.RemovedCompanies)
	assert.Len(t, result.RemovedPeople, 2)
	assert.Empty(t, result.Retained)
	assert.Equal(t, 3, result.RowsReset)

	_, err = h.store.Companies().Get(ctx, *acme.CompanyID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	_, err = h.store.People().Get(ctx, *acme.PersonID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	rows, err := h.store.Legacy().ListByScope(ctx, scope)
	require.NoError(t, err)
	for _, row := range rows {
		assert.False(t, row.IsMigrated())
	}
	runs, err := h.store.Migrations().ListRuns(ctx, scope)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.MigrationStatusRolledBack, runs[0].Status)
	assert.True(t, h.publisher.has(events.EventTypeMigrationRolledBack))

	_, err = h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	assert.Equal(t, errors.CodeScopeNotMigrated, errors.CodeOf(err))

	again, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.CompaniesCreated)
}

func TestRollback_BlockedByMerge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedValid(h.store)
	outside := models.CreateCompanyRequest{Name: "Outside Holdings"}.Build(time.Now().UTC())
	outside.ID = "outside"
	require.NoError(t, h.store.Companies().Create(ctx, outside))

	_, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	acme := itemFor(t, h, "legacy-deal-1-001")

	_, err = h.merger.MergeCompanies(ctx, "outside", []string{*acme.CompanyID}, "u1")
	require.NoError(t, err)

	_, err = h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))
	assert.Equal(t, errors.CodeRollbackBlockedByMerge, errors.CodeOf(err))
	assert.Equal(t, []string{*acme.CompanyID}, errors.IDsOf(err))

	items, err := h.store.Migrations().ListActiveItems(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRollback_RetainsReferencedRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedValid(h.store)

	_, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	globex := itemFor(t, h, "legacy-deal-1-003")

	_, created, err := h.store.Relations().Create(ctx, models.RelationInput{
		Type:     models.RelationDealBuyers,
		EntityID: *globex.CompanyID,
		Values:   map[string]string{"deal_id": "deal-2"},
	})
	require.NoError(t, err)
	require.True(t, created)

	result, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.NoError(t, err)
	require.Len(t, result.Retained, 1)
	assert.Equal(t, RetainedRecord{ID: *globex.CompanyID, EntityType: models.EntityTypeCompany, Reason: reasonRelations}, result.Retained[0])
	assert.Len(t, result.RemovedCompanies, 1)

	_, err = h.store.Companies().Get(ctx, *globex.CompanyID)
	require.NoError(t, err)
}

func TestRollback_CountsOnlyRelationsStillHeld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for id, req := range map[string]models.CreateCompanyRequest{
		"existing": {Name: "Acme Inc", Domain: str("acme.com")},
		"other":    {Name: "Globex"},
	} {
		c := req.Build(time.Now().UTC())
		c.ID = id
		require.NoError(t, h.store.Companies().Create(ctx, c))
	}
	_, _, err := h.store.Relations().Create(ctx, models.RelationInput{Type: models.RelationDealBuyers, EntityID: "other", Values: map[string]string{"deal_id": scope}})
	require.NoError(t, err)
	h.store.AddLegacyContacts(&models.LegacyContact{Scope: scope, CompanyName: "Acme", Website: str("acme.com")})

	result, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.RelationsCreated)

	// other already buys on the deal, so the migrated row is dropped
	_, err = h.merger.MergeCompanies(ctx, "other", []string{"existing"}, "u1")
	require.NoError(t, err)

	rollback, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.NoError(t, err)
	assert.Zero(t, rollback.RelationsDetached)

	buyers, err := h.store.Relations().ListByEntity(ctx, mustType(t, models.RelationDealBuyers), []string{"other"})
	require.NoError(t, err)
	assert.Len(t, buyers, 1)
}

func TestRollback_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedValid(h.store)

	_, err := h.pipeline.Run(ctx, scope, RunOptions{})
	require.NoError(t, err)
	acme := itemFor(t, h, "legacy-deal-1-001")
	published := len(h.publisher.events)

	dry, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Len(t, dry.RemovedCompanies, 2)
	assert.Equal(t, 4, dry.RelationsDetached)

	_, err = h.store.Companies().Get(ctx, *acme.CompanyID)
	require.NoError(t, err)
	items, err := h.store.Migrations().ListActiveItems(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, published, len(h.publisher.events))

	executed, err := h.pipeline.Rollback(ctx, scope, RollbackOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, dry.RemovedCompanies, executed.RemovedCompanies)
	assert.ElementsMatch(t, dry.RemovedPeople, executed.RemovedPeople)
}

func TestGroupRows(t *testing.T) {
	h := newHarness(t)
	rows := []*models.LegacyContact{
		{ID: "1", CompanyName: "Acme", Website: str("acme.com")},
		{ID: "2", CompanyName: "Globex"},
		{ID: "3", CompanyName: "Acme Inc", Website: str("https://acme.com")},
		{ID: "4", CompanyName: "Initech", Email: str("jane@globex.com")},
		{ID: "5", CompanyName: "Hooli", Email: str("JANE@globex.com")},
		{ID: "6", CompanyName: "Acme Corporation", Website: str("acme.io")},
		{ID: "7", CompanyName: "Pied Piper", FirstName: str("Richard"), LastName: str("Hendricks")},
		{ID: "8", CompanyName: "Umbrella", FirstName: str("Rich"), LastName: str("Hendricks")},
	}

	groups := groupRows(rows, h.pipeline.blockKeys)

	ids := make([][]string, len(groups))
	for i, g := range groups {
		for _, row := range g {
			ids[i] = append(ids[i], row.ID)
		}
	}
	assert.Equal(t, [][]string{{"1", "3", "6"}, {"2"}, {"4", "5"}, {"7", "8"}}, ids)
}

func TestContactRole(t *testing.T) {
	tests := []struct {
		name     string
		row      models.LegacyContact
		expected string
	}{
		{name: "explicit role", row: models.LegacyContact{Role: str(" CFO "), IsPrimary: true}, expected: "cfo"},
		{name: "primary flag", row: models.LegacyContact{IsPrimary: true}, expected: rolePrimary},
		{name: "default", row: models.LegacyContact{}, expected: roleDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, contactRole(&tt.row))
		})
	}
}

func mustType(t *testing.T, name string) models.RelationType {
	t.Helper()
	rt, ok := models.LookupRelationType(name)
	require.True(t, ok)
	return rt
}
