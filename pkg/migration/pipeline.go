// Package migration converts a deal's legacy flat buyer/contact rows into
// canonical companies and people, and can roll a converted scope back.
package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/store"
)

const (
	roleDefault = "contact"
	rolePrimary = "primary"

	codeRowFailed = "ROW_FAILED"
)

type Config struct {
	WorkerCount int `validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{WorkerCount: 4}
}

type RunOptions struct {
	DryRun             bool   `json:"dry_run"`
	SkipDuplicateCheck bool   `json:"skip_duplicate_check"`
	ActorID            string `json:"actor_id,omitempty"`
}

// MigrationResult reports a run. Status is partial when any row failed.
type MigrationResult struct {
	RunID  string                 `json:"run_id,omitempty"`
	Scope  string                 `json:"scope"`
	DryRun bool                   `json:"dry_run"`
	Status models.MigrationStatus `json:"status"`
	models.MigrationCounts
	Errors   []models.RowError `json:"errors"`
	Duration time.Duration     `json:"duration"`
}

// PartialFailure returns a partial_batch error naming the failed legacy rows,
// or nil when every row succeeded.
func (r *MigrationResult) PartialFailure() error {
	if len(r.Errors) == 0 {
		return nil
	}
	ids := ectolinq.Map(r.Errors, func(e models.RowError) string { return e.LegacyID })
	return errors.PartialBatch(fmt.Sprintf("%d of the legacy contacts in %s failed to migrate", len(ids), r.Scope), ids...)
}

type Pipeline struct {
	logger    ectologger.Logger
	store     store.Store
	resolver  *resolution.Resolver
	emitter   *events.Emitter
	config    Config
	validator *validator.Validate
	now       func() time.Time
}

func NewPipeline(logger ectologger.Logger, st store.Store, resolver *resolution.Resolver, emitter *events.Emitter, config Config) (*Pipeline, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Validation("invalid migration config: %v", err)
	}
	return &Pipeline{
		logger:    logger,
		store:     st,
		resolver:  resolver,
		emitter:   emitter,
		config:    config,
		validator: validate,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// rowIssueError fails one row with a readiness issue code.
type rowIssueError struct {
	code    string
	message string
}

func (e *rowIssueError) Error() string { return e.code + ": " + e.message }

// Run migrates every unmigrated row of scope. Each row commits on its own, so
// a failing row is reported and the rest continue. A dry run executes the same
// steps in a transaction it then rolls back.
func (p *Pipeline) Run(ctx context.Context, scope string, opts RunOptions) (*MigrationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "migration.Pipeline.Run")
	defer span.End()

	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.Validation("scope is required")
	}

	rows, err := p.store.Legacy().ListByScope(ctx, scope)
	if err != nil {
		return nil, errors.Internal(err, "failed to load legacy contacts")
	}
	if len(rows) == 0 {
		return nil, errors.Validation("scope %s has no legacy contacts", scope)
	}
	pending := ectolinq.Filter(rows, func(row *models.LegacyContact) bool { return !row.IsMigrated() })
	if len(pending) == 0 {
		return nil, errors.Conflict(errors.CodeScopeAlreadyMigrated, "every legacy contact in scope is already migrated", scope)
	}

	actorID := reqctx.ActorOr(ctx, opts.ActorID)
	started := p.now()
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"scope":   scope,
		"dry_run": opts.DryRun,
		"rows":    len(pending),
	})

	run := &models.MigrationRun{
		ID:        uuid.New().String(),
		Scope:     scope,
		DryRun:    opts.DryRun,
		Status:    models.MigrationStatusRunning,
		ActorID:   actorID,
		StartedAt: started,
	}
	groups := groupRows(pending, p.blockKeys)

	var batch *batchOutcome
	if opts.DryRun {
		// The preview takes the execute path inside one transaction and
		// discards it, one group at a time.
		err := p.store.WithTx(ctx, func(ctx context.Context) error {
			if err := p.store.Migrations().CreateRun(ctx, run); err != nil {
				return errors.Internal(err, "failed to record migration run")
			}
			batch = p.runGroups(ctx, groups, 1, scope, run.ID, opts)
			return errDryRun
		})
		if err != nil && !errors.Is(err, errDryRun) {
			return nil, err
		}
	} else {
		if err := p.store.Migrations().CreateRun(ctx, run); err != nil {
			return nil, errors.Internal(err, "failed to record migration run")
		}
		batch = p.runGroups(ctx, groups, p.config.WorkerCount, scope, run.ID, opts)
	}

	counts := batch.counts
	counts.Skipped = len(rows) - len(pending)

	status := models.MigrationStatusCompleted
	if counts.Errored > 0 || batch.err != nil {
		status = models.MigrationStatusPartial
	}
	finished := p.now()

	result := &MigrationResult{
		Scope:           scope,
		DryRun:          opts.DryRun,
		Status:          status,
		MigrationCounts: counts,
		Errors:          batch.errors,
		Duration:        finished.Sub(started),
	}

	if !opts.DryRun {
		result.RunID = run.ID
		run.Status = status
		run.Counts = counts
		run.Errors = batch.errors
		run.FinishedAt = &finished
		run.DurationMs = result.Duration.Milliseconds()
		if err := p.store.Migrations().UpdateRun(context.WithoutCancel(ctx), run); err != nil {
			log.WithError(err).Error("Failed to record migration run outcome")
		}
		p.emitter.MigrationCompleted(ctx, run)
	}

	if batch.err != nil {
		log.WithError(batch.err).Warn("Migration run interrupted")
		return nil, batch.err
	}

	log.WithFields(map[string]any{
		"run_id":            result.RunID,
		"status":            status,
		"companies_created": counts.CompaniesCreated,
		"people_created":    counts.PeopleCreated,
		"errored":           counts.Errored,
	}).Info("Migration run finished")

	return result, nil
}

// batchOutcome is the tally of one pass over the row groups. err is set when
// the pass was cut short.
type batchOutcome struct {
	counts models.MigrationCounts
	errors []models.RowError
	err    error
}

// runGroups migrates groups on up to workers goroutines. Rows of one group
// run in order on one goroutine with their own cache.
func (p *Pipeline) runGroups(ctx context.Context, groups [][]*models.LegacyContact, workers int, scope, runID string, opts RunOptions) *batchOutcome {
	var (
		mu  sync.Mutex
		out = &batchOutcome{errors: []models.RowError{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, group := range groups {
		g.Go(func() error {
			cache := newRunCache()
			for _, row := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				rowCounts, err := p.runRow(gctx, row, scope, runID, cache, opts)

				mu.Lock()
				if err != nil {
					out.errors = append(out.errors, toRowError(row, err))
					out.counts.Errored++
				} else {
					out.counts.Add(rowCounts)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	out.err = g.Wait()

	sort.Slice(out.errors, func(i, j int) bool { return out.errors[i].LegacyID < out.errors[j].LegacyID })
	return out
}

// runRow migrates one row. Outside a transaction the row commits on its own;
// inside the dry-run transaction a savepoint undoes a failed row.
func (p *Pipeline) runRow(ctx context.Context, row *models.LegacyContact, scope, runID string, cache *runCache, opts RunOptions) (models.MigrationCounts, error) {
	ctx, span := tracing.StartSpan(ctx, "migration.Pipeline.runRow")
	defer span.End()

	var counts models.MigrationCounts
	pending := cache.begin()
	err := p.store.WithSavepoint(ctx, func(ctx context.Context) error {
		var err error
		counts, err = p.migrateRow(ctx, row, scope, runID, pending, opts)
		return err
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"legacy_id": row.ID,
			"scope":     scope,
		}).Warn("Legacy row failed to migrate")
		return models.MigrationCounts{}, err
	}
	cache.commit(pending)
	return counts, nil
}

func (p *Pipeline) migrateRow(ctx context.Context, row *models.LegacyContact, scope, runID string, cache *runCache, opts RunOptions) (models.MigrationCounts, error) {
	var counts models.MigrationCounts

	if strings.TrimSpace(row.CompanyName) == "" {
		return counts, &rowIssueError{code: IssueMissingCompanyName, message: "legacy contact has no company name"}
	}

	resolveOpts := resolution.Options{SkipMatch: opts.SkipDuplicateCheck, CreateOnNew: true}
	item := &models.MigrationItem{
		ID:        uuid.New().String(),
		RunID:     runID,
		Scope:     scope,
		LegacyID:  row.ID,
		Relations: map[string][]string{},
		CreatedAt: p.now(),
	}

	companyReq := models.CreateCompanyRequest{Name: row.CompanyName, Website: row.Website}
	companyKeys := companyCacheKeys(companyReq)
	companyID, ok := "", false
	if !opts.SkipDuplicateCheck {
		companyID, ok = cache.lookup(companyKeys)
	}
	if ok {
		counts.CompaniesLinked++
	} else {
		outcome, err := p.resolver.Company(ctx, companyReq, resolveOpts)
		if err != nil {
			return counts, err
		}
		companyID = outcome.RecordID
		item.CompanyCreated = outcome.Created
		if outcome.Created {
			counts.CompaniesCreated++
		} else {
			counts.CompaniesLinked++
		}
		if outcome.Queued {
			counts.QueuedForReview++
		}
		cache.remember(companyKeys, companyID)
	}
	item.CompanyID = &companyID

	created, err := p.attach(ctx, item, models.RelationDealBuyers, companyID, map[string]string{"deal_id": scope})
	if err != nil {
		return counts, err
	}
	counts.RelationsCreated += created

	if row.HasContact() {
		email := models.Deref(row.Email)
		if email != "" && !p.validEmail(strings.TrimSpace(email)) {
			email = ""
		}
		personReq := models.CreatePersonRequest{
			FirstName: models.Deref(row.FirstName),
			LastName:  models.Deref(row.LastName),
			Email:     models.StringPtr(email),
			Title:     row.Title,
			Phone:     row.Phone,
			CompanyID: &companyID,
		}

		personKeys := personCacheKeys(personReq, companyID)
		personID, ok := "", false
		if !opts.SkipDuplicateCheck {
			personID, ok = cache.lookup(personKeys)
		}
		if ok {
			counts.PeopleLinked++
		} else if len(personKeys) > 0 {
			outcome, err := p.resolver.Person(ctx, personReq, row.CompanyName, resolveOpts)
			if err != nil {
				return counts, err
			}
			personID = outcome.RecordID
			item.PersonCreated = outcome.Created
			if outcome.Created {
				counts.PeopleCreated++
			} else {
				counts.PeopleLinked++
			}
			if outcome.Queued {
				counts.QueuedForReview++
			}
			cache.remember(personKeys, personID)
		}

		if personID != "" {
			item.PersonID = &personID
			created, err := p.attach(ctx, item, models.RelationDealContacts, personID, map[string]string{"deal_id": scope, "role": contactRole(row)})
			if err != nil {
				return counts, err
			}
			counts.RelationsCreated += created
		}
	}

	if err := p.store.Migrations().CreateItem(ctx, item); err != nil {
		return counts, errors.Internal(err, "failed to write migration ledger")
	}
	if err := p.store.Legacy().MarkMigrated(ctx, row.ID, runID); err != nil {
		return counts, errors.Internal(err, "failed to mark legacy contact migrated")
	}
	return counts, nil
}

// attach creates a relation row unless its unique key is already held and
// records a created row in the ledger. It returns the number of rows created.
func (p *Pipeline) attach(ctx context.Context, item *models.MigrationItem, relationType, entityID string, values map[string]string) (int, error) {
	rt, _ := models.LookupRelationType(relationType)

	id, created, err := p.store.Relations().Create(ctx, models.RelationInput{Type: rt.Name, EntityID: entityID, Values: values})
	if err != nil {
		return 0, errors.Internal(err, "failed to create "+rt.Name)
	}
	if !created {
		return 0, nil
	}
	item.Relations[rt.Name] = append(item.Relations[rt.Name], id)
	return 1, nil
}

func contactRole(row *models.LegacyContact) string {
	if role := strings.TrimSpace(models.Deref(row.Role)); role != "" {
		return strings.ToLower(role)
	}
	if row.IsPrimary {
		return rolePrimary
	}
	return roleDefault
}

func toRowError(row *models.LegacyContact, err error) models.RowError {
	var issue *rowIssueError
	if errors.As(err, &issue) {
		return models.RowError{LegacyID: row.ID, Code: issue.code, Message: issue.message}
	}
	code := errors.CodeOf(err)
	if code == "" {
		code = codeRowFailed
	}
	return models.RowError{LegacyID: row.ID, Code: code, Message: err.Error()}
}
