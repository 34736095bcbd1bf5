package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	reasonRelations = "referenced by relation rows outside the migration"
	reasonMergeHost = "primary of a merge"
)

type RollbackOptions struct {
	DryRun  bool   `json:"dry_run"`
	ActorID string `json:"actor_id,omitempty"`
}

// RetainedRecord is a migration-created record kept because something else
// still references it.
type RetainedRecord struct {
	ID         string            `json:"id"`
	EntityType models.EntityType `json:"entity_type"`
	Reason     string            `json:"reason"`
}

type RollbackResult struct {
	Scope             string           `json:"scope"`
	DryRun            bool             `json:"dry_run"`
	RelationsDetached int              `json:"relations_detached"`
	RemovedCompanies  []string         `json:"removed_companies"`
	RemovedPeople     []string         `json:"removed_people"`
	Retained          []RetainedRecord `json:"retained"`
	CandidatesDeleted int              `json:"candidates_deleted"`
	RowsReset         int              `json:"rows_reset"`
}

// errDryRun aborts the rollback transaction once a dry run has its plan.
var errDryRun = errors.New("migration: dry run")

// Rollback undoes every active ledger entry of scope in one transaction. A
// dry run executes the same steps and discards them.
func (p *Pipeline) Rollback(ctx context.Context, scope string, opts RollbackOptions) (*RollbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "migration.Pipeline.Rollback")
	defer span.End()

	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.Validation("scope is required")
	}
	actorID := reqctx.ActorOr(ctx, opts.ActorID)

	var result *RollbackResult
	err := p.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.rollbackInTx(ctx, scope, opts.DryRun)
		if err != nil {
			return err
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	removed := append(append([]string{}, result.RemovedCompanies...), result.RemovedPeople...)
	retained := make([]string, len(result.Retained))
	for i, r := range result.Retained {
		retained[i] = r.ID
	}

	if !opts.DryRun {
		p.emitter.MigrationRolledBack(ctx, scope, actorID, removed, retained)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"scope":              scope,
		"dry_run":            opts.DryRun,
		"actor_id":           actorID,
		"relations_detached": result.RelationsDetached,
		"removed":            len(removed),
		"retained":           len(retained),
	}).Info("Migration rolled back")

	return result, nil
}

func (p *Pipeline) rollbackInTx(ctx context.Context, scope string, dryRun bool) (*RollbackResult, error) {
	items, err := p.store.Migrations().ListActiveItems(ctx, scope)
	if err != nil {
		return nil, errors.Internal(err, "failed to load migration ledger")
	}
	if len(items) == 0 {
		return nil, errors.Conflict(errors.CodeScopeNotMigrated, "scope has no active migration to roll back", scope)
	}

	createdCompanies, createdPeople := createdRecords(items)
	if err := p.checkNotAbsorbed(ctx, createdCompanies, createdPeople); err != nil {
		return nil, err
	}

	result := &RollbackResult{
		Scope:            scope,
		DryRun:           dryRun,
		RemovedCompanies: []string{},
		RemovedPeople:    []string{},
		Retained:         []RetainedRecord{},
	}

	detached, err := p.detachRelations(ctx, items)
	if err != nil {
		return nil, err
	}
	result.RelationsDetached = detached

	// People go first so their employer links no longer hold the companies.
	removedPeople, retainedPeople, err := p.removeUnreferenced(ctx, models.EntityTypePerson, createdPeople)
	if err != nil {
		return nil, err
	}
	removedCompanies, retainedCompanies, err := p.removeUnreferenced(ctx, models.EntityTypeCompany, createdCompanies)
	if err != nil {
		return nil, err
	}
	result.RemovedPeople = removedPeople
	result.RemovedCompanies = removedCompanies
	result.Retained = append(retainedCompanies, retainedPeople...)

	deleted, err := p.deleteCandidates(ctx, models.EntityTypeCompany, removedCompanies)
	if err != nil {
		return nil, err
	}
	result.CandidatesDeleted += deleted
	deleted, err = p.deleteCandidates(ctx, models.EntityTypePerson, removedPeople)
	if err != nil {
		return nil, err
	}
	result.CandidatesDeleted += deleted

	rows, err := p.store.Legacy().ListByScope(ctx, scope)
	if err != nil {
		return nil, errors.Internal(err, "failed to load legacy contacts")
	}
	for _, row := range rows {
		if row.IsMigrated() {
			result.RowsReset++
		}
	}
	if err := p.store.Legacy().ClearMigrated(ctx, scope); err != nil {
		return nil, errors.Internal(err, "failed to reset legacy contacts")
	}
	if err := p.store.Migrations().MarkRolledBack(ctx, scope); err != nil {
		return nil, errors.Internal(err, "failed to mark migration rolled back")
	}

	return result, nil
}

func createdRecords(items []*models.MigrationItem) (companies, people []string) {
	seenCompanies := map[string]bool{}
	seenPeople := map[string]bool{}
	for _, item := range items {
		if item.CompanyCreated && item.CompanyID != nil && !seenCompanies[*item.CompanyID] {
			seenCompanies[*item.CompanyID] = true
			companies = append(companies, *item.CompanyID)
		}
		if item.PersonCreated && item.PersonID != nil && !seenPeople[*item.PersonID] {
			seenPeople[*item.PersonID] = true
			people = append(people, *item.PersonID)
		}
	}
	sort.Strings(companies)
	sort.Strings(people)
	return companies, people
}

// checkNotAbsorbed refuses the rollback when a merge folded a created record
// into another one.
func (p *Pipeline) checkNotAbsorbed(ctx context.Context, companies, people []string) error {
	var offending []string
	for entityType, ids := range map[models.EntityType][]string{
		models.EntityTypeCompany: companies,
		models.EntityTypePerson:  people,
	} {
		if len(ids) == 0 {
			continue
		}
		logs, err := p.store.Audit().ListByEntities(ctx, entityType, ids)
		if err != nil {
			return errors.Internal(err, "failed to read merge audit log")
		}
		created := toSet(ids)
		for _, log := range logs {
			for _, absorbed := range log.AbsorbedIDs {
				if created[absorbed] {
					offending = append(offending, absorbed)
				}
			}
		}
	}
	if len(offending) == 0 {
		return nil
	}
	offending = uniqueSorted(offending)
	return errors.Conflict(errors.CodeRollbackBlockedByMerge, "migration-created records were absorbed by a merge", offending...)
}

// detachRelations removes every relation row the ledger recorded. Rows that
// have since been dropped by a merge are skipped by the store.
func (p *Pipeline) detachRelations(ctx context.Context, items []*models.MigrationItem) (int, error) {
	byType := map[string][]string{}
	for _, item := range items {
		for name, ids := range item.Relations {
			byType[name] = append(byType[name], ids...)
		}
	}

	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		rt, ok := models.LookupRelationType(name)
		if !ok {
			return 0, errors.Internal(fmt.Errorf("unknown relation type %q", name), "migration ledger is corrupt")
		}
		detached, err := p.store.Relations().Delete(ctx, rt, uniqueSorted(byType[name]))
		if err != nil {
			return 0, errors.Internal(err, "failed to detach "+name)
		}
		total += detached
	}
	return total, nil
}

// removeUnreferenced deletes the created records nothing else points at and
// reports the rest as retained.
func (p *Pipeline) removeUnreferenced(ctx context.Context, entityType models.EntityType, ids []string) ([]string, []RetainedRecord, error) {
	removed := []string{}
	retained := []RetainedRecord{}
	if len(ids) == 0 {
		return removed, retained, nil
	}

	referenced := map[string]string{}
	for _, rt := range models.RelationTypesFor(entityType) {
		rows, err := p.store.Relations().ListByEntity(ctx, rt, ids)
		if err != nil {
			return nil, nil, errors.Internal(err, "failed to read "+rt.Name)
		}
		for _, row := range rows {
			if _, ok := referenced[row.EntityID]; !ok {
				referenced[row.EntityID] = reasonRelations
			}
		}
	}

	logs, err := p.store.Audit().ListByEntities(ctx, entityType, ids)
	if err != nil {
		return nil, nil, errors.Internal(err, "failed to read merge audit log")
	}
	created := toSet(ids)
	for _, log := range logs {
		if created[log.PrimaryID] {
			referenced[log.PrimaryID] = reasonMergeHost
		}
	}

	for _, id := range ids {
		if reason, ok := referenced[id]; ok {
			retained = append(retained, RetainedRecord{ID: id, EntityType: entityType, Reason: reason})
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return removed, retained, nil
	}

	var deleteErr error
	switch entityType {
	case models.EntityTypeCompany:
		deleteErr = p.store.Companies().Delete(ctx, removed)
	case models.EntityTypePerson:
		deleteErr = p.store.People().Delete(ctx, removed)
	}
	if deleteErr != nil {
		return nil, nil, errors.Internal(deleteErr, "failed to remove "+entityType.Label()+" records")
	}
	return removed, retained, nil
}

func (p *Pipeline) deleteCandidates(ctx context.Context, entityType models.EntityType, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	candidates, err := p.store.Candidates().ListPendingByEntities(ctx, entityType, ids)
	if err != nil {
		return 0, errors.Internal(err, "failed to read duplicate candidates")
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	candidateIDs := make([]string, len(candidates))
	for i, c := range candidates {
		candidateIDs[i] = c.ID
	}
	if err := p.store.Candidates().Delete(ctx, candidateIDs); err != nil {
		return 0, errors.Internal(err, "failed to delete duplicate candidates")
	}
	return len(candidateIDs), nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func uniqueSorted(ids []string) []string {
	set := toSet(ids)
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
