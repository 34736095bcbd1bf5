// Package merging folds duplicate canonical records into a primary record in
// one transaction, moving every reference and tombstoning the duplicates.
package merging

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Observer is notified after a merge commits. Failures are the observer's to
// log; they never undo the merge.
type Observer interface {
	MergeCommitted(ctx context.Context, result *models.MergeResult)
}

// Request describes one merge call.
type Request struct {
	EntityType   models.EntityType  `json:"entity_type" validate:"required"`
	PrimaryID    string             `json:"primary_id" validate:"required"`
	DuplicateIDs []string           `json:"duplicate_ids" validate:"required"`
	ActorID      string             `json:"actor_id"`
	Source       models.MergeSource `json:"source"`
}

type Engine struct {
	logger    ectologger.Logger
	store     store.Store
	fields    *FieldMerger
	observers []Observer
	now       func() time.Time
}

func NewEngine(logger ectologger.Logger, st store.Store, observers ...Observer) *Engine {
	return &Engine{
		logger:    logger,
		store:     st,
		fields:    NewFieldMerger(),
		observers: observers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) MergeCompanies(ctx context.Context, primaryID string, duplicateIDs []string, actorID string) (*models.MergeResult, error) {
	return e.Merge(ctx, Request{
		EntityType:   models.EntityTypeCompany,
		PrimaryID:    primaryID,
		DuplicateIDs: duplicateIDs,
		ActorID:      actorID,
		Source:       models.MergeSourceManual,
	})
}

func (e *Engine) MergePeople(ctx context.Context, primaryID string, duplicateIDs []string, actorID string) (*models.MergeResult, error) {
	return e.Merge(ctx, Request{
		EntityType:   models.EntityTypePerson,
		PrimaryID:    primaryID,
		DuplicateIDs: duplicateIDs,
		ActorID:      actorID,
		Source:       models.MergeSourceManual,
	})
}

// Merge runs req in its own transaction and notifies observers after commit.
func (e *Engine) Merge(ctx context.Context, req Request) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	var result *models.MergeResult
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = e.MergeInTx(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.Notify(ctx, result)
	return result, nil
}

// Notify delivers a committed merge to the observers. Callers that use
// MergeInTx call it once their transaction commits.
func (e *Engine) Notify(ctx context.Context, result *models.MergeResult) {
	for _, o := range e.observers {
		o.MergeCommitted(ctx, result)
	}
}

// MergeInTx merges inside the transaction carried by ctx, opening one when
// none is open. Observers are not notified.
func (e *Engine) MergeInTx(ctx context.Context, req Request) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeInTx")
	defer span.End()

	if !req.EntityType.Valid() {
		return nil, errors.Validation("unknown entity type %q", req.EntityType)
	}
	if req.PrimaryID == "" {
		return nil, errors.Validation("primary id is required")
	}
	duplicateIDs := dedupe(req.DuplicateIDs)
	if len(duplicateIDs) == 0 {
		return nil, errors.Validation("at least one duplicate id is required")
	}
	if req.Source == "" {
		req.Source = models.MergeSourceManual
	}
	req.ActorID = reqctx.ActorOr(ctx, req.ActorID)

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":   req.EntityType,
		"primary_id":    req.PrimaryID,
		"duplicate_ids": duplicateIDs,
		"actor_id":      req.ActorID,
	})

	var result *models.MergeResult
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		primary, duplicates, err := e.lock(ctx, req.EntityType, req.PrimaryID, duplicateIDs)
		if err != nil {
			return err
		}

		now := e.now()
		result = &models.MergeResult{
			EntityType:    req.EntityType,
			PrimaryID:     req.PrimaryID,
			TombstonedIDs: duplicateIDs,
			ActorID:       req.ActorID,
			PerformedAt:   now,
		}

		if result.Relations, err = e.repointRelations(ctx, req.EntityType, req.PrimaryID, duplicateIDs); err != nil {
			return err
		}

		changed, conflicts := e.fields.MergeScalars(primary, duplicates)
		result.Conflicts = conflicts
		if changed {
			if err := e.updateRecord(ctx, primary); err != nil {
				return err
			}
		}

		if err := e.tombstone(ctx, req.EntityType, duplicateIDs, req.PrimaryID); err != nil {
			return err
		}

		if result.CandidatesResolved, err = e.settleCandidates(ctx, req.EntityType, req.PrimaryID, duplicateIDs, req.ActorID, now); err != nil {
			return err
		}

		audit := &models.MergeAuditLog{
			ID:          uuid.New().String(),
			EntityType:  req.EntityType,
			PrimaryID:   req.PrimaryID,
			AbsorbedIDs: duplicateIDs,
			ActorID:     req.ActorID,
			Source:      req.Source,
			Relations:   result.Relations,
			Conflicts:   conflicts,
			PerformedAt: now,
		}
		if err := e.store.Audit().Create(ctx, audit); err != nil {
			return errors.Internal(err, "failed to write merge audit log")
		}
		result.AuditID = audit.ID

		switch p := primary.(type) {
		case *models.Company:
			result.Company = p
		case *models.Person:
			result.Person = p
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Merge failed")
		return nil, err
	}

	log.WithFields(map[string]any{
		"moved":     result.MovedTotal(),
		"dropped":   result.DroppedTotal(),
		"conflicts": len(result.Conflicts),
	}).Info("Merged records")
	return result, nil
}

// lock takes row locks on every record in id order and re-validates the
// preconditions under them.
func (e *Engine) lock(ctx context.Context, entityType models.EntityType, primaryID string, duplicateIDs []string) (scalarRecord, []scalarRecord, error) {
	ids := append([]string{primaryID}, duplicateIDs...)
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	byID := map[string]scalarRecord{}
	switch entityType {
	case models.EntityTypeCompany:
		companies, err := e.store.Companies().LockForUpdate(ctx, dedupe(sorted))
		if err != nil {
			return nil, nil, errors.Internal(err, "failed to lock companies")
		}
		for _, c := range companies {
			byID[c.ID] = c
		}
	case models.EntityTypePerson:
		people, err := e.store.People().LockForUpdate(ctx, dedupe(sorted))
		if err != nil {
			return nil, nil, errors.Internal(err, "failed to lock people")
		}
		for _, p := range people {
			byID[p.ID] = p
		}
	}

	var offending []string
	primary, ok := byID[primaryID]
	if !ok || primary.IsTombstoned() {
		offending = append(offending, primaryID)
	}

	duplicates := make([]scalarRecord, 0, len(duplicateIDs))
	for _, id := range duplicateIDs {
		d, ok := byID[id]
		if id == primaryID || !ok || d.IsTombstoned() {
			offending = append(offending, id)
			continue
		}
		duplicates = append(duplicates, d)
	}

	if len(offending) > 0 {
		return nil, nil, errors.NotFoundOrMerged(dedupe(offending)...)
	}
	return primary, duplicates, nil
}

// repointRelations moves every relation row of the duplicates to the primary.
// A row whose unique key is already held by the primary, or by an earlier
// moved row, is dropped.
func (e *Engine) repointRelations(ctx context.Context, entityType models.EntityType, primaryID string, duplicateIDs []string) (map[string]models.RelationCount, error) {
	relations := e.store.Relations()
	counts := map[string]models.RelationCount{}

	for _, rt := range models.RelationTypesFor(entityType) {
		rows, err := relations.ListByEntity(ctx, rt, append([]string{primaryID}, duplicateIDs...))
		if err != nil {
			return nil, errors.Internal(err, "failed to load "+rt.Name)
		}

		byEntity := map[string][]*models.Relation{}
		for _, row := range rows {
			byEntity[row.EntityID] = append(byEntity[row.EntityID], row)
		}

		held := map[string]bool{}
		for _, row := range byEntity[primaryID] {
			held[row.UniqueKey] = true
		}

		var moves, drops []string
		for _, id := range duplicateIDs {
			entityRows := byEntity[id]
			sort.Slice(entityRows, func(i, j int) bool { return entityRows[i].ID < entityRows[j].ID })
			for _, row := range entityRows {
				if rt.Unique() && held[row.UniqueKey] {
					drops = append(drops, row.ID)
					continue
				}
				held[row.UniqueKey] = true
				moves = append(moves, row.ID)
			}
		}

		if len(drops) > 0 {
			if _, err := relations.Delete(ctx, rt, drops); err != nil {
				return nil, errors.Internal(err, "failed to drop colliding "+rt.Name)
			}
		}
		if len(moves) > 0 {
			if err := relations.Repoint(ctx, rt, moves, primaryID); err != nil {
				return nil, errors.Internal(err, "failed to move "+rt.Name)
			}
		}

		counts[rt.Name] = models.RelationCount{Moved: len(moves), Dropped: len(drops)}
	}

	return counts, nil
}

func (e *Engine) updateRecord(ctx context.Context, record scalarRecord) error {
	switch r := record.(type) {
	case *models.Company:
		r.UpdatedAt = e.now()
		return errors.Internal(e.store.Companies().Update(ctx, r), "failed to update primary company")
	case *models.Person:
		r.UpdatedAt = e.now()
		return errors.Internal(e.store.People().Update(ctx, r), "failed to update primary person")
	}
	return nil
}

func (e *Engine) tombstone(ctx context.Context, entityType models.EntityType, ids []string, primaryID string) error {
	if entityType == models.EntityTypeCompany {
		return errors.Internal(e.store.Companies().Tombstone(ctx, ids, primaryID), "failed to tombstone companies")
	}
	return errors.Internal(e.store.People().Tombstone(ctx, ids, primaryID), "failed to tombstone people")
}

// settleCandidates resolves pending candidates inside the merged group and
// re-points the rest to the primary. A re-point that would produce a self
// pair or an existing pending pair deletes the candidate instead.
func (e *Engine) settleCandidates(ctx context.Context, entityType models.EntityType, primaryID string, duplicateIDs []string, actorID string, now time.Time) ([]string, error) {
	candidates := e.store.Candidates()

	group := map[string]bool{primaryID: true}
	absorbed := map[string]bool{}
	for _, id := range duplicateIDs {
		group[id] = true
		absorbed[id] = true
	}

	pending, err := candidates.ListPendingByEntities(ctx, entityType, append([]string{primaryID}, duplicateIDs...))
	if err != nil {
		return nil, errors.Internal(err, "failed to load pending candidates")
	}

	resolved := []string{}
	var stale []string
	for _, c := range pending {
		switch {
		case group[c.RecordAID] && group[c.RecordBID]:
			resolution := models.ResolutionMerged
			c.Status = models.CandidateStatusResolved
			c.Resolution = &resolution
			c.ResolvedBy = &actorID
			c.ResolvedAt = &now
			if err := candidates.Update(ctx, c); err != nil {
				return nil, errors.Internal(err, "failed to resolve candidate")
			}
			resolved = append(resolved, c.ID)

		case absorbed[c.RecordAID] || absorbed[c.RecordBID]:
			if absorbed[c.RecordAID] {
				c.RecordAID = primaryID
			} else {
				c.RecordBID = primaryID
			}
			existing, err := candidates.FindPendingPair(ctx, entityType, c.RecordAID, c.RecordBID)
			if err != nil {
				return nil, errors.Internal(err, "failed to check pending pair")
			}
			if c.RecordAID == c.RecordBID || (existing != nil && existing.ID != c.ID) {
				stale = append(stale, c.ID)
				continue
			}
			c.UpdatedAt = now
			if err := candidates.Update(ctx, c); err != nil {
				return nil, errors.Internal(err, "failed to re-point candidate")
			}
		}
	}

	if len(stale) > 0 {
		if err := candidates.Delete(ctx, stale); err != nil {
			return nil, errors.Internal(err, "failed to delete stale candidates")
		}
	}
	return resolved, nil
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
