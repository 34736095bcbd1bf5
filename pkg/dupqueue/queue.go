// Package dupqueue holds pairs of records that may be the same entity until a
// reviewer resolves them.
package dupqueue

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

const DefaultListLimit = 50

type EnqueueRequest struct {
	EntityType models.EntityType `json:"entity_type" validate:"required"`
	RecordAID  string            `json:"record_a_id" validate:"required"`
	RecordBID  string            `json:"record_b_id" validate:"required"`
	Score      float64           `json:"score" validate:"gte=0,lte=1"`
	Signals    []string          `json:"signals,omitempty"`
}

// ResolveRequest resolves one candidate. PrimaryID is required for MERGED and
// must be one side of the pair; the other side is absorbed.
type ResolveRequest struct {
	CandidateID string            `json:"candidate_id" validate:"required"`
	Resolution  models.Resolution `json:"resolution" validate:"required"`
	PrimaryID   string            `json:"primary_id,omitempty"`
	ResolvedBy  string            `json:"resolved_by,omitempty"`
}

type ResolutionResult struct {
	Candidate *models.DuplicateCandidate `json:"candidate"`
	Merge     *models.MergeResult        `json:"merge,omitempty"`
}

type Queue struct {
	logger    ectologger.Logger
	store     store.Store
	merger    *merging.Engine
	emitter   *events.Emitter
	validator *validator.Validate
	now       func() time.Time
}

func NewQueue(logger ectologger.Logger, st store.Store, merger *merging.Engine, emitter *events.Emitter) *Queue {
	return &Queue{
		logger:    logger,
		store:     st,
		merger:    merger,
		emitter:   emitter,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records a pending candidate for the pair. An existing pending
// candidate for the same unordered pair is returned with created false.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.Enqueue")
	defer span.End()

	if err := q.validator.Struct(req); err != nil {
		return "", false, errors.Validation("invalid enqueue request: %s", err.Error())
	}
	if !req.EntityType.Valid() {
		return "", false, errors.Validation("unknown entity type %q", req.EntityType)
	}
	if req.RecordAID == req.RecordBID {
		return "", false, errors.Validation("a record cannot be a duplicate of itself")
	}

	var (
		candidate *models.DuplicateCandidate
		created   bool
	)
	err := q.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		candidate, created, err = q.EnqueueInTx(ctx, req)
		return err
	})
	if err != nil {
		return "", false, err
	}

	if created {
		q.emitter.CandidateEnqueued(ctx, candidate)
	}
	return candidate.ID, created, nil
}

// EnqueueInTx is Enqueue inside the caller's transaction. It emits nothing.
func (q *Queue) EnqueueInTx(ctx context.Context, req EnqueueRequest) (*models.DuplicateCandidate, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.EnqueueInTx")
	defer span.End()

	if req.RecordAID == req.RecordBID {
		return nil, false, errors.Validation("a record cannot be a duplicate of itself")
	}

	if err := q.requireActive(ctx, req.EntityType, req.RecordAID, req.RecordBID); err != nil {
		return nil, false, err
	}

	existing, err := q.store.Candidates().FindPendingPair(ctx, req.EntityType, req.RecordAID, req.RecordBID)
	if err != nil {
		return nil, false, errors.Internal(err, "failed to check pending pair")
	}
	if existing != nil {
		return existing, false, nil
	}

	now := q.now()
	candidate := &models.DuplicateCandidate{
		ID:         uuid.New().String(),
		EntityType: req.EntityType,
		RecordAID:  req.RecordAID,
		RecordBID:  req.RecordBID,
		Score:      req.Score,
		Signals:    req.Signals,
		Status:     models.CandidateStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	stored, created, err := q.store.Candidates().Create(ctx, candidate)
	if err != nil {
		return nil, false, errors.Internal(err, "failed to create candidate")
	}
	if !created {
		return stored, false, nil
	}

	q.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": candidate.ID,
		"entity_type":  candidate.EntityType,
		"score":        candidate.Score,
	}).Debug("Enqueued duplicate candidate")

	return candidate, true, nil
}

// Resolve moves a pending candidate to RESOLVED. MERGED runs the merge in the
// same transaction, so a failed merge leaves the candidate pending.
func (q *Queue) Resolve(ctx context.Context, req ResolveRequest) (*ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.Resolve")
	defer span.End()

	var result *ResolutionResult
	err := q.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = q.resolveInTx(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	q.committed(ctx, result)
	return result, nil
}

// ResolveBatch resolves every request in one transaction. Any failure rolls
// back the whole batch and names the candidate that failed.
func (q *Queue) ResolveBatch(ctx context.Context, reqs []ResolveRequest) ([]*ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.ResolveBatch")
	defer span.End()

	if len(reqs) == 0 {
		return nil, errors.Validation("at least one resolution is required")
	}

	results := make([]*ResolutionResult, 0, len(reqs))
	err := q.store.WithTx(ctx, func(ctx context.Context) error {
		for _, req := range reqs {
			result, err := q.resolveInTx(ctx, req)
			if err != nil {
				q.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"candidate_id": req.CandidateID,
				}).Warn("Batch resolution failed, rolling back")
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, result := range results {
		q.committed(ctx, result)
	}
	return results, nil
}

func (q *Queue) resolveInTx(ctx context.Context, req ResolveRequest) (*ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.resolveInTx")
	defer span.End()

	if err := q.validator.Struct(req); err != nil {
		return nil, errors.Validation("invalid resolve request: %s", err.Error())
	}
	if !req.Resolution.Valid() {
		return nil, errors.Validation("unknown resolution %q", req.Resolution)
	}

	candidate, err := q.store.Candidates().GetForUpdate(ctx, req.CandidateID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, errors.NotFound("duplicate candidate", req.CandidateID)
		}
		return nil, errors.Internal(err, "failed to load candidate")
	}
	if !candidate.IsPending() {
		return nil, errors.AlreadyResolved(candidate.ID)
	}

	resolvedBy := reqctx.ActorOr(ctx, req.ResolvedBy)
	result := &ResolutionResult{Candidate: candidate}

	if req.Resolution == models.ResolutionMerged {
		if !candidate.Involves(req.PrimaryID) {
			return nil, errors.Validation("primary %q is not part of candidate %s", req.PrimaryID, candidate.ID)
		}
		merge, err := q.merger.MergeInTx(ctx, merging.Request{
			EntityType:   candidate.EntityType,
			PrimaryID:    req.PrimaryID,
			DuplicateIDs: []string{candidate.Other(req.PrimaryID)},
			ActorID:      resolvedBy,
			Source:       models.MergeSourceDuplicateQueue,
		})
		if err != nil {
			return nil, err
		}
		result.Merge = merge

		// The merge resolves every pending pair inside the group, this one
		// included.
		if ectolinq.Contains(merge.CandidatesResolved, candidate.ID) {
			resolved, err := q.store.Candidates().Get(ctx, candidate.ID)
			if err != nil {
				return nil, errors.Internal(err, "failed to reload candidate")
			}
			result.Candidate = resolved
			return result, nil
		}
	}

	now := q.now()
	resolution := req.Resolution
	candidate.Status = models.CandidateStatusResolved
	candidate.Resolution = &resolution
	candidate.ResolvedBy = &resolvedBy
	candidate.ResolvedAt = &now
	candidate.UpdatedAt = now
	if err := q.store.Candidates().Update(ctx, candidate); err != nil {
		return nil, errors.Internal(err, "failed to resolve candidate")
	}

	q.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": candidate.ID,
		"resolution":   resolution,
		"resolved_by":  resolvedBy,
	}).Info("Resolved duplicate candidate")

	return result, nil
}

func (q *Queue) committed(ctx context.Context, result *ResolutionResult) {
	auditID := ""
	if result.Merge != nil {
		q.merger.Notify(ctx, result.Merge)
		auditID = result.Merge.AuditID
	}
	q.emitter.CandidateResolved(ctx, result.Candidate, auditID)
}

// Delete removes a candidate regardless of status.
func (q *Queue) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.Delete")
	defer span.End()

	return q.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := q.store.Candidates().GetForUpdate(ctx, id); err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				return errors.NotFound("duplicate candidate", id)
			}
			return errors.Internal(err, "failed to load candidate")
		}
		if err := q.store.Candidates().Delete(ctx, []string{id}); err != nil {
			return errors.Internal(err, "failed to delete candidate")
		}
		q.logger.WithContext(ctx).WithFields(map[string]any{"candidate_id": id}).Info("Deleted duplicate candidate")
		return nil
	})
}

func (q *Queue) Get(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.Get")
	defer span.End()

	candidate, err := q.store.Candidates().Get(ctx, id)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, errors.NotFound("duplicate candidate", id)
		}
		return nil, errors.Internal(err, "failed to load candidate")
	}
	return candidate, nil
}

// ListPending returns pending candidates, highest score first. An empty
// entityType lists both kinds.
func (q *Queue) ListPending(ctx context.Context, entityType models.EntityType, limit int) ([]*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "dupqueue.Queue.ListPending")
	defer span.End()

	if entityType != "" && !entityType.Valid() {
		return nil, errors.Validation("unknown entity type %q", entityType)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	candidates, err := q.store.Candidates().ListPending(ctx, entityType, limit)
	if err != nil {
		return nil, errors.Internal(err, "failed to list candidates")
	}
	return candidates, nil
}

// requireActive fails with the IDs that are missing or tombstoned.
func (q *Queue) requireActive(ctx context.Context, entityType models.EntityType, ids ...string) error {
	var records []models.Record
	switch entityType {
	case models.EntityTypeCompany:
		companies, err := q.store.Companies().GetMany(ctx, ids)
		if err != nil {
			return errors.Internal(err, "failed to load companies")
		}
		records = ectolinq.Map(companies, func(c *models.Company) models.Record { return c })
	case models.EntityTypePerson:
		people, err := q.store.People().GetMany(ctx, ids)
		if err != nil {
			return errors.Internal(err, "failed to load people")
		}
		records = ectolinq.Map(people, func(p *models.Person) models.Record { return p })
	}

	active := map[string]bool{}
	for _, r := range records {
		if !r.IsTombstoned() {
			active[r.GetID()] = true
		}
	}

	missing := ectolinq.Filter(ids, func(id string) bool { return !active[id] })
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.NotFoundOrMerged(missing...)
	}
	return nil
}
