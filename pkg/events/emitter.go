// Package events publishes identity lifecycle events after their transaction
// commits. Emission is best-effort: a failed publish is logged and never
// undoes the committed change.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, event *kafka.Event) error
}

// Emitter builds and publishes identity events. A nil Emitter, or one without
// a publisher, drops every event.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// MergeCommitted emits merge.completed. It lets the emitter observe the
// merge executor directly.
func (e *Emitter) MergeCommitted(ctx context.Context, result *models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeCommitted")
	defer span.End()

	e.emit(ctx, EventTypeMergeCompleted, result.EntityType, result.PrimaryID, result.ActorID, MergeCompletedEvent{
		PrimaryID:   result.PrimaryID,
		AbsorbedIDs: result.TombstonedIDs,
		AuditID:     result.AuditID,
		Relations:   result.Relations,
		Conflicts:   result.Conflicts,
		PerformedAt: result.PerformedAt,
	})
}

func (e *Emitter) CandidateEnqueued(ctx context.Context, candidate *models.DuplicateCandidate) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.CandidateEnqueued")
	defer span.End()

	e.emit(ctx, EventTypeCandidateEnqueued, candidate.EntityType, candidate.ID, "", candidateEvent(candidate, ""))
}

func (e *Emitter) CandidateResolved(ctx context.Context, candidate *models.DuplicateCandidate, mergeAuditID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.CandidateResolved")
	defer span.End()

	e.emit(ctx, EventTypeCandidateResolved, candidate.EntityType, candidate.ID, models.Deref(candidate.ResolvedBy), candidateEvent(candidate, mergeAuditID))
}

func (e *Emitter) MigrationCompleted(ctx context.Context, run *models.MigrationRun) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MigrationCompleted")
	defer span.End()

	counts := run.Counts
	e.emit(ctx, EventTypeMigrationCompleted, "", run.Scope, run.ActorID, MigrationEvent{
		RunID:      run.ID,
		Scope:      run.Scope,
		Status:     run.Status,
		Counts:     &counts,
		Errored:    len(run.Errors),
		DurationMs: run.DurationMs,
	})
}

func (e *Emitter) MigrationRolledBack(ctx context.Context, scope, actorID string, removed, retained []string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MigrationRolledBack")
	defer span.End()

	e.emit(ctx, EventTypeMigrationRolledBack, "", scope, actorID, MigrationEvent{
		Scope:    scope,
		Status:   models.MigrationStatusRolledBack,
		Removed:  removed,
		Retained: retained,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, entityType models.EntityType, key, actorID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	correlationID := reqctx.GetRequestID(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	event := &kafka.Event{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		EntityType:    string(entityType),
		Key:           key,
		ActorID:       reqctx.ActorOr(ctx, actorID),
		CorrelationID: correlationID,
		Data:          marshal(payload),
		Timestamp:     time.Now().UTC(),
	}

	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"key":        key,
		}).Error("Failed to emit event")
	}
}

func candidateEvent(c *models.DuplicateCandidate, mergeAuditID string) CandidateEvent {
	return CandidateEvent{
		CandidateID: c.ID,
		RecordAID:   c.RecordAID,
		RecordBID:   c.RecordBID,
		Score:       c.Score,
		Resolution:  c.Resolution,
		ResolvedBy:  c.ResolvedBy,
		MergeAudit:  mergeAuditID,
	}
}
