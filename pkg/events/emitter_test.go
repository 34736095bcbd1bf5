package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakePublisher struct {
	events []*kafka.Event
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, event *kafka.Event) error {
	p.events = append(p.events, event)
	return p.err
}

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func TestEmitter_MergeCommitted(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, testLogger)
	ctx := reqctx.SetRequestID(context.Background(), "req-1")

	emitter.MergeCommitted(ctx, &models.MergeResult{
		EntityType:    models.EntityTypePerson,
		PrimaryID:     "p",
		TombstonedIDs: []string{"d1", "d2"},
		AuditID:       "audit-1",
		ActorID:       "user-1",
		Relations:     map[string]models.RelationCount{models.RelationDealContacts: {Moved: 2, Dropped: 1}},
	})

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, string(EventTypeMergeCompleted), event.EventType)
	assert.Equal(t, SchemaVersion, event.SchemaVersion)
	assert.Equal(t, "PERSON", event.EntityType)
	assert.Equal(t, "p", event.Key)
	assert.Equal(t, "user-1", event.ActorID)
	assert.Equal(t, "req-1", event.CorrelationID)

	var payload MergeCompletedEvent
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, []string{"d1", "d2"}, payload.AbsorbedIDs)
	assert.Equal(t, 1, payload.Relations[models.RelationDealContacts].Dropped)
}

func TestEmitter_CandidateResolved(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, testLogger)

	resolution := models.ResolutionNotDuplicate
	resolver := "reviewer"
	emitter.CandidateResolved(context.Background(), &models.DuplicateCandidate{
		ID:         "cand-1",
		EntityType: models.EntityTypeCompany,
		RecordAID:  "a",
		RecordBID:  "b",
		Resolution: &resolution,
		ResolvedBy: &resolver,
	}, "")

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "reviewer", publisher.events[0].ActorID)
	assert.NotEmpty(t, publisher.events[0].CorrelationID)

	var payload CandidateEvent
	require.NoError(t, json.Unmarshal(publisher.events[0].Data, &payload))
	assert.Equal(t, models.ResolutionNotDuplicate, *payload.Resolution)
}

func TestEmitter_BestEffort(t *testing.T) {
	t.Run("publish failure is swallowed", func(t *testing.T) {
		publisher := &fakePublisher{err: errors.New("broker down")}
		emitter := NewEmitter(publisher, testLogger)
		assert.NotPanics(t, func() {
			emitter.MigrationCompleted(context.Background(), &models.MigrationRun{ID: "run-1", Scope: "deal-1"})
		})
		assert.Len(t, publisher.events, 1)
	})

	t.Run("nil emitter drops events", func(t *testing.T) {
		var emitter *Emitter
		assert.NotPanics(t, func() {
			emitter.MigrationRolledBack(context.Background(), "deal-1", "user-1", nil, nil)
		})
	})

	t.Run("no publisher drops events", func(t *testing.T) {
		emitter := NewEmitter(nil, testLogger)
		assert.NotPanics(t, func() {
			emitter.CandidateEnqueued(context.Background(), &models.DuplicateCandidate{ID: "c"})
		})
	})
}
