package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishEvent(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "identity-events", testLogger)

	err := producer.PublishEvent(context.Background(), &Event{
		EventType:     "merge.completed",
		SchemaVersion: "1.0",
		EntityType:    "COMPANY",
		Key:           "c1",
		Data:          json.RawMessage(`{"primary_id":"c1"}`),
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "identity-events", msg.Topic)
	assert.Equal(t, "c1", string(msg.Key))
	assert.Equal(t, "merge.completed", header(msg, HeaderEventType))
	assert.Equal(t, "COMPANY", header(msg, HeaderEntityType))
	assert.Empty(t, header(msg, HeaderTraceParent))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "merge.completed", decoded.EventType)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.JSONEq(t, `{"primary_id":"c1"}`, string(decoded.Data))
}

func TestProducer_WriteFailure(t *testing.T) {
	boom := errors.New("broker down")
	producer := newProducer(&fakeWriter{err: boom}, "t", testLogger)

	err := producer.PublishEvents(context.Background(), []*Event{{EventType: "x", Key: "k"}})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, producer.PublishEvents(context.Background(), nil))
}

func TestConsumer_Run(t *testing.T) {
	event, err := json.Marshal(Event{EventType: "candidate.resolved", Key: "cand-1"})
	require.NoError(t, err)

	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Key: []byte("cand-1"), Value: event, Headers: []kafka.Header{{Key: HeaderTraceParent, Value: []byte("00-abc-def-01")}}},
		{Offset: 2, Value: []byte("not json")},
	}}

	var seen []*IncomingMessage
	consumer := newConsumer(reader, testLogger, func(_ context.Context, msg *IncomingMessage) error {
		seen = append(seen, msg)
		return nil
	})

	require.NoError(t, consumer.Run(context.Background()))
	require.Len(t, seen, 1)
	assert.Equal(t, "candidate.resolved", seen[0].EventType())
	assert.Equal(t, "00-abc-def-01", seen[0].TraceParent)
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.True(t, reader.closed)
}

func TestConsumer_HandlerFailureStops(t *testing.T) {
	event, err := json.Marshal(Event{EventType: "merge.completed", Key: "p"})
	require.NoError(t, err)
	reader := &fakeReader{messages: []kafka.Message{{Offset: 7, Value: event}}}

	boom := errors.New("handler failed")
	consumer := newConsumer(reader, testLogger, func(context.Context, *IncomingMessage) error { return boom })

	assert.ErrorIs(t, consumer.Run(context.Background()), boom)
	assert.Empty(t, reader.committed)
}

func TestIncomingMessage_ParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		headers  map[string]string
		wantType string
		wantErr  bool
	}{
		{name: "body type", value: `{"event_type":"merge.completed"}`, wantType: "merge.completed"},
		{name: "header fallback", value: `{"key":"k"}`, headers: map[string]string{HeaderEventType: "migration.completed"}, wantType: "migration.completed"},
		{name: "no type", value: `{"key":"k"}`, wantErr: true},
		{name: "garbage", value: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &IncomingMessage{Value: []byte(tt.value), Headers: tt.headers}
			err := msg.ParseEvent()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.EventType())
		})
	}
}
