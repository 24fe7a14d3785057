package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/exercisetracker/internal/events"
)

func TestDeliverFramesPayloadAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	payload := json.RawMessage(`{"exercise_id":"e1","user_id":"u1"}`)
	err := dispatcher.deliver(context.Background(), []Message{{
		EventID:       1,
		AggregateType: "exercise",
		AggregateID:   "e1",
		EventType:     events.TypeExerciseRecorded,
		Topic:         "exercise_records",
		SchemaSubject: "exercise_records-value",
		PartitionKey:  "u1",
		Payload:       payload,
	}})
	require.NoError(t, err)

	require.Len(t, producer.writes, 1)
	batch := producer.writes[0]
	require.Equal(t, "exercise_records", batch.topic)
	require.Len(t, batch.messages, 1)

	msg := batch.messages[0]
	require.Equal(t, "u1", string(msg.Key))
	require.Equal(t, byte(0), msg.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(msg.Value[1:5]))
	require.JSONEq(t, string(payload), string(msg.Value[5:]))
	require.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(events.TypeExerciseRecorded)})
	require.Contains(t, msg.Headers, kafka.Header{Key: "schema_subject", Value: []byte("exercise_records-value")})
}

func TestDeliverCachesSchemaIDsAndGroupsByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	messages := []Message{
		{EventID: 1, EventType: events.TypeUserCreated, Topic: "exercise_users", SchemaSubject: "exercise_users-value", PartitionKey: "u1", Payload: json.RawMessage(`{}`)},
		{EventID: 2, EventType: events.TypeExerciseRecorded, Topic: "exercise_records", SchemaSubject: "exercise_records-value", PartitionKey: "u1", Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: events.TypeExerciseRecorded, Topic: "exercise_records", SchemaSubject: "exercise_records-value", PartitionKey: "u1", Payload: json.RawMessage(`{}`)},
	}
	require.NoError(t, dispatcher.deliver(context.Background(), messages))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "exercise_users", producer.writes[0].topic)
	require.Equal(t, "exercise_records", producer.writes[1].topic)
	require.Len(t, producer.writes[1].messages, 2)
	require.Len(t, registry.calls, 2, "one registry call per subject")
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	err := dispatcher.deliver(context.Background(), []Message{{EventType: "exercise.unknown", Topic: "exercise_records"}})
	require.ErrorContains(t, err, "no schema metadata for event_type=exercise.unknown")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesProducerError(t *testing.T) {
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(nil, producer, &stubRegistry{id: 3}, time.Second, 10)

	err := dispatcher.deliver(context.Background(), []Message{{
		EventType: events.TypeUserCreated, Topic: "exercise_users", SchemaSubject: "exercise_users-value", Payload: json.RawMessage(`{}`),
	}})
	require.EqualError(t, err, "kafka write failed")
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/exercise_users-value/versions/latest":
			http.Error(w, `{"error_code":40401}`, http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/exercise_users-value/versions":
			body, _ := io.ReadAll(r.Body)
			registered = string(body)
			_, _ = w.Write([]byte(`{"id":11}`))
		default:
			http.Error(w, "unexpected", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "exercise_users-value", userCreatedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Contains(t, registered, `"schemaType":"JSON"`)
}

func TestSchemaRegistryReturnsLatestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id":5,"version":3}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "exercise_records-value", exerciseRecordedSchema)
	require.NoError(t, err)
	require.Equal(t, 5, id)
}

func TestSchemaRegistryDoesNotRegisterOnServerError(t *testing.T) {
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "exercise_records-value", exerciseRecordedSchema)
	require.ErrorContains(t, err, "status 503")
	require.Zero(t, posts)
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := NewDLQManager(nil, 5, time.Minute)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 8*time.Minute, m.backoffDelay(4))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}
