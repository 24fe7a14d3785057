package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/exercisetracker/internal/events"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"user_id":"u-1","username":"fcc_test"}`)
	msg := framedMessage(42, payload, events.TypeUserCreated)
	msg.Key = []byte("u-1")

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeUserCreated, handler.last.EventType)
	require.Equal(t, "exercise_users-value", handler.last.SchemaSubject)
	require.Equal(t, "u-1", handler.last.Key)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := framedMessage(99, []byte(`{"exercise_id":"e-1"}`), events.TypeExerciseRecorded)

	reader := &stubReader{messages: []kafka.Message{msg}}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
}

func TestProcessorCommitsAndSkipsMalformedRecords(t *testing.T) {
	missingHeader := framedMessage(1, []byte(`{}`), events.TypeUserCreated)
	missingHeader.Headers = nil

	badMagic := framedMessage(1, []byte(`{}`), events.TypeUserCreated)
	badMagic.Value[0] = 1

	short := kafka.Message{Topic: "exercise_users", Value: []byte{0, 1}}

	reader := &stubReader{messages: []kafka.Message{missingHeader, badMagic, short}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
}

func TestProcessorStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{framedMessage(1, []byte(`{}`), events.TypeUserCreated)}}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, reader.index)
}

func framedMessage(schemaID uint32, payload []byte, eventType string) kafka.Message {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)

	topic, subject := "exercise_records", "exercise_records-value"
	if eventType == events.TypeUserCreated {
		topic, subject = "exercise_users", "exercise_users-value"
	}

	return kafka.Message{
		Topic:  topic,
		Offset: 10,
		Time:   time.Now().UTC(),
		Value:  value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "schema_subject", Value: []byte(subject)},
		},
	}
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.commitCalls += len(msgs)
	return nil
}

func (r *stubReader) Close() error { return nil }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}

func testLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t))
}
