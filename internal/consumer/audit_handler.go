package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditHandler writes consumed events into exercise_event_log. Redelivered
// records are ignored through the (topic, partition, offset) key.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event payload.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO exercise_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
