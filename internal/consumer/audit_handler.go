package consumer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditHandler writes consumed events into Postgres for downstream auditing.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event payload in the progression_event_log table.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(msg.UserID); err == nil {
		userID = &parsed
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO progression_event_log (event_type, user_id, schema_id, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		msg.EventType,
		userID,
		msg.SchemaID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
