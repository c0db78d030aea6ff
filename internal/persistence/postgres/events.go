package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/events"
)

// eventRoute maps an event type onto its Kafka destination. Routing lives
// here so the domain stays transport-agnostic.
type eventRoute struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]eventRoute{
	events.EventProgressionCompleted: {
		Topic:         "progression_events",
		SchemaSubject: "progression_events-value",
	},
	events.EventBadgeUnlocked: {
		Topic:         "badge_events",
		SchemaSubject: "badge_events-value",
	},
}

// insertOutbox queues the event in the same transaction as the state change
// it describes. The dedupe key keeps a replayed unit of work from enqueueing
// the same event twice.
func insertOutbox(ctx context.Context, q querier, evt domain.OutboxEvent) error {
	route, ok := eventCatalog[evt.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.EventType)
	}

	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	dedupeKey := fmt.Sprintf("%s:%s", evt.AggregateID, evt.EventType)

	_, err = q.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		evt.AggregateType, evt.AggregateID, evt.EventType,
		route.Topic, route.SchemaSubject, evt.PartitionKey, body, dedupeKey,
	)
	return err
}
