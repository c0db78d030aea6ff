// Package outbox persists and delivers progression events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one claimed outbox row.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// schemaCatalog binds each event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	"progression.completed": progressionCompletedSchema,
	"badge.unlocked":        badgeUnlockedSchema,
}

// Dispatcher drains unpublished outbox rows and delivers them to Kafka with
// Confluent wire framing. Rows that cannot be delivered land in the DLQ and
// are marked published so they never block the queue.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	dlq          *DLQWriter
	log          *zap.Logger
	pollInterval time.Duration
	batchSize    int

	schemaIDCache sync.Map
	done          chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, log *zap.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		dlq:          NewDLQWriter(pool),
		log:          log,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled. Call it in a
// goroutine and use Wait to block on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.done)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("outbox dispatcher error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has exited.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	batch, err := d.claim(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.publish(ctx, batch); err != nil {
		d.log.Error("outbox delivery failure", zap.Error(err), zap.Int("batch", len(batch)))
		failedCounter.Add(float64(len(batch)))
		if dlqErr := d.moveToDLQ(ctx, batch, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.markPublished(ctx, batch)
	}

	deliveredCounter.Add(float64(len(batch)))
	return d.markPublished(ctx, batch)
}

// claim selects the oldest unpublished rows FOR UPDATE SKIP LOCKED and stamps
// claimed_at, so concurrent dispatchers never pick up the same batch.
func (d *Dispatcher) claim(ctx context.Context) (batch []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
         FROM outbox
         WHERE published_at IS NULL
         ORDER BY event_id
         LIMIT $1
         FOR UPDATE SKIP LOCKED`,
		d.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var m Message
		if err = rows.Scan(&m.EventID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Topic, &m.SchemaSubject, &m.PartitionKey, &m.Payload); err != nil {
			return nil, err
		}
		batch = append(batch, m)
		ids = append(ids, m.EventID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		_ = tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

func (d *Dispatcher) publish(ctx context.Context, batch []Message) error {
	topics := make(map[string][]kafka.Message)

	for _, m := range batch {
		record, err := d.encode(ctx, m)
		if err != nil {
			return err
		}
		topics[m.Topic] = append(topics[m.Topic], record)
	}

	for topic, records := range topics {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}
	return nil
}

// encode resolves the schema id (registering on first contact, cached per
// subject) and frames the payload in the Confluent wire format.
func (d *Dispatcher) encode(ctx context.Context, m Message) (kafka.Message, error) {
	schema, ok := schemaCatalog[m.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", m.EventType)
	}

	var schemaID int
	if cached, ok := d.schemaIDCache.Load(m.SchemaSubject); ok {
		schemaID = cached.(int)
	} else {
		id, err := d.registry.EnsureSchema(ctx, m.SchemaSubject, schema)
		if err != nil {
			return kafka.Message{}, err
		}
		d.schemaIDCache.Store(m.SchemaSubject, id)
		schemaID = id
	}

	value := make([]byte, 5+len(m.Payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], m.Payload)

	return kafka.Message{
		Key:   []byte(m.PartitionKey),
		Value: value,
		Time:  time.Now().UTC(),
	}, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	ids := make([]int64, 0, len(batch))
	for _, m := range batch {
		ids = append(ids, m.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, batch []Message, reason string) error {
	for _, m := range batch {
		if err := d.dlq.Write(ctx, m, fmt.Sprintf("%s (topic=%s)", reason, m.Topic)); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(m.Topic).Inc()
	}
	return nil
}
