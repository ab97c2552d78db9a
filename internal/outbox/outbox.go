// Package outbox implements the transactional outbox: notification events
// are inserted in the same transaction as the write they describe and
// relayed to Kafka by a background publisher. Delivery is best-effort and
// retried independently; a notification can never roll back the primary
// write.
package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vetsuite/vetsuite/libs/db"
	otelx "github.com/vetsuite/vetsuite/libs/otel"
)

// Event types emitted by the engine. The Kafka topic equals the event type.
const (
	EventAppointmentBooked      = "appointments.booked.v1"
	EventAppointmentCancelled   = "appointments.cancelled.v1"
	EventAppointmentStatus      = "appointments.status_changed.v1"
	EventAppointmentRescheduled = "appointments.rescheduled.v1"
	EventRescheduleRequested    = "reschedules.requested.v1"
	EventRescheduleResolved     = "reschedules.resolved.v1"
	EventPenaltyCreated         = "penalties.created.v1"
)

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// FetchUnpublished claims a batch with SKIP LOCKED so concurrent publishers
// never double-send within one poll cycle.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.Traceparent, &rec.Tracestate, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
