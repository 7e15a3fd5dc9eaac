// Package jobs defines the River job types and workers that carry the
// asynchronous side of the system: notification fan-out, deduplication
// sweeps, notification retention, and scheduled replays.
//
// Jobs carry references, not payloads. A fan-out job holds only the event
// id; the worker re-reads the event from the log, so a job retried days
// later still sees the authoritative record.
package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Publisher enqueues fan-out jobs on the caller's transaction. Implements
// the use case layer's EventPublisher.
type Publisher struct {
	client *river.Client[pgx.Tx]
}

// NewPublisher creates a River-backed publisher.
func NewPublisher(client *river.Client[pgx.Tx]) *Publisher {
	return &Publisher{client: client}
}

// PublishFanoutTx inserts the fan-out job in the given transaction, so the
// job becomes visible exactly when the event record commits.
func (p *Publisher) PublishFanoutTx(ctx context.Context, tx pgx.Tx, eventID string) error {
	_, err := p.client.InsertTx(ctx, tx, NotificationFanoutArgs{EventID: eventID}, nil)
	return err
}
