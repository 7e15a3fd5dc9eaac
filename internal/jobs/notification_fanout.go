package jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	"github.com/toloka-partners/featuretrack/internal/notification"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
)

// NotificationFanoutArgs references one appended event by id.
type NotificationFanoutArgs struct {
	EventID string `json:"event_id"`
}

// Kind implements river.JobArgs.
func (NotificationFanoutArgs) Kind() string { return "notification_fanout" }

// InsertOpts deduplicates pending jobs per event id; redeliveries of an
// already-queued event collapse into the existing job.
func (NotificationFanoutArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// NotificationFanoutWorker consumes fan-out jobs. The transport is
// at-least-once, so the worker is written to tolerate a second delivery of
// the same event: a no-side-effect existence check first, the idempotent
// fan-out second, and the processed-operation claim only after success.
// A crash between fan-out and claim re-runs the fan-out, which the unique
// event id constraint absorbs.
type NotificationFanoutWorker struct {
	river.WorkerDefaults[NotificationFanoutArgs]

	events   *eventlog.Store
	dedup    dedup.Store
	fanout   *notification.Fanout
	dedupTTL time.Duration
}

// NewNotificationFanoutWorker wires the fan-out worker.
func NewNotificationFanoutWorker(events *eventlog.Store, dedupStore dedup.Store,
	fanout *notification.Fanout, dedupTTL time.Duration) *NotificationFanoutWorker {
	return &NotificationFanoutWorker{events: events, dedup: dedupStore, fanout: fanout, dedupTTL: dedupTTL}
}

// Work processes one delivery.
func (w *NotificationFanoutWorker) Work(ctx context.Context, job *river.Job[NotificationFanoutArgs]) error {
	key := dedup.Key{OperationID: job.Args.EventID, Class: dedup.ClassMessage}

	processed, err := w.dedup.Exists(ctx, key)
	if err != nil {
		return err
	}
	if processed {
		logger.Info("duplicate fan-out delivery, skipping",
			zap.String("event_id", job.Args.EventID))
		return nil
	}

	event, err := w.events.ByID(ctx, job.Args.EventID)
	if err != nil {
		return err
	}

	if err := w.fanout.OnEvent(ctx, event); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := w.dedup.Claim(ctx, key, now, now.Add(w.dedupTTL), nil); err != nil {
		// The fan-out itself succeeded and is idempotent; failing the job
		// here would only cause a harmless re-run.
		logger.Warn("failed to record processed fan-out delivery",
			zap.String("event_id", job.Args.EventID),
			zap.Error(err))
	}
	return nil
}
