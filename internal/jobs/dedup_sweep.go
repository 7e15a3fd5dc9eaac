package jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
)

// DedupSweepArgs triggers one sweep of expired deduplication records.
type DedupSweepArgs struct{}

// Kind implements river.JobArgs.
func (DedupSweepArgs) Kind() string { return "dedup_sweep" }

// InsertOpts ensures at most one sweep job is enqueued within the same hour.
func (DedupSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// DedupSweepWorker deletes expired processed-operation records.
type DedupSweepWorker struct {
	river.WorkerDefaults[DedupSweepArgs]

	store dedup.Store
}

// NewDedupSweepWorker wires the sweep worker.
func NewDedupSweepWorker(store dedup.Store) *DedupSweepWorker {
	return &DedupSweepWorker{store: store}
}

// Work runs one sweep.
func (w *DedupSweepWorker) Work(ctx context.Context, _ *river.Job[DedupSweepArgs]) error {
	deleted, err := w.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("dedup sweep finished", zap.Int64("deleted", deleted))
	return nil
}
