package jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

// EventReplayArgs schedules a replay of part of the event log. Set exactly
// one selector, mirroring the synchronous replay operation.
type EventReplayArgs struct {
	AggregateCode string    `json:"aggregate_code,omitempty"`
	AggregateType string    `json:"aggregate_type,omitempty"`
	EventType     string    `json:"event_type,omitempty"`
	From          time.Time `json:"from,omitempty"`
	To            time.Time `json:"to,omitempty"`
	DryRun        bool      `json:"dry_run,omitempty"`
}

// Kind returns the job kind identifier for event replay.
func (EventReplayArgs) Kind() string { return "event_replay" }

// InsertOpts returns default insert options for replay jobs.
func (EventReplayArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// EventReplayWorker runs scheduled replays through the same use case as the
// synchronous API path.
type EventReplayWorker struct {
	river.WorkerDefaults[EventReplayArgs]

	replay *usecase.ReplayEvents
}

// NewEventReplayWorker wires the replay worker.
func NewEventReplayWorker(replay *usecase.ReplayEvents) *EventReplayWorker {
	return &EventReplayWorker{replay: replay}
}

// Work runs one replay.
func (w *EventReplayWorker) Work(ctx context.Context, job *river.Job[EventReplayArgs]) error {
	result, err := w.replay.Execute(ctx, usecase.ReplayFilter{
		AggregateCode: job.Args.AggregateCode,
		AggregateType: domain.AggregateType(job.Args.AggregateType),
		EventType:     domain.EventType(job.Args.EventType),
		From:          job.Args.From,
		To:            job.Args.To,
	}, job.Args.DryRun)
	if err != nil {
		return err
	}

	logger.Info("scheduled event replay completed",
		zap.Int("success", result.SuccessCount),
		zap.Int("failures", result.FailureCount),
		zap.Bool("dry_run", job.Args.DryRun),
	)
	return nil
}
