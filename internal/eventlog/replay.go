package eventlog

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/pkg/logger"
	"github.com/toloka-partners/featuretrack/internal/pkg/worker"
)

// RecordError describes one record that failed during replay.
type RecordError struct {
	EventID string `json:"event_id"`
	Error   string `json:"error"`
}

// ReplayResult summarizes a replay run. SuccessCount plus FailureCount
// always equals the number of input records; a failed record never aborts
// the rest of the run.
type ReplayResult struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Errors       []RecordError `json:"errors,omitempty"`
}

// Replayer re-publishes stored events through the dispatcher, fanning the
// records out over the dedicated replay worker pool.
type Replayer struct {
	dispatcher *domain.EventDispatcher
	pool       *worker.Pool
}

// NewReplayer creates a replayer over the given dispatcher and pool.
func NewReplayer(dispatcher *domain.EventDispatcher, pool *worker.Pool) *Replayer {
	return &Replayer{dispatcher: dispatcher, pool: pool}
}

// Replay deserializes and republishes the given records. With dryRun set,
// records are deserialized and counted but nothing is dispatched, so a dry
// run previews exactly which records a real run would fail on.
func (r *Replayer) Replay(ctx context.Context, records []*domain.Event, dryRun bool) ReplayResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result ReplayResult
	)

	record := func(eventID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.SuccessCount++
			return
		}
		result.FailureCount++
		result.Errors = append(result.Errors, RecordError{EventID: eventID, Error: err.Error()})
	}

	for _, event := range records {
		event := event

		if _, err := domain.DecodePayload(event.EventType, event.Payload); err != nil {
			logger.Warn("skipping undecodable event during replay",
				zap.String("event_id", event.EventID),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
			if errors.Is(err, domain.ErrUnknownEventType) {
				err = apperrors.Wrap(err, apperrors.CodeUnknownEventType,
					"no decoder for event type "+string(event.EventType), http.StatusUnprocessableEntity)
			}
			record(event.EventID, err)
			continue
		}
		if dryRun {
			record(event.EventID, nil)
			continue
		}

		wg.Add(1)
		if err := r.pool.SubmitAlways(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			if taskCtx.Err() != nil {
				record(event.EventID, taskCtx.Err())
				return
			}
			record(event.EventID, r.dispatcher.Dispatch(taskCtx, event))
		}); err != nil {
			wg.Done()
			record(event.EventID, err)
		}
	}
	wg.Wait()

	logger.Info("event replay finished",
		zap.Int("records", len(records)),
		zap.Int("success", result.SuccessCount),
		zap.Int("failures", result.FailureCount),
		zap.Bool("dry_run", dryRun))
	return result
}
