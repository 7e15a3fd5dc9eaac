package usecase

import (
	"context"
	"time"

	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
)

// ReplayFilter selects which slice of the event log to replay. Exactly one
// selector must be set; combining them is not supported.
type ReplayFilter struct {
	AggregateCode string
	AggregateType domain.AggregateType
	EventType     domain.EventType
	From, To      time.Time
}

func (f ReplayFilter) selectorCount() int {
	count := 0
	if f.AggregateCode != "" {
		count++
	}
	if f.AggregateType != "" {
		count++
	}
	if f.EventType != "" {
		count++
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		count++
	}
	return count
}

// eventSelector is the slice of the event log store replay needs.
type eventSelector interface {
	ByAggregateCode(ctx context.Context, aggregateCode string) ([]*domain.Event, error)
	ByAggregateType(ctx context.Context, aggregateType domain.AggregateType) ([]*domain.Event, error)
	ByEventType(ctx context.Context, eventType domain.EventType) ([]*domain.Event, error)
	ByCreatedAtRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
}

// ReplayEvents re-publishes a selected slice of the event log through the
// live dispatch path. Because every listener is idempotent, replays are safe
// against double application.
type ReplayEvents struct {
	events   eventSelector
	replayer *eventlog.Replayer
}

// NewReplayEvents wires the replay use case.
func NewReplayEvents(events eventSelector, replayer *eventlog.Replayer) *ReplayEvents {
	return &ReplayEvents{events: events, replayer: replayer}
}

// Execute loads the selected records and replays them. With dryRun set the
// records are only deserialized and counted.
func (uc *ReplayEvents) Execute(ctx context.Context, filter ReplayFilter, dryRun bool) (*eventlog.ReplayResult, error) {
	if filter.selectorCount() != 1 {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			"exactly one of aggregate_code, aggregate_type, event_type, or a time range must be set")
	}

	var (
		records []*domain.Event
		err     error
	)
	switch {
	case filter.AggregateCode != "":
		records, err = uc.events.ByAggregateCode(ctx, filter.AggregateCode)
	case filter.AggregateType != "":
		records, err = uc.events.ByAggregateType(ctx, filter.AggregateType)
	case filter.EventType != "":
		records, err = uc.events.ByEventType(ctx, filter.EventType)
	default:
		to := filter.To
		if to.IsZero() {
			to = time.Now().UTC()
		}
		records, err = uc.events.ByCreatedAtRange(ctx, filter.From, to)
	}
	if err != nil {
		return nil, err
	}

	result := uc.replayer.Replay(ctx, records, dryRun)
	return &result, nil
}
