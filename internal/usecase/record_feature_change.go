package usecase

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/repository"
)

// FeatureChangeType selects which lifecycle change a feature change records.
type FeatureChangeType string

const (
	FeatureChangeCreate FeatureChangeType = "create"
	FeatureChangeUpdate FeatureChangeType = "update"
	FeatureChangeDelete FeatureChangeType = "delete"
)

// RecordFeatureChangeInput carries one feature lifecycle command.
// IdempotencyKey is optional; when present, retries with the same key replay
// the original result instead of running again.
type RecordFeatureChangeInput struct {
	ChangeType     FeatureChangeType
	FeatureCode    string
	Name           string
	ReleaseCode    string
	Assignee       string
	Actor          string
	IdempotencyKey string
}

func (in RecordFeatureChangeInput) validate() error {
	if in.FeatureCode == "" {
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "feature_code is required")
	}
	if in.Actor == "" {
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "actor is required")
	}
	switch in.ChangeType {
	case FeatureChangeCreate:
		if in.Name == "" {
			return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "name is required to create a feature")
		}
	case FeatureChangeUpdate, FeatureChangeDelete:
	default:
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			fmt.Sprintf("unknown change type %q", in.ChangeType))
	}
	return nil
}

// RecordFeatureChange handles feature create/update/delete commands.
type RecordFeatureChange struct {
	pool      *pgxpool.Pool
	engine    *dedup.Engine
	events    eventAppender
	features  *repository.FeatureStore
	publisher EventPublisher
}

// NewRecordFeatureChange wires the feature change use case.
func NewRecordFeatureChange(pool *pgxpool.Pool, engine *dedup.Engine, events eventAppender,
	features *repository.FeatureStore, publisher EventPublisher) *RecordFeatureChange {
	return &RecordFeatureChange{pool: pool, engine: engine, events: events, features: features, publisher: publisher}
}

// Execute records the feature change, appends the event, and enqueues the
// fan-out job, all guarded by the idempotency engine.
func (uc *RecordFeatureChange) Execute(ctx context.Context, in RecordFeatureChangeInput) (*CommandResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	resultJSON, replayed, err := uc.engine.Execute(ctx, in.IdempotencyKey, dedup.ClassAPI,
		func(workCtx context.Context) ([]byte, error) {
			result, err := uc.apply(workCtx, in)
			if err != nil {
				return nil, err
			}
			return result.toJSON()
		})
	if err != nil {
		return nil, err
	}

	result, err := commandResultFromJSON(resultJSON)
	if err != nil {
		return nil, err
	}
	result.Replayed = replayed
	return result, nil
}

func (uc *RecordFeatureChange) apply(ctx context.Context, in RecordFeatureChangeInput) (*CommandResult, error) {
	eventType := map[FeatureChangeType]domain.EventType{
		FeatureChangeCreate: domain.EventFeatureCreated,
		FeatureChangeUpdate: domain.EventFeatureUpdated,
		FeatureChangeDelete: domain.EventFeatureDeleted,
	}[in.ChangeType]

	existing, err := uc.features.Get(ctx, in.FeatureCode)
	if in.ChangeType != FeatureChangeCreate {
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		if _, ok := apperrors.IsAppError(err); !ok {
			return nil, err
		}
		existing = nil
	}

	payload := domain.FeatureChangePayload{
		FeatureCode: in.FeatureCode,
		Name:        in.Name,
		ReleaseCode: in.ReleaseCode,
		CreatedBy:   in.Actor,
		Assignee:    in.Assignee,
		Actor:       in.Actor,
	}
	if existing != nil {
		payload.CreatedBy = existing.CreatedBy
		if in.ChangeType == FeatureChangeDelete {
			payload.Name = existing.Name
			payload.ReleaseCode = existing.ReleaseCode
			payload.Assignee = existing.Assignee
		}
	}
	payloadJSON, err := payload.ToJSON()
	if err != nil {
		return nil, err
	}

	eventID, err := newEventID()
	if err != nil {
		return nil, err
	}

	var stored *domain.Event
	err = withTx(ctx, uc.pool, func(tx pgx.Tx) error {
		switch in.ChangeType {
		case FeatureChangeDelete:
			if err := uc.features.SoftDeleteTx(ctx, tx, in.FeatureCode); err != nil {
				return err
			}
		default:
			row := &repository.Feature{
				Code:           in.FeatureCode,
				Name:           payload.Name,
				ReleaseCode:    payload.ReleaseCode,
				PlanningStatus: domain.PlanningNotStarted,
				CreatedBy:      payload.CreatedBy,
				Assignee:       payload.Assignee,
			}
			if existing != nil {
				row.PlanningStatus = existing.PlanningStatus
				if row.Name == "" {
					row.Name = existing.Name
				}
			}
			if err := uc.features.UpsertTx(ctx, tx, row); err != nil {
				return err
			}
		}

		stored, err = uc.events.AppendTx(ctx, tx, &domain.Event{
			EventID:       eventID,
			EventType:     eventType,
			AggregateCode: in.FeatureCode,
			AggregateType: domain.AggregateFeature,
			Payload:       payloadJSON,
		})
		if err != nil {
			return err
		}
		return uc.publisher.PublishFanoutTx(ctx, tx, stored.EventID)
	})
	if err != nil {
		return nil, err
	}

	return &CommandResult{EventID: stored.EventID, Version: stored.Version}, nil
}
