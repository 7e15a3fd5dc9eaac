package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/repository"
)

// ChangeReleaseStatusInput carries one release status transition command.
type ChangeReleaseStatusInput struct {
	ReleaseCode    string
	To             domain.ReleaseStatus
	Actor          string
	IdempotencyKey string
}

// ChangeReleaseStatus drives the release status state machine.
type ChangeReleaseStatus struct {
	pool      *pgxpool.Pool
	engine    *dedup.Engine
	events    eventAppender
	releases  *repository.ReleaseStore
	publisher EventPublisher
}

// NewChangeReleaseStatus wires the release status use case.
func NewChangeReleaseStatus(pool *pgxpool.Pool, engine *dedup.Engine, events eventAppender,
	releases *repository.ReleaseStore, publisher EventPublisher) *ChangeReleaseStatus {
	return &ChangeReleaseStatus{pool: pool, engine: engine, events: events, releases: releases, publisher: publisher}
}

// Execute applies the transition if the state machine allows it. A
// transition to the current status is legal and still recorded, which is
// what makes blind client retries harmless.
func (uc *ChangeReleaseStatus) Execute(ctx context.Context, in ChangeReleaseStatusInput) (*CommandResult, error) {
	if in.ReleaseCode == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequestField, "release_code is required")
	}
	if in.Actor == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequestField, "actor is required")
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

func (uc *ChangeReleaseStatus) apply(ctx context.Context, in ChangeReleaseStatusInput) (*CommandResult, error) {
	eventID, err := newEventID()
	if err != nil {
		return nil, err
	}

	// Read and validate inside the same transaction as the write so a
	// concurrent transition cannot slip between validation and persist.
	var stored *domain.Event
	err = withTx(ctx, uc.pool, func(tx pgx.Tx) error {
		release, err := uc.releases.GetTx(ctx, tx, in.ReleaseCode)
		if err != nil {
			return err
		}

		if err := release.Status.ValidateTransition(in.To); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return apperrors.BadRequest(apperrors.CodeInvalidReleaseTransition, err.Error())
			}
			return err
		}

		payloadJSON, err := domain.ReleaseStatusChangedPayload{
			ReleaseCode: in.ReleaseCode,
			From:        release.Status,
			To:          in.To,
			Actor:       in.Actor,
		}.ToJSON()
		if err != nil {
			return err
		}

		if err := uc.releases.SetStatusTx(ctx, tx, in.ReleaseCode, in.To); err != nil {
			return err
		}
		stored, err = uc.events.AppendTx(ctx, tx, &domain.Event{
			EventID:       eventID,
			EventType:     domain.EventReleaseStatusChanged,
			AggregateCode: in.ReleaseCode,
			AggregateType: domain.AggregateRelease,
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

// ChangePlanningStatusInput carries one planning status transition command.
type ChangePlanningStatusInput struct {
	FeatureCode    string
	To             domain.PlanningStatus
	Actor          string
	IdempotencyKey string
}

// ChangePlanningStatus drives the feature planning state machine.
type ChangePlanningStatus struct {
	pool      *pgxpool.Pool
	engine    *dedup.Engine
	events    eventAppender
	features  *repository.FeatureStore
	publisher EventPublisher
}

// NewChangePlanningStatus wires the planning status use case.
func NewChangePlanningStatus(pool *pgxpool.Pool, engine *dedup.Engine, events eventAppender,
	features *repository.FeatureStore, publisher EventPublisher) *ChangePlanningStatus {
	return &ChangePlanningStatus{pool: pool, engine: engine, events: events, features: features, publisher: publisher}
}

// Execute applies the planning transition if the state machine allows it.
func (uc *ChangePlanningStatus) Execute(ctx context.Context, in ChangePlanningStatusInput) (*CommandResult, error) {
	if in.FeatureCode == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequestField, "feature_code is required")
	}
	if in.Actor == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequestField, "actor is required")
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

func (uc *ChangePlanningStatus) apply(ctx context.Context, in ChangePlanningStatusInput) (*CommandResult, error) {
	eventID, err := newEventID()
	if err != nil {
		return nil, err
	}

	// Same in-transaction read-validate-write ordering as release status.
	var stored *domain.Event
	err = withTx(ctx, uc.pool, func(tx pgx.Tx) error {
		feature, err := uc.features.GetTx(ctx, tx, in.FeatureCode)
		if err != nil {
			return err
		}
		if feature.DeletedAt != nil {
			return apperrors.NotFound(apperrors.CodeFeatureNotFound,
				"feature "+in.FeatureCode+" not found")
		}

		if err := feature.PlanningStatus.ValidateTransition(in.To); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return apperrors.BadRequest(apperrors.CodeInvalidPlanningTransition, err.Error())
			}
			return err
		}

		payloadJSON, err := domain.PlanningStatusChangedPayload{
			FeatureCode: in.FeatureCode,
			From:        feature.PlanningStatus,
			To:          in.To,
			Actor:       in.Actor,
		}.ToJSON()
		if err != nil {
			return err
		}

		if err := uc.features.SetPlanningStatusTx(ctx, tx, in.FeatureCode, in.To); err != nil {
			return err
		}
		stored, err = uc.events.AppendTx(ctx, tx, &domain.Event{
			EventID:       eventID,
			EventType:     domain.EventPlanningStatusChanged,
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
