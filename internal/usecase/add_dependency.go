package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/repository"
)

// AddDependencyInput carries one dependency edge command.
type AddDependencyInput struct {
	FeatureCode    string
	DependsOnCode  string
	DepType        domain.DependencyType
	Notes          string
	Actor          string
	IdempotencyKey string
}

func (in AddDependencyInput) validate() error {
	if in.FeatureCode == "" || in.DependsOnCode == "" {
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			"feature_code and depends_on_code are required")
	}
	if in.Actor == "" {
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "actor is required")
	}
	if !in.DepType.Valid() {
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField,
			fmt.Sprintf("unknown dependency type %q", in.DepType))
	}
	return nil
}

// AddDependency validates a new dependency edge against the graph and
// records it.
type AddDependency struct {
	pool         *pgxpool.Pool
	engine       *dedup.Engine
	events       eventAppender
	features     *repository.FeatureStore
	dependencies *repository.DependencyStore
	publisher    EventPublisher
}

// NewAddDependency wires the dependency use case.
func NewAddDependency(pool *pgxpool.Pool, engine *dedup.Engine, events eventAppender,
	features *repository.FeatureStore, dependencies *repository.DependencyStore,
	publisher EventPublisher) *AddDependency {
	return &AddDependency{
		pool: pool, engine: engine, events: events,
		features: features, dependencies: dependencies, publisher: publisher,
	}
}

// Execute adds the edge if it keeps the graph acyclic. Self-loops,
// duplicates and cycles come back as 400s carrying the specific code.
func (uc *AddDependency) Execute(ctx context.Context, in AddDependencyInput) (*CommandResult, error) {
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

func (uc *AddDependency) apply(ctx context.Context, in AddDependencyInput) (*CommandResult, error) {
	for _, code := range []string{in.FeatureCode, in.DependsOnCode} {
		exists, err := uc.features.Exists(ctx, code)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.NotFound(apperrors.CodeFeatureNotFound,
				fmt.Sprintf("feature %s not found", code))
		}
	}

	existing, err := uc.dependencies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.CanAddEdge(in.FeatureCode, in.DependsOnCode, existing); err != nil {
		return nil, graphErrorToAppError(err)
	}

	payloadJSON, err := domain.DependencyAddedPayload{
		FeatureCode:   in.FeatureCode,
		DependsOnCode: in.DependsOnCode,
		DepType:       string(in.DepType),
		Notes:         in.Notes,
		Actor:         in.Actor,
	}.ToJSON()
	if err != nil {
		return nil, err
	}

	eventID, err := newEventID()
	if err != nil {
		return nil, err
	}

	var stored *domain.Event
	err = withTx(ctx, uc.pool, func(tx pgx.Tx) error {
		if err := uc.dependencies.InsertTx(ctx, tx, domain.DependencyEdge{
			FeatureCode:   in.FeatureCode,
			DependsOnCode: in.DependsOnCode,
			DepType:       in.DepType,
			Notes:         in.Notes,
		}); err != nil {
			return err
		}
		stored, err = uc.events.AppendTx(ctx, tx, &domain.Event{
			EventID:       eventID,
			EventType:     domain.EventDependencyAdded,
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

func graphErrorToAppError(err error) error {
	switch {
	case errors.Is(err, domain.ErrSelfDependency):
		return apperrors.BadRequest(apperrors.CodeSelfDependency, err.Error())
	case errors.Is(err, domain.ErrDuplicateDependency):
		return apperrors.BadRequest(apperrors.CodeDuplicateDependency, err.Error())
	case errors.Is(err, domain.ErrCyclicDependency):
		return apperrors.BadRequest(apperrors.CodeCyclicDependency, err.Error())
	default:
		return err
	}
}
