package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/repository"
	"github.com/toloka-partners/featuretrack/internal/testutil"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

// fakePublisher records published event ids in place of the job queue.
type fakePublisher struct {
	mu       sync.Mutex
	eventIDs []string
}

func (p *fakePublisher) PublishFanoutTx(_ context.Context, _ pgx.Tx, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventIDs = append(p.eventIDs, eventID)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.eventIDs...)
}

type fixture struct {
	pool         *pgxpool.Pool
	engine       *dedup.Engine
	events       *eventlog.Store
	features     *repository.FeatureStore
	releases     *repository.ReleaseStore
	dependencies *repository.DependencyStore
	publisher    *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := testutil.OpenMigratedPool(t)
	return &fixture{
		pool: pool,
		engine: dedup.NewEngine(dedup.NewPostgresStore(pool), dedup.Options{
			TTL:          time.Hour,
			ResultGrace:  500 * time.Millisecond,
			PollInterval: 20 * time.Millisecond,
		}),
		events:       eventlog.NewStore(pool),
		features:     repository.NewFeatureStore(pool),
		releases:     repository.NewReleaseStore(pool),
		dependencies: repository.NewDependencyStore(pool),
		publisher:    &fakePublisher{},
	}
}

func (fx *fixture) recordFeatureChange() *usecase.RecordFeatureChange {
	return usecase.NewRecordFeatureChange(fx.pool, fx.engine, fx.events, fx.features, fx.publisher)
}

func (fx *fixture) createFeature(t *testing.T, code, name, assignee, actor string) {
	t.Helper()
	_, err := fx.recordFeatureChange().Execute(context.Background(), usecase.RecordFeatureChangeInput{
		ChangeType:  usecase.FeatureChangeCreate,
		FeatureCode: code,
		Name:        name,
		Assignee:    assignee,
		Actor:       actor,
	})
	require.NoError(t, err)
}

func TestRecordFeatureChange_Create(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	result, err := fx.recordFeatureChange().Execute(ctx, usecase.RecordFeatureChangeInput{
		ChangeType:  usecase.FeatureChangeCreate,
		FeatureCode: "FT-1",
		Name:        "search revamp",
		ReleaseCode: "REL-1",
		Assignee:    "bob",
		Actor:       "alice",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Version)
	require.False(t, result.Replayed)

	feature, err := fx.features.Get(ctx, "FT-1")
	require.NoError(t, err)
	require.Equal(t, "alice", feature.CreatedBy)
	require.Equal(t, "bob", feature.Assignee)

	events, err := fx.events.ByAggregateCode(ctx, "FT-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventFeatureCreated, events[0].EventType)

	require.Equal(t, []string{result.EventID}, fx.publisher.published())
}

func TestRecordFeatureChange_IdempotentRetry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := usecase.RecordFeatureChangeInput{
		ChangeType:     usecase.FeatureChangeCreate,
		FeatureCode:    "FT-1",
		Name:           "search revamp",
		Actor:          "alice",
		IdempotencyKey: "idem-1",
	}

	first, err := fx.recordFeatureChange().Execute(ctx, input)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := fx.recordFeatureChange().Execute(ctx, input)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.EventID, second.EventID)
	require.Equal(t, first.Version, second.Version)

	// Only one event was appended and one job published.
	events, err := fx.events.ByAggregateCode(ctx, "FT-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, fx.publisher.published(), 1)
}

func TestRecordFeatureChange_UpdateAndDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.createFeature(t, "FT-1", "search", "bob", "alice")

	result, err := fx.recordFeatureChange().Execute(ctx, usecase.RecordFeatureChangeInput{
		ChangeType:  usecase.FeatureChangeUpdate,
		FeatureCode: "FT-1",
		Name:        "search v2",
		Assignee:    "carol",
		Actor:       "bob",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Version)

	feature, err := fx.features.Get(ctx, "FT-1")
	require.NoError(t, err)
	require.Equal(t, "search v2", feature.Name)
	require.Equal(t, "carol", feature.Assignee)
	// Creator never changes on update.
	require.Equal(t, "alice", feature.CreatedBy)

	result, err = fx.recordFeatureChange().Execute(ctx, usecase.RecordFeatureChangeInput{
		ChangeType:  usecase.FeatureChangeDelete,
		FeatureCode: "FT-1",
		Actor:       "alice",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Version)

	feature, err = fx.features.Get(ctx, "FT-1")
	require.NoError(t, err)
	require.NotNil(t, feature.DeletedAt)
}

func TestRecordFeatureChange_UpdateMissingFeature(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.recordFeatureChange().Execute(context.Background(), usecase.RecordFeatureChangeInput{
		ChangeType:  usecase.FeatureChangeUpdate,
		FeatureCode: "FT-404",
		Actor:       "alice",
	})
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeFeatureNotFound, appErr.Code)

	require.Empty(t, fx.publisher.published())
}

func TestRecordFeatureChange_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	uc := fx.recordFeatureChange()

	tests := []struct {
		name  string
		input usecase.RecordFeatureChangeInput
	}{
		{"missing feature code", usecase.RecordFeatureChangeInput{ChangeType: usecase.FeatureChangeCreate, Name: "n", Actor: "a"}},
		{"missing actor", usecase.RecordFeatureChangeInput{ChangeType: usecase.FeatureChangeCreate, FeatureCode: "FT-1", Name: "n"}},
		{"missing name on create", usecase.RecordFeatureChangeInput{ChangeType: usecase.FeatureChangeCreate, FeatureCode: "FT-1", Actor: "a"}},
		{"unknown change type", usecase.RecordFeatureChangeInput{ChangeType: "rename", FeatureCode: "FT-1", Actor: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(ctx, tt.input)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			require.Equal(t, apperrors.CodeInvalidRequestField, appErr.Code)
		})
	}
}

func TestAddDependency(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	for _, code := range []string{"FT-1", "FT-2", "FT-3"} {
		fx.createFeature(t, code, "feature "+code, "", "alice")
	}
	uc := usecase.NewAddDependency(fx.pool, fx.engine, fx.events, fx.features, fx.dependencies, fx.publisher)

	result, err := uc.Execute(ctx, usecase.AddDependencyInput{
		FeatureCode: "FT-1", DependsOnCode: "FT-2", DepType: domain.DependencyHard, Actor: "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.EventID)

	_, err = uc.Execute(ctx, usecase.AddDependencyInput{
		FeatureCode: "FT-2", DependsOnCode: "FT-3", DepType: domain.DependencySoft, Actor: "alice",
	})
	require.NoError(t, err)

	t.Run("closing edge is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.AddDependencyInput{
			FeatureCode: "FT-3", DependsOnCode: "FT-1", DepType: domain.DependencyHard, Actor: "alice",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeCyclicDependency, appErr.Code)
	})

	t.Run("self dependency is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.AddDependencyInput{
			FeatureCode: "FT-1", DependsOnCode: "FT-1", DepType: domain.DependencyHard, Actor: "alice",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeSelfDependency, appErr.Code)
	})

	t.Run("duplicate edge is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.AddDependencyInput{
			FeatureCode: "FT-1", DependsOnCode: "FT-2", DepType: domain.DependencyHard, Actor: "alice",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeDuplicateDependency, appErr.Code)
	})

	t.Run("unknown feature is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.AddDependencyInput{
			FeatureCode: "FT-1", DependsOnCode: "FT-404", DepType: domain.DependencyHard, Actor: "alice",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeFeatureNotFound, appErr.Code)
	})

	// A rejected edge leaves no trace in the log or the queue.
	events, err := fx.events.ByEventType(ctx, domain.EventDependencyAdded)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestChangeReleaseStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.releases.Create(ctx, &repository.Release{
		Code: "REL-1", Name: "Q3", Owner: "owen",
	}))
	uc := usecase.NewChangeReleaseStatus(fx.pool, fx.engine, fx.events, fx.releases, fx.publisher)

	result, err := uc.Execute(ctx, usecase.ChangeReleaseStatusInput{
		ReleaseCode: "REL-1", To: domain.ReleasePlanned, Actor: "owen",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Version)

	release, err := fx.releases.Get(ctx, "REL-1")
	require.NoError(t, err)
	require.Equal(t, domain.ReleasePlanned, release.Status)

	t.Run("skipping a stage is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.ChangeReleaseStatusInput{
			ReleaseCode: "REL-1", To: domain.ReleaseReleased, Actor: "owen",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeInvalidReleaseTransition, appErr.Code)

		// The rejection rolls everything back: status and history untouched.
		release, err := fx.releases.Get(ctx, "REL-1")
		require.NoError(t, err)
		require.Equal(t, domain.ReleasePlanned, release.Status)
		version, exists, err := fx.events.MaxVersion(ctx, "REL-1")
		require.NoError(t, err)
		require.True(t, exists)
		require.Equal(t, int64(1), version)
	})

	t.Run("transition to current status is recorded", func(t *testing.T) {
		result, err := uc.Execute(ctx, usecase.ChangeReleaseStatusInput{
			ReleaseCode: "REL-1", To: domain.ReleasePlanned, Actor: "owen",
		})
		require.NoError(t, err)
		require.Equal(t, int64(2), result.Version)
	})

	t.Run("unknown release", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.ChangeReleaseStatusInput{
			ReleaseCode: "REL-404", To: domain.ReleasePlanned, Actor: "owen",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeReleaseNotFound, appErr.Code)
	})
}

func TestChangePlanningStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.createFeature(t, "FT-1", "search", "bob", "alice")
	uc := usecase.NewChangePlanningStatus(fx.pool, fx.engine, fx.events, fx.features, fx.publisher)

	t.Run("illegal transition is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.ChangePlanningStatusInput{
			FeatureCode: "FT-1", To: domain.PlanningDone, Actor: "bob",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeInvalidPlanningTransition, appErr.Code)
	})

	result, err := uc.Execute(ctx, usecase.ChangePlanningStatusInput{
		FeatureCode: "FT-1", To: domain.PlanningInProgress, Actor: "bob",
	})
	require.NoError(t, err)
	// The create event holds version 1.
	require.Equal(t, int64(2), result.Version)

	feature, err := fx.features.Get(ctx, "FT-1")
	require.NoError(t, err)
	require.Equal(t, domain.PlanningInProgress, feature.PlanningStatus)

	t.Run("unknown status is rejected", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.ChangePlanningStatusInput{
			FeatureCode: "FT-1", To: "PAUSED", Actor: "bob",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeInvalidPlanningTransition, appErr.Code)
	})

	t.Run("deleted feature is rejected", func(t *testing.T) {
		_, err := fx.recordFeatureChange().Execute(ctx, usecase.RecordFeatureChangeInput{
			ChangeType: usecase.FeatureChangeDelete, FeatureCode: "FT-1", Actor: "alice",
		})
		require.NoError(t, err)

		_, err = uc.Execute(ctx, usecase.ChangePlanningStatusInput{
			FeatureCode: "FT-1", To: domain.PlanningDone, Actor: "bob",
		})
		appErr, ok := apperrors.IsAppError(err)
		require.True(t, ok)
		require.Equal(t, apperrors.CodeFeatureNotFound, appErr.Code)
	})
}
