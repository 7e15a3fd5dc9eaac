package eventlog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	apperrors "github.com/toloka-partners/featuretrack/internal/pkg/errors"
	"github.com/toloka-partners/featuretrack/internal/testutil"
)

func newTestEvent(t *testing.T, aggregateCode string) *domain.Event {
	t.Helper()
	payload, err := domain.FeatureChangePayload{
		FeatureCode: aggregateCode,
		Name:        "search revamp",
		CreatedBy:   "alice",
		Assignee:    "bob",
		Actor:       "alice",
	}.ToJSON()
	require.NoError(t, err)

	id, err := uuid.NewV7()
	require.NoError(t, err)

	return &domain.Event{
		EventID:       id.String(),
		EventType:     domain.EventFeatureUpdated,
		AggregateCode: aggregateCode,
		AggregateType: domain.AggregateFeature,
		Payload:       payload,
	}
}

func TestStore_Append_VersionsStartAtOneAndIncrement(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		stored, err := store.Append(ctx, newTestEvent(t, "FT-100"))
		require.NoError(t, err)
		require.Equal(t, want, stored.Version)
		require.Equal(t, want, stored.Metadata.Version)
	}

	// A different aggregate starts its own sequence.
	stored, err := store.Append(ctx, newTestEvent(t, "FT-200"))
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)
}

func TestStore_Append_ConcurrentSameAggregate(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	const appends = 10
	var wg sync.WaitGroup
	for i := 0; i < appends; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, newTestEvent(t, "FT-300"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := store.ByAggregateCode(ctx, "FT-300")
	require.NoError(t, err)
	require.Len(t, events, appends)

	// Versions must be a gapless 1..N sequence regardless of arrival order.
	seen := make(map[int64]bool, appends)
	for _, event := range events {
		seen[event.Version] = true
	}
	for v := int64(1); v <= appends; v++ {
		require.True(t, seen[v], "missing version %d", v)
	}
}

func TestStore_Append_DuplicateEventID(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	event := newTestEvent(t, "FT-400")
	_, err := store.Append(ctx, event)
	require.NoError(t, err)

	dup := newTestEvent(t, "FT-400")
	dup.EventID = event.EventID
	_, err = store.Append(ctx, dup)
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeEventAppendFail, appErr.Code)
}

func TestStore_ByID(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	stored, err := store.Append(ctx, newTestEvent(t, "FT-500"))
	require.NoError(t, err)

	got, err := store.ByID(ctx, stored.EventID)
	require.NoError(t, err)
	require.Equal(t, stored.EventID, got.EventID)
	require.Equal(t, domain.EventFeatureUpdated, got.EventType)
	require.Equal(t, "FT-500", got.AggregateCode)
	require.Equal(t, int64(1), got.Metadata.Version)

	_, err = store.ByID(ctx, "no-such-event")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeEventNotFound, appErr.Code)
}

func TestStore_Queries(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	featureEvent := newTestEvent(t, "FT-600")
	_, err := store.Append(ctx, featureEvent)
	require.NoError(t, err)
	_, err = store.Append(ctx, newTestEvent(t, "FT-600"))
	require.NoError(t, err)

	releasePayload, err := domain.ReleaseStatusChangedPayload{
		ReleaseCode: "REL-1",
		From:        domain.ReleaseDraft,
		To:          domain.ReleasePlanned,
		Actor:       "carol",
	}.ToJSON()
	require.NoError(t, err)
	releaseID, err := uuid.NewV7()
	require.NoError(t, err)
	_, err = store.Append(ctx, &domain.Event{
		EventID:       releaseID.String(),
		EventType:     domain.EventReleaseStatusChanged,
		AggregateCode: "REL-1",
		AggregateType: domain.AggregateRelease,
		Payload:       releasePayload,
	})
	require.NoError(t, err)

	t.Run("by aggregate code in version order", func(t *testing.T) {
		events, err := store.ByAggregateCode(ctx, "FT-600")
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, int64(1), events[0].Version)
		require.Equal(t, int64(2), events[1].Version)
	})

	t.Run("by aggregate type", func(t *testing.T) {
		events, err := store.ByAggregateType(ctx, domain.AggregateRelease)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "REL-1", events[0].AggregateCode)
	})

	t.Run("by event type", func(t *testing.T) {
		events, err := store.ByEventType(ctx, domain.EventReleaseStatusChanged)
		require.NoError(t, err)
		require.Len(t, events, 1)
	})

	t.Run("by created at range", func(t *testing.T) {
		now := time.Now().UTC()
		events, err := store.ByCreatedAtRange(ctx, now.Add(-time.Minute), now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, events, 3)

		events, err = store.ByCreatedAtRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Empty(t, events)
	})
}

func TestStore_VersionsAfter(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.Append(ctx, newTestEvent(t, "FT-700"))
		require.NoError(t, err)
	}

	events, err := store.VersionsAfter(ctx, "FT-700", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(3), events[0].Version)
	require.Equal(t, int64(4), events[1].Version)

	events, err = store.VersionsAfter(ctx, "FT-700", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestStore_MaxVersion(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	store := eventlog.NewStore(pool)
	ctx := context.Background()

	_, found, err := store.MaxVersion(ctx, "FT-800")
	require.NoError(t, err)
	require.False(t, found)

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, newTestEvent(t, "FT-800"))
		require.NoError(t, err)
	}

	version, found, err := store.MaxVersion(ctx, "FT-800")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(3), version)
}
