package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"

	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	"github.com/toloka-partners/featuretrack/internal/jobs"
	"github.com/toloka-partners/featuretrack/internal/notification"
	"github.com/toloka-partners/featuretrack/internal/repository"
	"github.com/toloka-partners/featuretrack/internal/testutil"
)

func TestNotificationFanoutWorker_Work(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	ctx := context.Background()

	events := eventlog.NewStore(pool)
	dedupStore := dedup.NewPostgresStore(pool)
	features := repository.NewFeatureStore(pool)
	releases := repository.NewReleaseStore(pool)
	notifications := notification.NewStore(pool)
	fanout := notification.NewFanout(notifications, repository.NewRecipientSource(features, releases))

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, features.UpsertTx(ctx, tx, &repository.Feature{
		Code: "FT-1", Name: "search", CreatedBy: "alice", Assignee: "bob",
	}))
	require.NoError(t, tx.Commit(ctx))

	payload, err := domain.FeatureChangePayload{
		FeatureCode: "FT-1", Name: "search", CreatedBy: "alice", Assignee: "bob", Actor: "carol",
	}.ToJSON()
	require.NoError(t, err)
	event, err := events.Append(ctx, &domain.Event{
		EventID:       "evt-1",
		EventType:     domain.EventFeatureUpdated,
		AggregateCode: "FT-1",
		AggregateType: domain.AggregateFeature,
		Payload:       payload,
	})
	require.NoError(t, err)

	worker := jobs.NewNotificationFanoutWorker(events, dedupStore, fanout, 24*time.Hour)
	job := &river.Job[jobs.NotificationFanoutArgs]{Args: jobs.NotificationFanoutArgs{EventID: event.EventID}}

	require.NoError(t, worker.Work(ctx, job))

	recipients, err := notifications.RecipientsByEventID(ctx, event.EventID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, recipients)

	// The delivery is now recorded in the message class.
	processed, err := dedupStore.Exists(ctx, dedup.Key{OperationID: event.EventID, Class: dedup.ClassMessage})
	require.NoError(t, err)
	require.True(t, processed)

	// A redelivery is a clean no-op.
	require.NoError(t, worker.Work(ctx, job))
	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE event_id = $1`, event.EventID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestNotificationFanoutWorker_Work_MissingEvent(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	ctx := context.Background()

	events := eventlog.NewStore(pool)
	dedupStore := dedup.NewPostgresStore(pool)
	features := repository.NewFeatureStore(pool)
	releases := repository.NewReleaseStore(pool)
	notifications := notification.NewStore(pool)
	fanout := notification.NewFanout(notifications, repository.NewRecipientSource(features, releases))

	worker := jobs.NewNotificationFanoutWorker(events, dedupStore, fanout, 24*time.Hour)
	job := &river.Job[jobs.NotificationFanoutArgs]{Args: jobs.NotificationFanoutArgs{EventID: "missing"}}

	require.Error(t, worker.Work(ctx, job))
}
