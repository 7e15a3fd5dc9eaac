// Package app is the composition root. Bootstrap stays orchestration-only:
// it wires dependencies and owns no business logic.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"github.com/toloka-partners/featuretrack/internal/api/handlers"
	"github.com/toloka-partners/featuretrack/internal/config"
	"github.com/toloka-partners/featuretrack/internal/dedup"
	"github.com/toloka-partners/featuretrack/internal/domain"
	"github.com/toloka-partners/featuretrack/internal/eventlog"
	"github.com/toloka-partners/featuretrack/internal/infrastructure"
	"github.com/toloka-partners/featuretrack/internal/jobs"
	"github.com/toloka-partners/featuretrack/internal/notification"
	"github.com/toloka-partners/featuretrack/internal/pkg/worker"
	"github.com/toloka-partners/featuretrack/internal/repository"
	"github.com/toloka-partners/featuretrack/internal/usecase"
)

// Application holds composed application dependencies.
type Application struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *infrastructure.DatabaseClients
	Pools      *worker.Pools
	Dispatcher *domain.EventDispatcher

	redisClient *redis.Client
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		ReplayPoolSize:  cfg.Worker.ReplayPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	app := &Application{Config: cfg, DB: db, Pools: pools}

	// Stores.
	events := eventlog.NewStore(db.Pool)
	features := repository.NewFeatureStore(db.Pool)
	releases := repository.NewReleaseStore(db.Pool)
	dependencies := repository.NewDependencyStore(db.Pool)
	notifications := notification.NewStore(db.Pool)

	dedupStore, err := app.newDedupStore(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	engine := dedup.NewEngine(dedupStore, dedup.Options{
		TTL:          cfg.Dedup.TTL,
		ResultGrace:  cfg.Dedup.ResultGrace,
		PollInterval: cfg.Dedup.PollInterval,
	})

	// Event dispatch and fan-out.
	dispatcher := domain.NewEventDispatcher()
	fanout := notification.NewFanout(notifications, repository.NewRecipientSource(features, releases))
	fanout.Register(dispatcher)
	app.Dispatcher = dispatcher

	replayer := eventlog.NewReplayer(dispatcher, pools.Replay)
	replayUC := usecase.NewReplayEvents(events, replayer)

	// Jobs.
	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewNotificationFanoutWorker(events, dedupStore, fanout, cfg.Dedup.TTL))
	river.AddWorker(workers, jobs.NewDedupSweepWorker(dedupStore))
	river.AddWorker(workers, jobs.NewNotificationCleanupWorker(notifications, cfg.Notification.Retention))
	river.AddWorker(workers, jobs.NewEventReplayWorker(replayUC))
	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		app.Close()
		return nil, fmt.Errorf("init river: %w", err)
	}
	registerPeriodicJobs(db.RiverClient, cfg)

	publisher := jobs.NewPublisher(db.RiverClient)

	server := handlers.NewServer(handlers.ServerDeps{
		Pool:                 db.Pool,
		RecordFeatureChange:  usecase.NewRecordFeatureChange(db.Pool, engine, events, features, publisher),
		AddDependency:        usecase.NewAddDependency(db.Pool, engine, events, features, dependencies, publisher),
		ChangeReleaseStatus:  usecase.NewChangeReleaseStatus(db.Pool, engine, events, releases, publisher),
		ChangePlanningStatus: usecase.NewChangePlanningStatus(db.Pool, engine, events, features, publisher),
		ReplayEvents:         replayUC,
		Events:               events,
		Notifications:        notifications,
	})

	app.Router = newRouter(server)
	return app, nil
}

// newDedupStore picks the configured deduplication backend. Postgres is the
// default; Redis serves deployments that want dedup state off the primary.
func (a *Application) newDedupStore(cfg *config.Config) (dedup.Store, error) {
	switch cfg.Dedup.Backend {
	case config.DedupBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Dedup.RedisAddr,
			DB:   cfg.Dedup.RedisDB,
		})
		a.redisClient = client
		return dedup.NewRedisStore(client), nil
	case config.DedupBackendPostgres, "":
		return dedup.NewPostgresStore(a.DB.Pool), nil
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Dedup.Backend)
	}
}

func registerPeriodicJobs(client *river.Client[pgx.Tx], cfg *config.Config) {
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.Dedup.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.DedupSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.NotificationCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	)
}
