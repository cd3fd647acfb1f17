package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"floortrack/internal/jobs"
	"floortrack/internal/service"
	"floortrack/pkg/distlock"
	"floortrack/pkg/logger"
	mysqlstore "floortrack/pkg/store/mysql"
)

// timeLogRetentionDays is how long raw time log rows are kept.
const timeLogRetentionDays = 30

func (app *Application) initJobs() error {
	if app.trackingService == nil || app.snapshotService == nil {
		logger.WarnCtx(app.ctx, "Service layer not fully initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	// Snapshot refresh and retention cleanup touch shared state (Redis
	// cache, MySQL), so replicas coordinate through distributed locks.
	// If Redis is unavailable, locks downgrade to single-instance mode.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}
	snapshotLock := distlock.NewRedisDistributedLock(redisClient, "snapshot:refresh-lock")
	retentionLock := distlock.NewRedisDistributedLock(redisClient, "cleanup:timelog-retention-lock")

	snapshotInterval := time.Duration(app.config.Realtime.SnapshotInterval) * time.Second
	anomalyInterval := time.Duration(app.config.Anomaly.TickInterval) * time.Second
	sweepInterval := time.Duration(app.config.Tracking.StaleTimeout) * time.Second / 2
	if sweepInterval < time.Second {
		sweepInterval = time.Second
	}

	// The anomaly tick, stale sweeper and boundary job operate on this
	// instance's in-memory engine state and need no distributed lock.
	manager.Register(newSnapshotJob(snapshotInterval, app.snapshotService, snapshotLock))
	manager.Register(newAnomalyTickJob(anomalyInterval, app.trackingService))
	manager.Register(newStaleSweepJob(sweepInterval, app.trackingService))
	manager.Register(newBoundaryJob(time.Minute, app.trackingService))
	manager.Register(newTimeLogRetentionJob(24*time.Hour, app.mysqlRepo, retentionLock))

	app.jobsManager = manager
	return nil
}

// snapshotJob periodically rebuilds, caches and publishes the floor snapshot.
type snapshotJob struct {
	interval        time.Duration
	snapshotService *service.SnapshotService
	distributedLock distlock.DistributedLock
}

func newSnapshotJob(interval time.Duration, svc *service.SnapshotService, lock distlock.DistributedLock) jobs.Job {
	return &snapshotJob{
		interval:        interval,
		snapshotService: svc,
		distributedLock: lock,
	}
}

func (j *snapshotJob) Name() string {
	return "snapshot-refresh"
}

func (j *snapshotJob) Interval() time.Duration {
	return j.interval
}

func (j *snapshotJob) Run(ctx context.Context) error {
	if j.snapshotService == nil {
		return fmt.Errorf("snapshot service not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is refreshing the snapshot, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	logger.DebugCtx(ctx, "running snapshot refresh job")
	j.snapshotService.Refresh(ctx, time.Now())
	return nil
}

// anomalyTickJob runs the time-based anomaly rules.
type anomalyTickJob struct {
	interval        time.Duration
	trackingService *service.TrackingService
}

func newAnomalyTickJob(interval time.Duration, svc *service.TrackingService) jobs.Job {
	return &anomalyTickJob{interval: interval, trackingService: svc}
}

func (j *anomalyTickJob) Name() string {
	return "anomaly-tick"
}

func (j *anomalyTickJob) Interval() time.Duration {
	return j.interval
}

func (j *anomalyTickJob) Run(ctx context.Context) error {
	if j.trackingService == nil {
		return fmt.Errorf("tracking service not configured")
	}
	logger.DebugCtx(ctx, "running anomaly tick job")
	j.trackingService.AnomalyTick(ctx, time.Now())
	return nil
}

// staleSweepJob closes sessions for tracks unseen past the stale timeout.
type staleSweepJob struct {
	interval        time.Duration
	trackingService *service.TrackingService
}

func newStaleSweepJob(interval time.Duration, svc *service.TrackingService) jobs.Job {
	return &staleSweepJob{interval: interval, trackingService: svc}
}

func (j *staleSweepJob) Name() string {
	return "stale-sweep"
}

func (j *staleSweepJob) Interval() time.Duration {
	return j.interval
}

func (j *staleSweepJob) Run(ctx context.Context) error {
	if j.trackingService == nil {
		return fmt.Errorf("tracking service not configured")
	}
	logger.DebugCtx(ctx, "running stale sweep job")
	j.trackingService.SweepStale(ctx, time.Now())
	return nil
}

// boundaryJob force-closes sessions left over from ended index periods
// and finalizes their aggregates. Aligned to the minute so it runs just
// after each period boundary.
type boundaryJob struct {
	interval        time.Duration
	trackingService *service.TrackingService
}

func newBoundaryJob(interval time.Duration, svc *service.TrackingService) jobs.Job {
	return &boundaryJob{interval: interval, trackingService: svc}
}

func (j *boundaryJob) Name() string {
	return "period-boundary"
}

func (j *boundaryJob) Interval() time.Duration {
	return j.interval
}

func (j *boundaryJob) AlignToInterval() bool {
	return true
}

func (j *boundaryJob) Run(ctx context.Context) error {
	if j.trackingService == nil {
		return fmt.Errorf("tracking service not configured")
	}
	logger.DebugCtx(ctx, "running period boundary job")
	j.trackingService.CloseBoundary(ctx, time.Now())
	return nil
}

// timeLogRetentionJob prunes raw time log rows past the retention window.
type timeLogRetentionJob struct {
	interval        time.Duration
	repo            *mysqlstore.Repository
	distributedLock distlock.DistributedLock
}

func newTimeLogRetentionJob(interval time.Duration, repo *mysqlstore.Repository, lock distlock.DistributedLock) jobs.Job {
	return &timeLogRetentionJob{
		interval:        interval,
		repo:            repo,
		distributedLock: lock,
	}
}

func (j *timeLogRetentionJob) Name() string {
	return "timelog-retention"
}

func (j *timeLogRetentionJob) Interval() time.Duration {
	return j.interval
}

func (j *timeLogRetentionJob) Run(ctx context.Context) error {
	if j.repo == nil {
		return fmt.Errorf("repository not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running time log retention, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	cutoff := time.Now().AddDate(0, 0, -timeLogRetentionDays)
	logger.DebugCtx(ctx, "running time log retention job, cutoff: %s", cutoff.Format(time.RFC3339))
	return j.repo.TimeLog.CleanupBefore(ctx, cutoff)
}
