package service

import (
	"context"
	"sort"
	"time"

	"floortrack/internal/aggregate"
	"floortrack/internal/model"
	"floortrack/internal/realtime"
	"floortrack/internal/schedule"
	"floortrack/internal/tracking"
	"floortrack/pkg/logger"
	"floortrack/pkg/store/mysql"
	"floortrack/pkg/store/redis"
)

// SnapshotService builds the point-in-time floor summary served to
// (re)connecting dashboard clients and published on a fixed interval.
// The latest snapshot is cached in Redis so an HTTP snapshot request
// does not touch the engine's hot path.
type SnapshotService struct {
	tracker    *tracking.ZoneTracker
	sessions   *tracking.SessionManager
	aggregator *aggregate.Aggregator
	resolver   *schedule.Resolver
	publisher  *realtime.Publisher

	repo  *mysql.Repository
	cache *redis.SnapshotRepository
}

// NewSnapshotService creates the snapshot service
func NewSnapshotService(
	tracker *tracking.ZoneTracker,
	sessions *tracking.SessionManager,
	aggregator *aggregate.Aggregator,
	resolver *schedule.Resolver,
	publisher *realtime.Publisher,
	repo *mysql.Repository,
	cache *redis.SnapshotRepository,
) *SnapshotService {
	return &SnapshotService{
		tracker:    tracker,
		sessions:   sessions,
		aggregator: aggregator,
		resolver:   resolver,
		publisher:  publisher,
		repo:       repo,
		cache:      cache,
	}
}

// Build assembles a fresh snapshot from live engine state
func (s *SnapshotService) Build(ctx context.Context, now time.Time) *model.Snapshot {
	date := s.resolver.DateKey(now)

	occupancy := s.tracker.SnapshotOccupancy()
	activeWorkers := 0
	for _, count := range occupancy {
		activeWorkers += count
	}

	alertsCount := 0
	if count, err := s.repo.Alert.CountUnacknowledged(ctx); err != nil {
		logger.ErrorCtx(ctx, "alert count failed: %v", err)
	} else {
		alertsCount = int(count)
	}

	// Roster size comes from the worker table; fall back to the live
	// session count when the read fails.
	totalWorkers := s.sessions.ActiveCount()
	if workers, err := s.repo.Worker.List(ctx); err != nil {
		logger.ErrorCtx(ctx, "worker roster read failed: %v", err)
	} else {
		totalWorkers = len(workers)
	}

	return &model.Snapshot{
		TotalWorkers:    totalWorkers,
		ActiveWorkers:   activeWorkers,
		AvgProductivity: s.aggregator.AverageProductivity(date),
		TotalOutput:     s.aggregator.TotalOutput(date),
		AlertsCount:     alertsCount,
		ZoneOccupancy:   occupancy,
		LastUpdate:      now,
	}
}

// Refresh rebuilds the snapshot, caches it and publishes it as a
// metrics_snapshot event. Invoked by the periodic snapshot job.
func (s *SnapshotService) Refresh(ctx context.Context, now time.Time) *model.Snapshot {
	snapshot := s.Build(ctx, now)

	if err := s.cache.Save(ctx, snapshot); err != nil {
		logger.ErrorCtx(ctx, "snapshot cache save failed: %v", err)
	}

	s.publisher.PublishPayload(model.SeverityInfo, model.MetricsSnapshotPayload{Snapshot: *snapshot})
	return snapshot
}

// Get returns the cached snapshot, rebuilding on a cache miss
func (s *SnapshotService) Get(ctx context.Context) (*model.Snapshot, error) {
	snapshot, err := s.cache.Get(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "snapshot cache read failed: %v", err)
	}
	if snapshot != nil {
		return snapshot, nil
	}
	return s.Refresh(ctx, time.Now().In(s.resolver.Location())), nil
}

// IndexRecords returns the day's index records, preferring live
// aggregates for periods not yet finalized.
func (s *SnapshotService) IndexRecords(ctx context.Context, date string) ([]*mysql.IndexRecord, error) {
	stored, err := s.repo.IndexRecord.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]*mysql.IndexRecord, len(stored))
	for _, rec := range stored {
		byIndex[rec.IndexNumber] = rec
	}
	for _, rec := range s.aggregator.MaterializeAll() {
		if rec.Date != date {
			continue
		}
		if existing, ok := byIndex[rec.IndexNumber]; !ok || existing.ActualEnd == nil {
			byIndex[rec.IndexNumber] = rec
		}
	}

	out := make([]*mysql.IndexRecord, 0, len(byIndex))
	for _, rec := range byIndex {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexNumber < out[j].IndexNumber })
	return out, nil
}
