package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"floortrack/internal/aggregate"
	"floortrack/internal/anomaly"
	"floortrack/internal/model"
	"floortrack/internal/realtime"
	"floortrack/internal/schedule"
	"floortrack/internal/tracking"
	"floortrack/pkg/config"
	"floortrack/pkg/logger"
	asynqq "floortrack/pkg/queue/asynq"
	"floortrack/pkg/store/mysql"

	"github.com/hibiken/asynq"
)

// TrackingService orchestrates the ingest pipeline: detections flow
// through per-track lanes into the zone tracker and session manager,
// aggregates and anomalies are updated, rows are persisted, and
// realtime events go out to dashboard subscribers. Persistence failures
// are parked on the retry queue and never block ingest.
type TrackingService struct {
	lanes      *tracking.Lanes
	tracker    *tracking.ZoneTracker
	sessions   *tracking.SessionManager
	aggregator *aggregate.Aggregator
	detector   *anomaly.Detector
	publisher  *realtime.Publisher
	resolver   *schedule.Resolver

	repo   *mysql.Repository
	queue  *asynqq.Manager
	alerts *AlertService

	cfg config.Config

	// Consecutive persistence failures; a critical system_status goes
	// out once the threshold is crossed, then again only after recovery.
	writeFailures int64
}

// NewTrackingService creates the tracking service
func NewTrackingService(
	cfg config.Config,
	resolver *schedule.Resolver,
	tracker *tracking.ZoneTracker,
	sessions *tracking.SessionManager,
	aggregator *aggregate.Aggregator,
	detector *anomaly.Detector,
	publisher *realtime.Publisher,
	repo *mysql.Repository,
	queue *asynqq.Manager,
	alerts *AlertService,
) *TrackingService {
	s := &TrackingService{
		lanes:      tracking.NewLanes(cfg.Tracking.Lanes),
		tracker:    tracker,
		sessions:   sessions,
		aggregator: aggregator,
		detector:   detector,
		publisher:  publisher,
		resolver:   resolver,
		repo:       repo,
		queue:      queue,
		alerts:     alerts,
		cfg:        cfg,
	}
	s.registerRetryHandlers()
	return s
}

// IngestDetections routes a batch of detection records into the
// per-track lanes. Records for the same track are processed in order;
// different tracks proceed in parallel. Returns the number accepted.
func (s *TrackingService) IngestDetections(ctx context.Context, records []model.DetectionRecord) int {
	accepted := 0
	for i := range records {
		rec := records[i]
		key := tracking.TrackKey(rec.CameraID, rec.TrackID)
		if s.lanes.Dispatch(key, func() { s.processDetection(rec) }) {
			accepted++
		}
	}
	return accepted
}

// IngestIdentity applies late worker identifications, backfilling open
// sessions and persisted rows for the track.
func (s *TrackingService) IngestIdentity(ctx context.Context, records []model.IdentityRecord) {
	for _, rec := range records {
		if worker, err := s.repo.Worker.Get(ctx, rec.WorkerID); err != nil {
			logger.ErrorCtx(ctx, "worker lookup failed, worker_id: %s: %v", rec.WorkerID, err)
		} else if worker == nil {
			// Recognition can outrun roster updates; apply anyway.
			logger.Warnf("identity for unrostered worker, worker_id: %s, track_id: %s", rec.WorkerID, rec.TrackID)
		}

		backfilled := s.sessions.ResolveIdentity(rec.TrackID, rec.WorkerID)
		for _, sess := range backfilled {
			if err := s.repo.Session.BackfillWorker(ctx, sess.SessionID, rec.WorkerID); err != nil {
				logger.ErrorCtx(ctx, "identity backfill failed, session_id: %s: %v", sess.SessionID, err)
				s.enqueueRetry(ctx, asynqq.TypePersistSession, sess)
			}
			s.publisher.PublishPayload(model.SeverityInfo, sessionStatusPayload(sess))
		}
		logger.InfoCtx(ctx, "identity resolved, track_id: %s, worker_id: %s, sessions backfilled: %d",
			rec.TrackID, rec.WorkerID, len(backfilled))
	}
}

// LiveTracks returns the ephemeral state of every track currently on
// the floor, with resolved worker identities filled in.
func (s *TrackingService) LiveTracks() []model.TrackedObject {
	tracks := s.tracker.SnapshotTracks()
	for i := range tracks {
		tracks[i].WorkerID = s.sessions.WorkerFor(tracks[i].TrackID)
	}
	return tracks
}

// processDetection handles one record inside its lane
func (s *TrackingService) processDetection(rec model.DetectionRecord) {
	ctx := context.Background()

	zoneID := ""
	if rec.ZoneID != nil {
		zoneID = *rec.ZoneID
	}

	transition, err := s.tracker.Observe(rec.CameraID, rec.TrackID, zoneID, rec.Timestamp)
	if err != nil {
		// Out-of-order sample: log and skip, never applied.
		logger.Warnf("out-of-order sample skipped, camera: %s, track: %s, ts: %s",
			rec.CameraID, rec.TrackID, rec.Timestamp.Format(time.RFC3339))
		return
	}

	s.tracker.NoteAppearance(rec.CameraID, rec.TrackID, rec.ClassName, rec.BBox)

	if transition != nil {
		s.handleTransition(ctx, *transition)
	}

	timeLog, closed, opened, updated := s.sessions.HandleSample(rec)

	s.aggregator.IngestTimeLog(timeLog)
	s.persistTimeLog(ctx, timeLog)

	if closed != nil {
		s.handleClosedSession(ctx, closed)
	}
	if opened != nil {
		s.persistSession(ctx, opened)
		s.publisher.PublishPayload(model.SeverityInfo, sessionStatusPayload(opened))
	}
	if updated != nil {
		s.persistSession(ctx, updated)
		s.evaluateIdle(ctx, updated, rec.Timestamp)
	}
}

// handleTransition reacts to a zone change: session turnover, occupancy
// rules, aggregate transition count, realtime notification.
func (s *TrackingService) handleTransition(ctx context.Context, tr model.ZoneTransition) {
	closed, opened := s.sessions.HandleTransition(tr)
	if closed != nil {
		s.handleClosedSession(ctx, closed)
	}
	if opened != nil {
		s.persistSession(ctx, opened)
		s.publisher.PublishPayload(model.SeverityInfo, sessionStatusPayload(opened))
	}

	s.aggregator.RecordTransition(tr.TransitionTime)

	occupancy := 0
	if tr.ToZone != "" {
		occupancy = s.tracker.Occupancy(tr.ToZone)
	}
	s.publisher.PublishPayload(model.SeverityInfo, model.ZoneTransitionPayload{
		Transition: tr,
		Occupancy:  occupancy,
	})

	period, _ := s.resolver.Resolve(tr.TransitionTime)
	for _, zone := range []string{tr.FromZone, tr.ToZone} {
		if zone == "" {
			continue
		}
		findings := s.detector.EvaluateZone(anomaly.ZoneSnapshot{
			ZoneID:      zone,
			Occupancy:   s.tracker.Occupancy(zone),
			IndexNumber: period.IndexNumber,
			At:          tr.TransitionTime,
		})
		s.applyFindings(ctx, findings)
	}
}

// handleClosedSession persists and aggregates a closed session and
// notifies subscribers.
func (s *TrackingService) handleClosedSession(ctx context.Context, sess *mysql.Session) {
	s.aggregator.IngestSession(sess)
	s.persistSession(ctx, sess)
	s.publisher.PublishPayload(model.SeverityInfo, sessionStatusPayload(sess))

	date := s.resolver.DateKey(sess.EntryTime)
	if payload := s.aggregator.ProductivityPayload(date, sess.IndexNumber); payload != nil {
		s.publisher.PublishPayload(model.SeverityInfo, *payload)
	}
}

// evaluateIdle runs the excessive-idle rule against an updated session
func (s *TrackingService) evaluateIdle(ctx context.Context, sess *mysql.Session, at time.Time) {
	workerID := ""
	if sess.WorkerID != nil {
		workerID = *sess.WorkerID
	}
	findings := s.detector.EvaluateSession(anomaly.SessionView{
		SessionID: sess.SessionID,
		TrackID:   sess.TrackID,
		WorkerID:  workerID,
		ZoneID:    sess.ZoneID,
		IdleRatio: sess.IdleRatio(),
		At:        at,
	})
	s.applyFindings(ctx, findings)
}

// AnomalyTick runs the time-based anomaly rules. Invoked by the
// periodic anomaly job.
func (s *TrackingService) AnomalyTick(ctx context.Context, now time.Time) {
	period, scheduled := s.resolver.Resolve(now)

	sessionsByZone := make(map[string]int)
	for _, sess := range s.sessions.ActiveSessions() {
		if sess.IndexNumber == period.IndexNumber {
			sessionsByZone[sess.ZoneID]++
		}
	}

	findings := s.detector.Tick(now, s.tracker.SnapshotOccupancy(), sessionsByZone, period.IndexNumber, scheduled)
	s.applyFindings(ctx, findings)
}

// SweepStale closes sessions and forgets tracks unseen past the stale
// timeout. Invoked by the periodic sweeper job.
func (s *TrackingService) SweepStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-time.Duration(s.cfg.Tracking.StaleTimeout) * time.Second)

	for _, sess := range s.sessions.CloseStale(cutoff) {
		s.handleClosedSession(ctx, sess)
	}
	for _, key := range s.tracker.StaleTracks(cutoff) {
		cameraID, trackID := tracking.SplitTrackKey(key)
		if zone := s.tracker.Forget(cameraID, trackID); zone != "" {
			period, _ := s.resolver.Resolve(now)
			findings := s.detector.EvaluateZone(anomaly.ZoneSnapshot{
				ZoneID:      zone,
				Occupancy:   s.tracker.Occupancy(zone),
				IndexNumber: period.IndexNumber,
				At:          now,
			})
			s.applyFindings(ctx, findings)
		}
	}
}

// CloseBoundary force-closes sessions left over from an ended index
// period, finalizes the period's aggregate record and persists it.
// Invoked by the boundary job shortly after each period end.
func (s *TrackingService) CloseBoundary(ctx context.Context, now time.Time) {
	closed, opened := s.sessions.CloseBoundary(now)
	for _, sess := range closed {
		s.handleClosedSession(ctx, sess)
	}
	for _, sess := range opened {
		s.persistSession(ctx, sess)
		s.publisher.PublishPayload(model.SeverityInfo, sessionStatusPayload(sess))
	}

	// Finalize every ended period of today that is still open.
	period, scheduled := s.resolver.Resolve(now)
	date := s.resolver.DateKey(now)
	for _, p := range s.resolver.PeriodsFor(now) {
		if !p.End.After(now) && !s.aggregator.Finalized(date, p.IndexNumber) {
			if scheduled && p.IndexNumber == period.IndexNumber {
				continue
			}
			s.FinalizeIndex(ctx, date, p.IndexNumber, p.End, false)
		}
	}
}

// FinalizeIndex seals one (date, index) aggregate and upserts the
// materialized record. forced marks operator-initiated finalization
// before the period's natural end.
func (s *TrackingService) FinalizeIndex(ctx context.Context, date string, indexNumber int, at time.Time, forced bool) *mysql.IndexRecord {
	record := s.aggregator.Finalize(date, indexNumber, at, forced)
	if record == nil {
		return nil
	}
	if err := s.repo.IndexRecord.Upsert(ctx, record); err != nil {
		logger.ErrorCtx(ctx, "index record upsert failed, date: %s, index: %d: %v", date, indexNumber, err)
		s.enqueueRetry(ctx, asynqq.TypePersistIndexRecord, record)
	} else {
		s.writeRecovered(ctx)
	}

	if payload := s.aggregator.ProductivityPayload(date, indexNumber); payload != nil {
		s.publisher.PublishPayload(model.SeverityInfo, *payload)
	}
	logger.InfoCtx(ctx, "index period finalized, date: %s, index: %d, forced: %v", date, indexNumber, forced)
	return record
}

// ReopenIndex reverts a finalized aggregate to accept late data again
func (s *TrackingService) ReopenIndex(ctx context.Context, date string, indexNumber int) error {
	stored, err := s.repo.IndexRecord.Get(ctx, date, indexNumber)
	if err != nil {
		return err
	}
	if stored == nil && s.aggregator.Materialize(date, indexNumber) == nil {
		return fmt.Errorf("index record not found: %s/%d", date, indexNumber)
	}

	s.aggregator.Reopen(date, indexNumber)
	if err := s.repo.IndexRecord.Reopen(ctx, date, indexNumber); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "index period reopened, date: %s, index: %d", date, indexNumber)
	return nil
}

// RecoverState rebuilds today's in-memory aggregates from persisted
// rows after a restart and closes session rows orphaned by a crash.
// Replay is safe: time logs dedupe on (timestamp, track_id) and each
// session contributes its latest totals.
func (s *TrackingService) RecoverState(ctx context.Context, now time.Time) error {
	local := now.In(s.resolver.Location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.resolver.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	// Sessions still marked active in storage did not survive the last
	// process; close them at their last evidence of presence.
	orphans, err := s.repo.Session.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("orphan session scan failed: %w", err)
	}
	for _, sess := range orphans {
		exit := sess.LastSampleAt
		sess.ExitTime = &exit
		sess.Status = mysql.SessionStatusClosed
		sess.CloseReason = mysql.CloseReasonTrackLost
		if err := s.repo.Session.Upsert(ctx, sess); err != nil {
			logger.ErrorCtx(ctx, "orphan session close failed, session_id: %s: %v", sess.SessionID, err)
			continue
		}
		s.aggregator.IngestSession(sess)
	}

	logs, err := s.repo.TimeLog.ListRange(ctx, dayStart, local)
	if err != nil {
		return fmt.Errorf("time log replay failed: %w", err)
	}
	for _, log := range logs {
		s.aggregator.IngestTimeLog(log)
	}

	replayed := 0
	for _, idx := range replayIndices(s.resolver, local) {
		sessions, err := s.repo.Session.ListByIndex(ctx, dayStart, dayEnd, idx)
		if err != nil {
			return fmt.Errorf("session replay failed, index: %d: %w", idx, err)
		}
		for _, sess := range sessions {
			if sess.ExitTime == nil {
				// Already handled as an orphan above.
				continue
			}
			s.aggregator.IngestSession(sess)
			replayed++
		}
	}

	logger.InfoCtx(ctx, "state recovered, orphans closed: %d, time logs replayed: %d, sessions replayed: %d",
		len(orphans), len(logs), replayed)
	return nil
}

// replayIndices lists the index numbers worth replaying for one day:
// every configured period plus the synthetic unscheduled period, which
// holds sessions recorded outside scheduled time.
func replayIndices(resolver *schedule.Resolver, local time.Time) []int {
	indices := []int{schedule.UnscheduledIndex}
	for _, p := range resolver.PeriodsFor(local) {
		indices = append(indices, p.IndexNumber)
	}
	return indices
}

// Shutdown stops the lanes and closes every open session
func (s *TrackingService) Shutdown(ctx context.Context) {
	s.lanes.Stop()
	for _, sess := range s.sessions.CloseAll(mysql.CloseReasonShutdown) {
		s.handleClosedSession(ctx, sess)
	}
}

// applyFindings turns detector findings into rows, alerts and events
func (s *TrackingService) applyFindings(ctx context.Context, findings []anomaly.Finding) {
	for _, f := range findings {
		row := f.Anomaly
		switch {
		case f.New:
			if err := s.repo.Anomaly.Create(ctx, row); err != nil {
				logger.ErrorCtx(ctx, "anomaly create failed, anomaly_id: %s: %v", row.AnomalyID, err)
				s.enqueueRetry(ctx, asynqq.TypePersistAnomaly, row)
			}
			s.alerts.RaiseForAnomaly(ctx, row)
		case f.Refreshed:
			if err := s.repo.Anomaly.RefreshMetadata(ctx, row.AnomalyID, row.Metadata); err != nil {
				logger.ErrorCtx(ctx, "anomaly refresh failed, anomaly_id: %s: %v", row.AnomalyID, err)
			}
		case f.Resolved:
			s.alerts.AutoResolve(ctx, row)
		}
	}
}

// persistTimeLog appends a time log row, parking it on the retry queue
// on failure. The unique (timestamp, track_id) index makes replay
// idempotent.
func (s *TrackingService) persistTimeLog(ctx context.Context, log *mysql.TimeLog) {
	if err := s.repo.TimeLog.Append(ctx, log); err != nil {
		logger.ErrorCtx(ctx, "time log append failed, track_id: %s: %v", log.TrackID, err)
		s.enqueueRetry(ctx, asynqq.TypePersistTimeLog, log)
		return
	}
	s.writeRecovered(ctx)
}

// persistSession upserts a session row, parking it on the retry queue
// on failure. Upsert keyed on session_id makes replay idempotent.
func (s *TrackingService) persistSession(ctx context.Context, sess *mysql.Session) {
	if err := s.repo.Session.Upsert(ctx, sess); err != nil {
		logger.ErrorCtx(ctx, "session upsert failed, session_id: %s: %v", sess.SessionID, err)
		s.enqueueRetry(ctx, asynqq.TypePersistSession, sess)
		return
	}
	s.writeRecovered(ctx)
}

// enqueueRetry parks a failed write and tracks persistence degradation
func (s *TrackingService) enqueueRetry(ctx context.Context, taskType string, row interface{}) {
	if s.queue != nil {
		if err := s.queue.EnqueueWrite(ctx, taskType, row); err != nil {
			logger.ErrorCtx(ctx, "write retry enqueue failed, type: %s: %v", taskType, err)
		}
	}

	failures := atomic.AddInt64(&s.writeFailures, 1)
	if failures == int64(s.cfg.Queue.AlertAfter) {
		s.publisher.PublishPayload(model.SeverityCritical, model.SystemStatusPayload{
			Reason:  "persistence_degraded",
			Message: "database writes are failing; data is queued for retry",
		})
	}
}

// writeRecovered resets the failure counter and announces recovery
func (s *TrackingService) writeRecovered(ctx context.Context) {
	if atomic.LoadInt64(&s.writeFailures) < int64(s.cfg.Queue.AlertAfter) {
		atomic.StoreInt64(&s.writeFailures, 0)
		return
	}
	atomic.StoreInt64(&s.writeFailures, 0)
	s.publisher.PublishPayload(model.SeverityInfo, model.SystemStatusPayload{
		Reason:  "persistence_recovered",
		Message: "database writes succeeding again",
	})
}

// registerRetryHandlers wires the replay handlers for parked writes
func (s *TrackingService) registerRetryHandlers() {
	if s.queue == nil {
		return
	}
	s.queue.RegisterHandler(asynqq.TypePersistTimeLog, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var row mysql.TimeLog
		if err := json.Unmarshal(t.Payload(), &row); err != nil {
			return err
		}
		return s.repo.TimeLog.Append(ctx, &row)
	}))
	s.queue.RegisterHandler(asynqq.TypePersistSession, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var row mysql.Session
		if err := json.Unmarshal(t.Payload(), &row); err != nil {
			return err
		}
		return s.repo.Session.Upsert(ctx, &row)
	}))
	s.queue.RegisterHandler(asynqq.TypePersistIndexRecord, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var row mysql.IndexRecord
		if err := json.Unmarshal(t.Payload(), &row); err != nil {
			return err
		}
		return s.repo.IndexRecord.Upsert(ctx, &row)
	}))
	s.queue.RegisterHandler(asynqq.TypePersistAnomaly, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var row mysql.Anomaly
		if err := json.Unmarshal(t.Payload(), &row); err != nil {
			return err
		}
		return s.repo.Anomaly.Create(ctx, &row)
	}))
	s.queue.RegisterHandler(asynqq.TypePersistAlert, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var row mysql.Alert
		if err := json.Unmarshal(t.Payload(), &row); err != nil {
			return err
		}
		return s.repo.Alert.Create(ctx, &row)
	}))
}

func sessionStatusPayload(sess *mysql.Session) model.WorkerStatusPayload {
	return model.WorkerStatusPayload{
		SessionID:          sess.SessionID,
		TrackID:            sess.TrackID,
		WorkerID:           sess.WorkerID,
		ZoneID:             sess.ZoneID,
		IndexNumber:        sess.IndexNumber,
		Status:             sess.Status,
		CloseReason:        sess.CloseReason,
		TotalActiveSeconds: sess.TotalActiveSeconds,
		TotalIdleSeconds:   sess.TotalIdleSeconds,
		TotalBreakSeconds:  sess.TotalBreakSeconds,
	}
}
