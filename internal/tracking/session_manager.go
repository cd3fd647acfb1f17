package tracking

import (
	"sync"
	"time"

	"floortrack/internal/model"
	"floortrack/internal/schedule"
	"floortrack/pkg/config"
	storemodel "floortrack/pkg/store/mysql/model"

	"github.com/google/uuid"
)

// SessionManager owns the open/close lifecycle of presence sessions.
// One active session exists per track at a time; sessions accumulate
// active/idle/break seconds from samples until closed by zone exit,
// track loss, an index-period boundary or shutdown.
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string]*storemodel.Session // track key -> active session
	identities map[string]string              // track_id -> worker_id

	resolver *schedule.Resolver
	cfg      config.TrackingConfig
}

// NewSessionManager creates a session manager
func NewSessionManager(resolver *schedule.Resolver, cfg config.TrackingConfig) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*storemodel.Session),
		identities: make(map[string]string),
		resolver:   resolver,
		cfg:        cfg,
	}
}

// CurrentSession returns a copy of the track's active session, nil if none
func (sm *SessionManager) CurrentSession(cameraID, trackID string) *storemodel.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[TrackKey(cameraID, trackID)]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// ActiveCount returns the number of open sessions
func (sm *SessionManager) ActiveCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// ActiveSessions returns copies of all open sessions
func (sm *SessionManager) ActiveSessions() []*storemodel.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]*storemodel.Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// HandleTransition reacts to a zone change: the track's session (if any)
// is closed, and a new one opens when the track entered a zone. The
// returned closed/opened sessions may each be nil.
func (sm *SessionManager) HandleTransition(tr model.ZoneTransition) (closed, opened *storemodel.Session) {
	key := TrackKey(tr.CameraID, tr.TrackID)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if current, ok := sm.sessions[key]; ok {
		reason := storemodel.CloseReasonZoneExit
		if tr.ToZone != "" && current.ZoneID != tr.ToZone {
			// Direct zone-to-zone move; the single-zone invariant says
			// the old session must not outlive the change.
			reason = storemodel.CloseReasonForcedZoneChange
		}
		closed = sm.closeLocked(key, current, tr.TransitionTime, reason)
	}

	if tr.ToZone != "" {
		opened = sm.openLocked(key, tr.CameraID, tr.TrackID, tr.ToZone, tr.TransitionTime)
	}
	return closed, opened
}

// HandleSample accumulates one observed sample into the track's active
// session. Returns the derived time log, any session closed by a stale
// gap or index boundary, any replacement session, and the updated
// session state after accumulation.
func (sm *SessionManager) HandleSample(rec model.DetectionRecord) (timeLog *storemodel.TimeLog, closed, opened, updated *storemodel.Session) {
	key := TrackKey(rec.CameraID, rec.TrackID)
	period, _ := sm.resolver.Resolve(rec.Timestamp)
	state := sm.classify(rec, period)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	timeLog = &storemodel.TimeLog{
		Timestamp:   rec.Timestamp,
		TrackID:     rec.TrackID,
		CameraID:    rec.CameraID,
		ZoneID:      rec.ZoneID,
		State:       state,
		MotionScore: rec.MotionScore,
		IndexNumber: period.IndexNumber,
	}
	if workerID, ok := sm.identities[rec.TrackID]; ok {
		timeLog.WorkerID = &workerID
	}

	session, ok := sm.sessions[key]
	if !ok {
		return timeLog, nil, nil, nil
	}

	gap := rec.Timestamp.Sub(session.LastSampleAt)
	if gap < 0 {
		// Ordering is enforced upstream per track; a negative gap here
		// means the sample predates the session and is not accumulated.
		return timeLog, nil, nil, nil
	}

	staleTimeout := time.Duration(sm.cfg.StaleTimeout) * time.Second
	if gap > staleTimeout {
		// The track went unseen past the stale timeout: close at the
		// last evidence of presence instead of counting the gap.
		closed = sm.closeLocked(key, session, session.LastSampleAt, storemodel.CloseReasonTrackLost)
		if rec.ZoneID != nil && *rec.ZoneID != "" {
			opened = sm.openLocked(key, rec.CameraID, rec.TrackID, *rec.ZoneID, rec.Timestamp)
		}
		return timeLog, closed, opened, nil
	}

	if session.IndexNumber != period.IndexNumber {
		// Index-period boundary crossed between samples: force-close at
		// the boundary and continue in a fresh session for the new period.
		boundary := period.Start
		if boundary.Before(session.LastSampleAt) {
			boundary = session.LastSampleAt
		}
		closed = sm.closeLocked(key, session, boundary, storemodel.CloseReasonIndexBoundary)
		session = sm.openLocked(key, rec.CameraID, rec.TrackID, session.ZoneID, boundary)
		opened = sm.copyOf(session)
	}

	delta := int64(gap.Seconds())
	maxGap := int64(sm.cfg.MaxSampleGap)
	if delta > maxGap {
		delta = maxGap
	}

	switch state {
	case storemodel.TimeLogStateBreak:
		session.TotalBreakSeconds += delta
	case storemodel.TimeLogStateActive:
		session.TotalActiveSeconds += delta
		timeLog.ActiveDelta = delta
	default:
		session.TotalIdleSeconds += delta
		timeLog.IdleDelta = delta
	}
	session.LastSampleAt = rec.Timestamp

	return timeLog, closed, opened, sm.copyOf(session)
}

// ResolveIdentity records a late worker identification and backfills any
// open session for the track. Returns the backfilled sessions.
func (sm *SessionManager) ResolveIdentity(trackID, workerID string) []*storemodel.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.identities[trackID] = workerID

	var backfilled []*storemodel.Session
	for _, s := range sm.sessions {
		if s.TrackID == trackID && s.WorkerID == nil {
			id := workerID
			s.WorkerID = &id
			backfilled = append(backfilled, sm.copyOf(s))
		}
	}
	return backfilled
}

// WorkerFor returns the resolved worker for a track, "" when unknown
func (sm *SessionManager) WorkerFor(trackID string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.identities[trackID]
}

// CloseStale closes sessions with no sample since the cutoff, returning
// them for persistence and aggregation.
func (sm *SessionManager) CloseStale(cutoff time.Time) []*storemodel.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var closed []*storemodel.Session
	for key, s := range sm.sessions {
		if s.LastSampleAt.Before(cutoff) {
			closed = append(closed, sm.closeLocked(key, s, s.LastSampleAt, storemodel.CloseReasonTrackLost))
		}
	}
	return closed
}

// CloseBoundary force-closes sessions whose index period has ended as of
// now, opening follow-up sessions in the same zone for the new period.
func (sm *SessionManager) CloseBoundary(now time.Time) (closed, opened []*storemodel.Session) {
	period, scheduled := sm.resolver.Resolve(now)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Leaving scheduled time entirely means the shift is over, not just
	// another period boundary.
	reason := storemodel.CloseReasonIndexBoundary
	if !scheduled {
		reason = storemodel.CloseReasonShiftEnd
	}

	for key, s := range sm.sessions {
		if s.IndexNumber == period.IndexNumber {
			continue
		}
		boundary := period.Start
		if !scheduled || boundary.Before(s.LastSampleAt) {
			boundary = now
		}
		c := sm.closeLocked(key, s, boundary, reason)
		closed = append(closed, c)
		o := sm.openLocked(key, c.CameraID, c.TrackID, c.ZoneID, boundary)
		opened = append(opened, sm.copyOf(o))
	}
	return closed, opened
}

// CloseAll closes every open session with the given reason (shutdown,
// shift end). Returns the closed sessions.
func (sm *SessionManager) CloseAll(reason string) []*storemodel.Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	closed := make([]*storemodel.Session, 0, len(sm.sessions))
	for key, s := range sm.sessions {
		closed = append(closed, sm.closeLocked(key, s, s.LastSampleAt, reason))
	}
	return closed
}

// classify maps a sample to active/idle/break. A sample inside the
// period's break window counts as break regardless of motion.
func (sm *SessionManager) classify(rec model.DetectionRecord, period schedule.Period) string {
	if period.InBreak(rec.Timestamp) {
		return storemodel.TimeLogStateBreak
	}
	if rec.MotionScore >= sm.cfg.MotionThreshold {
		return storemodel.TimeLogStateActive
	}
	return storemodel.TimeLogStateIdle
}

// openLocked creates and registers a session. Caller holds sm.mu.
func (sm *SessionManager) openLocked(key, cameraID, trackID, zoneID string, at time.Time) *storemodel.Session {
	period, _ := sm.resolver.Resolve(at)
	session := &storemodel.Session{
		SessionID:    uuid.NewString(),
		TrackID:      trackID,
		CameraID:     cameraID,
		ZoneID:       zoneID,
		IndexNumber:  period.IndexNumber,
		Status:       storemodel.SessionStatusActive,
		EntryTime:    at,
		LastSampleAt: at,
	}
	if workerID, ok := sm.identities[trackID]; ok {
		id := workerID
		session.WorkerID = &id
	}
	sm.sessions[key] = session
	return session
}

// closeLocked finalizes a session and removes it from the active set.
// Caller holds sm.mu. Returns a copy safe for persistence.
func (sm *SessionManager) closeLocked(key string, s *storemodel.Session, exitTime time.Time, reason string) *storemodel.Session {
	if exitTime.Before(s.EntryTime) {
		exitTime = s.EntryTime
	}
	exit := exitTime
	s.ExitTime = &exit
	s.Status = storemodel.SessionStatusClosed
	s.CloseReason = reason
	delete(sm.sessions, key)
	return sm.copyOf(s)
}

func (sm *SessionManager) copyOf(s *storemodel.Session) *storemodel.Session {
	copied := *s
	if s.WorkerID != nil {
		id := *s.WorkerID
		copied.WorkerID = &id
	}
	if s.ExitTime != nil {
		t := *s.ExitTime
		copied.ExitTime = &t
	}
	return &copied
}
