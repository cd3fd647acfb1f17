package aggregate

import (
	"sync"
	"time"

	"floortrack/internal/model"
	"floortrack/internal/schedule"
	"floortrack/pkg/config"
	"floortrack/pkg/logger"
	storemodel "floortrack/pkg/store/mysql/model"
)

// Key identifies one index record
type Key struct {
	Date        string // YYYY-MM-DD
	IndexNumber int
}

// The eleven productivity indices. All ratios are values in [0,1];
// formatting to percentage happens at presentation time.
const (
	IndexPresenceTime        = "presence_time"
	IndexWorkTime            = "work_time"
	IndexBreakTime           = "break_time"
	IndexIdleTime            = "idle_time"
	IndexWorkEfficiency      = "work_efficiency"
	IndexBreakRatio          = "break_ratio"
	IndexIdleRatio           = "idle_ratio"
	IndexZoneTransitions     = "zone_transitions"
	IndexOutputPerHour       = "output_per_hour"
	IndexQualityScore        = "quality_score"
	IndexOverallProductivity = "overall_productivity"
)

type sampleKey struct {
	ts      int64
	trackID string
}

type sessionTotals struct {
	zoneID   string
	active   int64
	idle     int64
	breakSec int64
	presence int64
}

type zoneCounters struct {
	activeSeconds   int64
	idleSeconds     int64
	breakSeconds    int64
	presenceSeconds int64
	workers         map[string]struct{}
}

type record struct {
	mu sync.Mutex

	key              Key
	unscheduled      bool
	actualStart      *time.Time
	actualEnd        *time.Time
	completionStatus string

	activeSeconds   int64
	idleSeconds     int64
	breakSeconds    int64
	presenceSeconds int64
	transitions     int

	workers map[string]struct{}
	zones   map[string]*zoneCounters

	// Replay guards: samples dedupe on (timestamp, track); sessions
	// contribute their latest totals, not a sum of updates.
	seenSamples map[sampleKey]struct{}
	sessions    map[string]sessionTotals
}

// Aggregator maintains one running record per (date, index_number).
// Cross-lane mutation goes through a per-record critical section held
// only for the counter update.
type Aggregator struct {
	mu      sync.Mutex
	records map[Key]*record

	resolver *schedule.Resolver
	cfg      config.TrackingConfig
}

// New creates an aggregator
func New(resolver *schedule.Resolver, cfg config.TrackingConfig) *Aggregator {
	return &Aggregator{
		records:  make(map[Key]*record),
		resolver: resolver,
		cfg:      cfg,
	}
}

func (a *Aggregator) recordFor(key Key, unscheduled bool) *record {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[key]
	if !ok {
		r = &record{
			key:         key,
			unscheduled: unscheduled,
			workers:     make(map[string]struct{}),
			zones:       make(map[string]*zoneCounters),
			seenSamples: make(map[sampleKey]struct{}),
			sessions:    make(map[string]sessionTotals),
		}
		a.records[key] = r
	}
	return r
}

func (r *record) zone(zoneID string) *zoneCounters {
	zc, ok := r.zones[zoneID]
	if !ok {
		zc = &zoneCounters{workers: make(map[string]struct{})}
		r.zones[zoneID] = zc
	}
	return zc
}

func (r *record) stampStart(t time.Time) {
	if r.actualStart == nil || t.Before(*r.actualStart) {
		ts := t
		r.actualStart = &ts
	}
}

// IngestTimeLog folds one sample into its period's record. Re-ingesting
// a sample with the same (timestamp, track_id) is a no-op, so replaying
// an identical input set yields an identical record. A finalized record
// is sealed: late samples are dropped until an explicit reopen.
func (a *Aggregator) IngestTimeLog(log *storemodel.TimeLog) {
	key := Key{Date: a.resolver.DateKey(log.Timestamp), IndexNumber: log.IndexNumber}
	r := a.recordFor(key, log.IndexNumber == schedule.UnscheduledIndex)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actualEnd != nil {
		logger.Warnf("sample for finalized period dropped, date: %s, index: %d, track: %s",
			key.Date, key.IndexNumber, log.TrackID)
		return
	}

	sk := sampleKey{ts: log.Timestamp.UnixNano(), trackID: log.TrackID}
	if _, dup := r.seenSamples[sk]; dup {
		return
	}
	r.seenSamples[sk] = struct{}{}
	r.stampStart(log.Timestamp)

	// Break samples carry no active/idle delta; break time flows in
	// through the owning session's counters instead.
	r.activeSeconds += log.ActiveDelta
	r.idleSeconds += log.IdleDelta
	if log.WorkerID != nil {
		r.workers[*log.WorkerID] = struct{}{}
	}

	if log.ZoneID != nil && *log.ZoneID != "" {
		zc := r.zone(*log.ZoneID)
		zc.activeSeconds += log.ActiveDelta
		zc.idleSeconds += log.IdleDelta
		if log.WorkerID != nil {
			zc.workers[*log.WorkerID] = struct{}{}
		}
	}
}

// IngestSession folds a session's current totals into its period's
// record, replacing any previous contribution from the same session so
// in-progress updates and the final close never double-count.
func (a *Aggregator) IngestSession(s *storemodel.Session) {
	key := Key{Date: a.resolver.DateKey(s.EntryTime), IndexNumber: s.IndexNumber}
	r := a.recordFor(key, s.IndexNumber == schedule.UnscheduledIndex)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actualEnd != nil {
		logger.Warnf("session for finalized period dropped, date: %s, index: %d, session: %s",
			key.Date, key.IndexNumber, s.SessionID)
		return
	}

	r.stampStart(s.EntryTime)

	end := s.LastSampleAt
	if s.ExitTime != nil {
		end = *s.ExitTime
	}
	presence := int64(end.Sub(s.EntryTime).Seconds())
	if presence < 0 {
		presence = 0
	}

	next := sessionTotals{
		zoneID:   s.ZoneID,
		active:   s.TotalActiveSeconds,
		idle:     s.TotalIdleSeconds,
		breakSec: s.TotalBreakSeconds,
		presence: presence,
	}

	prev := r.sessions[s.SessionID]
	r.sessions[s.SessionID] = next

	r.breakSeconds += next.breakSec - prev.breakSec
	r.presenceSeconds += next.presence - prev.presence

	zc := r.zone(s.ZoneID)
	zc.breakSeconds += next.breakSec - prev.breakSec
	zc.presenceSeconds += next.presence - prev.presence

	if s.WorkerID != nil {
		r.workers[*s.WorkerID] = struct{}{}
		zc.workers[*s.WorkerID] = struct{}{}
	}
}

// RecordTransition counts one zone transition toward the period
// containing the transition time.
func (a *Aggregator) RecordTransition(at time.Time) {
	period, _ := a.resolver.Resolve(at)
	key := Key{Date: a.resolver.DateKey(at), IndexNumber: period.IndexNumber}
	r := a.recordFor(key, period.IndexNumber == schedule.UnscheduledIndex)

	r.mu.Lock()
	if r.actualEnd == nil {
		r.transitions++
		r.stampStart(at)
	}
	r.mu.Unlock()
}

// Finalize closes the record for (date, index_number), stamping
// actual_end and completion status. Forced marks a manual early close.
func (a *Aggregator) Finalize(date string, indexNumber int, at time.Time, forced bool) *storemodel.IndexRecord {
	key := Key{Date: date, IndexNumber: indexNumber}
	r := a.recordFor(key, indexNumber == schedule.UnscheduledIndex)

	r.mu.Lock()
	ts := at
	r.actualEnd = &ts
	if forced {
		r.completionStatus = storemodel.CompletionStatusForced
	} else {
		r.completionStatus = storemodel.CompletionStatusCompleted
	}
	r.mu.Unlock()

	return a.Materialize(date, indexNumber)
}

// Reopen clears finalization state so the record accepts corrections
// again. Operator action.
func (a *Aggregator) Reopen(date string, indexNumber int) {
	key := Key{Date: date, IndexNumber: indexNumber}
	r := a.recordFor(key, indexNumber == schedule.UnscheduledIndex)

	r.mu.Lock()
	r.actualEnd = nil
	r.completionStatus = ""
	r.mu.Unlock()
}

// Finalized reports whether the record has been closed
func (a *Aggregator) Finalized(date string, indexNumber int) bool {
	a.mu.Lock()
	r, ok := a.records[Key{Date: date, IndexNumber: indexNumber}]
	a.mu.Unlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actualEnd != nil
}

// Materialize builds the persistable index record for (date, index),
// nil when nothing has been ingested for it.
func (a *Aggregator) Materialize(date string, indexNumber int) *storemodel.IndexRecord {
	a.mu.Lock()
	r, ok := a.records[Key{Date: date, IndexNumber: indexNumber}]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return r.materialize(a.cfg)
}

// MaterializeAll builds persistable records for every key touched so far
func (a *Aggregator) MaterializeAll() []*storemodel.IndexRecord {
	a.mu.Lock()
	records := make([]*record, 0, len(a.records))
	for _, r := range a.records {
		records = append(records, r)
	}
	a.mu.Unlock()

	out := make([]*storemodel.IndexRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.materialize(a.cfg))
	}
	return out
}

// Indices computes the eleven productivity indices for (date, index),
// nil when the record does not exist.
func (a *Aggregator) Indices(date string, indexNumber int) map[string]float64 {
	a.mu.Lock()
	r, ok := a.records[Key{Date: date, IndexNumber: indexNumber}]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indices(a.cfg)
}

// AverageProductivity returns the mean overall productivity across all
// records for one date, 0 when none exist.
func (a *Aggregator) AverageProductivity(date string) float64 {
	a.mu.Lock()
	records := make([]*record, 0)
	for key, r := range a.records {
		if key.Date == date {
			records = append(records, r)
		}
	}
	a.mu.Unlock()

	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		r.mu.Lock()
		sum += r.indices(a.cfg)[IndexOverallProductivity]
		r.mu.Unlock()
	}
	return sum / float64(len(records))
}

// TotalOutput returns the estimated output units across one date
func (a *Aggregator) TotalOutput(date string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0.0
	for key, r := range a.records {
		if key.Date != date {
			continue
		}
		r.mu.Lock()
		total += float64(r.activeSeconds) / 60.0 * a.cfg.OutputUnitsPerMin
		r.mu.Unlock()
	}
	return total
}

// ProductivityPayload builds the realtime update payload for one record
func (a *Aggregator) ProductivityPayload(date string, indexNumber int) *model.ProductivityUpdatePayload {
	a.mu.Lock()
	r, ok := a.records[Key{Date: date, IndexNumber: indexNumber}]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ind := r.indices(a.cfg)
	return &model.ProductivityUpdatePayload{
		Date:              date,
		IndexNumber:       indexNumber,
		TotalWorkers:      len(r.workers),
		ProductivityScore: ind[IndexOverallProductivity],
		Indices:           ind,
	}
}

func (r *record) materialize(cfg config.TrackingConfig) *storemodel.IndexRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	ind := r.indices(cfg)

	zoneMetrics := make(storemodel.JSONMap, len(r.zones))
	for zoneID, zc := range r.zones {
		zoneMetrics[zoneID] = map[string]interface{}{
			"active_seconds":   zc.activeSeconds,
			"idle_seconds":     zc.idleSeconds,
			"break_seconds":    zc.breakSeconds,
			"presence_seconds": zc.presenceSeconds,
			"workers":          len(zc.workers),
		}
	}

	indices := make(storemodel.JSONMap, len(ind))
	for name, v := range ind {
		indices[name] = v
	}

	out := &storemodel.IndexRecord{
		Date:               r.key.Date,
		IndexNumber:        r.key.IndexNumber,
		CompletionStatus:   r.completionStatus,
		TotalWorkers:       len(r.workers),
		TotalActiveSeconds: r.activeSeconds,
		TotalIdleSeconds:   r.idleSeconds,
		TotalBreakSeconds:  r.breakSeconds,
		ZoneTransitions:    r.transitions,
		ProductivityScore:  ind[IndexOverallProductivity],
		ZoneMetrics:        zoneMetrics,
		Indices:            indices,
		Unscheduled:        r.unscheduled,
		UpdatedAt:          time.Now(),
	}
	if r.actualStart != nil {
		ts := *r.actualStart
		out.ActualStart = &ts
	}
	if r.actualEnd != nil {
		ts := *r.actualEnd
		out.ActualEnd = &ts
	}
	return out
}

// indices derives the eleven productivity indices from the counters.
// Caller holds r.mu. Every ratio is zero-safe: 0 when its denominator
// is zero.
func (r *record) indices(cfg config.TrackingConfig) map[string]float64 {
	accounted := r.activeSeconds + r.idleSeconds

	workEfficiency := 0.0
	idleRatio := 0.0
	if accounted > 0 {
		workEfficiency = float64(r.activeSeconds) / float64(accounted)
		idleRatio = float64(r.idleSeconds) / float64(accounted)
	}

	breakRatio := 0.0
	if r.presenceSeconds > 0 {
		breakRatio = float64(r.breakSeconds) / float64(r.presenceSeconds)
		if breakRatio > 1 {
			breakRatio = 1
		}
	}

	outputUnits := float64(r.activeSeconds) / 60.0 * cfg.OutputUnitsPerMin
	outputPerHour := 0.0
	if r.presenceSeconds > 0 {
		outputPerHour = outputUnits / (float64(r.presenceSeconds) / 3600.0)
	}

	quality := cfg.QualityWeight
	if quality <= 0 || quality > 1 {
		quality = 1.0
	}

	return map[string]float64{
		IndexPresenceTime:        float64(r.presenceSeconds),
		IndexWorkTime:            float64(r.activeSeconds),
		IndexBreakTime:           float64(r.breakSeconds),
		IndexIdleTime:            float64(r.idleSeconds),
		IndexWorkEfficiency:      workEfficiency,
		IndexBreakRatio:          breakRatio,
		IndexIdleRatio:           idleRatio,
		IndexZoneTransitions:     float64(r.transitions),
		IndexOutputPerHour:       outputPerHour,
		IndexQualityScore:        quality,
		IndexOverallProductivity: workEfficiency * (1 - idleRatio) * quality,
	}
}
