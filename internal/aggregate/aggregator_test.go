package aggregate

import (
	"testing"
	"time"

	"floortrack/internal/schedule"
	"floortrack/pkg/config"
	storemodel "floortrack/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAggregator(t *testing.T) *Aggregator {
	t.Helper()
	r, err := schedule.NewResolver(config.ScheduleConfig{
		Timezone: "UTC",
		Periods: []config.PeriodConfig{
			{IndexNumber: 1, Start: "08:00:00", End: "09:00:00"},
			{IndexNumber: 2, Start: "09:00:00", End: "10:00:00"},
		},
	})
	require.NoError(t, err)
	return New(r, config.TrackingConfig{QualityWeight: 1.0, OutputUnitsPerMin: 2.0})
}

func strptr(s string) *string { return &s }

func timeLog(at time.Time, trackID string, active, idle int64) *storemodel.TimeLog {
	return &storemodel.TimeLog{
		Timestamp:   at,
		TrackID:     trackID,
		CameraID:    "cam-1",
		ZoneID:      strptr("zone-a"),
		WorkerID:    strptr("worker-" + trackID),
		ActiveDelta: active,
		IdleDelta:   idle,
		IndexNumber: 1,
	}
}

func TestAggregator_IngestTimeLog(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)

	a.IngestTimeLog(timeLog(at, "trk-1", 10, 0))
	a.IngestTimeLog(timeLog(at.Add(10*time.Second), "trk-1", 0, 10))

	rec := a.Materialize("2026-08-31", 1)
	require.NotNil(t, rec)
	assert.Equal(t, int64(10), rec.TotalActiveSeconds)
	assert.Equal(t, int64(10), rec.TotalIdleSeconds)
	assert.Equal(t, 1, rec.TotalWorkers)
	require.NotNil(t, rec.ActualStart)
	assert.Equal(t, at, *rec.ActualStart)
}

func TestAggregator_ReplayIsIdempotent(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)

	logs := []*storemodel.TimeLog{
		timeLog(at, "trk-1", 10, 0),
		timeLog(at.Add(10*time.Second), "trk-1", 10, 0),
		timeLog(at.Add(20*time.Second), "trk-1", 0, 10),
	}
	for _, l := range logs {
		a.IngestTimeLog(l)
	}
	first := a.Materialize("2026-08-31", 1)

	// Replaying the identical input set changes nothing.
	for _, l := range logs {
		a.IngestTimeLog(l)
	}
	second := a.Materialize("2026-08-31", 1)

	assert.Equal(t, first.TotalActiveSeconds, second.TotalActiveSeconds)
	assert.Equal(t, first.TotalIdleSeconds, second.TotalIdleSeconds)
	assert.Equal(t, first.TotalWorkers, second.TotalWorkers)
}

func TestAggregator_SessionUpdatesNeverDoubleCount(t *testing.T) {
	a := testAggregator(t)
	entry := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	session := &storemodel.Session{
		SessionID:   "sess-1",
		TrackID:     "trk-1",
		WorkerID:    strptr("worker-1"),
		ZoneID:      "zone-a",
		IndexNumber: 1,
		EntryTime:   entry,
	}

	// In-progress update.
	session.LastSampleAt = entry.Add(5 * time.Minute)
	session.TotalBreakSeconds = 60
	a.IngestSession(session)

	// Final close with larger totals.
	exit := entry.Add(10 * time.Minute)
	session.ExitTime = &exit
	session.TotalBreakSeconds = 120
	a.IngestSession(session)

	rec := a.Materialize("2026-08-31", 1)
	require.NotNil(t, rec)
	// Latest totals, not the sum of both updates.
	assert.Equal(t, int64(120), rec.TotalBreakSeconds)
	assert.Equal(t, float64(600), rec.Indices["presence_time"])
	assert.Equal(t, 1, rec.TotalWorkers)
}

func TestAggregator_ElevenIndices(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)

	a.IngestTimeLog(timeLog(at, "trk-1", 300, 100))
	exit := at.Add(500 * time.Second)
	a.IngestSession(&storemodel.Session{
		SessionID: "sess-1", TrackID: "trk-1", WorkerID: strptr("worker-1"),
		ZoneID: "zone-a", IndexNumber: 1, EntryTime: at, ExitTime: &exit,
		TotalActiveSeconds: 300, TotalIdleSeconds: 100, TotalBreakSeconds: 50,
	})
	a.RecordTransition(at)

	ind := a.Indices("2026-08-31", 1)
	require.NotNil(t, ind)

	names := []string{
		IndexPresenceTime, IndexWorkTime, IndexBreakTime, IndexIdleTime,
		IndexWorkEfficiency, IndexBreakRatio, IndexIdleRatio, IndexZoneTransitions,
		IndexOutputPerHour, IndexQualityScore, IndexOverallProductivity,
	}
	for _, name := range names {
		_, ok := ind[name]
		assert.True(t, ok, "missing index %s", name)
	}

	assert.InDelta(t, 0.75, ind[IndexWorkEfficiency], 1e-9)
	assert.InDelta(t, 0.25, ind[IndexIdleRatio], 1e-9)
	assert.InDelta(t, 0.75*0.75*1.0, ind[IndexOverallProductivity], 1e-9)
	assert.InDelta(t, 0.1, ind[IndexBreakRatio], 1e-9)
	assert.Equal(t, float64(1), ind[IndexZoneTransitions])
}

func TestAggregator_ZeroSafeIndices(t *testing.T) {
	a := testAggregator(t)

	// A record touched only by a transition has all-zero denominators.
	a.RecordTransition(time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC))

	ind := a.Indices("2026-08-31", 1)
	require.NotNil(t, ind)
	assert.Equal(t, 0.0, ind[IndexWorkEfficiency])
	assert.Equal(t, 0.0, ind[IndexIdleRatio])
	assert.Equal(t, 0.0, ind[IndexBreakRatio])
	assert.Equal(t, 0.0, ind[IndexOutputPerHour])
	assert.Equal(t, 0.0, ind[IndexOverallProductivity])
}

func TestAggregator_FinalizeAndReopen(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)
	a.IngestTimeLog(timeLog(at, "trk-1", 10, 0))

	end := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rec := a.Finalize("2026-08-31", 1, end, false)
	require.NotNil(t, rec)
	assert.Equal(t, storemodel.CompletionStatusCompleted, rec.CompletionStatus)
	require.NotNil(t, rec.ActualEnd)
	assert.Equal(t, end, *rec.ActualEnd)
	assert.True(t, a.Finalized("2026-08-31", 1))

	forced := a.Finalize("2026-08-31", 1, end, true)
	assert.Equal(t, storemodel.CompletionStatusForced, forced.CompletionStatus)

	a.Reopen("2026-08-31", 1)
	assert.False(t, a.Finalized("2026-08-31", 1))
	assert.Nil(t, a.Materialize("2026-08-31", 1).ActualEnd)
}

func TestAggregator_FinalizedRecordIsSealed(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)
	a.IngestTimeLog(timeLog(at, "trk-1", 10, 0))

	end := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	require.NotNil(t, a.Finalize("2026-08-31", 1, end, false))

	// Late data bounces off the sealed record.
	a.IngestTimeLog(timeLog(at.Add(20*time.Second), "trk-1", 30, 0))
	exit := at.Add(time.Minute)
	a.IngestSession(&storemodel.Session{
		SessionID: "sess-1", TrackID: "trk-1", ZoneID: "zone-a",
		IndexNumber: 1, EntryTime: at, ExitTime: &exit,
		TotalActiveSeconds: 500, TotalBreakSeconds: 60,
	})
	a.RecordTransition(at.Add(30 * time.Second))

	rec := a.Materialize("2026-08-31", 1)
	assert.Equal(t, int64(10), rec.TotalActiveSeconds)
	assert.Equal(t, int64(0), rec.TotalBreakSeconds)
	assert.Equal(t, 0, rec.ZoneTransitions)

	// Reopen lifts the seal.
	a.Reopen("2026-08-31", 1)
	a.IngestTimeLog(timeLog(at.Add(20*time.Second), "trk-1", 30, 0))
	assert.Equal(t, int64(40), a.Materialize("2026-08-31", 1).TotalActiveSeconds)
}

func TestAggregator_UnscheduledFlag(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	log := timeLog(at, "trk-1", 10, 0)
	log.IndexNumber = schedule.UnscheduledIndex
	a.IngestTimeLog(log)

	rec := a.Materialize("2026-08-31", schedule.UnscheduledIndex)
	require.NotNil(t, rec)
	assert.True(t, rec.Unscheduled)
}

func TestAggregator_DailyRollups(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)

	a.IngestTimeLog(timeLog(at, "trk-1", 120, 0))
	log2 := timeLog(at.Add(time.Hour), "trk-2", 60, 60)
	log2.IndexNumber = 2
	a.IngestTimeLog(log2)

	// 180 active seconds at 2 units/min.
	assert.InDelta(t, 6.0, a.TotalOutput("2026-08-31"), 1e-9)
	// Period 1 is fully active (1.0), period 2 half active (0.5*0.5).
	assert.InDelta(t, (1.0+0.25)/2, a.AverageProductivity("2026-08-31"), 1e-9)
	assert.Equal(t, 0.0, a.AverageProductivity("2026-09-01"))

	all := a.MaterializeAll()
	assert.Len(t, all, 2)
}

func TestAggregator_ProductivityPayload(t *testing.T) {
	a := testAggregator(t)
	at := time.Date(2026, 8, 31, 8, 10, 0, 0, time.UTC)
	a.IngestTimeLog(timeLog(at, "trk-1", 10, 0))

	payload := a.ProductivityPayload("2026-08-31", 1)
	require.NotNil(t, payload)
	assert.Equal(t, "2026-08-31", payload.Date)
	assert.Equal(t, 1, payload.IndexNumber)
	assert.Equal(t, 1, payload.TotalWorkers)
	assert.Len(t, payload.Indices, 11)

	assert.Nil(t, a.ProductivityPayload("2026-08-31", 2))
}
