package anomaly

import (
	"testing"
	"time"

	"floortrack/pkg/config"
	storemodel "floortrack/pkg/store/mysql/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnomalyConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		EmptyGraceSeconds:  60,
		IdleRatioThreshold: 0.6,
		IdleSustainSeconds: 120,
		TickInterval:       10,
	}
}

func testZones() []*storemodel.Zone {
	return []*storemodel.Zone{
		{ZoneID: "zone-a", CameraID: "cam-1", MaxWorkers: 2, MinWorkers: 1, AlertOnOverflow: true, AlertOnEmpty: true},
		{ZoneID: "zone-b", CameraID: "cam-1", MaxWorkers: 0, MinWorkers: 0},
	}
}

func TestDetector_OverflowTriggersOnce(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	findings := d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 3, IndexNumber: 1, At: at})
	require.Len(t, findings, 1)
	require.True(t, findings[0].New)
	row := findings[0].Anomaly
	assert.Equal(t, storemodel.AnomalyTypeOverflow, row.AnomalyType)
	assert.Equal(t, storemodel.SeverityWarning, row.Severity)
	require.NotNil(t, row.ZoneID)
	assert.Equal(t, "zone-a", *row.ZoneID)
	require.NotNil(t, row.CameraID)
	assert.Equal(t, "cam-1", *row.CameraID)

	// Repeated triggers refresh the same anomaly, never a second row.
	for i := 0; i < 5; i++ {
		findings = d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 3, IndexNumber: 1, At: at.Add(time.Second)})
		require.Len(t, findings, 1)
		assert.True(t, findings[0].Refreshed)
		assert.Equal(t, row.AnomalyID, findings[0].Anomaly.AnomalyID)
		assert.Equal(t, 3, findings[0].Anomaly.Metadata["occupancy"])
	}
	assert.Equal(t, 1, d.OpenCount())
}

func TestDetector_OverflowAutoResolves(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	findings := d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 3, IndexNumber: 1, At: at})
	require.Len(t, findings, 1)
	anomalyID := findings[0].Anomaly.AnomalyID

	findings = d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 2, IndexNumber: 1, At: at.Add(time.Minute)})
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Resolved)
	assert.Equal(t, anomalyID, findings[0].Anomaly.AnomalyID)
	assert.Equal(t, "system", findings[0].Anomaly.ResolvedBy)
	assert.Equal(t, 0, d.OpenCount())
}

func TestDetector_UnboundedZoneNeverOverflows(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	findings := d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-b", Occupancy: 50, IndexNumber: 1, At: at})
	assert.Empty(t, findings)
}

func TestDetector_EmptyZoneRespectsGrace(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	occupancy := map[string]int{}
	sessions := map[string]int{"zone-a": 1}

	// Zone goes empty; nothing fires inside the grace window.
	d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 0, IndexNumber: 1, At: at})
	findings := d.Tick(at.Add(30*time.Second), occupancy, sessions, 1, true)
	assert.Empty(t, findings)

	// Past the grace window the empty anomaly fires.
	findings = d.Tick(at.Add(61*time.Second), occupancy, sessions, 1, true)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].New)
	assert.Equal(t, storemodel.AnomalyTypeEmpty, findings[0].Anomaly.AnomalyType)

	// Reoccupation resolves it.
	findings = d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 1, IndexNumber: 1, At: at.Add(2 * time.Minute)})
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Resolved)
}

func TestDetector_ExcessiveIdleSustain(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	view := SessionView{
		SessionID: "sess-1", TrackID: "trk-1", WorkerID: "worker-1",
		ZoneID: "zone-a", IdleRatio: 0.7, At: at,
	}

	// First observation above the threshold only starts the clock.
	assert.Empty(t, d.EvaluateSession(view))

	// Still inside the sustain window.
	view.At = at.Add(60 * time.Second)
	assert.Empty(t, d.EvaluateSession(view))

	// Sustained past the window: info-level anomaly.
	view.At = at.Add(121 * time.Second)
	findings := d.EvaluateSession(view)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].New)
	assert.Equal(t, storemodel.AnomalyTypeExcessiveIdle, findings[0].Anomaly.AnomalyType)
	assert.Equal(t, storemodel.SeverityInfo, findings[0].Anomaly.Severity)

	// Recovery resolves it.
	view.IdleRatio = 0.2
	view.At = at.Add(180 * time.Second)
	findings = d.EvaluateSession(view)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Resolved)
}

func TestDetector_ExcessiveIdleEscalatesSeverity(t *testing.T) {
	cfg := testAnomalyConfig()
	cfg.IdleRatioThreshold = 0.4
	d := NewDetector(cfg, testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	view := SessionView{
		SessionID: "sess-1", TrackID: "trk-1", WorkerID: "worker-1",
		ZoneID: "zone-a", IdleRatio: 0.85, At: at,
	}
	d.EvaluateSession(view)

	// Twice the threshold after the sustain window: warning.
	view.At = at.Add(121 * time.Second)
	findings := d.EvaluateSession(view)
	require.Len(t, findings, 1)
	assert.Equal(t, storemodel.SeverityWarning, findings[0].Anomaly.Severity)
}

func TestDetector_MissingTransition(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	occupancy := map[string]int{"zone-a": 1}

	// Staffed zone with no sessions in the current scheduled period.
	findings := d.Tick(at, occupancy, map[string]int{}, 1, true)
	require.Len(t, findings, 1)
	assert.Equal(t, storemodel.AnomalyTypeMissingTransition, findings[0].Anomaly.AnomalyType)
	assert.Equal(t, storemodel.SeverityCritical, findings[0].Anomaly.Severity)

	// A session appearing resolves it.
	findings = d.Tick(at.Add(time.Minute), occupancy, map[string]int{"zone-a": 2}, 1, true)
	require.Len(t, findings, 1)
	assert.True(t, findings[0].Resolved)

	// Outside scheduled periods the rule never fires.
	findings = d.Tick(at.Add(2*time.Minute), occupancy, map[string]int{}, 0, false)
	assert.Empty(t, findings)
}

func TestDetector_ForgetManualAllowsRetrigger(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	findings := d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 3, IndexNumber: 1, At: at})
	require.Len(t, findings, 1)
	first := findings[0].Anomaly.AnomalyID

	d.ForgetManual(first)
	assert.Equal(t, 0, d.OpenCount())

	// The same condition now produces a fresh row.
	findings = d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-a", Occupancy: 3, IndexNumber: 1, At: at.Add(time.Second)})
	require.Len(t, findings, 1)
	assert.True(t, findings[0].New)
	assert.NotEqual(t, first, findings[0].Anomaly.AnomalyID)
}

func TestDetector_UnknownZoneIgnored(t *testing.T) {
	d := NewDetector(testAnomalyConfig(), testZones())
	findings := d.EvaluateZone(ZoneSnapshot{ZoneID: "zone-x", Occupancy: 99, At: time.Now()})
	assert.Empty(t, findings)
}
