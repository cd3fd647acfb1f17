package anomaly

import (
	"fmt"
	"sync"
	"time"

	"floortrack/pkg/config"
	storemodel "floortrack/pkg/store/mysql/model"

	"github.com/google/uuid"
)

// Subject keys an anomaly for deduplication: at most one unresolved
// anomaly exists per subject at a time.
type Subject struct {
	Type     string
	ZoneID   string
	WorkerID string
}

// Finding is one evaluation outcome. Exactly one of New, Refreshed,
// Resolved is set.
type Finding struct {
	Anomaly   *storemodel.Anomaly
	New       bool
	Refreshed bool
	Resolved  bool
}

// ZoneSnapshot the occupancy view evaluated on each membership update
type ZoneSnapshot struct {
	ZoneID      string
	Occupancy   int
	IndexNumber int
	At          time.Time
}

// SessionView the session metrics view for idle evaluation
type SessionView struct {
	SessionID string
	TrackID   string
	WorkerID  string
	ZoneID    string
	IdleRatio float64
	At        time.Time
}

type openAnomaly struct {
	anomalyID string
	severity  string
}

// Detector evaluates occupancy and session metrics against configured
// thresholds. Rules are independently triggerable and resolvable;
// re-triggering an open anomaly refreshes metadata instead of
// duplicating the row.
type Detector struct {
	mu sync.Mutex

	zones      map[string]*storemodel.Zone
	open       map[Subject]*openAnomaly
	emptySince map[string]time.Time // zone -> first observation of sustained emptiness
	idleSince  map[string]time.Time // session -> first observation above the idle threshold

	cfg config.AnomalyConfig
}

// NewDetector creates a detector over the configured zones
func NewDetector(cfg config.AnomalyConfig, zones []*storemodel.Zone) *Detector {
	zoneMap := make(map[string]*storemodel.Zone, len(zones))
	for _, z := range zones {
		zoneMap[z.ZoneID] = z
	}
	return &Detector{
		zones:      zoneMap,
		open:       make(map[Subject]*openAnomaly),
		emptySince: make(map[string]time.Time),
		idleSince:  make(map[string]time.Time),
		cfg:        cfg,
	}
}

// EvaluateZone runs the occupancy rules for one zone. Called on every
// zone membership update.
func (d *Detector) EvaluateZone(snap ZoneSnapshot) []Finding {
	d.mu.Lock()
	defer d.mu.Unlock()

	zone, ok := d.zones[snap.ZoneID]
	if !ok {
		return nil
	}

	var findings []Finding

	// Overflow: occupancy above max_workers with alerting enabled.
	// Auto-resolves once occupancy drops back to the bound.
	overflowSubject := Subject{Type: storemodel.AnomalyTypeOverflow, ZoneID: snap.ZoneID}
	if zone.AlertOnOverflow && zone.MaxWorkers > 0 && snap.Occupancy > zone.MaxWorkers {
		findings = append(findings, d.trigger(overflowSubject, storemodel.SeverityWarning,
			fmt.Sprintf("zone %s occupancy %d exceeds max %d", snap.ZoneID, snap.Occupancy, zone.MaxWorkers),
			snap, storemodel.JSONMap{
				"occupancy":   snap.Occupancy,
				"max_workers": zone.MaxWorkers,
			}))
	} else if f, ok := d.resolve(overflowSubject); ok {
		findings = append(findings, f)
	}

	// Empty-zone bookkeeping: record when the zone went empty; the
	// actual anomaly fires from Tick once the grace period elapsed.
	if zone.AlertOnEmpty {
		if snap.Occupancy == 0 {
			if _, tracked := d.emptySince[snap.ZoneID]; !tracked {
				d.emptySince[snap.ZoneID] = snap.At
			}
		} else {
			delete(d.emptySince, snap.ZoneID)
			emptySubject := Subject{Type: storemodel.AnomalyTypeEmpty, ZoneID: snap.ZoneID}
			if f, ok := d.resolve(emptySubject); ok {
				findings = append(findings, f)
			}
		}
	}

	return findings
}

// EvaluateSession runs the excessive-idle rule for one session
func (d *Detector) EvaluateSession(view SessionView) []Finding {
	d.mu.Lock()
	defer d.mu.Unlock()

	subject := Subject{Type: storemodel.AnomalyTypeExcessiveIdle, ZoneID: view.ZoneID, WorkerID: view.WorkerID}

	if view.IdleRatio < d.cfg.IdleRatioThreshold {
		delete(d.idleSince, view.SessionID)
		if f, ok := d.resolve(subject); ok {
			return []Finding{f}
		}
		return nil
	}

	since, tracked := d.idleSince[view.SessionID]
	if !tracked {
		d.idleSince[view.SessionID] = view.At
		return nil
	}
	if view.At.Sub(since) < time.Duration(d.cfg.IdleSustainSeconds)*time.Second {
		return nil
	}

	// Severity escalates with magnitude: warning at twice the threshold.
	severity := storemodel.SeverityInfo
	if view.IdleRatio >= 2*d.cfg.IdleRatioThreshold || view.IdleRatio >= 0.9 {
		severity = storemodel.SeverityWarning
	}

	return []Finding{d.trigger(subject, severity,
		fmt.Sprintf("session %s idle ratio %.2f above threshold %.2f", view.SessionID, view.IdleRatio, d.cfg.IdleRatioThreshold),
		ZoneSnapshot{ZoneID: view.ZoneID, At: view.At}, storemodel.JSONMap{
			"session_id": view.SessionID,
			"track_id":   view.TrackID,
			"idle_ratio": view.IdleRatio,
		})}
}

// Tick runs the time-based rules: sustained emptiness past the grace
// period and missing transitions. sessionsByZone counts sessions seen
// in the current index period per zone; scheduled is false outside any
// configured period (missing-transition does not fire then).
func (d *Detector) Tick(now time.Time, occupancy map[string]int, sessionsByZone map[string]int, indexNumber int, scheduled bool) []Finding {
	d.mu.Lock()
	defer d.mu.Unlock()

	var findings []Finding
	grace := time.Duration(d.cfg.EmptyGraceSeconds) * time.Second

	for zoneID, zone := range d.zones {
		if zone.AlertOnEmpty {
			if occupancy[zoneID] == 0 {
				since, tracked := d.emptySince[zoneID]
				if !tracked {
					d.emptySince[zoneID] = now
				} else if now.Sub(since) >= grace {
					findings = append(findings, d.trigger(
						Subject{Type: storemodel.AnomalyTypeEmpty, ZoneID: zoneID},
						storemodel.SeverityWarning,
						fmt.Sprintf("zone %s empty for over %ds", zoneID, d.cfg.EmptyGraceSeconds),
						ZoneSnapshot{ZoneID: zoneID, IndexNumber: indexNumber, At: now},
						storemodel.JSONMap{"empty_since": since.Format(time.RFC3339)}))
				}
			} else {
				delete(d.emptySince, zoneID)
				if f, ok := d.resolve(Subject{Type: storemodel.AnomalyTypeEmpty, ZoneID: zoneID}); ok {
					findings = append(findings, f)
				}
			}
		}

		// Missing transition: a staffed zone with no session at all in
		// the current scheduled period.
		subject := Subject{Type: storemodel.AnomalyTypeMissingTransition, ZoneID: zoneID}
		if scheduled && zone.MinWorkers > 0 && sessionsByZone[zoneID] == 0 {
			findings = append(findings, d.trigger(subject, storemodel.SeverityCritical,
				fmt.Sprintf("zone %s has no sessions in index period %d (min_workers=%d)", zoneID, indexNumber, zone.MinWorkers),
				ZoneSnapshot{ZoneID: zoneID, IndexNumber: indexNumber, At: now},
				storemodel.JSONMap{"min_workers": zone.MinWorkers, "index_number": indexNumber}))
		} else if f, ok := d.resolve(subject); ok {
			findings = append(findings, f)
		}
	}

	return findings
}

// ForgetManual drops detector state for an anomaly resolved by an
// operator so the same condition can re-trigger a fresh row.
func (d *Detector) ForgetManual(anomalyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for subject, open := range d.open {
		if open.anomalyID == anomalyID {
			delete(d.open, subject)
			return
		}
	}
}

// OpenCount returns the number of open anomalies tracked in memory
func (d *Detector) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// trigger creates or refreshes the open anomaly for a subject.
// Caller holds d.mu.
func (d *Detector) trigger(subject Subject, severity, message string, snap ZoneSnapshot, metadata storemodel.JSONMap) Finding {
	if existing, ok := d.open[subject]; ok {
		row := d.buildRow(existing.anomalyID, subject, existing.severity, message, snap, metadata)
		return Finding{Anomaly: row, Refreshed: true}
	}

	anomalyID := uuid.NewString()
	d.open[subject] = &openAnomaly{anomalyID: anomalyID, severity: severity}
	row := d.buildRow(anomalyID, subject, severity, message, snap, metadata)
	return Finding{Anomaly: row, New: true}
}

// resolve closes the open anomaly for a subject when present.
// Caller holds d.mu.
func (d *Detector) resolve(subject Subject) (Finding, bool) {
	existing, ok := d.open[subject]
	if !ok {
		return Finding{}, false
	}
	delete(d.open, subject)
	row := d.buildRow(existing.anomalyID, subject, existing.severity, "", ZoneSnapshot{}, nil)
	row.Resolved = true
	row.ResolvedBy = "system"
	return Finding{Anomaly: row, Resolved: true}, true
}

func (d *Detector) buildRow(anomalyID string, subject Subject, severity, message string, snap ZoneSnapshot, metadata storemodel.JSONMap) *storemodel.Anomaly {
	row := &storemodel.Anomaly{
		AnomalyID:   anomalyID,
		AnomalyType: subject.Type,
		Severity:    severity,
		Message:     message,
		Metadata:    metadata,
		IndexNumber: snap.IndexNumber,
		CreatedAt:   snap.At,
		UpdatedAt:   snap.At,
	}
	if subject.ZoneID != "" {
		zoneID := subject.ZoneID
		row.ZoneID = &zoneID
		if zone, ok := d.zones[zoneID]; ok {
			cameraID := zone.CameraID
			row.CameraID = &cameraID
		}
	}
	if subject.WorkerID != "" {
		workerID := subject.WorkerID
		row.WorkerID = &workerID
	}
	return row
}
