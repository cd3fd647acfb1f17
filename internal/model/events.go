package model

import (
	"fmt"
	"time"
)

// Realtime event types
const (
	EventWorkerStatus       = "worker_status"
	EventProductivityUpdate = "productivity_update"
	EventZoneTransition     = "zone_transition"
	EventAlert              = "alert"
	EventSystemStatus       = "system_status"
	EventMetricsSnapshot    = "metrics_snapshot"
)

// Event severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// EventPayload is the closed set of realtime event payloads. Each event
// type carries exactly one payload variant; the publisher rejects
// mismatches at the publish boundary.
type EventPayload interface {
	EventType() string
}

// RealtimeEvent the publication unit delivered to dashboard subscribers.
// Transient: every event type is derivable by re-reading persisted
// entities, so replay is always possible from storage.
type RealtimeEvent struct {
	EventType string       `json:"event_type"`
	Timestamp time.Time    `json:"timestamp"`
	Severity  string       `json:"severity"`
	Data      EventPayload `json:"data"`
}

// NewEvent builds an event from a payload, validating the type pairing.
func NewEvent(severity string, payload EventPayload) (RealtimeEvent, error) {
	if payload == nil {
		return RealtimeEvent{}, fmt.Errorf("event payload is nil")
	}
	switch severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return RealtimeEvent{}, fmt.Errorf("unknown event severity: %q", severity)
	}
	return RealtimeEvent{
		EventType: payload.EventType(),
		Timestamp: time.Now(),
		Severity:  severity,
		Data:      payload,
	}, nil
}

// WorkerStatusPayload session open/close/update for one worker or track
type WorkerStatusPayload struct {
	SessionID          string  `json:"session_id"`
	TrackID            string  `json:"track_id"`
	WorkerID           *string `json:"worker_id"`
	ZoneID             string  `json:"zone_id"`
	IndexNumber        int     `json:"index_number"`
	Status             string  `json:"status"`
	CloseReason        string  `json:"close_reason,omitempty"`
	TotalActiveSeconds int64   `json:"total_active_seconds"`
	TotalIdleSeconds   int64   `json:"total_idle_seconds"`
	TotalBreakSeconds  int64   `json:"total_break_seconds"`
}

func (WorkerStatusPayload) EventType() string { return EventWorkerStatus }

// ProductivityUpdatePayload updated aggregates for one index period
type ProductivityUpdatePayload struct {
	Date              string             `json:"date"`
	IndexNumber       int                `json:"index_number"`
	TotalWorkers      int                `json:"total_workers"`
	ProductivityScore float64            `json:"productivity_score"`
	Indices           map[string]float64 `json:"indices"`
}

func (ProductivityUpdatePayload) EventType() string { return EventProductivityUpdate }

// ZoneTransitionPayload a track moved between zones
type ZoneTransitionPayload struct {
	Transition ZoneTransition `json:"transition"`
	Occupancy  int            `json:"occupancy"` // to-zone occupancy after the move
}

func (ZoneTransitionPayload) EventType() string { return EventZoneTransition }

// AlertPayload a newly raised or resolved alert
type AlertPayload struct {
	AlertID     string                 `json:"alert_id"`
	AnomalyID   string                 `json:"anomaly_id"`
	AnomalyType string                 `json:"anomaly_type"`
	ZoneID      string                 `json:"zone_id,omitempty"`
	WorkerID    string                 `json:"worker_id,omitempty"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Resolved    bool                   `json:"resolved"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (AlertPayload) EventType() string { return EventAlert }

// SystemStatusPayload operational notices (queue drops, persistence
// degradation). Reason "queue_overflow" tells a subscriber its buffer
// dropped events and it should re-request a snapshot.
type SystemStatusPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Dropped int    `json:"dropped,omitempty"`
}

func (SystemStatusPayload) EventType() string { return EventSystemStatus }

// MetricsSnapshotPayload full point-in-time floor summary, emitted on a
// fixed interval so late joiners converge without waiting for a change
type MetricsSnapshotPayload struct {
	Snapshot Snapshot `json:"snapshot"`
}

func (MetricsSnapshotPayload) EventType() string { return EventMetricsSnapshot }

// Snapshot the point-in-time summary served to (re)connecting clients
type Snapshot struct {
	TotalWorkers    int            `json:"total_workers"`
	ActiveWorkers   int            `json:"active_workers"`
	AvgProductivity float64        `json:"avg_productivity"`
	TotalOutput     float64        `json:"total_output"`
	AlertsCount     int            `json:"alerts_count"`
	ZoneOccupancy   map[string]int `json:"zone_occupancy,omitempty"`
	LastUpdate      time.Time      `json:"last_update"`
}
