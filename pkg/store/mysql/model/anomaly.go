package model

import "time"

// Anomaly types
const (
	AnomalyTypeOverflow          = "overflow"
	AnomalyTypeEmpty             = "empty"
	AnomalyTypeExcessiveIdle     = "excessive_idle"
	AnomalyTypeMissingTransition = "missing_transition"
)

// Severity levels shared by anomalies, alerts and realtime events
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Anomaly a derived, append-only fact about an operational condition.
// At most one unresolved row exists per (anomaly_type, subject) key;
// re-triggering refreshes Metadata instead of inserting.
type Anomaly struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AnomalyID   string     `gorm:"column:anomaly_id;type:varchar(64);not null;uniqueIndex:idx_anomaly_id_unique" json:"anomaly_id"`
	AnomalyType string     `gorm:"column:anomaly_type;type:varchar(32);not null;index:idx_anomaly_type" json:"anomaly_type"`
	ZoneID      *string    `gorm:"column:zone_id;type:varchar(64);index:idx_anomaly_zone" json:"zone_id"`
	WorkerID    *string    `gorm:"column:worker_id;type:varchar(64)" json:"worker_id"`
	CameraID    *string    `gorm:"column:camera_id;type:varchar(64)" json:"camera_id"`
	IndexNumber int        `gorm:"column:index_number;not null;default:0" json:"index_number"`
	Severity    string     `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Message     string     `gorm:"column:message;type:text" json:"message"`
	Metadata    JSONMap    `gorm:"column:metadata;type:json" json:"metadata"`
	Resolved    bool       `gorm:"column:resolved;not null;default:false;index:idx_anomaly_resolved" json:"resolved"`
	ResolvedBy  string     `gorm:"column:resolved_by;type:varchar(64)" json:"resolved_by"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at;type:datetime(3)" json:"resolved_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for Anomaly
func (Anomaly) TableName() string {
	return "anomalies"
}

// Alert status
const (
	AlertStatusUnacknowledged = "unacknowledged"
	AlertStatusAcknowledged   = "acknowledged"
	AlertStatusAutoResolved   = "auto_resolved"
)

// Alert an operator-facing notification derived from an anomaly, with an
// acknowledgment lifecycle.
type Alert struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AlertID        string     `gorm:"column:alert_id;type:varchar(64);not null;uniqueIndex:idx_alert_id_unique" json:"alert_id"`
	AnomalyID      string     `gorm:"column:anomaly_id;type:varchar(64);index:idx_alert_anomaly" json:"anomaly_id"`
	Severity       string     `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Title          string     `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Message        string     `gorm:"column:message;type:text" json:"message"`
	Status         string     `gorm:"column:status;type:varchar(16);not null;index:idx_alert_status" json:"status"`
	AcknowledgedBy string     `gorm:"column:acknowledged_by;type:varchar(64)" json:"acknowledged_by"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at;type:datetime(3)" json:"acknowledged_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}
