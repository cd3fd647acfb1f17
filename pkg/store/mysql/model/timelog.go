package model

import "time"

// TimeLog state constants
const (
	TimeLogStateActive = "active"
	TimeLogStateIdle   = "idle"
	TimeLogStateBreak  = "break"
)

// TimeLog one observed state sample. Append-only: rows are never updated
// once written; sessions and index records are derived from this ledger.
// Ordering key is (timestamp, track_id); the unique index makes replay
// of the same input set idempotent.
type TimeLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"column:timestamp;type:datetime(3);not null;uniqueIndex:idx_timelog_ts_track,priority:1;index:idx_timelog_ts" json:"timestamp"`
	TrackID     string    `gorm:"column:track_id;type:varchar(64);not null;uniqueIndex:idx_timelog_ts_track,priority:2" json:"track_id"`
	WorkerID    *string   `gorm:"column:worker_id;type:varchar(64);index:idx_timelog_worker" json:"worker_id"`
	ZoneID      *string   `gorm:"column:zone_id;type:varchar(64);index:idx_timelog_zone" json:"zone_id"`
	CameraID    string    `gorm:"column:camera_id;type:varchar(64);not null" json:"camera_id"`
	State       string    `gorm:"column:state;type:varchar(16);not null" json:"state"`
	ActiveDelta int64     `gorm:"column:active_delta;not null;default:0" json:"active_delta"` // seconds
	IdleDelta   int64     `gorm:"column:idle_delta;not null;default:0" json:"idle_delta"`     // seconds
	MotionScore float64   `gorm:"column:motion_score;not null;default:0" json:"motion_score"`
	IndexNumber int       `gorm:"column:index_number;not null;default:0;index:idx_timelog_index" json:"index_number"`
}

// TableName specifies the table name for TimeLog
func (TimeLog) TableName() string {
	return "time_logs"
}
