package model

import "time"

// Session status
const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

// Session close reasons
const (
	CloseReasonZoneExit         = "zone_exit"
	CloseReasonTrackLost        = "track_lost"
	CloseReasonIndexBoundary    = "index_boundary"
	CloseReasonShiftEnd         = "shift_end"
	CloseReasonForcedZoneChange = "forced_zone_change"
	CloseReasonShutdown         = "shutdown"
)

// Session a worker's continuous presence record within one zone, bounded
// by zone entry and exit. ExitTime is nil iff Status is active; a track
// has at most one active session per zone at a time.
type Session struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID          string    `gorm:"column:session_id;type:varchar(64);not null;uniqueIndex:idx_session_id_unique" json:"session_id"`
	WorkerID           *string   `gorm:"column:worker_id;type:varchar(64);index:idx_session_worker" json:"worker_id"`
	ZoneID             string    `gorm:"column:zone_id;type:varchar(64);not null;index:idx_session_zone" json:"zone_id"`
	CameraID           string    `gorm:"column:camera_id;type:varchar(64);not null" json:"camera_id"`
	TrackID            string    `gorm:"column:track_id;type:varchar(64);not null;index:idx_session_track" json:"track_id"`
	IndexNumber        int       `gorm:"column:index_number;not null;index:idx_session_index" json:"index_number"`
	Status             string    `gorm:"column:status;type:varchar(16);not null;index:idx_session_status" json:"status"`
	CloseReason        string    `gorm:"column:close_reason;type:varchar(32)" json:"close_reason"`
	EntryTime          time.Time `gorm:"column:entry_time;type:datetime(3);not null" json:"entry_time"`
	ExitTime           *time.Time `gorm:"column:exit_time;type:datetime(3)" json:"exit_time"`
	LastSampleAt       time.Time `gorm:"column:last_sample_at;type:datetime(3);not null" json:"last_sample_at"`
	TotalActiveSeconds int64     `gorm:"column:total_active_seconds;not null;default:0" json:"total_active_seconds"`
	TotalIdleSeconds   int64     `gorm:"column:total_idle_seconds;not null;default:0" json:"total_idle_seconds"`
	TotalBreakSeconds  int64     `gorm:"column:total_break_seconds;not null;default:0" json:"total_break_seconds"`
}

// TableName specifies the table name for Session
func (Session) TableName() string {
	return "sessions"
}

// IdleRatio returns idle time as a share of accounted (non-break) time,
// 0 when nothing has been accumulated yet.
func (s *Session) IdleRatio() float64 {
	total := s.TotalActiveSeconds + s.TotalIdleSeconds
	if total == 0 {
		return 0
	}
	return float64(s.TotalIdleSeconds) / float64(total)
}
