package model

import "time"

// IndexRecord completion status
const (
	CompletionStatusCompleted = "completed"
	CompletionStatusForced    = "forced"
)

// IndexRecord one row per (date, index_number): the aggregate of all
// sessions and time logs whose timestamps fall inside that period's
// scheduled window. Mutable until ActualEnd is set; reopening is an
// explicit operator action.
type IndexRecord struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Date               string     `gorm:"column:date;type:varchar(10);not null;uniqueIndex:idx_index_record_unique,priority:1" json:"date"` // YYYY-MM-DD
	IndexNumber        int        `gorm:"column:index_number;not null;uniqueIndex:idx_index_record_unique,priority:2" json:"index_number"`
	ActualStart        *time.Time `gorm:"column:actual_start;type:datetime(3)" json:"actual_start"`
	ActualEnd          *time.Time `gorm:"column:actual_end;type:datetime(3)" json:"actual_end"`
	CompletionStatus   string     `gorm:"column:completion_status;type:varchar(16)" json:"completion_status"`
	TotalWorkers       int        `gorm:"column:total_workers;not null;default:0" json:"total_workers"`
	TotalActiveSeconds int64      `gorm:"column:total_active_seconds;not null;default:0" json:"total_active_seconds"`
	TotalIdleSeconds   int64      `gorm:"column:total_idle_seconds;not null;default:0" json:"total_idle_seconds"`
	TotalBreakSeconds  int64      `gorm:"column:total_break_seconds;not null;default:0" json:"total_break_seconds"`
	ZoneTransitions    int        `gorm:"column:zone_transitions;not null;default:0" json:"zone_transitions"`
	ProductivityScore  float64    `gorm:"column:productivity_score;not null;default:0" json:"productivity_score"`
	ZoneMetrics        JSONMap    `gorm:"column:zone_metrics;type:json" json:"zone_metrics"`
	Indices            JSONMap    `gorm:"column:indices;type:json" json:"indices"` // the eleven productivity indices
	Unscheduled        bool       `gorm:"column:unscheduled;not null;default:false" json:"unscheduled"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for IndexRecord
func (IndexRecord) TableName() string {
	return "index_records"
}
