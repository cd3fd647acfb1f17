package model

import "time"

// Worker a registered factory-floor worker. Lifecycle is independent of
// sessions; sessions reference workers, never own them.
type Worker struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkerID   string    `gorm:"column:worker_id;type:varchar(64);not null;uniqueIndex:idx_worker_id_unique" json:"worker_id"`
	Name       string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Shift      string    `gorm:"column:shift;type:varchar(32)" json:"shift"`
	SkillLevel string    `gorm:"column:skill_level;type:varchar(32)" json:"skill_level"`
	CreatedAt  time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for Worker
func (Worker) TableName() string {
	return "workers"
}
