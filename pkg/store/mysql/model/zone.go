package model

import "time"

// Camera static camera configuration
type Camera struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CameraID  string    `gorm:"column:camera_id;type:varchar(64);not null;uniqueIndex:idx_camera_id_unique" json:"camera_id"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Location  string    `gorm:"column:location;type:varchar(255)" json:"location"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
}

// TableName specifies the table name for Camera
func (Camera) TableName() string {
	return "cameras"
}

// Zone a configured polygonal region within one camera's view, with
// occupancy bounds and alerting flags. Polygon and bounds are immutable
// while an open session references the zone; edits apply to future
// sessions only.
type Zone struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ZoneID          string         `gorm:"column:zone_id;type:varchar(64);not null;uniqueIndex:idx_zone_id_unique" json:"zone_id"`
	CameraID        string         `gorm:"column:camera_id;type:varchar(64);not null;index:idx_zone_camera" json:"camera_id"`
	Name            string         `gorm:"column:name;type:varchar(255)" json:"name"`
	Polygon         JSONFloatArray `gorm:"column:polygon;type:json" json:"polygon"` // flattened x,y pairs
	MinWorkers      int            `gorm:"column:min_workers;not null;default:0" json:"min_workers"`
	MaxWorkers      int            `gorm:"column:max_workers;not null;default:0" json:"max_workers"` // 0 means unbounded
	AlertOnEmpty    bool           `gorm:"column:alert_on_empty;not null;default:false" json:"alert_on_empty"`
	AlertOnOverflow bool           `gorm:"column:alert_on_overflow;not null;default:false" json:"alert_on_overflow"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for Zone
func (Zone) TableName() string {
	return "zones"
}
