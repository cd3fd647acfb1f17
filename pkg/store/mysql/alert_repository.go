package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AlertRepository handles alert persistence in MySQL
type AlertRepository struct {
	ds *Datastore
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(ds *Datastore) *AlertRepository {
	return &AlertRepository{ds: ds}
}

// Create inserts a new alert row
func (r *AlertRepository) Create(ctx context.Context, alert *Alert) error {
	return r.ds.DB(ctx).Create(alert).Error
}

// Acknowledge moves an alert from unacknowledged to acknowledged
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) error {
	now := time.Now()
	result := r.ds.DB(ctx).Model(&Alert{}).
		Where("alert_id = ? AND status = ?", alertID, "unacknowledged").
		Updates(map[string]interface{}{
			"status":          "acknowledged",
			"acknowledged_by": acknowledgedBy,
			"acknowledged_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("alert not found or already acknowledged: alert_id=%s", alertID)
	}
	return nil
}

// AutoResolve marks all alerts for an anomaly as auto_resolved
func (r *AlertRepository) AutoResolve(ctx context.Context, anomalyID string) error {
	return r.ds.DB(ctx).Model(&Alert{}).
		Where("anomaly_id = ? AND status = ?", anomalyID, "unacknowledged").
		Update("status", "auto_resolved").Error
}

// List retrieves alerts, optionally filtered by acknowledgment status
func (r *AlertRepository) List(ctx context.Context, status string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.ds.DB(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var alerts []*Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// CountUnacknowledged returns the number of open alerts
func (r *AlertRepository) CountUnacknowledged(ctx context.Context) (int64, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&Alert{}).Where("status = ?", "unacknowledged").Count(&count).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}
