package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AnomalyRepository handles anomaly persistence in MySQL
type AnomalyRepository struct {
	ds *Datastore
}

// NewAnomalyRepository creates a new anomaly repository
func NewAnomalyRepository(ds *Datastore) *AnomalyRepository {
	return &AnomalyRepository{ds: ds}
}

// Create inserts a new anomaly row
func (r *AnomalyRepository) Create(ctx context.Context, anomaly *Anomaly) error {
	return r.ds.DB(ctx).Create(anomaly).Error
}

// Get retrieves an anomaly by anomaly_id, nil if not found
func (r *AnomalyRepository) Get(ctx context.Context, anomalyID string) (*Anomaly, error) {
	var anomaly Anomaly
	err := r.ds.DB(ctx).Where("anomaly_id = ?", anomalyID).First(&anomaly).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	return &anomaly, nil
}

// RefreshMetadata updates metadata on an existing unresolved anomaly
func (r *AnomalyRepository) RefreshMetadata(ctx context.Context, anomalyID string, metadata JSONMap) error {
	return r.ds.DB(ctx).Model(&Anomaly{}).
		Where("anomaly_id = ? AND resolved = ?", anomalyID, false).
		Updates(map[string]interface{}{
			"metadata":   metadata,
			"updated_at": time.Now(),
		}).Error
}

// Resolve marks an anomaly resolved. resolvedBy is "system" for
// automatic resolution.
func (r *AnomalyRepository) Resolve(ctx context.Context, anomalyID, resolvedBy string) error {
	now := time.Now()
	result := r.ds.DB(ctx).Model(&Anomaly{}).
		Where("anomaly_id = ? AND resolved = ?", anomalyID, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": resolvedBy,
			"resolved_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("anomaly not found or already resolved: anomaly_id=%s", anomalyID)
	}
	return nil
}

// ListUnresolved retrieves all open anomalies
func (r *AnomalyRepository) ListUnresolved(ctx context.Context) ([]*Anomaly, error) {
	var anomalies []*Anomaly
	err := r.ds.DB(ctx).Where("resolved = ?", false).Order("created_at").Find(&anomalies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved anomalies: %w", err)
	}
	return anomalies, nil
}
