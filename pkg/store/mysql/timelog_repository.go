package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// TimeLogRepository handles the append-only time log ledger in MySQL
type TimeLogRepository struct {
	ds *Datastore
}

// NewTimeLogRepository creates a new time log repository
func NewTimeLogRepository(ds *Datastore) *TimeLogRepository {
	return &TimeLogRepository{ds: ds}
}

// Append writes one sample. Duplicate (timestamp, track_id) rows are
// ignored so that replaying the same input is idempotent.
func (r *TimeLogRepository) Append(ctx context.Context, log *TimeLog) error {
	return r.ds.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(log).Error
}

// ListRange retrieves samples in [from, to) ordered by (timestamp, track_id)
func (r *TimeLogRepository) ListRange(ctx context.Context, from, to time.Time) ([]*TimeLog, error) {
	var logs []*TimeLog
	err := r.ds.DB(ctx).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp, track_id").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}
	return logs, nil
}

// CleanupBefore deletes samples older than the cutoff (retention job)
func (r *TimeLogRepository) CleanupBefore(ctx context.Context, cutoff time.Time) error {
	return r.ds.DB(ctx).Where("timestamp < ?", cutoff).Delete(&TimeLog{}).Error
}
