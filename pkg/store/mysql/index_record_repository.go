package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexRecordRepository handles index record persistence in MySQL
type IndexRecordRepository struct {
	ds *Datastore
}

// NewIndexRecordRepository creates a new index record repository
func NewIndexRecordRepository(ds *Datastore) *IndexRecordRepository {
	return &IndexRecordRepository{ds: ds}
}

// Upsert creates or replaces the record for (date, index_number)
func (r *IndexRecordRepository) Upsert(ctx context.Context, record *IndexRecord) error {
	return r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "index_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"actual_start", "actual_end", "completion_status",
			"total_workers", "total_active_seconds", "total_idle_seconds",
			"total_break_seconds", "zone_transitions", "productivity_score",
			"zone_metrics", "indices", "unscheduled", "updated_at",
		}),
	}).Create(record).Error
}

// Get retrieves the record for (date, index_number), nil if not found
func (r *IndexRecordRepository) Get(ctx context.Context, date string, indexNumber int) (*IndexRecord, error) {
	var record IndexRecord
	err := r.ds.DB(ctx).Where("date = ? AND index_number = ?", date, indexNumber).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get index record: %w", err)
	}
	return &record, nil
}

// ListByDate retrieves all records for one calendar date
func (r *IndexRecordRepository) ListByDate(ctx context.Context, date string) ([]*IndexRecord, error) {
	var records []*IndexRecord
	err := r.ds.DB(ctx).Where("date = ?", date).Order("index_number").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list index records: %w", err)
	}
	return records, nil
}

// Reopen clears actual_end and completion_status so the record accepts
// corrections again. Operator action, never automatic.
func (r *IndexRecordRepository) Reopen(ctx context.Context, date string, indexNumber int) error {
	result := r.ds.DB(ctx).Model(&IndexRecord{}).
		Where("date = ? AND index_number = ?", date, indexNumber).
		Updates(map[string]interface{}{
			"actual_end":        nil,
			"completion_status": "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reopen index record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("index record not found: date=%s index=%d", date, indexNumber)
	}
	return nil
}
