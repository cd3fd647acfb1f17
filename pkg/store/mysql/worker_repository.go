package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WorkerRepository handles worker persistence in MySQL
type WorkerRepository struct {
	ds *Datastore
}

// NewWorkerRepository creates a new worker repository
func NewWorkerRepository(ds *Datastore) *WorkerRepository {
	return &WorkerRepository{ds: ds}
}

// Get retrieves a worker by worker_id, nil if not found
func (r *WorkerRepository) Get(ctx context.Context, workerID string) (*Worker, error) {
	var worker Worker
	err := r.ds.DB(ctx).Where("worker_id = ?", workerID).First(&worker).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	return &worker, nil
}

// List retrieves all workers
func (r *WorkerRepository) List(ctx context.Context) ([]*Worker, error) {
	var workers []*Worker
	if err := r.ds.DB(ctx).Order("worker_id").Find(&workers).Error; err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}
