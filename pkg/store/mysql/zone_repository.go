package mysql

import (
	"context"
	"fmt"
)

// ZoneRepository handles camera and zone configuration in MySQL
type ZoneRepository struct {
	ds *Datastore
}

// NewZoneRepository creates a new zone repository
func NewZoneRepository(ds *Datastore) *ZoneRepository {
	return &ZoneRepository{ds: ds}
}

// List retrieves all zones
func (r *ZoneRepository) List(ctx context.Context) ([]*Zone, error) {
	var zones []*Zone
	if err := r.ds.DB(ctx).Order("zone_id").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}

// ListCameras retrieves all cameras
func (r *ZoneRepository) ListCameras(ctx context.Context) ([]*Camera, error) {
	var cameras []*Camera
	if err := r.ds.DB(ctx).Order("camera_id").Find(&cameras).Error; err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	return cameras, nil
}
