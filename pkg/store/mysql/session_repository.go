package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// SessionRepository handles session persistence in MySQL
type SessionRepository struct {
	ds *Datastore
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(ds *Datastore) *SessionRepository {
	return &SessionRepository{ds: ds}
}

// Upsert creates or replaces a session keyed by session_id. The live
// engine owns session state in memory; persistence mirrors it.
func (r *SessionRepository) Upsert(ctx context.Context, session *Session) error {
	return r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"worker_id", "status", "close_reason", "exit_time", "last_sample_at",
			"total_active_seconds", "total_idle_seconds", "total_break_seconds",
		}),
	}).Create(session).Error
}

// BackfillWorker sets worker_id on a session after late identity
// resolution. This is the only post-hoc field mutation besides counters.
func (r *SessionRepository) BackfillWorker(ctx context.Context, sessionID, workerID string) error {
	result := r.ds.DB(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("worker_id", workerID)
	if result.Error != nil {
		return fmt.Errorf("failed to backfill session worker: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session not found: session_id=%s", sessionID)
	}
	return nil
}

// ListByIndex retrieves sessions for one (date, index_number)
func (r *SessionRepository) ListByIndex(ctx context.Context, dayStart, dayEnd time.Time, indexNumber int) ([]*Session, error) {
	var sessions []*Session
	err := r.ds.DB(ctx).
		Where("entry_time >= ? AND entry_time < ? AND index_number = ?", dayStart, dayEnd, indexNumber).
		Order("entry_time").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by index: %w", err)
	}
	return sessions, nil
}

// ListActive retrieves all sessions still marked active in storage.
// Used on startup to force-close sessions orphaned by a crash.
func (r *SessionRepository) ListActive(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	err := r.ds.DB(ctx).Where("status = ?", "active").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}
