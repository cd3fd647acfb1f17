package service

import (
	"context"
	"fmt"

	"floortrack/internal/anomaly"
	"floortrack/internal/model"
	"floortrack/internal/realtime"
	"floortrack/pkg/logger"
	"floortrack/pkg/store/mysql"

	"github.com/google/uuid"
)

// AlertService turns anomalies into operator-facing alerts and handles
// acknowledgement and resolution.
type AlertService struct {
	repo      *mysql.Repository
	publisher *realtime.Publisher
	detector  *anomaly.Detector
}

// NewAlertService creates the alert service
func NewAlertService(repo *mysql.Repository, publisher *realtime.Publisher, detector *anomaly.Detector) *AlertService {
	return &AlertService{repo: repo, publisher: publisher, detector: detector}
}

// RaiseForAnomaly creates an alert for a new anomaly of warning or
// critical severity and notifies subscribers. Info anomalies are
// recorded but do not raise alerts.
func (s *AlertService) RaiseForAnomaly(ctx context.Context, row *mysql.Anomaly) {
	if row.Severity == mysql.SeverityInfo {
		return
	}

	alert := &mysql.Alert{
		AlertID:   uuid.NewString(),
		AnomalyID: row.AnomalyID,
		Severity:  row.Severity,
		Title:     alertTitle(row),
		Message:   row.Message,
		Status:    mysql.AlertStatusUnacknowledged,
	}
	if err := s.repo.Alert.Create(ctx, alert); err != nil {
		logger.ErrorCtx(ctx, "alert create failed, anomaly_id: %s: %v", row.AnomalyID, err)
	}

	s.publisher.PublishPayload(row.Severity, alertPayload(alert, row, false))
}

// AutoResolve marks an anomaly and its alert resolved by the system
// once the triggering condition cleared.
func (s *AlertService) AutoResolve(ctx context.Context, row *mysql.Anomaly) {
	if err := s.repo.Anomaly.Resolve(ctx, row.AnomalyID, "system"); err != nil {
		logger.ErrorCtx(ctx, "anomaly auto-resolve failed, anomaly_id: %s: %v", row.AnomalyID, err)
	}
	if err := s.repo.Alert.AutoResolve(ctx, row.AnomalyID); err != nil {
		logger.ErrorCtx(ctx, "alert auto-resolve failed, anomaly_id: %s: %v", row.AnomalyID, err)
	}

	s.publisher.PublishPayload(model.SeverityInfo, alertPayload(nil, row, true))
}

// Acknowledge marks an alert as seen by an operator
func (s *AlertService) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) error {
	if err := s.repo.Alert.Acknowledge(ctx, alertID, acknowledgedBy); err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	logger.InfoCtx(ctx, "alert acknowledged, alert_id: %s, by: %s", alertID, acknowledgedBy)
	return nil
}

// ResolveAnomaly resolves an anomaly on operator request. Detector
// state for the anomaly is dropped so the same condition can re-trigger
// a fresh row.
func (s *AlertService) ResolveAnomaly(ctx context.Context, anomalyID, resolvedBy string) error {
	row, err := s.repo.Anomaly.Get(ctx, anomalyID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("anomaly not found: %s", anomalyID)
	}

	if err := s.repo.Anomaly.Resolve(ctx, anomalyID, resolvedBy); err != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", err)
	}
	if err := s.repo.Alert.AutoResolve(ctx, anomalyID); err != nil {
		logger.ErrorCtx(ctx, "alert resolve failed, anomaly_id: %s: %v", anomalyID, err)
	}
	s.detector.ForgetManual(anomalyID)

	s.publisher.PublishPayload(model.SeverityInfo, alertPayload(nil, row, true))
	logger.InfoCtx(ctx, "anomaly resolved, anomaly_id: %s, by: %s", anomalyID, resolvedBy)
	return nil
}

// ListAlerts returns alerts filtered by status, newest first
func (s *AlertService) ListAlerts(ctx context.Context, status string, limit int) ([]*mysql.Alert, error) {
	return s.repo.Alert.List(ctx, status, limit)
}

// ListUnresolvedAnomalies returns open anomalies, newest first
func (s *AlertService) ListUnresolvedAnomalies(ctx context.Context) ([]*mysql.Anomaly, error) {
	return s.repo.Anomaly.ListUnresolved(ctx)
}

func alertTitle(row *mysql.Anomaly) string {
	switch row.AnomalyType {
	case mysql.AnomalyTypeOverflow:
		return "Zone over capacity"
	case mysql.AnomalyTypeEmpty:
		return "Zone unexpectedly empty"
	case mysql.AnomalyTypeExcessiveIdle:
		return "Excessive idle time"
	case mysql.AnomalyTypeMissingTransition:
		return "Expected presence missing"
	default:
		return row.AnomalyType
	}
}

func alertPayload(alert *mysql.Alert, row *mysql.Anomaly, resolved bool) model.AlertPayload {
	p := model.AlertPayload{
		AnomalyID:   row.AnomalyID,
		AnomalyType: row.AnomalyType,
		Title:       alertTitle(row),
		Message:     row.Message,
		Resolved:    resolved,
		Metadata:    row.Metadata,
	}
	if alert != nil {
		p.AlertID = alert.AlertID
		p.Title = alert.Title
		p.Message = alert.Message
	}
	if row.ZoneID != nil {
		p.ZoneID = *row.ZoneID
	}
	if row.WorkerID != nil {
		p.WorkerID = *row.WorkerID
	}
	return p
}
