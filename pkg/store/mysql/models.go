package mysql

import "floortrack/pkg/store/mysql/model"

// Re-export types from model package so callers can stay on one import.

type (
	// Database models
	Worker      = model.Worker
	Camera      = model.Camera
	Zone        = model.Zone
	TimeLog     = model.TimeLog
	Session     = model.Session
	IndexRecord = model.IndexRecord
	Anomaly     = model.Anomaly
	Alert       = model.Alert

	// Custom JSON types
	JSONMap        = model.JSONMap
	JSONFloatArray = model.JSONFloatArray
)

const (
	SessionStatusActive = model.SessionStatusActive
	SessionStatusClosed = model.SessionStatusClosed

	CloseReasonZoneExit         = model.CloseReasonZoneExit
	CloseReasonTrackLost        = model.CloseReasonTrackLost
	CloseReasonIndexBoundary    = model.CloseReasonIndexBoundary
	CloseReasonShiftEnd         = model.CloseReasonShiftEnd
	CloseReasonForcedZoneChange = model.CloseReasonForcedZoneChange
	CloseReasonShutdown         = model.CloseReasonShutdown

	AnomalyTypeOverflow          = model.AnomalyTypeOverflow
	AnomalyTypeEmpty             = model.AnomalyTypeEmpty
	AnomalyTypeExcessiveIdle     = model.AnomalyTypeExcessiveIdle
	AnomalyTypeMissingTransition = model.AnomalyTypeMissingTransition

	AlertStatusUnacknowledged = model.AlertStatusUnacknowledged
	AlertStatusAcknowledged   = model.AlertStatusAcknowledged
	AlertStatusAutoResolved   = model.AlertStatusAutoResolved

	SeverityInfo     = model.SeverityInfo
	SeverityWarning  = model.SeverityWarning
	SeverityCritical = model.SeverityCritical
)
