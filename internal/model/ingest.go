package model

import "time"

// DetectionRecord one raw sample from the detection/tracking collaborator.
// Timestamps are monotonic per track; older samples are rejected.
type DetectionRecord struct {
	CameraID    string     `json:"camera_id" binding:"required"`
	Timestamp   time.Time  `json:"timestamp" binding:"required"`
	TrackID     string     `json:"track_id" binding:"required"`
	ClassName   string     `json:"class_name"`
	Confidence  float64    `json:"confidence"`
	BBox        [4]float64 `json:"bbox"`
	ZoneID      *string    `json:"zone_id"` // nil means outside every configured zone
	MotionScore float64    `json:"motion_score"`
}

// IdentityRecord a worker identification from the face-recognition
// collaborator. May arrive after the track's session already opened.
type IdentityRecord struct {
	TrackID    string    `json:"track_id" binding:"required"`
	WorkerID   string    `json:"worker_id" binding:"required"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ZoneTransition emitted when a track's current zone changes, including
// transitions to and from the implicit unassigned pseudo-zone ("").
type ZoneTransition struct {
	CameraID           string    `json:"camera_id"`
	TrackID            string    `json:"track_id"`
	FromZone           string    `json:"from_zone"` // "" = unassigned
	ToZone             string    `json:"to_zone"`   // "" = unassigned
	TransitionTime     time.Time `json:"transition_time"`
	DurationInPrevZone int64     `json:"duration_in_prev_zone"` // seconds
}

// TrackedObject ephemeral per-camera tracking state. Not persisted;
// superseded on re-identification gaps.
type TrackedObject struct {
	CameraID    string     `json:"camera_id"`
	TrackID     string     `json:"track_id"`
	ClassName   string     `json:"class_name"`
	BBox        [4]float64 `json:"bbox"`
	CurrentZone string     `json:"current_zone"`
	WorkerID    string     `json:"worker_id,omitempty"`
	LastSeen    time.Time  `json:"last_seen"`
}
