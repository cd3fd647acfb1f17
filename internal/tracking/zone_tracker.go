package tracking

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"floortrack/internal/model"
)

// ErrOutOfOrder is returned for samples older than the last observation
// for the same track. Ordering per track is required; such samples are
// logged and skipped upstream, never applied.
var ErrOutOfOrder = fmt.Errorf("sample older than last observation for track")

type trackState struct {
	currentZone  string // "" = implicit unassigned pseudo-zone
	enteredAt    time.Time
	lastObserved time.Time
	className    string
	bbox         [4]float64
}

// ZoneTracker maintains the currently occupied zone per (camera, track)
// and per-zone occupancy counts. Per-track call ordering is guaranteed
// by the ingest lanes; occupancy counters are shared across lanes and
// guarded by a dedicated mutex held only for the counter update.
type ZoneTracker struct {
	mu     sync.Mutex
	tracks map[string]*trackState

	occMu     sync.Mutex
	occupancy map[string]int
}

// NewZoneTracker creates a zone tracker
func NewZoneTracker() *ZoneTracker {
	return &ZoneTracker{
		tracks:    make(map[string]*trackState),
		occupancy: make(map[string]int),
	}
}

// TrackKey builds the canonical (camera, track) key
func TrackKey(cameraID, trackID string) string {
	return cameraID + "/" + trackID
}

// SplitTrackKey is the inverse of TrackKey
func SplitTrackKey(key string) (cameraID, trackID string) {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// Observe records a zone observation for one track. Returns a non-nil
// transition when the zone changed (including to/from unassigned).
// Repeated observations of the same zone are no-ops. zoneID "" means the
// track is outside every configured zone.
func (zt *ZoneTracker) Observe(cameraID, trackID, zoneID string, timestamp time.Time) (*model.ZoneTransition, error) {
	key := TrackKey(cameraID, trackID)

	zt.mu.Lock()
	state, ok := zt.tracks[key]
	if !ok {
		state = &trackState{enteredAt: timestamp}
		zt.tracks[key] = state
	}

	if timestamp.Before(state.lastObserved) {
		zt.mu.Unlock()
		return nil, ErrOutOfOrder
	}
	state.lastObserved = timestamp

	if state.currentZone == zoneID {
		zt.mu.Unlock()
		return nil, nil
	}

	from := state.currentZone
	prevEntered := state.enteredAt
	state.currentZone = zoneID
	state.enteredAt = timestamp
	zt.mu.Unlock()

	zt.adjustOccupancy(from, zoneID)

	duration := int64(0)
	if from != "" && !prevEntered.IsZero() {
		duration = int64(timestamp.Sub(prevEntered).Seconds())
	}

	return &model.ZoneTransition{
		CameraID:           cameraID,
		TrackID:            trackID,
		FromZone:           from,
		ToZone:             zoneID,
		TransitionTime:     timestamp,
		DurationInPrevZone: duration,
	}, nil
}

// NoteAppearance stores the track's last reported class and bounding
// box for the live-tracks view. No-op for unknown tracks.
func (zt *ZoneTracker) NoteAppearance(cameraID, trackID, className string, bbox [4]float64) {
	zt.mu.Lock()
	defer zt.mu.Unlock()
	if state, ok := zt.tracks[TrackKey(cameraID, trackID)]; ok {
		state.className = className
		state.bbox = bbox
	}
}

// SnapshotTracks returns the ephemeral state of every live track,
// ordered by (camera, track).
func (zt *ZoneTracker) SnapshotTracks() []model.TrackedObject {
	zt.mu.Lock()
	out := make([]model.TrackedObject, 0, len(zt.tracks))
	for key, state := range zt.tracks {
		cameraID, trackID := SplitTrackKey(key)
		out = append(out, model.TrackedObject{
			CameraID:    cameraID,
			TrackID:     trackID,
			ClassName:   state.className,
			BBox:        state.bbox,
			CurrentZone: state.currentZone,
			LastSeen:    state.lastObserved,
		})
	}
	zt.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CameraID != out[j].CameraID {
			return out[i].CameraID < out[j].CameraID
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// Forget drops a track (loss timeout), releasing its zone occupancy.
// Returns the zone the track was last seen in, "" if unassigned.
func (zt *ZoneTracker) Forget(cameraID, trackID string) string {
	key := TrackKey(cameraID, trackID)

	zt.mu.Lock()
	state, ok := zt.tracks[key]
	if !ok {
		zt.mu.Unlock()
		return ""
	}
	zone := state.currentZone
	delete(zt.tracks, key)
	zt.mu.Unlock()

	zt.adjustOccupancy(zone, "")
	return zone
}

// CurrentZone returns the track's current zone, "" when unassigned or unknown
func (zt *ZoneTracker) CurrentZone(cameraID, trackID string) string {
	zt.mu.Lock()
	defer zt.mu.Unlock()
	if state, ok := zt.tracks[TrackKey(cameraID, trackID)]; ok {
		return state.currentZone
	}
	return ""
}

// LastObserved returns the track's last observation time, zero when unknown
func (zt *ZoneTracker) LastObserved(cameraID, trackID string) time.Time {
	zt.mu.Lock()
	defer zt.mu.Unlock()
	if state, ok := zt.tracks[TrackKey(cameraID, trackID)]; ok {
		return state.lastObserved
	}
	return time.Time{}
}

// StaleTracks returns (camera, track) keys with no observation since the cutoff
func (zt *ZoneTracker) StaleTracks(cutoff time.Time) []string {
	zt.mu.Lock()
	defer zt.mu.Unlock()
	var stale []string
	for key, state := range zt.tracks {
		if state.lastObserved.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	return stale
}

// Occupancy returns the current occupant count of one zone
func (zt *ZoneTracker) Occupancy(zoneID string) int {
	zt.occMu.Lock()
	defer zt.occMu.Unlock()
	return zt.occupancy[zoneID]
}

// SnapshotOccupancy returns a copy of all non-zero zone occupancy counts
func (zt *ZoneTracker) SnapshotOccupancy() map[string]int {
	zt.occMu.Lock()
	defer zt.occMu.Unlock()
	snapshot := make(map[string]int, len(zt.occupancy))
	for zone, count := range zt.occupancy {
		if count > 0 {
			snapshot[zone] = count
		}
	}
	return snapshot
}

func (zt *ZoneTracker) adjustOccupancy(from, to string) {
	zt.occMu.Lock()
	defer zt.occMu.Unlock()
	if from != "" {
		if zt.occupancy[from] > 0 {
			zt.occupancy[from]--
		}
	}
	if to != "" {
		zt.occupancy[to]++
	}
}
