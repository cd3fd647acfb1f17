package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneTracker_FirstObservationEntersZone(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	tr, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "", tr.FromZone)
	assert.Equal(t, "zone-a", tr.ToZone)
	assert.Equal(t, 1, zt.Occupancy("zone-a"))
}

func TestZoneTracker_SameZoneIsNoOp(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)

	tr, err := zt.Observe("cam-1", "trk-1", "zone-a", at.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, 1, zt.Occupancy("zone-a"))
}

func TestZoneTracker_ZoneChange(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)

	tr, err := zt.Observe("cam-1", "trk-1", "zone-b", at.Add(90*time.Second))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "zone-a", tr.FromZone)
	assert.Equal(t, "zone-b", tr.ToZone)
	assert.Equal(t, int64(90), tr.DurationInPrevZone)
	assert.Equal(t, 0, zt.Occupancy("zone-a"))
	assert.Equal(t, 1, zt.Occupancy("zone-b"))
}

func TestZoneTracker_OutOfOrderRejected(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)

	_, err = zt.Observe("cam-1", "trk-1", "zone-b", at.Add(-time.Second))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// State unchanged by the rejected sample.
	assert.Equal(t, "zone-a", zt.CurrentZone("cam-1", "trk-1"))
	assert.Equal(t, 1, zt.Occupancy("zone-a"))
}

func TestZoneTracker_UnassignedExit(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)

	tr, err := zt.Observe("cam-1", "trk-1", "", at.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "zone-a", tr.FromZone)
	assert.Equal(t, "", tr.ToZone)
	assert.Equal(t, 0, zt.Occupancy("zone-a"))
}

func TestZoneTracker_SameTrackIDDifferentCameras(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)
	_, err = zt.Observe("cam-2", "trk-1", "zone-b", at)
	require.NoError(t, err)

	assert.Equal(t, "zone-a", zt.CurrentZone("cam-1", "trk-1"))
	assert.Equal(t, "zone-b", zt.CurrentZone("cam-2", "trk-1"))
	assert.Equal(t, 1, zt.Occupancy("zone-a"))
	assert.Equal(t, 1, zt.Occupancy("zone-b"))
}

func TestZoneTracker_Forget(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-1", "zone-a", at)
	require.NoError(t, err)

	zone := zt.Forget("cam-1", "trk-1")
	assert.Equal(t, "zone-a", zone)
	assert.Equal(t, 0, zt.Occupancy("zone-a"))
	assert.Equal(t, "", zt.CurrentZone("cam-1", "trk-1"))

	assert.Equal(t, "", zt.Forget("cam-1", "trk-1"))
}

func TestZoneTracker_StaleTracks(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, err := zt.Observe("cam-1", "trk-old", "zone-a", at)
	require.NoError(t, err)
	_, err = zt.Observe("cam-1", "trk-new", "zone-a", at.Add(time.Minute))
	require.NoError(t, err)

	stale := zt.StaleTracks(at.Add(30 * time.Second))
	require.Len(t, stale, 1)
	assert.Equal(t, TrackKey("cam-1", "trk-old"), stale[0])
}

func TestZoneTracker_SnapshotOccupancy(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, _ = zt.Observe("cam-1", "trk-1", "zone-a", at)
	_, _ = zt.Observe("cam-1", "trk-2", "zone-a", at)
	_, _ = zt.Observe("cam-1", "trk-3", "zone-b", at)
	zt.Forget("cam-1", "trk-3")

	snap := zt.SnapshotOccupancy()
	assert.Equal(t, map[string]int{"zone-a": 2}, snap)
}

func TestZoneTracker_SnapshotTracks(t *testing.T) {
	zt := NewZoneTracker()
	at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)

	_, _ = zt.Observe("cam-1", "trk-1", "zone-a", at)
	zt.NoteAppearance("cam-1", "trk-1", "person", [4]float64{1, 2, 3, 4})
	_, _ = zt.Observe("cam-1", "trk-2", "zone-b", at.Add(time.Second))

	tracks := zt.SnapshotTracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, "trk-1", tracks[0].TrackID)
	assert.Equal(t, "person", tracks[0].ClassName)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, tracks[0].BBox)
	assert.Equal(t, "zone-a", tracks[0].CurrentZone)
	assert.Equal(t, at, tracks[0].LastSeen)
	assert.Equal(t, "trk-2", tracks[1].TrackID)

	// Appearance for a forgotten track is dropped silently.
	zt.Forget("cam-1", "trk-2")
	zt.NoteAppearance("cam-1", "trk-2", "person", [4]float64{5, 6, 7, 8})
	assert.Len(t, zt.SnapshotTracks(), 1)
}

func TestSplitTrackKey(t *testing.T) {
	camera, track := SplitTrackKey(TrackKey("cam-1", "trk-1"))
	assert.Equal(t, "cam-1", camera)
	assert.Equal(t, "trk-1", track)
}
