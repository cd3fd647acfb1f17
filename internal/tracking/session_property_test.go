// Property-based tests for the session lifecycle. These verify
// invariants that must hold for every valid sample sequence: one active
// session per track, and exact time accounting under the sample gap
// clamp.
package tracking

import (
	"testing"
	"time"

	"floortrack/internal/model"
	"floortrack/internal/schedule"
	"floortrack/pkg/config"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func propertyResolver() *schedule.Resolver {
	r, err := schedule.NewResolver(config.ScheduleConfig{
		Timezone: "UTC",
		Periods: []config.PeriodConfig{
			{IndexNumber: 1, Start: "00:00:00", End: "23:59:59"},
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}

func TestProperty_SingleActiveSessionPerTrack(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("at most one active session per track", prop.ForAll(
		func(zoneChoices []int, gaps []int) bool {
			sm := NewSessionManager(propertyResolver(), config.TrackingConfig{
				MotionThreshold: 0.5,
				MaxSampleGap:    15,
				StaleTimeout:    30,
			})
			zones := []string{"", "zone-a", "zone-b", "zone-c"}
			zt := NewZoneTracker()

			at := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
			for i, choice := range zoneChoices {
				gap := 1
				if i < len(gaps) {
					gap = gaps[i]%60 + 1
				}
				at = at.Add(time.Duration(gap) * time.Second)
				zone := zones[choice%len(zones)]

				transition, err := zt.Observe("cam-1", "trk-1", zone, at)
				if err != nil {
					return false
				}
				if transition != nil {
					sm.HandleTransition(*transition)
				}

				rec := model.DetectionRecord{
					CameraID: "cam-1", TrackID: "trk-1", Timestamp: at, MotionScore: 0.7,
				}
				if zone != "" {
					rec.ZoneID = &zone
				}
				sm.HandleSample(rec)

				if sm.ActiveCount() > 1 {
					return false
				}
				current := sm.CurrentSession("cam-1", "trk-1")
				if zone == "" && current != nil && current.ZoneID != zone {
					// Exited every zone: no session may claim one.
					return false
				}
				if zone != "" && (current == nil || current.ZoneID != zone) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 59)),
	))

	properties.TestingRun(t)
}

func TestProperty_DurationConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Each sample adds at most min(gap, max_sample_gap) seconds, to
	// exactly one of the three buckets.
	properties.Property("accounted time never exceeds elapsed time", prop.ForAll(
		func(gaps []int, motions []int) bool {
			maxGap := 15
			sm := NewSessionManager(propertyResolver(), config.TrackingConfig{
				MotionThreshold: 0.5,
				MaxSampleGap:    maxGap,
				StaleTimeout:    1 << 30, // never stale for this property
			})

			start := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
			zone := "zone-a"
			sm.HandleTransition(model.ZoneTransition{
				CameraID: "cam-1", TrackID: "trk-1", ToZone: zone, TransitionTime: start,
			})

			at := start
			expected := int64(0)
			for i, g := range gaps {
				gap := g%120 + 1
				at = at.Add(time.Duration(gap) * time.Second)
				motion := 0.0
				if i < len(motions) && motions[i]%2 == 0 {
					motion = 1.0
				}

				_, _, _, updated := sm.HandleSample(model.DetectionRecord{
					CameraID: "cam-1", TrackID: "trk-1", Timestamp: at,
					ZoneID: &zone, MotionScore: motion,
				})
				if updated == nil {
					return false
				}

				step := int64(gap)
				if step > int64(maxGap) {
					step = int64(maxGap)
				}
				expected += step

				total := updated.TotalActiveSeconds + updated.TotalIdleSeconds + updated.TotalBreakSeconds
				if total != expected {
					return false
				}
				if total > int64(at.Sub(start).Seconds()) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 119)),
		gen.SliceOf(gen.IntRange(0, 9)),
	))

	properties.TestingRun(t)
}
