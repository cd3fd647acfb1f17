package service

import (
	"testing"
	"time"

	"floortrack/internal/schedule"
	"floortrack/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayIndicesIncludeUnscheduledPeriod(t *testing.T) {
	r, err := schedule.NewResolver(config.ScheduleConfig{
		Timezone: "UTC",
		Periods: []config.PeriodConfig{
			{IndexNumber: 1, Start: "08:00:00", End: "09:00:00"},
			{IndexNumber: 2, Start: "09:00:00", End: "10:00:00"},
		},
	})
	require.NoError(t, err)

	// Sessions recorded outside scheduled time land on the synthetic
	// period; a restart must replay those too.
	indices := replayIndices(r, time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, []int{schedule.UnscheduledIndex, 1, 2}, indices)
}
