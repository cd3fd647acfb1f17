package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(SeverityWarning, SystemStatusPayload{Reason: "queue_overflow"})
	require.NoError(t, err)
	assert.Equal(t, EventSystemStatus, event.EventType)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewEvent_TypeFollowsPayload(t *testing.T) {
	cases := []struct {
		payload  EventPayload
		expected string
	}{
		{WorkerStatusPayload{}, EventWorkerStatus},
		{ProductivityUpdatePayload{}, EventProductivityUpdate},
		{ZoneTransitionPayload{}, EventZoneTransition},
		{AlertPayload{}, EventAlert},
		{SystemStatusPayload{}, EventSystemStatus},
		{MetricsSnapshotPayload{}, EventMetricsSnapshot},
	}
	for _, tc := range cases {
		event, err := NewEvent(SeverityInfo, tc.payload)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, event.EventType)
	}
}

func TestNewEvent_Invalid(t *testing.T) {
	_, err := NewEvent("fatal", SystemStatusPayload{})
	assert.Error(t, err)

	_, err = NewEvent(SeverityInfo, nil)
	assert.Error(t, err)
}
