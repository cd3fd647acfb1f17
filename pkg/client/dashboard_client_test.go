package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"floortrack/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDashboardClient_RequiresBaseURL(t *testing.T) {
	_, err := NewDashboardClient(Options{})
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	c, err := NewDashboardClient(Options{BaseURL: "http://floor:8080"})
	require.NoError(t, err)
	assert.Equal(t, "ws://floor:8080/api/v1/stream", c.streamURL())

	c, err = NewDashboardClient(Options{
		BaseURL:    "https://floor.example.com",
		EventTypes: []string{model.EventAlert, model.EventWorkerStatus},
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://floor.example.com/api/v1/stream?types=alert,worker_status", c.streamURL())
}

func TestUnmarshalEvent(t *testing.T) {
	cases := []struct {
		payload model.EventPayload
		check   func(t *testing.T, data model.EventPayload)
	}{
		{
			payload: model.WorkerStatusPayload{SessionID: "sess-1", TrackID: "trk-1", ZoneID: "zone-a", Status: "active"},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.WorkerStatusPayload)
				require.True(t, ok)
				assert.Equal(t, "sess-1", p.SessionID)
				assert.Equal(t, "zone-a", p.ZoneID)
			},
		},
		{
			payload: model.ProductivityUpdatePayload{Date: "2026-08-31", IndexNumber: 3, Indices: map[string]float64{"work_efficiency": 0.8}},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.ProductivityUpdatePayload)
				require.True(t, ok)
				assert.Equal(t, 3, p.IndexNumber)
				assert.Equal(t, 0.8, p.Indices["work_efficiency"])
			},
		},
		{
			payload: model.ZoneTransitionPayload{Occupancy: 4},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.ZoneTransitionPayload)
				require.True(t, ok)
				assert.Equal(t, 4, p.Occupancy)
			},
		},
		{
			payload: model.AlertPayload{AlertID: "alert-1", AnomalyType: "overflow"},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.AlertPayload)
				require.True(t, ok)
				assert.Equal(t, "alert-1", p.AlertID)
			},
		},
		{
			payload: model.SystemStatusPayload{Reason: "queue_overflow", Dropped: 7},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.SystemStatusPayload)
				require.True(t, ok)
				assert.Equal(t, 7, p.Dropped)
			},
		},
		{
			payload: model.MetricsSnapshotPayload{Snapshot: model.Snapshot{TotalWorkers: 9}},
			check: func(t *testing.T, data model.EventPayload) {
				p, ok := data.(*model.MetricsSnapshotPayload)
				require.True(t, ok)
				assert.Equal(t, 9, p.Snapshot.TotalWorkers)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.payload.EventType(), func(t *testing.T) {
			wire, err := model.NewEvent(model.SeverityInfo, tc.payload)
			require.NoError(t, err)
			raw, err := json.Marshal(wire)
			require.NoError(t, err)

			var event model.RealtimeEvent
			require.NoError(t, unmarshalEvent(raw, &event))
			assert.Equal(t, tc.payload.EventType(), event.EventType)
			tc.check(t, event.Data)
		})
	}
}

func TestUnmarshalEvent_UnknownType(t *testing.T) {
	var event model.RealtimeEvent
	err := unmarshalEvent([]byte(`{"event_type":"mystery","data":{}}`), &event)
	assert.Error(t, err)
}

// streamServer is a minimal dashboard backend: snapshot over HTTP plus a
// websocket stream that replays a fixed event script per connection.
type streamServer struct {
	snapshotFetches int64
	script          []model.RealtimeEvent
}

func (s *streamServer) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.snapshotFetches, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Snapshot{TotalWorkers: 5, ActiveWorkers: 4})
	})
	mux.HandleFunc("/api/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, event := range s.script {
			if err := ws.WriteJSON(event); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	return mux
}

func TestDashboardClient_SnapshotBeforeEvents(t *testing.T) {
	server := &streamServer{
		script: []model.RealtimeEvent{
			{EventType: model.EventSystemStatus, Severity: model.SeverityInfo,
				Data: model.SystemStatusPayload{Reason: "hello"}},
		},
	}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	var mu sync.Mutex
	var order []string
	events := make(chan model.RealtimeEvent, 8)

	c, err := NewDashboardClient(Options{
		BaseURL: ts.URL,
		OnSnapshot: func(s *model.Snapshot) {
			mu.Lock()
			order = append(order, "snapshot")
			mu.Unlock()
		},
		OnEvent: func(e model.RealtimeEvent) {
			mu.Lock()
			order = append(order, "event")
			mu.Unlock()
			events <- e
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	select {
	case event := <-events:
		assert.Equal(t, model.EventSystemStatus, event.EventType)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	mu.Lock()
	require.GreaterOrEqual(t, len(order), 2)
	assert.Equal(t, "snapshot", order[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDashboardClient_OverflowNoticeRefetchesSnapshot(t *testing.T) {
	server := &streamServer{
		script: []model.RealtimeEvent{
			{EventType: model.EventSystemStatus, Severity: model.SeverityWarning,
				Data: model.SystemStatusPayload{Reason: "queue_overflow", Dropped: 2}},
		},
	}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	events := make(chan model.RealtimeEvent, 8)
	c, err := NewDashboardClient(Options{
		BaseURL: ts.URL,
		OnEvent: func(e model.RealtimeEvent) { events <- e },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	// Initial connect plus the overflow-triggered refetch.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&server.snapshotFetches) >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDashboardClient_StateTransitions(t *testing.T) {
	server := &streamServer{}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	var mu sync.Mutex
	var states []ConnState
	connected := make(chan struct{}, 1)

	c, err := NewDashboardClient(Options{
		BaseURL: ts.URL,
		OnStateChange: func(s ConnState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
			if s == StateConnected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("never reached connected state")
	}
	cancel()

	assert.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, StateConnecting, states[0])
	assert.Contains(t, states, StateConnected)
}

func TestDashboardClient_BacksOffWhenServerUnavailable(t *testing.T) {
	backingOff := make(chan struct{}, 1)
	c, err := NewDashboardClient(Options{
		BaseURL: "http://127.0.0.1:1",
		OnStateChange: func(s ConnState) {
			if s == StateBackingOff {
				select {
				case backingOff <- struct{}{}:
				default:
				}
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case <-backingOff:
	case <-time.After(5 * time.Second):
		t.Fatal("client never entered backoff")
	}
}
