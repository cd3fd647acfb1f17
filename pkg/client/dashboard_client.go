package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"floortrack/internal/model"
	"floortrack/pkg/logger"

	"github.com/gorilla/websocket"
)

// ConnState is the dashboard client connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackingOff
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	default:
		return "unknown"
	}
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Options configures a DashboardClient.
type Options struct {
	BaseURL    string   // e.g. http://floortrack:8080
	EventTypes []string // optional event type filter

	OnSnapshot    func(*model.Snapshot)
	OnEvent       func(model.RealtimeEvent)
	OnStateChange func(ConnState)

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// DashboardClient maintains a resilient subscription to the realtime
// stream. On every (re)connect it first fetches the current snapshot,
// then resumes the event stream, so the consumer's view converges even
// when events were dropped while disconnected.
type DashboardClient struct {
	opts   Options
	dialer *websocket.Dialer
	httpc  *http.Client

	mu    sync.Mutex
	state ConnState
}

// NewDashboardClient creates a dashboard client
func NewDashboardClient(opts Options) (*DashboardClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	c := &DashboardClient{
		opts:   opts,
		dialer: opts.Dialer,
		httpc:  opts.HTTPClient,
		state:  StateDisconnected,
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return c, nil
}

// State returns the current connection state
func (c *DashboardClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the connect/consume/backoff loop until ctx is cancelled.
// Always returns ctx.Err().
func (c *DashboardClient) Run(ctx context.Context) error {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		c.setState(StateConnecting)
		err := c.connectAndConsume(ctx)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		if err != nil {
			logger.Warnf("dashboard stream dropped: %v, reconnecting in %v", err, backoff)
		}

		c.setState(StateBackingOff)
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if err == nil {
			// Clean close; start the next attempt fresh.
			backoff = initialBackoff
		}
	}
}

// connectAndConsume performs one full session: snapshot, dial, consume.
func (c *DashboardClient) connectAndConsume(ctx context.Context) error {
	// Snapshot first so state converges before any streamed delta.
	snapshot, err := c.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fetch failed: %w", err)
	}
	if c.opts.OnSnapshot != nil {
		c.opts.OnSnapshot(snapshot)
	}

	ws, _, err := c.dialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("stream dial failed: %w", err)
	}
	defer ws.Close()

	c.setState(StateConnected)
	logger.Infof("dashboard stream connected: %s", c.streamURL())

	// Close the socket when ctx is cancelled to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var event model.RealtimeEvent
		if err := unmarshalEvent(raw, &event); err != nil {
			logger.Warnf("dashboard stream: bad event skipped: %v", err)
			continue
		}

		// An overflow notice means events were shed server side; pull a
		// fresh snapshot instead of trusting the stream.
		if event.EventType == model.EventSystemStatus {
			if payload, ok := event.Data.(*model.SystemStatusPayload); ok && payload.Reason == "queue_overflow" {
				if snap, err := c.FetchSnapshot(ctx); err == nil && c.opts.OnSnapshot != nil {
					c.opts.OnSnapshot(snap)
				}
			}
		}

		if c.opts.OnEvent != nil {
			c.opts.OnEvent(event)
		}
	}
}

// FetchSnapshot retrieves the current floor snapshot over HTTP
func (c *DashboardClient) FetchSnapshot(ctx context.Context) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/api/v1/snapshot", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request returned %d", resp.StatusCode)
	}

	var snapshot model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *DashboardClient) streamURL() string {
	url := c.opts.BaseURL
	switch {
	case len(url) > 8 && url[:8] == "https://":
		url = "wss://" + url[8:]
	case len(url) > 7 && url[:7] == "http://":
		url = "ws://" + url[7:]
	}
	url += "/api/v1/stream"
	if len(c.opts.EventTypes) > 0 {
		url += "?types="
		for i, t := range c.opts.EventTypes {
			if i > 0 {
				url += ","
			}
			url += t
		}
	}
	return url
}

func (c *DashboardClient) setState(next ConnState) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(next)
	}
}

// unmarshalEvent decodes a wire event, materializing the payload
// variant matching its event type.
func unmarshalEvent(raw []byte, event *model.RealtimeEvent) error {
	var envelope struct {
		EventType string          `json:"event_type"`
		Timestamp time.Time       `json:"timestamp"`
		Severity  string          `json:"severity"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}

	event.EventType = envelope.EventType
	event.Timestamp = envelope.Timestamp
	event.Severity = envelope.Severity

	var payload model.EventPayload
	switch envelope.EventType {
	case model.EventWorkerStatus:
		payload = &model.WorkerStatusPayload{}
	case model.EventProductivityUpdate:
		payload = &model.ProductivityUpdatePayload{}
	case model.EventZoneTransition:
		payload = &model.ZoneTransitionPayload{}
	case model.EventAlert:
		payload = &model.AlertPayload{}
	case model.EventSystemStatus:
		payload = &model.SystemStatusPayload{}
	case model.EventMetricsSnapshot:
		payload = &model.MetricsSnapshotPayload{}
	default:
		return fmt.Errorf("unknown event type: %q", envelope.EventType)
	}

	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, payload); err != nil {
			return err
		}
	}
	event.Data = payload
	return nil
}
