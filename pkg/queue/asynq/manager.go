package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"floortrack/pkg/config"
	"floortrack/pkg/logger"

	"github.com/hibiken/asynq"
)

// Persistence retry task types. A failed database write is parked here
// and replayed with backoff instead of blocking the ingest path.
const (
	TypePersistTimeLog     = "persist:timelog"
	TypePersistSession     = "persist:session"
	TypePersistIndexRecord = "persist:index_record"
	TypePersistAnomaly     = "persist:anomaly"
	TypePersistAlert       = "persist:alert"
)

// Manager wraps the asynq client and server used as the write-retry
// queue for persistence failures.
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewManager creates the queue manager
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"default": 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff, capped at one minute.
				d := time.Duration(1<<uint(n)) * time.Second
				if d > time.Minute {
					d = time.Minute
				}
				return d
			},
		},
	)

	mux := asynq.NewServeMux()

	return &Manager{
		client: client,
		server: server,
		mux:    mux,
	}, nil
}

// EnqueueWrite parks a failed write for retry. The payload is the
// marshaled row; taskType selects the replay handler.
func (m *Manager) EnqueueWrite(ctx context.Context, taskType string, row interface{}) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal retry payload: %w", err)
	}

	task := asynq.NewTask(taskType, payload)

	opts := []asynq.Option{
		asynq.Timeout(time.Duration(config.GlobalConfig.Queue.WriteTimeout) * time.Second),
		asynq.MaxRetry(config.GlobalConfig.Queue.MaxRetry),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue write retry: %w", err)
	}

	logger.InfoCtx(ctx, "write retry enqueued, type: %s, queue: %s", taskType, info.Queue)
	return nil
}

// RegisterHandler registers the replay handler for a task type
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// GetPendingTaskCount retrieves the pending retry count
func (m *Manager) GetPendingTaskCount() (int, error) {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{
		Addr:     config.GlobalConfig.Redis.Addr,
		Password: config.GlobalConfig.Redis.Password,
		DB:       config.GlobalConfig.Redis.DB,
	})
	defer inspector.Close()

	stats, err := inspector.GetQueueInfo("default")
	if err != nil {
		return 0, err
	}

	return stats.Pending, nil
}

// Start starts the retry processor
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting write retry queue server")
	return m.server.Start(m.mux)
}

// Stop stops the retry processor
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping write retry queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes the client
func (m *Manager) Close() error {
	return m.client.Close()
}
