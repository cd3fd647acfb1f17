package jobs

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"floortrack/pkg/logger"
)

// Job is a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob delays its first run to an interval boundary. The period
// boundary job uses this to fire on the minute, right after each index
// period can end.
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// Manager runs registered jobs on their intervals until stopped.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register adds a job. No effect after Start.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches one goroutine per registered job
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.loop(job)
	}
}

// Stop signals all jobs to stop
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all job goroutines exit
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) loop(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	if aligned, ok := job.(AlignedJob); ok && aligned.AlignToInterval() {
		next := time.Now().Truncate(interval).Add(interval)
		logger.InfoCtx(m.ctx, "job %s aligned, first run at %s", job.Name(), next.Format("15:04:05"))
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
	}

	m.runOnce(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(job)
		}
	}
}

// runOnce executes a single iteration. A panicking job is logged and its
// ticker keeps running; one bad tick must not stop the schedule.
func (m *Manager) runOnce(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(m.ctx, "job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
	}()
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "job %s failed: %v", job.Name(), err)
	}
}
