package tracking

import (
	"hash/fnv"
	"sync"
)

const laneQueueDepth = 256

// Lanes provides per-track sequential processing: every record for a
// given track is routed to the same lane, so one track's timeline is
// always handled in order while different tracks run in parallel.
type Lanes struct {
	lanes []chan func()
	wg    sync.WaitGroup

	// Dispatch holds the read lock across the channel send so Stop can
	// only close the lanes once no sender is in flight.
	mu     sync.RWMutex
	closed bool
}

// NewLanes starts n processing lanes
func NewLanes(n int) *Lanes {
	if n <= 0 {
		n = 1
	}
	l := &Lanes{lanes: make([]chan func(), n)}
	for i := range l.lanes {
		ch := make(chan func(), laneQueueDepth)
		l.lanes[i] = ch
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for fn := range ch {
				fn()
			}
		}()
	}
	return l
}

// Dispatch runs fn on the lane owning the given track key. Blocks when
// the lane's queue is full, applying backpressure to the ingest caller.
// Returns false after Stop.
func (l *Lanes) Dispatch(key string, fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	l.lanes[l.laneFor(key)] <- fn
	return true
}

// Stop drains and stops all lanes, waiting for in-flight work. Waits
// out any Dispatch blocked on a full lane before closing the channels;
// the lane workers keep consuming until close, so those senders finish.
func (l *Lanes) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	for _, ch := range l.lanes {
		close(ch)
	}
	l.wg.Wait()
}

func (l *Lanes) laneFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.lanes)))
}
