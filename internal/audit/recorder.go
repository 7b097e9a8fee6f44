package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
)

// recorderBuffer is how many events may wait for SQLite before new ones
// are dropped.
const recorderBuffer = 256

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// AsyncRecorder queues session events and writes them serially in the
// background, so the session loop never waits on the database. When the
// queue is full the event is dropped with a warning.
type AsyncRecorder struct {
	repo   *SQLiteRepository
	ch     chan etrv.Event
	logger Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewAsyncRecorder starts the writer goroutine. Call Close to drain it.
func NewAsyncRecorder(repo *SQLiteRepository, logger Logger) *AsyncRecorder {
	r := &AsyncRecorder{
		repo:   repo,
		ch:     make(chan etrv.Event, recorderBuffer),
		logger: logger,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues ev. It never blocks and always returns nil; write
// failures are logged by the writer.
func (r *AsyncRecorder) Record(_ context.Context, ev etrv.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}

	select {
	case r.ch <- ev:
	default:
		if r.logger != nil {
			r.logger.Warn("audit queue full, dropping event", "action", ev.Action)
		}
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain.
func (r *AsyncRecorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

func (r *AsyncRecorder) drain() {
	defer r.wg.Done()
	for ev := range r.ch {
		if err := r.repo.Record(context.Background(), ev); err != nil && r.logger != nil {
			r.logger.Error("audit log write failed", "action", ev.Action, "error", err)
		}
	}
}
