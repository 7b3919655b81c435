package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-device-auth/pkg/types"
)

// Defaults for the runner's pool and queue sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Config tunes the background runner.
type Config struct {
	Workers   int
	QueueSize int
	Logger    types.Logger
	// OnFailure receives the task name and error when a task fails or
	// panics. Called from the worker goroutine.
	OnFailure func(name string, err error)
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

type task struct {
	name string
	fn   func(context.Context) error
}

// Runner executes fire-and-forget work on a bounded pool. Failures are
// reported through the logger and the OnFailure callback; they never reach
// the submitting caller.
type Runner struct {
	queue     chan task
	logger    types.Logger
	onFailure func(string, error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner starts the worker pool.
func NewRunner(cfg Config) *Runner {
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		queue:     make(chan task, cfg.QueueSize),
		logger:    cfg.Logger,
		onFailure: cfg.OnFailure,
		cancel:    cancel,
	}
	for w := 0; w < cfg.Workers; w++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	return r
}

// Submit enqueues a task. It returns false when the queue is full or the
// runner is closed; the caller treats a drop as a logged non-event, never a
// request failure.
func (r *Runner) Submit(name string, fn func(context.Context) error) bool {
	if fn == nil {
		return false
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	// The send must stay under the mutex so Close cannot close the queue
	// between the closed check and the enqueue. The select never blocks, so
	// holding the lock across it is safe.
	select {
	case r.queue <- task{name: name, fn: fn}:
		r.mu.Unlock()
		return true
	default:
		r.mu.Unlock()
		r.logger.Error("background task dropped, queue full", nil, "task", name)
		r.fail(name, fmt.Errorf("tasks: queue full, %q dropped", name))
		return false
	}
}

// Close stops accepting work, drains the queue and waits for in-flight
// tasks to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
	r.cancel()
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for t := range r.queue {
		r.run(ctx, t)
	}
}

func (r *Runner) run(ctx context.Context, t task) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("tasks: %q panicked: %v", t.name, rec)
			r.logger.Error("background task panicked", err, "task", t.name)
			r.fail(t.name, err)
		}
	}()
	if err := t.fn(ctx); err != nil {
		r.logger.Error("background task failed", err, "task", t.name)
		r.fail(t.name, err)
	}
}

func (r *Runner) fail(name string, err error) {
	if r.onFailure != nil {
		r.onFailure(name, err)
	}
}
