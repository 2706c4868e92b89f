// Package mt runs fine-grained tasks on a bounded worker pool and exposes a
// completion barrier so a driver can tell when a whole batch has finished.
package mt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TaskFunc is the body of a task. It reports success; a failed task never
// aborts the other tasks of its batch.
type TaskFunc func(ctx context.Context) bool

// RangeFunc processes the half-open index range [start, start+count).
type RangeFunc func(ctx context.Context, start, count int) bool

// Manager dispatches tasks onto a worker pool. Tasks may start further
// tasks; Wait covers them too.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu    sync.Mutex
	group *errgroup.Group

	pending    atomic.Int64
	failed     atomic.Int64
	abandoned  atomic.Int64
	completed  atomic.Int64
	terminated atomic.Bool
	workers    int
}

// NewManager creates a manager with at most workers tasks running at once.
// workers <= 0 means runtime.GOMAXPROCS(0). A nil logger uses slog.Default().
func NewManager(ctx context.Context, workers int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger,
		workers: workers,
	}
}

// Workers returns the worker limit.
func (m *Manager) Workers() int { return m.workers }

// Start schedules an abandonable task. It is skipped if the manager is
// terminated before the task acquires a worker.
func (m *Manager) Start(name string, fn TaskFunc) {
	m.launch(name, fn, true)
}

// StartNonAbandonable schedules a task that runs to completion even when
// the manager is terminated.
func (m *Manager) StartNonAbandonable(name string, fn TaskFunc) {
	m.launch(name, fn, false)
}

// StartRanges splits [0, n) into chunks of at most chunk indices and
// schedules one abandonable task per chunk.
func (m *Manager) StartRanges(name string, n, chunk int, fn RangeFunc) {
	if n <= 0 {
		return
	}
	if chunk <= 0 {
		chunk = (n + m.workers - 1) / m.workers
		if chunk < 1 {
			chunk = 1
		}
	}
	for start := 0; start < n; start += chunk {
		count := chunk
		if start+count > n {
			count = n - start
		}
		s, c := start, count
		m.Start(fmt.Sprintf("%s[%d:%d]", name, s, s+c), func(ctx context.Context) bool {
			return fn(ctx, s, c)
		})
	}
}

func (m *Manager) launch(name string, fn TaskFunc, abandonable bool) {
	m.pending.Add(1)

	m.mu.Lock()
	if m.group == nil {
		m.group = &errgroup.Group{}
	}
	g := m.group
	m.mu.Unlock()

	g.Go(func() error {
		defer m.pending.Add(-1)

		acquireCtx := context.Background()
		if abandonable {
			if m.terminated.Load() {
				m.abandoned.Add(1)
				return nil
			}
			acquireCtx = m.ctx
		}
		if err := m.sem.Acquire(acquireCtx, 1); err != nil {
			m.abandoned.Add(1)
			return nil
		}
		defer m.sem.Release(1)

		if abandonable && m.terminated.Load() {
			m.abandoned.Add(1)
			return nil
		}

		ok := m.run(name, fn)
		m.completed.Add(1)
		if !ok {
			m.failed.Add(1)
			return fmt.Errorf("%w: %s", ErrTaskFailed, name)
		}
		return nil
	})
}

func (m *Manager) run(name string, fn TaskFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("task panicked", slog.String("task", name), slog.Any("panic", r))
			ok = false
		}
	}()
	return fn(m.ctx)
}

// IsAsyncWorkComplete reports whether every scheduled task has finished or
// been abandoned.
func (m *Manager) IsAsyncWorkComplete() bool {
	return m.pending.Load() == 0
}

// Wait blocks until all scheduled tasks, including tasks they started, have
// finished. It returns the first task failure of the batch, if any. The
// manager can be reused for the next batch afterwards.
func (m *Manager) Wait() error {
	var first error
	for {
		// Tasks started while waiting land in a fresh group, so keep
		// draining until no group is left.
		m.mu.Lock()
		g := m.group
		m.group = nil
		m.mu.Unlock()
		if g == nil {
			return first
		}
		if err := g.Wait(); err != nil && first == nil {
			first = err
		}
	}
}

// Terminate abandons every abandonable task that has not started yet.
// Non-abandonable tasks still run; call Wait to let them drain.
func (m *Manager) Terminate() {
	if m.terminated.Swap(true) {
		return
	}
	m.cancel()
	m.logger.Debug("task manager terminated", slog.Int64("pending", m.pending.Load()))
}

// Terminated reports whether Terminate was called.
func (m *Manager) Terminated() bool { return m.terminated.Load() }

// Stats is a snapshot of task counters.
type Stats struct {
	Completed int64
	Failed    int64
	Abandoned int64
	Pending   int64
}

// Stats returns the counters accumulated so far.
func (m *Manager) Stats() Stats {
	return Stats{
		Completed: m.completed.Load(),
		Failed:    m.failed.Load(),
		Abandoned: m.abandoned.Load(),
		Pending:   m.pending.Load(),
	}
}
