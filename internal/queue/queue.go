package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of background work. Run is re-invoked per the retry
// schedule; OnFailure fires exactly once, after the last attempt fails.
type Task struct {
	Name string
	Run  func(ctx context.Context) error

	// Timeout bounds each individual attempt. Zero means no limit.
	Timeout time.Duration

	// RetrySchedule holds the wait before each retry; an empty schedule
	// means a single attempt.
	RetrySchedule []time.Duration

	// Delay postpones the first attempt after dispatch
	Delay time.Duration

	// OnFailure is the terminal failure hook, called after every attempt
	// has failed. Optional.
	OnFailure func(err error)
}

// Queue is a named in-process worker pool. Separate queues isolate
// workloads so a slow AI provider cannot starve store syncs.
type Queue struct {
	name    string
	tasks   chan *Task
	workers int
}

// Manager owns the process's named queues and their workers
type Manager struct {
	mu      sync.Mutex
	queues  map[string]*Queue
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewManager creates a queue manager with no queues registered
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		queues: make(map[string]*Queue),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddQueue registers a named queue with a fixed worker count. Must be
// called before Start.
func (m *Manager) AddQueue(name string, workers, buffer int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if workers < 1 {
		workers = 1
	}
	m.queues[name] = &Queue{
		name:    name,
		tasks:   make(chan *Task, buffer),
		workers: workers,
	}
}

// Start launches the workers of every registered queue
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	for _, q := range m.queues {
		for i := 0; i < q.workers; i++ {
			m.wg.Add(1)
			go m.worker(q)
		}
	}
}

// Stop cancels in-flight tasks and waits for the workers to drain. The
// task channels stay open: a concurrent Dispatch must never hit a closed
// channel, so workers exit on context cancellation instead.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// Dispatch enqueues a task on a named queue. It blocks when the queue
// buffer is full, providing natural backpressure. After Stop it returns
// an error instead of enqueueing work nobody will run.
func (m *Manager) Dispatch(queue string, task *Task) error {
	m.mu.Lock()
	q, ok := m.queues[queue]
	stopped := m.stopped
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue %q is not registered", queue)
	}
	if stopped {
		return fmt.Errorf("queue %q is shut down", queue)
	}
	select {
	case q.tasks <- task:
		return nil
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

func (m *Manager) worker(q *Queue) {
	defer m.wg.Done()
	for {
		select {
		case task := <-q.tasks:
			m.execute(q, task)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) execute(q *Queue, task *Task) {
	if task.Delay > 0 {
		timer := time.NewTimer(task.Delay)
		select {
		case <-timer.C:
		case <-m.ctx.Done():
			timer.Stop()
			return
		}
	}

	var err error
	attempts := len(task.RetrySchedule) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := task.RetrySchedule[attempt-1]
			log.Warn().
				Str("queue", q.name).
				Str("task", task.Name).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Err(err).
				Msg("task failed, retrying")
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-m.ctx.Done():
				timer.Stop()
				return
			}
		}

		err = m.attempt(task)
		if err == nil {
			return
		}
	}

	log.Error().
		Str("queue", q.name).
		Str("task", task.Name).
		Err(err).
		Msg("task failed permanently")
	if task.OnFailure != nil {
		task.OnFailure(err)
	}
}

func (m *Manager) attempt(task *Task) error {
	ctx := m.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	return task.Run(ctx)
}
