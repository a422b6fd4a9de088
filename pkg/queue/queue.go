// Package queue provides a priority task queue with bounded concurrent
// execution, per-task timeouts, retry with re-queue at the front, and
// cancellation of both pending and running tasks.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/surf/pkg/logging"
)

// Priority orders pending tasks. Urgent drains first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityMedium: 2,
	PriorityLow:    3,
}

func (p Priority) rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[PriorityMedium]
}

// Status is the lifecycle state of a queued task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Handler executes one task type. The context carries the task's
// timeout; handlers should honor cancellation.
type Handler func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// Task is one unit of queued work.
type Task struct {
	ID           string
	Type         string
	Priority     Priority
	Status       Status
	Payload      map[string]interface{}
	CreatedAt    time.Time
	ScheduledFor time.Time
	MaxRetries   int
	RetryCount   int
	Timeout      time.Duration
	OnComplete   func(result interface{})
	OnError      func(err error)

	// cancelled guards against a late handler result overwriting a
	// cancellation that happened while the handler was running.
	cancelled atomic.Bool
}

// Cancelled reports whether the task was cancelled.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Snapshot summarizes queue occupancy.
type Snapshot struct {
	Pending int
	Running int
	Total   int
}

// Listener observes task status transitions.
type Listener func(task *Task, status Status)

// Queue is a priority queue with a bounded worker pool. Tasks of the
// same priority run in insertion order; a head task scheduled for the
// future blocks dispatch of everything behind it until its time comes.
type Queue struct {
	mu              sync.Mutex
	pending         []*Task
	running         map[string]*Task
	handlers        map[string]Handler
	listeners       []Listener
	maxConcurrent   int
	defaultTimeout  time.Duration
	redispatchDelay time.Duration
	timer           *time.Timer
	closed          bool
	wg              sync.WaitGroup
	log             *logging.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxConcurrent bounds how many tasks run at once.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxConcurrent = n
		}
	}
}

// WithDefaultTimeout sets the timeout for tasks that carry none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.defaultTimeout = d
	}
}

// WithHandler registers the handler for a task type.
func WithHandler(taskType string, h Handler) Option {
	return func(q *Queue) {
		q.handlers[taskType] = h
	}
}

// WithRedispatchDelay sets how often the queue re-checks a head task
// scheduled for the future.
func WithRedispatchDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.redispatchDelay = d
		}
	}
}

// WithListener registers a status-transition observer.
func WithListener(l Listener) Option {
	return func(q *Queue) {
		q.listeners = append(q.listeners, l)
	}
}

// New creates a queue. Without options it runs up to three tasks
// concurrently with a 30 second default timeout.
func New(opts ...Option) *Queue {
	log, _ := logging.NewLogger("queue")
	q := &Queue{
		running:         make(map[string]*Task),
		handlers:        make(map[string]Handler),
		maxConcurrent:   3,
		defaultTimeout:  30 * time.Second,
		redispatchDelay: time.Second,
		log:             log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// RegisterHandler adds or replaces the handler for a task type.
func (q *Queue) RegisterHandler(taskType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = h
}

// Enqueue adds a task and dispatches if capacity allows. A zero ID is
// assigned; a zero priority defaults to medium.
func (q *Queue) Enqueue(task *Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task cannot be nil")
	}
	if task.Type == "" {
		return "", fmt.Errorf("task type cannot be empty")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = StatusPending

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue is closed")
	}
	q.insert(task)
	q.mu.Unlock()

	q.notify(task, StatusPending)
	q.dispatch()
	return task.ID, nil
}

// insert places the task after the last task of equal or higher
// priority, keeping arrival order within a priority class. Caller
// holds the lock.
func (q *Queue) insert(task *Task) {
	pos := len(q.pending)
	for i, t := range q.pending {
		if t.Priority.rank() > task.Priority.rank() {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = task
}

// requeueFront puts a retried task at the head of the line so the
// retry happens before newer work. Caller holds the lock.
func (q *Queue) requeueFront(task *Task) {
	task.Status = StatusPending
	q.pending = append([]*Task{task}, q.pending...)
}

// dispatch starts pending tasks until the concurrency bound is hit or
// the head task is scheduled for the future.
func (q *Queue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 && len(q.running) < q.maxConcurrent && !q.closed {
		head := q.pending[0]

		if wait := time.Until(head.ScheduledFor); wait > 0 {
			// Head not due yet. Nothing behind it runs either;
			// re-check when it should be ready.
			if q.timer == nil {
				delay := q.redispatchDelay
				if wait < delay {
					delay = wait
				}
				q.timer = time.AfterFunc(delay, func() {
					q.mu.Lock()
					q.timer = nil
					q.mu.Unlock()
					q.dispatch()
				})
			}
			return
		}

		q.pending = q.pending[1:]
		head.Status = StatusRunning
		q.running[head.ID] = head

		q.wg.Add(1)
		go q.execute(head)
	}
}

// execute runs one task under its timeout and settles the outcome.
func (q *Queue) execute(task *Task) {
	defer q.wg.Done()
	q.notify(task, StatusRunning)

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = q.defaultTimeout
	}

	q.mu.Lock()
	handler, ok := q.handlers[task.Type]
	q.mu.Unlock()

	var result interface{}
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for task type %q", task.Type)
	} else {
		result, err = q.runWithTimeout(task, handler, timeout)
	}

	q.settle(task, result, err)
	q.dispatch()
}

// runWithTimeout races the handler against the task deadline. A
// handler that keeps running after the deadline delivers into a
// buffered channel and is abandoned.
func (q *Queue) runWithTimeout(task *Task, handler Handler, timeout time.Duration) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := handler(ctx, task.Payload)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("task %s timed out after %s", task.ID, timeout)
	}
}

// settle applies the handler outcome: success completes the task,
// failure retries it until MaxRetries is exhausted. A task cancelled
// while running keeps its cancelled status regardless of the outcome.
func (q *Queue) settle(task *Task, result interface{}, err error) {
	q.mu.Lock()
	delete(q.running, task.ID)

	if task.cancelled.Load() {
		task.Status = StatusCancelled
		q.mu.Unlock()
		q.notify(task, StatusCancelled)
		return
	}

	if err != nil {
		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			q.requeueFront(task)
			q.mu.Unlock()
			q.log.Debugf("task %s retry %d/%d: %v", task.ID, task.RetryCount, task.MaxRetries, err)
			q.notify(task, StatusPending)
			return
		}
		task.Status = StatusFailed
		q.mu.Unlock()
		q.log.Warnf("task %s failed after %d retries: %v", task.ID, task.RetryCount, err)
		q.notify(task, StatusFailed)
		if task.OnError != nil {
			task.OnError(err)
		}
		return
	}

	task.Status = StatusCompleted
	q.mu.Unlock()
	q.notify(task, StatusCompleted)
	if task.OnComplete != nil {
		task.OnComplete(result)
	}
}

// Cancel removes a pending task or flags a running one. Cancelling a
// running task does not interrupt its handler; the result is discarded
// when it finishes. Unknown IDs return an error.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()

	for i, t := range q.pending {
		if t.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			t.cancelled.Store(true)
			t.Status = StatusCancelled
			q.mu.Unlock()
			q.notify(t, StatusCancelled)
			return nil
		}
	}

	if t, ok := q.running[id]; ok {
		t.cancelled.Store(true)
		q.mu.Unlock()
		return nil
	}

	q.mu.Unlock()
	return fmt.Errorf("task %s not found", id)
}

// Status returns current queue occupancy.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Pending: len(q.pending),
		Running: len(q.running),
		Total:   len(q.pending) + len(q.running),
	}
}

// Pending returns a copy of the pending tasks in dispatch order.
func (q *Queue) Pending() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.pending))
	copy(out, q.pending)
	return out
}

// Clear cancels all pending tasks. Running tasks are left to finish.
func (q *Queue) Clear() {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, t := range cleared {
		t.cancelled.Store(true)
		t.Status = StatusCancelled
		q.notify(t, StatusCancelled)
	}
}

// Close stops dispatching and waits for running tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) notify(task *Task, status Status) {
	for _, l := range q.listeners {
		l(task, status)
	}
}
