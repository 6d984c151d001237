package usecases

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when no slot is free
	ErrQueueFull = errors.New("task queue full")
	// ErrQueueClosed is returned by Submit after Stop
	ErrQueueClosed = errors.New("task queue closed")
)

// Task is a unit of background work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskError reports a failed background task
type TaskError struct {
	Task string
	Err  error
	At   time.Time
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

// Dispatcher accepts background work without blocking the caller
type Dispatcher interface {
	Submit(t Task) error
}

// TaskQueue runs tasks on a fixed pool of workers fed by a bounded channel
type TaskQueue struct {
	tasks   chan Task
	errs    chan TaskError
	timeout time.Duration

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	errsOnce sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskQueue starts workers that run submitted tasks, each bounded by timeout
func NewTaskQueue(size, workers int, timeout time.Duration) *TaskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		tasks:   make(chan Task, size),
		errs:    make(chan TaskError, size),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	log.Printf("Task queue started with %d workers and %d slots", workers, size)
	return q
}

// Submit enqueues t. It never blocks.
func (q *TaskQueue) Submit(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, t.Name)
	}
}

// Errors delivers task failures. Failures are dropped when nobody reads.
// The channel is closed once Stop has seen every worker exit.
func (q *TaskQueue) Errors() <-chan TaskError {
	return q.errs
}

// Stop refuses new tasks and waits for queued ones until ctx is done.
// Tasks still running when ctx expires are cancelled.
func (q *TaskQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.errsOnce.Do(func() { close(q.errs) })
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *TaskQueue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *TaskQueue) run(t Task) {
	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Run(ctx)
	}()
	if err == nil {
		return
	}

	log.Printf("Background task %s failed: %v", t.Name, err)
	select {
	case q.errs <- TaskError{Task: t.Name, Err: err, At: time.Now()}:
	default:
	}
}
