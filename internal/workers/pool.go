// Package workers provides a bounded goroutine pool for fan-out work such as
// scanning many symbols at once.
package workers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc is a function that can be used as a Task
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// PoolConfig configures the worker pool
type PoolConfig struct {
	Name            string        // Pool name for logging
	NumWorkers      int           // Number of worker goroutines
	QueueSize       int           // Size of the task queue
	ShutdownTimeout time.Duration // Timeout for graceful shutdown
	PanicRecovery   bool          // Enable panic recovery in workers
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:            name,
		NumWorkers:      runtime.NumCPU() * 2, // fetches are I/O bound
		QueueSize:       1024,
		ShutdownTimeout: 10 * time.Second,
		PanicRecovery:   true,
	}
}

// PoolStats contains pool statistics
type PoolStats struct {
	TasksSubmitted int64 `json:"tasksSubmitted"`
	TasksCompleted int64 `json:"tasksCompleted"`
	TasksFailed    int64 `json:"tasksFailed"`
	PanicRecovered int64 `json:"panicRecovered"`
}

// Pool manages a pool of worker goroutines
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan job
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

type job struct {
	task Task
	done chan<- error
}

// NewPool creates a new worker pool
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		logger:    logger.Named("worker-pool"),
		config:    config,
		taskQueue: make(chan job, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start initializes and starts all workers
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}

	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queue_size", p.config.QueueSize),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.taskQueue:
			err := p.execute(logger, j.task)
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

// execute runs a single task with panic recovery
func (p *Pool) execute(logger *zap.Logger, task Task) (err error) {
	if p.config.PanicRecovery {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				logger.Error("worker recovered from panic", zap.Any("panic", r))
				err = &PanicError{Recovered: r}
			}
			p.record(err)
		}()
	} else {
		defer func() { p.record(err) }()
	}

	return task.Execute(p.ctx)
}

func (p *Pool) record(err error) {
	if err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

func (p *Pool) enqueue(j job) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- j:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit adds a task to the queue
func (p *Pool) Submit(task Task) error {
	return p.enqueue(job{task: task})
}

// SubmitFunc submits a function as a task
func (p *Pool) SubmitFunc(fn func(ctx context.Context) error) error {
	return p.Submit(TaskFunc(fn))
}

// RunAll executes tasks on the pool and waits for all of them. The error at
// index i belongs to tasks[i]. Tasks that cannot be queued run on the
// calling goroutine.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, bound := i, bindContext(ctx, task)
		done := make(chan error, 1)

		if err := p.enqueue(job{task: bound, done: done}); err != nil {
			errs[i] = p.execute(p.logger, bound)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case errs[i] = <-done:
			case <-ctx.Done():
				errs[i] = ctx.Err()
			}
		}()
	}

	wg.Wait()
	return errs
}

// bindContext makes task observe ctx instead of the pool context.
func bindContext(ctx context.Context, task Task) Task {
	return TaskFunc(func(context.Context) error { return task.Execute(ctx) })
}

// Stop gracefully shuts down the pool
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}

	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", zap.String("name", p.config.Name))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out",
			zap.String("name", p.config.Name),
			zap.Duration("timeout", p.config.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

// IsRunning returns whether the pool is running
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TasksSubmitted: p.submitted.Load(),
		TasksCompleted: p.completed.Load(),
		TasksFailed:    p.failed.Load(),
		PanicRecovered: p.panics.Load(),
	}
}

// Errors
var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError represents a pool error
type PoolError struct {
	Message string
}

func (e *PoolError) Error() string { return e.Message }

// PanicError represents a recovered panic
type PanicError struct {
	Recovered interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Recovered)
}
