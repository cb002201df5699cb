package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/studyforge/studyforge/internal/domain"
	"github.com/studyforge/studyforge/internal/infra/metrics"
)

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("task runner is closed")

// Status is a tracked job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is a snapshot of a tracked task.
type Job struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Config configures a Runner.
type Config struct {
	Concurrency int           // Max tasks running at once
	Retry       RetryConfig   // Backoff for fire-and-forget tasks
	TaskTimeout time.Duration // Per-attempt deadline, 0 for none
	KeepJobs    int           // Finished jobs retained for polling
}

// DefaultConfig returns production runner defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		Retry:       DefaultRetryConfig(),
		TaskTimeout: 2 * time.Minute,
		KeepJobs:    200,
	}
}

// Runner executes background work with bounded concurrency.
type Runner struct {
	cfg    Config
	log    *slog.Logger
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	jobs   map[string]*Job
	done   []string // finished job IDs, oldest first
}

// NewRunner creates a runner. A nil logger uses slog.Default().
func NewRunner(cfg Config, log *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.KeepJobs <= 0 {
		cfg.KeepJobs = 200
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:    cfg,
		log:    log.With(slog.String("component", "tasks")),
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// Go runs fn in the background with retries. Failures are logged and counted,
// never returned. Returns false if the runner is closed.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) bool {
	if !r.track() {
		r.log.Warn("task dropped, runner closed", slog.String("task", name))
		return false
	}

	go func() {
		defer r.wg.Done()
		if err := r.acquire(); err != nil {
			r.log.Error("task not started", slog.String("task", name), slog.Any("error", err))
			metrics.TasksCompleted.WithLabelValues(name, "failed").Inc()
			return
		}
		defer r.release()

		err := Retry(r.ctx, r.cfg.Retry, r.withTimeout(fn), func(attempt int, err error) {
			metrics.TaskRetries.WithLabelValues(name).Inc()
			r.log.Warn("task attempt failed, retrying",
				slog.String("task", name), slog.Int("attempt", attempt), slog.Any("error", err))
		})
		if err != nil {
			metrics.TasksCompleted.WithLabelValues(name, "failed").Inc()
			r.log.Error("task failed", slog.String("task", name), slog.Any("error", err))
			return
		}
		metrics.TasksCompleted.WithLabelValues(name, "ok").Inc()
	}()
	return true
}

// Submit runs fn once in the background and tracks it as a pollable job.
func (r *Runner) Submit(name string, fn func(ctx context.Context) (any, error)) (Job, error) {
	if !r.track() {
		return Job{}, ErrClosed
	}

	job := &Job{ID: uuid.NewString(), Name: name, Status: StatusPending, CreatedAt: time.Now()}
	r.mu.Lock()
	r.jobs[job.ID] = job
	snapshot := *job
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.acquire(); err != nil {
			r.finish(job.ID, nil, err)
			return
		}
		defer r.release()

		r.mu.Lock()
		started := time.Now()
		job.Status = StatusRunning
		job.StartedAt = &started
		r.mu.Unlock()

		var result any
		err := r.withTimeout(func(ctx context.Context) error {
			var err error
			result, err = fn(ctx)
			return err
		})(r.ctx)
		r.finish(job.ID, result, err)
	}()
	return snapshot, nil
}

// Job returns a snapshot of a tracked job.
func (r *Runner) Job(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, domain.ErrJobNotFound
	}
	return *job, nil
}

// Wait blocks until every accepted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting work and waits for running tasks until ctx is done,
// then cancels whatever is left.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	defer r.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks still running: %w", ctx.Err())
	}
}

func (r *Runner) track() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *Runner) acquire() error {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return err
	}
	metrics.TasksActive.Inc()
	return nil
}

func (r *Runner) release() {
	metrics.TasksActive.Dec()
	r.sem.Release(1)
}

func (r *Runner) withTimeout(fn func(ctx context.Context) error) func(ctx context.Context) error {
	if r.cfg.TaskTimeout <= 0 {
		return fn
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.cfg.TaskTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func (r *Runner) finish(id string, result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.FinishedAt = &now
	r.done = append(r.done, id)
	r.pruneLocked()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		metrics.TasksCompleted.WithLabelValues(job.Name, "failed").Inc()
		r.log.Error("job failed", slog.String("job", id), slog.String("task", job.Name), slog.Any("error", err))
		return
	}
	job.Status = StatusSucceeded
	job.Result = result
	metrics.TasksCompleted.WithLabelValues(job.Name, "ok").Inc()
}

// pruneLocked drops the oldest finished jobs while more than KeepJobs are
// tracked. Unfinished jobs are never dropped.
func (r *Runner) pruneLocked() {
	for len(r.jobs) > r.cfg.KeepJobs && len(r.done) > 0 {
		delete(r.jobs, r.done[0])
		r.done = r.done[1:]
	}
}
