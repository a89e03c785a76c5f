// Package workers contains background workers: the job dispatcher that runs
// asynchronous deploys and the remote host monitor.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/panelship/internal/shell/metrics"
)

var (
	// ErrQueueFull is returned when a job is submitted to a full queue.
	ErrQueueFull = errors.New("job queue is full")

	// ErrDispatcherStopped is returned when a job is submitted after Stop.
	ErrDispatcherStopped = errors.New("dispatcher is not running")
)

// Job is a unit of background work.
type Job struct {
	// Name describes the job in logs, e.g. "deploy /src/app".
	Name string
	Run  func(ctx context.Context) error
}

// Handle acknowledges a submitted job. It cannot be awaited or cancelled.
type Handle struct {
	ID          string    `json:"job_id"`
	Name        string    `json:"name"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type queuedJob struct {
	handle Handle
	job    Job
}

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// Workers is the number of jobs run at once.
	// Default: 2.
	Workers int

	// QueueSize is the number of jobs that may wait for a worker.
	// Default: 32.
	QueueSize int
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   2,
		QueueSize: 32,
	}
}

// Dispatcher runs submitted jobs on a fixed pool of goroutines. Jobs are
// not cancelled by Stop; Stop waits for queued and running jobs to finish.
type Dispatcher struct {
	config  DispatcherConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	queue   chan queuedJob
	wg      sync.WaitGroup
}

// NewDispatcher creates a new dispatcher. Call Start before submitting.
func NewDispatcher(config DispatcherConfig, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		config:  config,
		metrics: m,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	d.queue = make(chan queuedJob, d.config.QueueSize)
	d.running = true
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.work(d.queue)
	}

	d.logger.Info("dispatcher started",
		"workers", d.config.Workers,
		"queue_size", d.config.QueueSize,
	)
}

// Stop stops accepting jobs and waits for the queue to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit queues job and returns immediately.
func (d *Dispatcher) Submit(job Job) (Handle, error) {
	if job.Run == nil {
		return Handle{}, fmt.Errorf("job %q has no run function", job.Name)
	}

	h := Handle{
		ID:          uuid.New().String(),
		Name:        job.Name,
		SubmittedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return Handle{}, ErrDispatcherStopped
	}

	select {
	case d.queue <- queuedJob{handle: h, job: job}:
	default:
		return Handle{}, ErrQueueFull
	}

	d.metrics.SetQueued(len(d.queue))
	d.logger.Info("job queued", "job_id", h.ID, "job", h.Name)
	return h, nil
}

func (d *Dispatcher) work(queue <-chan queuedJob) {
	defer d.wg.Done()
	for q := range queue {
		d.metrics.SetQueued(len(queue))
		d.execute(q)
	}
}

// execute runs one job, turning a panic into a logged failure.
func (d *Dispatcher) execute(q queuedJob) {
	logger := d.logger.With("job_id", q.handle.ID, "job", q.handle.Name)
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		err = q.job.Run(context.Background())
	}()

	if err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("job completed", "duration", time.Since(start))
}
