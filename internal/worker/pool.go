package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/iconidentify/reelrelay/internal/metrics"
)

var (
	// ErrShutdownTimeout is returned when workers don't stop within timeout.
	ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker queue is full")

	// ErrStopped is returned by Submit after Stop was called.
	ErrStopped = errors.New("worker pool stopped")
)

// Job is one unit of work. Run must honour ctx, which is canceled on Stop.
type Job struct {
	ID  string
	Run func(ctx context.Context)
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
type Pool struct {
	workers int
	queue   chan Job
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers: cfg.Workers,
		queue:   make(chan Job, cfg.QueueSize),
		metrics: m,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.queue))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- job:
		p.metrics.JobStarted()
		return nil
	default:
		p.metrics.JobRejected()
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop rejects new jobs, cancels running ones and waits for workers to exit.
// Jobs still queued are dropped.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool", "pending", len(p.queue))

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case job := <-p.queue:
			p.run(logger, job)
		}
	}
}

func (p *Pool) run(logger *slog.Logger, job Job) {
	defer p.metrics.JobFinished()

	logger = logger.With("job_id", job.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	job.Run(p.ctx)
	logger.Debug("job finished", "duration", time.Since(start))
}
