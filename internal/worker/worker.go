package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// WorkerPool runs a fixed number of goroutines over a buffered job queue.
// The worker count is the concurrency cap for whatever the processor does.
type WorkerPool struct {
	name       string
	numWorkers int
	jobs       chan Job
	processor  ProcessFunc
	wg         sync.WaitGroup
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func NewWorkerPool(name string, numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		processor:  processor,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wp.quit:
			wp.drain(ctx)
			return
		case job := <-wp.jobs:
			wp.process(ctx, id, job)
		}
	}
}

// drain finishes whatever is already buffered once Stop has been called.
func (wp *WorkerPool) drain(ctx context.Context) {
	for {
		select {
		case job := <-wp.jobs:
			wp.process(ctx, 0, job)
		default:
			return
		}
	}
}

func (wp *WorkerPool) process(ctx context.Context, id int, job Job) {
	if err := wp.processor(ctx, job); err != nil {
		slog.Debug("job failed", "pool", wp.name, "worker", id, "error", err)
	}
}

// Submit enqueues a job, blocking while the buffer is full.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case <-wp.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case <-wp.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	case wp.jobs <- job:
		return nil
	}
}

// Done is closed once Stop has returned and no worker is running.
func (wp *WorkerPool) Done() <-chan struct{} {
	return wp.done
}

func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.quit)
		wp.wg.Wait()
		close(wp.done)
	})
}
