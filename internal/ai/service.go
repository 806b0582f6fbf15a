package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/worker"
)

var (
	// ErrTransient marks a capacity or rate-limit failure worth retrying.
	ErrTransient = errors.New("ai service transient failure")
	// ErrService is what callers see for every failure, retried or not.
	ErrService = errors.New("ai service error")
	// ErrNotConfigured is returned when no model credentials are set.
	ErrNotConfigured = errors.New("ai model not configured")
)

// DefaultBackoffs are the waits between attempts after a transient failure.
var DefaultBackoffs = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}

// Generator is the single entry point every AI-backed job calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Concurrency int
	BufferSize  int
	Backoffs    []time.Duration
	Clock       clockwork.Clock
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service runs model calls on a bounded pool shared by the scheduled cycle
// and request handlers. Backoff waits happen on the caller's goroutine, so a
// sleeping retry does not hold a slot.
type Service struct {
	model    Model
	pool     *worker.WorkerPool
	backoffs []time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

type call struct {
	ctx    context.Context
	prompt string
	result chan<- callResult
}

type callResult struct {
	text string
	err  error
}

func NewService(model Model, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Backoffs == nil {
		opts.Backoffs = DefaultBackoffs
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("ai")
	}

	s := &Service{
		model:    model,
		backoffs: opts.Backoffs,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	s.pool = worker.NewWorkerPool("ai", opts.Concurrency, opts.BufferSize, s.run)
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

func (s *Service) Stop() {
	s.pool.Stop()
}

func (s *Service) run(_ context.Context, job worker.Job) error {
	c := job.(call)
	text, err := s.model.GenerateContent(c.ctx, c.prompt)
	c.result <- callResult{text: text, err: err}
	return err
}

// Generate returns the model's raw text. Transient failures are retried once
// per configured backoff; anything else fails at once. Every returned error
// wraps ErrService.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	for attempt := 0; ; attempt++ {
		text, err := s.attempt(ctx, prompt)
		if err == nil {
			s.observe("success")
			return text, nil
		}

		if !errors.Is(err, ErrTransient) {
			s.observe("error")
			return "", fmt.Errorf("%w: %w", ErrService, err)
		}
		s.observe("transient")

		if attempt >= len(s.backoffs) {
			return "", fmt.Errorf("%w: retries exhausted: %w", ErrService, err)
		}

		wait := s.backoffs[attempt]
		s.logger.Warn("model rate limited, backing off", "attempt", attempt+1, "wait", wait)
		if !s.sleep(ctx, wait) {
			return "", fmt.Errorf("%w: %w", ErrService, ctx.Err())
		}
	}
}

func (s *Service) attempt(ctx context.Context, prompt string) (string, error) {
	result := make(chan callResult, 1)
	if err := s.pool.Submit(ctx, call{ctx: ctx, prompt: prompt, result: result}); err != nil {
		return "", err
	}

	select {
	case r := <-result:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.pool.Done():
		// Stop drains the queue, so a result may still be waiting.
		select {
		case r := <-result:
			return r.text, r.err
		default:
			return "", worker.ErrPoolStopped
		}
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.AIRequests.WithLabelValues(outcome).Inc()
	}
}
