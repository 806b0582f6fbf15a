package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModel returns errs in order, then text.
type scriptedModel struct {
	mu    sync.Mutex
	errs  []error
	text  string
	calls int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	return m.text, nil
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestService(t *testing.T, model Model, clock clockwork.Clock) *Service {
	t.Helper()
	svc := NewService(model, Options{
		Concurrency: 2,
		BufferSize:  4,
		Clock:       clock,
		Metrics:     observability.NewMetricsForTesting(),
		Logger:      logging.Discard(),
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func TestService_Success(t *testing.T) {
	model := &scriptedModel{text: "ok"}
	svc := newTestService(t, model, clockwork.NewFakeClock())

	text, err := svc.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, model.Calls())
}

func TestService_RetriesTransientWithBackoff(t *testing.T) {
	transient := errors.New("429")
	model := &scriptedModel{
		errs: []error{
			errors.Join(ErrTransient, transient),
			errors.Join(ErrTransient, transient),
		},
		text: "recovered",
	}
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, model, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type out struct {
		text string
		err  error
	}
	done := make(chan out, 1)
	go func() {
		text, err := svc.Generate(ctx, "p")
		done <- out{text, err}
	}()

	for _, wait := range DefaultBackoffs[:2] {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
	}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "recovered", res.text)
	assert.Equal(t, 3, model.Calls())
}

func TestService_ExhaustsRetries(t *testing.T) {
	model := &scriptedModel{
		errs: []error{ErrTransient, ErrTransient, ErrTransient, ErrTransient, ErrTransient},
	}
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, model, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, "p")
		done <- err
	}()

	for _, wait := range DefaultBackoffs {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
	}

	err := <-done
	assert.ErrorIs(t, err, ErrService)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1+len(DefaultBackoffs), model.Calls())
}

func TestService_NonTransientFailsImmediately(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("401 unauthenticated")}}
	svc := newTestService(t, model, clockwork.NewFakeClock())

	_, err := svc.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrService)
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 1, model.Calls())
}

func TestService_CancelDuringBackoff(t *testing.T) {
	model := &scriptedModel{errs: []error{ErrTransient}}
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, model, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, "p")
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	err := <-done
	assert.ErrorIs(t, err, ErrService)
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingModel struct {
	release  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *blockingModel) GenerateContent(ctx context.Context, prompt string) (string, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-m.release
	return prompt, nil
}

func TestService_ConcurrencyCap(t *testing.T) {
	model := &blockingModel{release: make(chan struct{})}
	svc := newTestService(t, model, clockwork.NewFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Generate(context.Background(), "p")
		}()
	}

	require.Eventually(t, func() bool { return model.inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(model.release)
	wg.Wait()

	assert.LessOrEqual(t, model.peak.Load(), int32(2))
}
