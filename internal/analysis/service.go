// Package analysis holds the on-demand AI jobs behind the dashboard:
// 72-hour predictions, early warnings, the national situation report,
// the admin chat and summary statistics.
package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/cache"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
)

const (
	HighRiskScore        = 70
	defaultRegionLimit   = 20
	defaultFetchParallel = 4
	reportIncidentLimit  = 10
	chatHistoryLimit     = 12
	predictionsCacheKey  = "analysis:predictions"
	defaultPredictionTTL = 30 * time.Minute
)

type Store interface {
	ListRegions(ctx context.Context) ([]models.Region, error)
	ListIncidents(ctx context.Context, opts repository.IncidentFilter) ([]models.Incident, error)
	ListWorkers(ctx context.Context) ([]models.Worker, error)
}

type Forecaster interface {
	Fetch(ctx context.Context, lat, lng float64) models.Forecast
}

type Options struct {
	RegionLimit   int
	FetchParallel int
	CacheTTL      time.Duration
	Clock         clockwork.Clock
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

type Service struct {
	store         Store
	forecaster    Forecaster
	gen           ai.Generator
	cache         cache.Cache
	regionLimit   int
	fetchParallel int
	cacheTTL      time.Duration
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewService builds the job runner. c may be nil to disable caching.
func NewService(store Store, forecaster Forecaster, gen ai.Generator, c cache.Cache, opts Options) *Service {
	if opts.RegionLimit < 1 {
		opts.RegionLimit = defaultRegionLimit
	}
	if opts.FetchParallel < 1 {
		opts.FetchParallel = defaultFetchParallel
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultPredictionTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("analysis")
	}

	return &Service{
		store:         store,
		forecaster:    forecaster,
		gen:           gen,
		cache:         c,
		regionLimit:   opts.RegionLimit,
		fetchParallel: opts.FetchParallel,
		cacheTTL:      opts.CacheTTL,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

func (s *Service) fellBack(job string, err error) {
	s.logger.Warn("ai job fell back", "job", job, "error", err)
	if s.metrics != nil {
		s.metrics.AIFallbacks.WithLabelValues(job).Inc()
	}
}
