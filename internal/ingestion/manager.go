package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

var ErrCycleRunning = errors.New("cycle already running")

type RegionLister interface {
	ListRegions(ctx context.Context) ([]models.Region, error)
}

type WeatherSource interface {
	Fetch(ctx context.Context, region string, lat, lng float64) models.WeatherReading
}

type ObservationSource interface {
	Fetch(ctx context.Context) []models.HazardObservation
}

type RiskScorer interface {
	Score(ctx context.Context, region models.Region, reading models.WeatherReading) (models.RiskAssessment, error)
}

type IncidentRegistrar interface {
	RegisterQuakes(ctx context.Context, events []models.HazardObservation) ([]*models.Incident, error)
	RegisterFireCluster(ctx context.Context, spots []models.HazardObservation) (*models.Incident, error)
}

// Sources are the feeds polled each cycle. Every adapter degrades to an
// empty or synthetic result instead of failing.
type Sources struct {
	Weather  WeatherSource
	Seismic  ObservationSource
	Hotspots ObservationSource
}

type Options struct {
	Interval    time.Duration
	RegionLimit int
	Clock       clockwork.Clock
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

func OptionsFromConfig(c config.CycleConfig) Options {
	return Options{Interval: c.Interval, RegionLimit: c.RegionLimit}
}

// CycleReport summarises one pipeline run.
type CycleReport struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	RegionsScored    int           `json:"regions_scored"`
	QuakesSeen       int           `json:"quakes_seen"`
	HotspotsSeen     int           `json:"hotspots_seen"`
	IncidentsCreated int           `json:"incidents_created"`
	Errors           int           `json:"errors"`
}

type Status struct {
	Running   bool         `json:"running"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
}

// Manager runs the collection cycle: score regions from current weather,
// then turn seismic events and fire hotspots into incidents.
type Manager struct {
	regions     RegionLister
	src         Sources
	scorer      RiskScorer
	registrar   IncidentRegistrar
	interval    time.Duration
	regionLimit int
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *CycleReport
	wg      sync.WaitGroup
}

func NewManager(regions RegionLister, src Sources, scorer RiskScorer, registrar IncidentRegistrar, opts Options) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.RegionLimit < 1 {
		opts.RegionLimit = 10
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("ingestion")
	}

	return &Manager{
		regions:     regions,
		src:         src,
		scorer:      scorer,
		registrar:   registrar,
		interval:    opts.Interval,
		regionLimit: opts.RegionLimit,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Start runs one cycle right away and then one per interval until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("starting scheduler", "interval", m.interval)

	m.tick(ctx)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("scheduler shutting down")
			return
		case <-ticker.Chan():
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.RunCycle(ctx); err != nil {
		m.logger.Warn("skipping cycle", "error", err)
	}
}

// RunCycle executes one pass. Overlapping calls are rejected with
// ErrCycleRunning rather than queued.
func (m *Manager) RunCycle(ctx context.Context) (CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleRunning
	}
	defer m.running.Store(false)

	rep := CycleReport{RunID: uuid.NewString(), StartedAt: m.clock.Now()}
	log := m.logger.With("run_id", rep.RunID)
	log.Info("data collection started")

	if m.metrics != nil {
		m.metrics.CycleRunning.Set(1)
		defer m.metrics.CycleRunning.Set(0)
	}

	m.scoreRegions(ctx, log, &rep)
	m.registerQuakes(ctx, log, &rep)
	m.registerFires(ctx, log, &rep)

	rep.Duration = m.clock.Since(rep.StartedAt)
	if m.metrics != nil {
		m.metrics.CyclesTotal.Inc()
		m.metrics.CycleDuration.Observe(rep.Duration.Seconds())
	}

	m.mu.Lock()
	last := rep
	m.last = &last
	m.mu.Unlock()

	log.Info("cycle complete",
		"regions_scored", rep.RegionsScored,
		"incidents_created", rep.IncidentsCreated,
		"errors", rep.Errors,
		"duration", rep.Duration,
	)
	return rep, nil
}

func (m *Manager) scoreRegions(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	regions, err := m.regions.ListRegions(ctx)
	if err != nil {
		log.Error("listing regions", "error", err)
		rep.Errors++
		return
	}
	if len(regions) > m.regionLimit {
		regions = regions[:m.regionLimit]
	}
	log.Debug("processing regions", "count", len(regions))

	for _, r := range regions {
		if ctx.Err() != nil {
			return
		}
		reading := m.src.Weather.Fetch(ctx, r.Name, r.Latitude, r.Longitude)
		a, err := m.scorer.Score(ctx, r, reading)
		if err != nil {
			log.Error("scoring region", "region", r.Name, "error", err)
			rep.Errors++
			continue
		}
		rep.RegionsScored++
		log.Debug("region scored", "region", r.Name, "score", a.Score, "type", a.DisasterType)
	}
}

func (m *Manager) registerQuakes(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	if ctx.Err() != nil {
		return
	}
	events := m.src.Seismic.Fetch(ctx)
	rep.QuakesSeen = len(events)
	if len(events) == 0 {
		return
	}

	created, err := m.registrar.RegisterQuakes(ctx, events)
	rep.IncidentsCreated += len(created)
	if err != nil {
		log.Error("registering quakes", "error", err)
		rep.Errors++
	}
}

func (m *Manager) registerFires(ctx context.Context, log *slog.Logger, rep *CycleReport) {
	if ctx.Err() != nil {
		return
	}
	spots := m.src.Hotspots.Fetch(ctx)
	rep.HotspotsSeen = len(spots)
	if len(spots) == 0 {
		return
	}
	log.Info("wildfire hotspots detected", "count", len(spots))

	inc, err := m.registrar.RegisterFireCluster(ctx, spots)
	if inc != nil {
		rep.IncidentsCreated++
	}
	if err != nil {
		log.Error("registering fire cluster", "error", err)
		rep.Errors++
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{Running: m.running.Load()}
	if m.last != nil {
		last := *m.last
		st.LastCycle = &last
	}
	return st
}

// Stop waits for the scheduler goroutine; cancel its context first.
func (m *Manager) Stop() {
	m.wg.Wait()
	m.logger.Info("ingestion manager stopped")
}
