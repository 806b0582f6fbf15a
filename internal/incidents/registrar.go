// Package incidents turns raw hazard observations into persisted incidents.
// Deduplication is a lookup against unresolved incidents; there is no aging.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

// Incidents further than this from every region centroid stay unassigned.
const maxRegionDistanceMeters = 150_000

type Store interface {
	AddIncident(ctx context.Context, i *models.Incident) error
	HasActiveAtPoint(ctx context.Context, t models.DisasterType, lat, lng float64) (bool, error)
	HasActiveInLatitudeBand(ctx context.Context, t models.DisasterType, minLat, maxLat float64) (bool, error)
	ListRegions(ctx context.Context) ([]models.Region, error)
}

type Notifier interface {
	IncidentCreated(inc *models.Incident)
}

type Rules struct {
	QuakeLimit            int
	MinQuakeMagnitude     float64
	FireClusterMin        int
	FireHighThreshold     int
	FireLatitudeTolerance float64
}

func RulesFromConfig(c config.CycleConfig) Rules {
	return Rules{
		QuakeLimit:            c.QuakeLimit,
		MinQuakeMagnitude:     c.MinQuakeMagnitude,
		FireClusterMin:        c.FireClusterMin,
		FireHighThreshold:     c.FireHighThreshold,
		FireLatitudeTolerance: c.FireLatitudeTolerance,
	}
}

type Registrar struct {
	store    Store
	notifier Notifier
	rules    Rules
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewRegistrar(store Store, notifier Notifier, rules Rules, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Registrar {
	return &Registrar{
		store:    store,
		notifier: notifier,
		rules:    rules,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterQuakes inserts an Earthquake incident for each qualifying event
// with no active incident at the same rounded coordinates. Only the first
// QuakeLimit events are considered. A failed write skips that event only.
func (r *Registrar) RegisterQuakes(ctx context.Context, events []models.HazardObservation) ([]*models.Incident, error) {
	if r.rules.QuakeLimit > 0 && len(events) > r.rules.QuakeLimit {
		events = events[:r.rules.QuakeLimit]
	}

	var (
		created []*models.Incident
		errs    []error
		regions []models.Region
	)
	for _, ev := range events {
		if ev.Magnitude < r.rules.MinQuakeMagnitude {
			continue
		}

		exists, err := r.store.HasActiveAtPoint(ctx, models.DisasterTypeEarthquake, ev.Latitude, ev.Longitude)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if exists {
			r.logger.Debug("duplicate earthquake skipped", "lat", ev.Latitude, "lng", ev.Longitude, "magnitude", ev.Magnitude)
			continue
		}

		if regions == nil {
			regions = r.regions(ctx)
		}

		place := ev.Place
		if place == "" {
			place = "East Africa"
		}
		depth := "unknown"
		if ev.Depth != nil {
			depth = fmt.Sprintf("%gkm", *ev.Depth)
		}

		inc := &models.Incident{
			Type:        models.DisasterTypeEarthquake,
			Severity:    ev.Severity,
			Location:    place,
			Coordinates: &models.Coordinates{Latitude: ev.Latitude, Longitude: ev.Longitude},
			Description: fmt.Sprintf("M%.1f earthquake at depth %s, %s", ev.Magnitude, depth, place),
			Source:      models.SourceUSGS,
		}
		if err := r.insert(ctx, inc, regions); err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, inc)
	}

	return created, errors.Join(errs...)
}

// RegisterFireCluster inserts one Wildfire incident for the whole batch
// when it is larger than FireClusterMin and no active wildfire lies within
// the latitude tolerance of the first hotspot. It returns nil when nothing
// was created.
func (r *Registrar) RegisterFireCluster(ctx context.Context, spots []models.HazardObservation) (*models.Incident, error) {
	if len(spots) <= r.rules.FireClusterMin {
		return nil, nil
	}

	// The first hotspot stands in for the whole cluster.
	first := spots[0]
	tol := r.rules.FireLatitudeTolerance
	exists, err := r.store.HasActiveInLatitudeBand(ctx, models.DisasterTypeWildfire, first.Latitude-tol, first.Latitude+tol)
	if err != nil {
		return nil, err
	}
	if exists {
		r.logger.Debug("wildfire cluster already tracked", "hotspots", len(spots), "lat", first.Latitude)
		return nil, nil
	}

	severity := models.SeverityMedium
	if len(spots) > r.rules.FireHighThreshold {
		severity = models.SeverityHigh
	}

	regions := r.regions(ctx)
	location := "Northern Kenya"
	if reg := nearestRegion(regions, first.Latitude, first.Longitude); reg != nil {
		location = reg.Name
	}

	inc := &models.Incident{
		Type:        models.DisasterTypeWildfire,
		Severity:    severity,
		Location:    location,
		Coordinates: &models.Coordinates{Latitude: first.Latitude, Longitude: first.Longitude},
		Description: fmt.Sprintf("%d active fire hotspots detected via NASA FIRMS satellite.", len(spots)),
		Source:      models.SourceFIRMS,
	}
	if err := r.insert(ctx, inc, regions); err != nil {
		return nil, err
	}
	return inc, nil
}

func (r *Registrar) insert(ctx context.Context, inc *models.Incident, regions []models.Region) error {
	if inc.RegionID == nil && inc.Coordinates != nil {
		if reg := nearestRegion(regions, inc.Coordinates.Latitude, inc.Coordinates.Longitude); reg != nil {
			id := reg.ID
			inc.RegionID = &id
			inc.RegionName = reg.Name
		}
	}
	inc.Status = models.IncidentStatusActive
	inc.ReportedAt = r.clock.Now()

	if err := r.store.AddIncident(ctx, inc); err != nil {
		r.logger.Error("failed to persist incident", "type", inc.Type, "error", err)
		return fmt.Errorf("insert %s incident: %w", inc.Type, err)
	}

	r.logger.Info("incident registered",
		"incident_id", inc.ID,
		"type", inc.Type,
		"severity", inc.Severity,
		"region", inc.RegionName,
	)
	if r.metrics != nil {
		r.metrics.IncidentsRegistered.WithLabelValues(string(inc.Type)).Inc()
	}
	if r.notifier != nil {
		r.notifier.IncidentCreated(inc)
	}
	return nil
}

func (r *Registrar) regions(ctx context.Context) []models.Region {
	regions, err := r.store.ListRegions(ctx)
	if err != nil {
		r.logger.Warn("region lookup failed; incident left unassigned", "error", err)
		return []models.Region{}
	}
	return regions
}

func nearestRegion(regions []models.Region, lat, lng float64) *models.Region {
	pt := orb.Point{lng, lat}
	var (
		best     *models.Region
		bestDist = float64(maxRegionDistanceMeters)
	)
	for i := range regions {
		d := geo.Distance(pt, orb.Point{regions[i].Longitude, regions[i].Latitude})
		if d <= bestDist {
			best, bestDist = &regions[i], d
		}
	}
	return best
}

// Submit records a manual or field report. Reports are never deduplicated.
func (r *Registrar) Submit(ctx context.Context, inc *models.Incident) error {
	if inc.Source == "" {
		inc.Source = models.SourceManual
	}
	if inc.Severity == "" {
		inc.Severity = models.SeverityMedium
	}

	var regions []models.Region
	if inc.RegionID == nil && inc.Coordinates != nil {
		regions = r.regions(ctx)
	}
	return r.insert(ctx, inc, regions)
}
