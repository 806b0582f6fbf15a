package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}

type usgsProperties struct {
	Mag   float64 `json:"mag"`
	Place string  `json:"place"`
	Time  int64   `json:"time"` // unix ms
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

type SeismicClient struct {
	fetcher
	baseURL      string
	bound        orb.Bound
	minMagnitude float64
	limit        int
}

func NewSeismicClient(cfg config.SourcesConfig, logger *slog.Logger, metrics *observability.Metrics) *SeismicClient {
	return &SeismicClient{
		fetcher:      newFetcher(sourceSeismic, cfg.SeismicTimeout, logger, metrics),
		baseURL:      cfg.USGSURL,
		bound:        Bound(cfg.BoundingBox),
		minMagnitude: cfg.USGSMinMagnitude,
		limit:        cfg.USGSLimit,
	}
}

// QuakeSeverity tiers a magnitude: High at 5.0 and above, Medium at 3.5.
func QuakeSeverity(mag float64) models.Severity {
	switch {
	case mag >= 5:
		return models.SeverityHigh
	case mag >= 3.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Fetch returns recent events inside the bounding box, newest first. Any
// failure yields an empty slice.
func (c *SeismicClient) Fetch(ctx context.Context) []models.HazardObservation {
	events, err := c.fetch(ctx)
	if err != nil {
		c.fail(err)
		return nil
	}
	return events
}

func (c *SeismicClient) fetch(ctx context.Context) ([]models.HazardObservation, error) {
	q := url.Values{}
	q.Set("format", "geojson")
	q.Set("minmagnitude", strconv.FormatFloat(c.minMagnitude, 'f', -1, 64))
	q.Set("minlatitude", strconv.FormatFloat(c.bound.Min.Lat(), 'f', -1, 64))
	q.Set("maxlatitude", strconv.FormatFloat(c.bound.Max.Lat(), 'f', -1, 64))
	q.Set("minlongitude", strconv.FormatFloat(c.bound.Min.Lon(), 'f', -1, 64))
	q.Set("maxlongitude", strconv.FormatFloat(c.bound.Max.Lon(), 'f', -1, 64))
	q.Set("orderby", "time")
	q.Set("limit", strconv.Itoa(c.limit))

	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var data usgsResponse
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	events := make([]models.HazardObservation, 0, len(data.Features))
	for _, f := range data.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		pt := orb.Point{f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]}
		if !c.bound.Contains(pt) {
			continue
		}

		ev := models.HazardObservation{
			Source:     models.SourceUSGS,
			Latitude:   pt.Lat(),
			Longitude:  pt.Lon(),
			Magnitude:  f.Properties.Mag,
			Place:      f.Properties.Place,
			Severity:   QuakeSeverity(f.Properties.Mag),
			ObservedAt: time.UnixMilli(f.Properties.Time),
		}
		if len(f.Geometry.Coordinates) > 2 {
			depth := f.Geometry.Coordinates[2]
			ev.Depth = &depth
		}
		events = append(events, ev)
	}
	if len(events) > c.limit && c.limit > 0 {
		events = events[:c.limit]
	}

	return events, nil
}
