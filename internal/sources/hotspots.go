package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

type HotspotClient struct {
	fetcher
	baseURL string
	apiKey  string
	product string
	bound   orb.Bound
}

func NewHotspotClient(cfg config.SourcesConfig, logger *slog.Logger, metrics *observability.Metrics) *HotspotClient {
	return &HotspotClient{
		fetcher: newFetcher(sourceHotspots, cfg.FireTimeout, logger, metrics),
		baseURL: strings.TrimRight(cfg.FIRMSURL, "/"),
		apiKey:  cfg.FIRMSKey,
		product: cfg.FIRMSProduct,
		bound:   Bound(cfg.BoundingBox),
	}
}

// Fetch returns the last day's hotspots in the bounding box. It returns
// nothing when no map key is configured or the request fails.
func (c *HotspotClient) Fetch(ctx context.Context) []models.HazardObservation {
	if c.apiKey == "" {
		return nil
	}

	url := fmt.Sprintf("%s/%s/%s/%g,%g,%g,%g/1", c.baseURL, c.apiKey, c.product,
		c.bound.Min.Lon(), c.bound.Min.Lat(), c.bound.Max.Lon(), c.bound.Max.Lat())

	body, err := c.get(ctx, url)
	if err != nil {
		c.fail(err)
		return nil
	}
	defer body.Close()

	spots, err := parseHotspots(body, c.logger)
	if err != nil {
		c.fail(err)
		return nil
	}
	return spots
}

// parseHotspots reads FIRMS CSV. Rows that fail to parse are skipped.
func parseHotspots(r io.Reader, logger *slog.Logger) ([]models.HazardObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["latitude"]; !ok {
		return nil, fmt.Errorf("missing latitude column")
	}
	if _, ok := col["longitude"]; !ok {
		return nil, fmt.Errorf("missing longitude column")
	}

	field := func(row []string, name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	var spots []models.HazardObservation
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		latStr, _ := field(row, "latitude")
		lngStr, _ := field(row, "longitude")
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat != nil || errLng != nil {
			skipped++
			continue
		}

		spot := models.HazardObservation{
			Source:     models.SourceFIRMS,
			Latitude:   lat,
			Longitude:  lng,
			Confidence: "nominal",
		}
		if v, ok := field(row, "bright_ti4"); ok && v != "" {
			b, err := strconv.ParseFloat(v, 64)
			if err != nil {
				skipped++
				continue
			}
			spot.Magnitude = b
		}
		if v, ok := field(row, "confidence"); ok && v != "" {
			spot.Confidence = v
		}
		if v, ok := field(row, "acq_date"); ok {
			if t, err := time.Parse(time.DateOnly, v); err == nil {
				spot.ObservedAt = t
			}
		}
		spots = append(spots, spot)
	}

	if skipped > 0 {
		logger.Debug("skipped malformed hotspot rows", "count", skipped)
	}
	return spots, nil
}
