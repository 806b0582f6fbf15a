// Package sources adapts the external hazard feeds into typed readings.
// Adapters never return errors to the cycle: a failed fetch is logged,
// counted and replaced with a safe default.
package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

const (
	sourceWeather  = "weather"
	sourceSeismic  = "seismic"
	sourceHotspots = "hotspots"
	sourceForecast = "forecast"
)

// Bound converts the configured box into an orb bound (X = lng, Y = lat).
func Bound(bb config.BoundingBox) orb.Bound {
	return orb.Bound{
		Min: orb.Point{bb.MinLng, bb.MinLat},
		Max: orb.Point{bb.MaxLng, bb.MaxLat},
	}
}

type fetcher struct {
	client  *http.Client
	source  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newFetcher(source string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) fetcher {
	return fetcher{
		client:  &http.Client{Timeout: timeout},
		source:  source,
		logger:  logger.With("source", source),
		metrics: metrics,
	}
}

// get performs a GET and returns the body of a 200 response. The caller closes it.
func (f fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func (f fetcher) fail(err error, args ...any) {
	f.logger.Warn("source unavailable", append([]any{"error", err}, args...)...)
	if f.metrics != nil {
		f.metrics.SourceFailures.WithLabelValues(f.source).Inc()
	}
}
