package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

const forecastDays = 7

type ForecastClient struct {
	fetcher
	baseURL  string
	timezone string
}

func NewForecastClient(cfg config.SourcesConfig, logger *slog.Logger, metrics *observability.Metrics) *ForecastClient {
	return &ForecastClient{
		fetcher:  newFetcher(sourceForecast, cfg.ForecastTimeout, logger, metrics),
		baseURL:  cfg.OpenMeteoURL,
		timezone: cfg.ForecastTimezone,
	}
}

// Fetch returns a 7-day daily outlook, or the zero Forecast on failure.
func (c *ForecastClient) Fetch(ctx context.Context, lat, lng float64) models.Forecast {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("daily", "precipitation_sum,temperature_2m_max,temperature_2m_min,windspeed_10m_max")
	q.Set("forecast_days", strconv.Itoa(forecastDays))
	q.Set("timezone", c.timezone)

	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		c.fail(err, "lat", lat, "lng", lng)
		return models.Forecast{}
	}
	defer body.Close()

	var f models.Forecast
	if err := json.NewDecoder(body).Decode(&f); err != nil {
		c.fail(fmt.Errorf("error decoding resp.Body: %w", err), "lat", lat, "lng", lng)
		return models.Forecast{}
	}
	return f
}
