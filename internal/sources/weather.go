package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/config"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

var syntheticDescriptions = []string{"clear sky", "heavy rain", "overcast clouds", "thunderstorm"}

type openWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

type WeatherClient struct {
	fetcher
	baseURL string
	apiKey  string

	mu   sync.Mutex
	rand *rand.Rand
}

func NewWeatherClient(cfg config.SourcesConfig, logger *slog.Logger, metrics *observability.Metrics) *WeatherClient {
	return &WeatherClient{
		fetcher: newFetcher(sourceWeather, cfg.WeatherTimeout, logger, metrics),
		baseURL: cfg.OpenWeatherURL,
		apiKey:  cfg.OpenWeatherKey,
		rand:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand fixes the generator used for synthetic readings.
func (c *WeatherClient) WithRand(r *rand.Rand) *WeatherClient {
	c.rand = r
	return c
}

// Fetch returns current conditions at a region centroid. Without
// credentials, or when the provider fails, it returns a synthetic reading.
func (c *WeatherClient) Fetch(ctx context.Context, region string, lat, lng float64) models.WeatherReading {
	if c.apiKey == "" {
		return c.synthetic(region, lat, lng)
	}

	reading, err := c.fetch(ctx, region, lat, lng)
	if err != nil {
		c.fail(err, "region", region)
		return c.synthetic(region, lat, lng)
	}
	return reading
}

func (c *WeatherClient) fetch(ctx context.Context, region string, lat, lng float64) (models.WeatherReading, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lon", fmt.Sprintf("%g", lng))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return models.WeatherReading{}, err
	}
	defer body.Close()

	var data openWeatherResponse
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		return models.WeatherReading{}, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if len(data.Weather) == 0 {
		return models.WeatherReading{}, fmt.Errorf("response has no weather entries")
	}

	return models.WeatherReading{
		Region:       region,
		Latitude:     lat,
		Longitude:    lng,
		TemperatureC: data.Main.Temp,
		Humidity:     data.Main.Humidity,
		WindSpeed:    data.Wind.Speed,
		Description:  data.Weather[0].Description,
		RainfallMM:   data.Rain.OneHour,
		ObservedAt:   time.Now(),
	}, nil
}

func (c *WeatherClient) synthetic(region string, lat, lng float64) models.WeatherReading {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.WeatherReading{
		Region:       region,
		Latitude:     lat,
		Longitude:    lng,
		TemperatureC: 18 + c.rand.Float64()*20,
		Humidity:     float64(30 + c.rand.IntN(66)),
		WindSpeed:    c.rand.Float64() * 15,
		Description:  syntheticDescriptions[c.rand.IntN(len(syntheticDescriptions))],
		RainfallMM:   c.rand.Float64() * 50,
		Synthetic:    true,
		ObservedAt:   time.Now(),
	}
}
