package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	Sources SourcesConfig
	AI      AIConfig
	SMS     SMSConfig
	Cycle   CycleConfig
	Cache   CacheConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second, global
}

type WorkerConfig struct {
	AIConcurrency   int
	AIBufferSize    int
	AlertWorkers    int
	AlertBufferSize int
}

// BoundingBox is in degrees; it scopes the seismic and hotspot queries.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

type SourcesConfig struct {
	OpenWeatherKey   string
	OpenWeatherURL   string
	WeatherTimeout   time.Duration
	USGSURL          string
	USGSMinMagnitude float64
	USGSLimit        int
	SeismicTimeout   time.Duration
	FIRMSKey         string
	FIRMSURL         string
	FIRMSProduct     string
	FireTimeout      time.Duration
	OpenMeteoURL     string
	ForecastTimeout  time.Duration
	ForecastTimezone string
	BoundingBox      BoundingBox
}

type AIConfig struct {
	GeminiKey     string
	Model         string
	BaseURL       string
	Timeout       time.Duration
	RetryBackoffs []time.Duration
}

type SMSConfig struct {
	Username    string
	APIKey      string
	URL         string
	SenderID    string
	CountryCode string
	Timeout     time.Duration
}

type CycleConfig struct {
	Interval              time.Duration
	RegionLimit           int
	QuakeLimit            int
	MinQuakeMagnitude     float64
	FireClusterMin        int
	FireHighThreshold     int
	FireLatitudeTolerance float64
	PredictionRegions     int
}

type CacheConfig struct {
	Backend       string // "sqlite" or "redis"
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	backoffs, err := parseDurations(getEnv("AI_RETRY_BACKOFFS", "5s,15s,30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_RETRY_BACKOFFS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("SERVER_RATE_LIMIT", 20),
		},
		Worker: WorkerConfig{
			AIConcurrency:   getEnvInt("AI_CONCURRENCY", 4),
			AIBufferSize:    getEnvInt("AI_BUFFER_SIZE", 32),
			AlertWorkers:    getEnvInt("ALERT_WORKERS", 2),
			AlertBufferSize: getEnvInt("ALERT_BUFFER_SIZE", 64),
		},
		Sources: SourcesConfig{
			OpenWeatherKey:   os.Getenv("OPENWEATHER_API_KEY"),
			OpenWeatherURL:   getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5/weather"),
			WeatherTimeout:   getEnvDuration("WEATHER_TIMEOUT", 10*time.Second),
			USGSURL:          getEnv("USGS_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			USGSMinMagnitude: getEnvFloat("USGS_MIN_MAGNITUDE", 2.5),
			USGSLimit:        getEnvInt("USGS_LIMIT", 20),
			SeismicTimeout:   getEnvDuration("USGS_TIMEOUT", 15*time.Second),
			FIRMSKey:         os.Getenv("NASA_FIRMS_MAP_KEY"),
			FIRMSURL:         getEnv("FIRMS_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
			FIRMSProduct:     getEnv("FIRMS_PRODUCT", "VIIRS_SNPP_NRT"),
			FireTimeout:      getEnvDuration("FIRMS_TIMEOUT", 20*time.Second),
			OpenMeteoURL:     getEnv("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
			ForecastTimeout:  getEnvDuration("OPEN_METEO_TIMEOUT", 15*time.Second),
			ForecastTimezone: getEnv("FORECAST_TIMEZONE", "Africa/Nairobi"),
			BoundingBox: BoundingBox{
				MinLat: getEnvFloat("BBOX_MIN_LAT", -4.68),
				MaxLat: getEnvFloat("BBOX_MAX_LAT", 5.02),
				MinLng: getEnvFloat("BBOX_MIN_LNG", 33.91),
				MaxLng: getEnvFloat("BBOX_MAX_LNG", 41.90),
			},
		},
		AI: AIConfig{
			GeminiKey:     os.Getenv("GEMINI_API_KEY"),
			Model:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			BaseURL:       getEnv("GEMINI_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:       getEnvDuration("GEMINI_TIMEOUT", 60*time.Second),
			RetryBackoffs: backoffs,
		},
		SMS: SMSConfig{
			Username:    getEnv("AFRICASTALKING_USERNAME", "sandbox"),
			APIKey:      os.Getenv("AFRICASTALKING_API_KEY"),
			URL:         getEnv("AFRICASTALKING_URL", "https://api.sandbox.africastalking.com/version1/messaging"),
			SenderID:    getEnv("SMS_SENDER_ID", "NDMA-KE"),
			CountryCode: getEnv("SMS_COUNTRY_CODE", "254"),
			Timeout:     getEnvDuration("SMS_TIMEOUT", 15*time.Second),
		},
		Cycle: CycleConfig{
			Interval:              getEnvDuration("CYCLE_INTERVAL", 30*time.Minute),
			RegionLimit:           getEnvInt("CYCLE_REGION_LIMIT", 10),
			QuakeLimit:            getEnvInt("CYCLE_QUAKE_LIMIT", 5),
			MinQuakeMagnitude:     getEnvFloat("CYCLE_MIN_QUAKE_MAGNITUDE", 3.5),
			FireClusterMin:        getEnvInt("CYCLE_FIRE_CLUSTER_MIN", 5),
			FireHighThreshold:     getEnvInt("CYCLE_FIRE_HIGH_THRESHOLD", 20),
			FireLatitudeTolerance: getEnvFloat("CYCLE_FIRE_LAT_TOLERANCE", 0.5),
			PredictionRegions:     getEnvInt("PREDICTION_REGION_LIMIT", 20),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "sqlite"),
			TTL:           getEnvDuration("CACHE_TTL", 30*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/hazard-watch.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("server rate limit must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.AIConcurrency < 1 {
		return fmt.Errorf("AI concurrency must be at least 1")
	}
	if c.Worker.AlertWorkers < 1 {
		return fmt.Errorf("alert workers must be at least 1")
	}

	if c.Cycle.Interval < time.Minute {
		return fmt.Errorf("cycle interval must be at least 1 minute")
	}
	if c.Cycle.FireHighThreshold < c.Cycle.FireClusterMin {
		return fmt.Errorf("fire high threshold (%d) must not be below cluster minimum (%d)",
			c.Cycle.FireHighThreshold, c.Cycle.FireClusterMin)
	}

	bb := c.Sources.BoundingBox
	if bb.MinLat >= bb.MaxLat || bb.MinLng >= bb.MaxLng {
		return fmt.Errorf("invalid bounding box: %+v", bb)
	}

	switch c.Cache.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func parseDurations(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
