package models

import "time"

// HazardObservation is a raw reading from one external feed. It lives for a
// single cycle and is never persisted.
type HazardObservation struct {
	Source     string
	Latitude   float64
	Longitude  float64
	Magnitude  float64  // Richter magnitude for quakes, brightness (K) for hotspots
	Depth      *float64 // km, quakes only
	Place      string
	Severity   Severity
	Confidence string // hotspot detection confidence
	ObservedAt time.Time
}

type WeatherReading struct {
	Region       string    `json:"region"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lng"`
	TemperatureC float64   `json:"temp_c"`
	Humidity     float64   `json:"humidity"`
	WindSpeed    float64   `json:"wind_speed"`
	Description  string    `json:"description"`
	RainfallMM   float64   `json:"rainfall_mm"`
	Synthetic    bool      `json:"synthetic,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

type ForecastDaily struct {
	Time             []string  `json:"time"`
	PrecipitationSum []float64 `json:"precipitation_sum"`
	TemperatureMax   []float64 `json:"temperature_2m_max"`
	TemperatureMin   []float64 `json:"temperature_2m_min"`
	WindSpeedMax     []float64 `json:"windspeed_10m_max"`
}

// Forecast is a 7-day daily outlook; the zero value means "unavailable".
type Forecast struct {
	Latitude  float64       `json:"latitude"`
	Longitude float64       `json:"longitude"`
	Daily     ForecastDaily `json:"daily"`
}

func (f Forecast) Empty() bool {
	return len(f.Daily.Time) == 0 && len(f.Daily.PrecipitationSum) == 0
}

type RiskAssessment struct {
	Score        int          `json:"risk_score"`
	DisasterType DisasterType `json:"disaster_type"`
	Confidence   Confidence   `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
	Fallback     bool         `json:"-"`
}
