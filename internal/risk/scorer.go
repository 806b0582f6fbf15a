// Package risk turns a weather reading into a region risk assessment.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
)

// Thresholds embedded in the prompt and used by the fallback.
const (
	FloodRainfallMM     = 20.0
	DroughtRainfallMM   = 2.0
	DroughtTemperatureC = 30.0
	FireTemperatureC    = 35.0
	FireHumidityPct     = 30.0
	heatBaselineC       = 32.0
	maxJitter           = 10
)

// RiskWriter persists a region's score.
type RiskWriter interface {
	UpdateRegionRisk(ctx context.Context, id int64, score int, at time.Time) error
}

// Jitter returns a bounded random addend for the fallback score.
type Jitter func() float64

type Scorer struct {
	gen     ai.Generator
	store   RiskWriter
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	jitter Jitter
}

func NewScorer(gen ai.Generator, store RiskWriter, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Scorer {
	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return &Scorer{
		gen:     gen,
		store:   store,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		jitter:  func() float64 { return rnd.Float64() * maxJitter },
	}
}

// WithJitter replaces the fallback jitter source.
func (s *Scorer) WithJitter(j Jitter) *Scorer {
	s.jitter = j
	return s
}

// Score assesses one region and writes the result onto it. The assessment is
// returned even when the write fails.
func (s *Scorer) Score(ctx context.Context, region models.Region, reading models.WeatherReading) (models.RiskAssessment, error) {
	assessment, err := s.assess(ctx, region.Name, reading)
	if err != nil {
		s.logger.Warn("risk scoring fell back", "region", region.Name, "error", err)
		if s.metrics != nil {
			s.metrics.AIFallbacks.WithLabelValues("risk").Inc()
		}
		assessment = s.Fallback(region.Name, reading)
	}

	if err := s.store.UpdateRegionRisk(ctx, region.ID, assessment.Score, s.clock.Now()); err != nil {
		return assessment, fmt.Errorf("persist risk for %s: %w", region.Name, err)
	}
	return assessment, nil
}

func (s *Scorer) assess(ctx context.Context, region string, reading models.WeatherReading) (models.RiskAssessment, error) {
	text, err := s.gen.Generate(ctx, buildPrompt(region, reading))
	if err != nil {
		return models.RiskAssessment{}, err
	}

	var raw struct {
		Score        json.Number `json:"risk_score"`
		DisasterType string      `json:"disaster_type"`
		Confidence   string      `json:"confidence"`
		Reasoning    string      `json:"reasoning"`
	}
	if err := ai.ExtractJSON(text, &raw); err != nil {
		return models.RiskAssessment{}, err
	}
	score, err := raw.Score.Float64()
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("%w: risk_score %q", ai.ErrService, raw.Score)
	}

	a := models.RiskAssessment{
		Score:        Clamp(int(min(max(score, -1), 101))),
		DisasterType: models.DisasterType(raw.DisasterType),
		Confidence:   models.Confidence(raw.Confidence),
		Reasoning:    raw.Reasoning,
	}
	if !a.DisasterType.Valid() {
		a.DisasterType = models.DisasterTypeNone
	}
	if !a.Confidence.Valid() {
		a.Confidence = models.ConfidenceLow
	}
	return a, nil
}

// Fallback scores from rainfall and heat alone.
func (s *Scorer) Fallback(region string, r models.WeatherReading) models.RiskAssessment {
	s.mu.Lock()
	jitter := s.jitter()
	s.mu.Unlock()

	raw := r.RainfallMM*2.5 + max(0, r.TemperatureC-heatBaselineC)*1.5 + jitter
	return models.RiskAssessment{
		Score:        Clamp(int(raw)),
		DisasterType: inferType(r),
		Confidence:   models.ConfidenceLow,
		Reasoning:    fmt.Sprintf("Rule-based estimate: rainfall %.1fmm, temperature %.1f°C in %s.", r.RainfallMM, r.TemperatureC, region),
		Fallback:     true,
	}
}

func inferType(r models.WeatherReading) models.DisasterType {
	switch {
	case r.RainfallMM > FloodRainfallMM:
		return models.DisasterTypeFlood
	case r.TemperatureC > FireTemperatureC && r.Humidity < FireHumidityPct:
		return models.DisasterTypeWildfire
	case r.RainfallMM < DroughtRainfallMM && r.TemperatureC > DroughtTemperatureC:
		return models.DisasterTypeDrought
	default:
		return models.DisasterTypeNone
	}
}

func Clamp(score int) int {
	return min(100, max(0, score))
}

func buildPrompt(region string, r models.WeatherReading) string {
	data, _ := json.MarshalIndent(r, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "You are a disaster risk analyst for Kenya's National Disaster Management Authority.\n")
	fmt.Fprintf(&b, "Assess the hazard risk for %s from this weather reading:\n%s\n\n", region, data)
	b.WriteString("Reference thresholds:\n")
	fmt.Fprintf(&b, "- rainfall above %.0fmm in an hour indicates flood risk\n", FloodRainfallMM)
	fmt.Fprintf(&b, "- temperature above %.0f°C with humidity below %.0f%% indicates wildfire risk\n", FireTemperatureC, FireHumidityPct)
	fmt.Fprintf(&b, "- rainfall below %.0fmm with temperature above %.0f°C indicates drought risk\n\n", DroughtRainfallMM, DroughtTemperatureC)
	b.WriteString(`Respond with ONLY valid JSON (no markdown):
{
  "risk_score": <integer 0-100>,
  "disaster_type": "<Flood|Drought|Wildfire|Earthquake|Landslide|None>",
  "confidence": "<High|Medium|Low>",
  "reasoning": "<one sentence explanation>"
}`)
	return b.String()
}
