package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/cache"
	"github.com/mr1hm/go-hazard-watch/internal/models"
)

const (
	horizonDays = 3

	floodDayMM      = 50.0
	floodWindowMM   = 80.0
	floodWatchDayMM = 25.0
	floodWatchMM    = 40.0
	dryWindowMM     = 1.0
	heatC           = 35.0
	extremeHeatC    = 38.0
	stormWindKMH    = 60.0
)

var timelines = [horizonDays]string{"within 24hrs", "within 48hrs", "within 72hrs"}

var recommendedActions = map[string]string{
	"Flood":   "Pre-position boats and deploy rescue teams",
	"Drought": "Activate water trucking and food aid distribution",
	"Storm":   "Secure shelters and warn communities to stay indoors",
}

type Prediction struct {
	Region            string `json:"region"`
	Threat            string `json:"threat"`
	Probability       string `json:"probability"`
	EstimatedTime     string `json:"estimated_time"`
	RecommendedAction string `json:"recommended_action"`
}

type PredictionSet struct {
	Predictions []Prediction `json:"predictions"`
	GeneratedAt time.Time    `json:"generated_at"`
	Fallback    bool         `json:"fallback,omitempty"`
	Confidence  string       `json:"confidence,omitempty"`
}

type RegionForecast struct {
	Region   string               `json:"region"`
	Area     string               `json:"area,omitempty"`
	Forecast models.ForecastDaily `json:"forecast"`
}

// Predict forecasts likely disasters in the next 72 hours. Model answers are
// cached; fallback answers are not, so the next call retries the model.
func (s *Service) Predict(ctx context.Context) (PredictionSet, error) {
	if s.cache != nil {
		if set, ok, err := cache.GetJSON[PredictionSet](ctx, s.cache, predictionsCacheKey); err != nil {
			s.logger.Warn("prediction cache read failed", "error", err)
		} else if ok {
			return set, nil
		}
	}

	forecasts, err := s.collectForecasts(ctx)
	if err != nil {
		return PredictionSet{}, err
	}

	set := PredictionSet{GeneratedAt: s.clock.Now().UTC()}
	preds, err := s.predictWithModel(ctx, forecasts)
	if err != nil {
		s.fellBack("prediction", err)
		set.Predictions = FallbackPredictions(forecasts)
		set.Fallback = true
		set.Confidence = string(models.ConfidenceLow)
		return set, nil
	}
	set.Predictions = preds

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, predictionsCacheKey, set, s.cacheTTL); err != nil {
			s.logger.Warn("prediction cache write failed", "error", err)
		}
	}
	return set, nil
}

func (s *Service) collectForecasts(ctx context.Context) ([]RegionForecast, error) {
	regions, err := s.store.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	if len(regions) > s.regionLimit {
		regions = regions[:s.regionLimit]
	}

	results := make([]models.Forecast, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchParallel)
	for i, r := range regions {
		g.Go(func() error {
			results[i] = s.forecaster.Fetch(gctx, r.Latitude, r.Longitude)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]RegionForecast, 0, len(regions))
	for i, r := range regions {
		if results[i].Empty() {
			continue
		}
		out = append(out, RegionForecast{Region: r.Name, Area: r.Area, Forecast: results[i].Daily})
	}
	return out, nil
}

func (s *Service) predictWithModel(ctx context.Context, forecasts []RegionForecast) ([]Prediction, error) {
	data, err := json.MarshalIndent(forecasts, "", "  ")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are a disaster prediction AI for Kenya's National Disaster Management Authority.
Analyse the following 7-day daily forecasts and identify which regions are likely to experience a disaster in the next 72 hours.

Forecasts:
%s

Respond with ONLY a valid JSON array (no markdown) of regions at risk:
[
  {
    "region": "<region name>",
    "threat": "<Flood|Drought|Wildfire|Landslide|Storm>",
    "probability": "<High|Medium|Low>",
    "estimated_time": "<within 24hrs|within 48hrs|within 72hrs>",
    "recommended_action": "<brief NDMA action>"
  }
]
Return an empty array [] if no threats are identified.`, data)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var preds []Prediction
	if err := ai.ExtractJSON(text, &preds); err != nil {
		return nil, err
	}

	out := preds[:0]
	for _, p := range preds {
		if strings.TrimSpace(p.Region) == "" || strings.TrimSpace(p.Threat) == "" {
			continue
		}
		out = append(out, p)
	}
	if out == nil {
		out = []Prediction{}
	}
	return out, nil
}

// FallbackPredictions applies fixed rainfall, heat and wind thresholds to
// the first three forecast days of each region.
func FallbackPredictions(forecasts []RegionForecast) []Prediction {
	preds := []Prediction{}
	for _, f := range forecasts {
		if p, ok := thresholdPrediction(f); ok {
			preds = append(preds, p)
		}
	}
	return preds
}

func thresholdPrediction(f RegionForecast) (Prediction, bool) {
	d := f.Forecast
	var (
		rainTotal, rainPeak, tempPeak, windPeak float64
		rainDay, tempDay, windDay               int
	)
	for i := 0; i < horizonDays; i++ {
		if i < len(d.PrecipitationSum) {
			rainTotal += d.PrecipitationSum[i]
			if d.PrecipitationSum[i] > rainPeak {
				rainPeak, rainDay = d.PrecipitationSum[i], i
			}
		}
		if i < len(d.TemperatureMax) && d.TemperatureMax[i] > tempPeak {
			tempPeak, tempDay = d.TemperatureMax[i], i
		}
		if i < len(d.WindSpeedMax) && d.WindSpeedMax[i] > windPeak {
			windPeak, windDay = d.WindSpeedMax[i], i
		}
	}

	p := Prediction{Region: f.Region}
	switch {
	case rainPeak >= floodDayMM || rainTotal >= floodWindowMM:
		p.Threat, p.Probability, p.EstimatedTime = "Flood", "High", timelines[rainDay]
	case rainPeak >= floodWatchDayMM || rainTotal >= floodWatchMM:
		p.Threat, p.Probability, p.EstimatedTime = "Flood", "Medium", timelines[rainDay]
	case rainTotal < dryWindowMM && tempPeak >= extremeHeatC:
		p.Threat, p.Probability, p.EstimatedTime = "Drought", "High", timelines[tempDay]
	case rainTotal < dryWindowMM && tempPeak >= heatC:
		p.Threat, p.Probability, p.EstimatedTime = "Drought", "Medium", timelines[tempDay]
	case windPeak >= stormWindKMH:
		p.Threat, p.Probability, p.EstimatedTime = "Storm", "Medium", timelines[windDay]
	default:
		return Prediction{}, false
	}
	p.RecommendedAction = recommendedActions[p.Threat]
	return p, true
}

type Warning struct {
	ID       string `json:"id"`
	Region   string `json:"region"`
	Threat   string `json:"threat"`
	Timeline string `json:"timeline"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

type WarningSet struct {
	Warnings    []Warning `json:"warnings"`
	GeneratedAt time.Time `json:"generated_at"`
	Fallback    bool      `json:"fallback,omitempty"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Warnings narrows the predictions to High and Medium probability.
func (s *Service) Warnings(ctx context.Context) (WarningSet, error) {
	set, err := s.Predict(ctx)
	if err != nil {
		return WarningSet{}, err
	}

	out := WarningSet{Warnings: []Warning{}, GeneratedAt: set.GeneratedAt, Fallback: set.Fallback}
	for _, p := range set.Predictions {
		if p.Probability != "High" && p.Probability != "Medium" {
			continue
		}
		id := "warn_" + strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(p.Region+"_"+p.Threat), "_"), "_")
		out.Warnings = append(out.Warnings, Warning{
			ID:       id,
			Region:   p.Region,
			Threat:   p.Threat,
			Timeline: p.EstimatedTime,
			Severity: p.Probability,
			Action:   p.RecommendedAction,
		})
	}
	return out, nil
}
