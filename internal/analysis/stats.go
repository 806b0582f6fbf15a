package analysis

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
)

type Stats struct {
	ActiveIncidents  int `json:"active_incidents"`
	TotalIncidents   int `json:"total_incidents"`
	TotalAffected    int `json:"total_affected"`
	DeployedWorkers  int `json:"deployed_workers"`
	AvailableWorkers int `json:"available_workers"`
	HighRiskRegions  int `json:"high_risk_regions"`
	RegionsMonitored int `json:"regions_monitored"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	stats, _, err := s.snapshot(ctx)
	return stats, err
}

// snapshot returns the stats together with the active incidents they were
// computed from.
func (s *Service) snapshot(ctx context.Context) (Stats, []models.Incident, error) {
	var st Stats

	incidents, err := s.store.ListIncidents(ctx, repository.IncidentFilter{})
	if err != nil {
		return st, nil, fmt.Errorf("list incidents: %w", err)
	}
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return st, nil, fmt.Errorf("list workers: %w", err)
	}
	regions, err := s.store.ListRegions(ctx)
	if err != nil {
		return st, nil, fmt.Errorf("list regions: %w", err)
	}

	var active []models.Incident
	for _, inc := range incidents {
		if inc.Active() {
			active = append(active, inc)
			st.TotalAffected += inc.AffectedPeople
		}
	}
	st.ActiveIncidents = len(active)
	st.TotalIncidents = len(incidents)

	for _, w := range workers {
		switch w.Status {
		case models.WorkerStatusDeployed:
			st.DeployedWorkers++
		case models.WorkerStatusAvailable:
			st.AvailableWorkers++
		}
	}
	for _, r := range regions {
		if r.RiskScore >= HighRiskScore {
			st.HighRiskRegions++
		}
	}
	st.RegionsMonitored = len(regions)

	return st, active, nil
}
