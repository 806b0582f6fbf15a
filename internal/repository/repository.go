package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

var ErrNotFound = errors.New("not found")

type IncidentFilter struct {
	Limit    int
	Offset   int
	Status   *models.IncidentStatus
	Type     *models.DisasterType
	RegionID *int64
}

type RegionRepository interface {
	AddRegion(ctx context.Context, r *models.Region) error
	GetRegion(ctx context.Context, id int64) (*models.Region, error)
	ListRegions(ctx context.Context) ([]models.Region, error)
	UpdateRegionRisk(ctx context.Context, id int64, score int, at time.Time) error
}

type IncidentRepository interface {
	AddIncident(ctx context.Context, i *models.Incident) error
	GetIncident(ctx context.Context, id int64) (*models.Incident, error)
	ListIncidents(ctx context.Context, opts IncidentFilter) ([]models.Incident, error)
	ResolveIncident(ctx context.Context, id int64, at time.Time) error
	HasActiveAtPoint(ctx context.Context, t models.DisasterType, lat, lng float64) (bool, error)
	HasActiveInLatitudeBand(ctx context.Context, t models.DisasterType, minLat, maxLat float64) (bool, error)
}

type RefugeRepository interface {
	AddRefuge(ctx context.Context, r *models.Refuge) error
	RefugesForRegion(ctx context.Context, regionID int64) ([]models.Refuge, error)
}

type WorkerRepository interface {
	AddWorker(ctx context.Context, w *models.Worker) error
	GetWorker(ctx context.Context, id int64) (*models.Worker, error)
	ListWorkers(ctx context.Context) ([]models.Worker, error)
	PhonesForRegion(ctx context.Context, regionID int64) ([]string, error)
	DispatchWorker(ctx context.Context, workerID, incidentID int64) error
}

type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.AlertRecord) error
	ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

type CacheRepository interface {
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store is everything the HTTP surface reads and writes.
type Store interface {
	RegionRepository
	IncidentRepository
	RefugeRepository
	WorkerRepository
	AlertRepository
}
