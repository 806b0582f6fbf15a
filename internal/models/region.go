package models

import "time"

type Region struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Area        string     `json:"area,omitempty"` // administrative grouping, e.g. "Coast"
	Latitude    float64    `json:"lat"`
	Longitude   float64    `json:"lng"`
	RiskScore   int        `json:"risk_score"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

func (r *Region) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

type Refuge struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	RegionID  int64   `json:"region_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Capacity  int     `json:"capacity"`
	Type      string  `json:"type"` // Camp, Stadium, School...
}

type WorkerStatus string

const (
	WorkerStatusAvailable WorkerStatus = "available"
	WorkerStatusDeployed  WorkerStatus = "deployed"
)

// Worker is a field responder; its phone is an alert recipient for its region.
type Worker struct {
	ID                int64        `json:"id"`
	Name              string       `json:"name"`
	Role              string       `json:"role,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	RegionID          *int64       `json:"region_id,omitempty"`
	RegionName        string       `json:"region_name,omitempty"`
	Status            WorkerStatus `json:"status"`
	CurrentIncidentID *int64       `json:"current_incident_id,omitempty"`
}
