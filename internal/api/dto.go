package api

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mr1hm/go-hazard-watch/internal/analysis"
	"github.com/mr1hm/go-hazard-watch/internal/models"
)

type incidentQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=active resolved"`
	Type     string `form:"type" validate:"omitempty,disaster_type"`
	RegionID int64  `form:"region_id" validate:"omitempty,gt=0"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" validate:"omitempty,min=0"`
}

// ReportRequest is a manual incident report from the field or an operator.
type ReportRequest struct {
	Type           string   `json:"type" validate:"required,disaster_type"`
	Severity       string   `json:"severity" validate:"omitempty,severity"`
	RegionID       *int64   `json:"region_id" validate:"omitempty,gt=0"`
	Location       string   `json:"location" validate:"required,min=2,max=200"`
	Latitude       *float64 `json:"lat" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude      *float64 `json:"lng" validate:"required_with=Latitude,omitempty,longitude"`
	AffectedPeople int      `json:"affected_people" validate:"gte=0"`
	Description    string   `json:"description" validate:"max=2000"`
	Source         string   `json:"source" validate:"omitempty,oneof=field_worker manual"`
}

type DispatchWorkerRequest struct {
	WorkerID   int64 `json:"worker_id" validate:"required,gt=0"`
	IncidentID int64 `json:"incident_id" validate:"required,gt=0"`
}

type AlertRequest struct {
	IncidentID int64  `json:"incident_id" validate:"required,gt=0"`
	RegionID   *int64 `json:"region_id" validate:"omitempty,gt=0"`
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}

type RegionResponse struct {
	models.Region
	Refuges []models.Refuge `json:"refuges"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("disaster_type", func(fl validator.FieldLevel) bool {
		t := models.DisasterType(fl.Field().String())
		return t.Valid() && t != models.DisasterTypeNone
	})
	v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return models.Severity(fl.Field().String()).Valid()
	})
	return v
}

// canonical maps any casing of an enum value onto its stored spelling, so
// "flood" and "FLOOD" both mean Flood.
func canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func (r ReportRequest) toIncident() *models.Incident {
	inc := &models.Incident{
		Type:           models.DisasterType(r.Type),
		Severity:       models.Severity(r.Severity),
		RegionID:       r.RegionID,
		Location:       strings.TrimSpace(r.Location),
		AffectedPeople: r.AffectedPeople,
		Description:    strings.TrimSpace(r.Description),
		Source:         r.Source,
	}
	if r.Latitude != nil && r.Longitude != nil {
		inc.Coordinates = &models.Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	return inc
}

func (r ChatRequest) toMessages() []analysis.ChatMessage {
	out := make([]analysis.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = analysis.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
