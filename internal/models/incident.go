package models

import "time"

type IncidentStatus string

const (
	IncidentStatusActive   IncidentStatus = "active"
	IncidentStatusResolved IncidentStatus = "resolved"
)

// Provenance tags for incidents.
const (
	SourceUSGS        = "usgs"
	SourceFIRMS       = "nasa_firms"
	SourceFieldWorker = "field_worker"
	SourceManual      = "manual"
)

type Incident struct {
	ID             int64          `json:"id"`
	Type           DisasterType   `json:"type"`
	Severity       Severity       `json:"severity"`
	RegionID       *int64         `json:"region_id,omitempty"`
	RegionName     string         `json:"region_name,omitempty"`
	Location       string         `json:"location"`
	Coordinates    *Coordinates   `json:"coordinates,omitempty"`
	AffectedPeople int            `json:"affected_people"`
	Description    string         `json:"description"`
	Source         string         `json:"source"`
	Status         IncidentStatus `json:"status"`
	ReportedAt     time.Time      `json:"reported_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

func (i *Incident) Active() bool {
	return i.Status == IncidentStatusActive
}

type AlertStatus string

const (
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusPartial      AlertStatus = "partial"
	AlertStatusFailed       AlertStatus = "failed"
	AlertStatusNoRecipients AlertStatus = "no_recipients"
)

// AlertRecord is the append-only audit entry written once per dispatch.
type AlertRecord struct {
	ID             int64       `json:"id"`
	IncidentID     int64       `json:"incident_id"`
	MessageEN      string      `json:"message_en"`
	MessageSW      string      `json:"message_sw"`
	RecipientCount int         `json:"recipients_count"` // attempted
	DeliveredCount int         `json:"delivered_count"`  // as reported by the gateway
	SentAt         time.Time   `json:"sent_at"`
	Status         AlertStatus `json:"status"`
}
