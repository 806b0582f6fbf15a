package models

type DisasterType string

const (
	DisasterTypeFlood      DisasterType = "Flood"
	DisasterTypeDrought    DisasterType = "Drought"
	DisasterTypeWildfire   DisasterType = "Wildfire"
	DisasterTypeEarthquake DisasterType = "Earthquake"
	DisasterTypeLandslide  DisasterType = "Landslide"
	DisasterTypeNone       DisasterType = "None"
)

var disasterTypes = map[DisasterType]bool{
	DisasterTypeFlood:      true,
	DisasterTypeDrought:    true,
	DisasterTypeWildfire:   true,
	DisasterTypeEarthquake: true,
	DisasterTypeLandslide:  true,
	DisasterTypeNone:       true,
}

func (t DisasterType) Valid() bool {
	return disasterTypes[t]
}

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}
