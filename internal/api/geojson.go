package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

// toGeoJSON renders incidents as map points. Incidents without coordinates
// cannot be placed and are left out.
func toGeoJSON(incidents []models.Incident) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, inc := range incidents {
		if inc.Coordinates == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{inc.Coordinates.Longitude, inc.Coordinates.Latitude})
		f.ID = inc.ID
		f.Properties["type"] = string(inc.Type)
		f.Properties["severity"] = string(inc.Severity)
		f.Properties["status"] = string(inc.Status)
		f.Properties["location"] = inc.Location
		f.Properties["affected_people"] = inc.AffectedPeople
		f.Properties["description"] = inc.Description
		f.Properties["source"] = inc.Source
		f.Properties["reported_at"] = inc.ReportedAt
		if inc.RegionID != nil {
			f.Properties["region_id"] = *inc.RegionID
			f.Properties["region_name"] = inc.RegionName
		}
		if inc.ResolvedAt != nil {
			f.Properties["resolved_at"] = *inc.ResolvedAt
		}
		fc.Append(f)
	}

	return fc
}
