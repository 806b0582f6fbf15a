package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteDB {
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func addTestRegion(t *testing.T, db *SQLiteDB, name string, lat, lng float64) *models.Region {
	t.Helper()
	r := &models.Region{Name: name, Latitude: lat, Longitude: lng}
	if err := db.AddRegion(context.Background(), r); err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	return r
}

func TestSQLiteDB_Regions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	nairobi := addTestRegion(t, db, "Nairobi", -1.2921, 36.8219)
	addTestRegion(t, db, "Mombasa", -4.0435, 39.6682)

	regions, err := db.ListRegions(ctx)
	if err != nil {
		t.Fatalf("ListRegions failed: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].Name != "Nairobi" {
		t.Errorf("expected insertion order, got %s first", regions[0].Name)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := db.UpdateRegionRisk(ctx, nairobi.ID, 72, at); err != nil {
		t.Fatalf("UpdateRegionRisk failed: %v", err)
	}

	got, err := db.GetRegion(ctx, nairobi.ID)
	if err != nil {
		t.Fatalf("GetRegion failed: %v", err)
	}
	if got.RiskScore != 72 {
		t.Errorf("expected risk 72, got %d", got.RiskScore)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(at) {
		t.Errorf("expected last_updated %v, got %v", at, got.LastUpdated)
	}

	if _, err := db.GetRegion(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.UpdateRegionRisk(ctx, 999, 10, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown region, got %v", err)
	}
}

func TestSQLiteDB_AddAndGetIncident(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	region := addTestRegion(t, db, "Turkana", 3.1167, 35.5973)

	inc := &models.Incident{
		Type:        models.DisasterTypeDrought,
		Severity:    models.SeverityHigh,
		RegionID:    &region.ID,
		Location:    "Lodwar",
		Coordinates: &models.Coordinates{Latitude: 3.12, Longitude: 35.6},
		Description: "Boreholes dry",
		Source:      models.SourceFieldWorker,
	}
	if err := db.AddIncident(ctx, inc); err != nil {
		t.Fatalf("AddIncident failed: %v", err)
	}
	if inc.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	got, err := db.GetIncident(ctx, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}
	if got.Status != models.IncidentStatusActive {
		t.Errorf("expected active status, got %s", got.Status)
	}
	if got.RegionName != "Turkana" {
		t.Errorf("expected region name Turkana, got %q", got.RegionName)
	}
	if got.Coordinates == nil || got.Coordinates.Latitude != 3.12 {
		t.Errorf("unexpected coordinates: %+v", got.Coordinates)
	}

	if _, err := db.GetIncident(ctx, 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_ListIncidents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	types := []models.DisasterType{models.DisasterTypeFlood, models.DisasterTypeEarthquake, models.DisasterTypeFlood}
	for i, typ := range types {
		db.AddIncident(ctx, &models.Incident{
			Type:       typ,
			Severity:   models.SeverityMedium,
			Source:     models.SourceManual,
			ReportedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, err := db.ListIncidents(ctx, IncidentFilter{})
	if err != nil {
		t.Fatalf("ListIncidents failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(all))
	}
	if !all[0].ReportedAt.After(all[2].ReportedAt) {
		t.Error("expected newest first")
	}

	flood := models.DisasterTypeFlood
	floods, _ := db.ListIncidents(ctx, IncidentFilter{Type: &flood})
	if len(floods) != 2 {
		t.Errorf("expected 2 floods, got %d", len(floods))
	}

	limited, _ := db.ListIncidents(ctx, IncidentFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected 1 with limit, got %d", len(limited))
	}

	db.ResolveIncident(ctx, all[0].ID, time.Now())
	active := models.IncidentStatusActive
	stillActive, _ := db.ListIncidents(ctx, IncidentFilter{Status: &active})
	if len(stillActive) != 2 {
		t.Errorf("expected 2 active, got %d", len(stillActive))
	}
}

func TestSQLiteDB_ResolveIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	inc := &models.Incident{Type: models.DisasterTypeFlood, Severity: models.SeverityLow, Source: models.SourceManual}
	db.AddIncident(ctx, inc)

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := db.ResolveIncident(ctx, inc.ID, first); err != nil {
		t.Fatalf("ResolveIncident failed: %v", err)
	}
	// Second resolve is a no-op and must not move resolved_at.
	if err := db.ResolveIncident(ctx, inc.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("second ResolveIncident failed: %v", err)
	}

	got, _ := db.GetIncident(ctx, inc.ID)
	if got.Status != models.IncidentStatusResolved {
		t.Errorf("expected resolved, got %s", got.Status)
	}
	if got.ResolvedAt == nil || !got.ResolvedAt.Equal(first) {
		t.Errorf("expected resolved_at %v, got %v", first, got.ResolvedAt)
	}

	if err := db.ResolveIncident(ctx, 999, first); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteDB_HasActiveAtPoint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	inc := &models.Incident{
		Type:        models.DisasterTypeEarthquake,
		Severity:    models.SeverityMedium,
		Coordinates: &models.Coordinates{Latitude: -0.4512, Longitude: 36.1234},
		Source:      models.SourceUSGS,
	}
	db.AddIncident(ctx, inc)

	tests := []struct {
		name string
		typ  models.DisasterType
		lat  float64
		lng  float64
		want bool
	}{
		{"same point", models.DisasterTypeEarthquake, -0.4512, 36.1234, true},
		{"same after rounding", models.DisasterTypeEarthquake, -0.4498, 36.1201, true},
		{"different point", models.DisasterTypeEarthquake, -0.47, 36.12, false},
		{"different type", models.DisasterTypeFlood, -0.4512, 36.1234, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.HasActiveAtPoint(ctx, tt.typ, tt.lat, tt.lng)
			if err != nil {
				t.Fatalf("HasActiveAtPoint failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	db.ResolveIncident(ctx, inc.ID, time.Now())
	got, _ := db.HasActiveAtPoint(ctx, models.DisasterTypeEarthquake, -0.4512, 36.1234)
	if got {
		t.Error("resolved incident should not count as active")
	}
}

func TestSQLiteDB_HasActiveInLatitudeBand(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	db.AddIncident(ctx, &models.Incident{
		Type:        models.DisasterTypeWildfire,
		Severity:    models.SeverityHigh,
		Coordinates: &models.Coordinates{Latitude: 2.3, Longitude: 37.9},
		Source:      models.SourceFIRMS,
	})

	inBand, _ := db.HasActiveInLatitudeBand(ctx, models.DisasterTypeWildfire, 1.9, 2.9)
	if !inBand {
		t.Error("expected wildfire inside band")
	}
	outside, _ := db.HasActiveInLatitudeBand(ctx, models.DisasterTypeWildfire, 2.5, 3.5)
	if outside {
		t.Error("expected no wildfire outside band")
	}
}

func TestSQLiteDB_WorkersAndRefuges(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	region := addTestRegion(t, db, "Kisumu", -0.0917, 34.768)
	other := addTestRegion(t, db, "Garissa", -0.4532, 39.6461)

	db.AddWorker(ctx, &models.Worker{Name: "Achieng", Role: "Medic", Phone: "0712345678", RegionID: &region.ID})
	db.AddWorker(ctx, &models.Worker{Name: "Otieno", Role: "Logistics", RegionID: &region.ID})
	db.AddWorker(ctx, &models.Worker{Name: "Hassan", Phone: "0799999999", RegionID: &other.ID})

	phones, err := db.PhonesForRegion(ctx, region.ID)
	if err != nil {
		t.Fatalf("PhonesForRegion failed: %v", err)
	}
	if len(phones) != 1 || phones[0] != "0712345678" {
		t.Errorf("unexpected phones: %v", phones)
	}

	db.AddRefuge(ctx, &models.Refuge{Name: "Kisumu Stadium", RegionID: region.ID, Capacity: 2000, Type: "Stadium"})
	refuges, err := db.RefugesForRegion(ctx, region.ID)
	if err != nil {
		t.Fatalf("RefugesForRegion failed: %v", err)
	}
	if len(refuges) != 1 || refuges[0].Capacity != 2000 {
		t.Errorf("unexpected refuges: %+v", refuges)
	}

	inc := &models.Incident{Type: models.DisasterTypeFlood, Severity: models.SeverityHigh, RegionID: &region.ID, Source: models.SourceManual}
	db.AddIncident(ctx, inc)

	workers, _ := db.ListWorkers(ctx)
	if err := db.DispatchWorker(ctx, workers[0].ID, inc.ID); err != nil {
		t.Fatalf("DispatchWorker failed: %v", err)
	}
	w, _ := db.GetWorker(ctx, workers[0].ID)
	if w.Status != models.WorkerStatusDeployed {
		t.Errorf("expected deployed, got %s", w.Status)
	}
	if w.CurrentIncidentID == nil || *w.CurrentIncidentID != inc.ID {
		t.Errorf("expected current incident %d, got %v", inc.ID, w.CurrentIncidentID)
	}
	if w.RegionName != "Kisumu" {
		t.Errorf("expected region name Kisumu, got %q", w.RegionName)
	}

	if err := db.DispatchWorker(ctx, 999, inc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown worker, got %v", err)
	}
	if err := db.DispatchWorker(ctx, workers[0].ID, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown incident, got %v", err)
	}
}

func TestSQLiteDB_Alerts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	inc := &models.Incident{Type: models.DisasterTypeFlood, Severity: models.SeverityHigh, Source: models.SourceManual}
	db.AddIncident(ctx, inc)

	rec := &models.AlertRecord{
		IncidentID:     inc.ID,
		MessageEN:      "Flood alert",
		MessageSW:      "Tahadhari ya mafuriko",
		RecipientCount: 0,
		SentAt:         time.Now(),
		Status:         models.AlertStatusNoRecipients,
	}
	if err := db.AddAlert(ctx, rec); err != nil {
		t.Fatalf("AddAlert failed: %v", err)
	}

	alerts, err := db.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].RecipientCount != 0 || alerts[0].Status != models.AlertStatusNoRecipients {
		t.Errorf("unexpected alert: %+v", alerts[0])
	}
}

func TestSQLiteDB_Cache(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if _, ok, _ := db.GetCache(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	if err := db.SetCache(ctx, "predictions", []byte(`[1,2]`), time.Minute); err != nil {
		t.Fatalf("SetCache failed: %v", err)
	}
	got, ok, err := db.GetCache(ctx, "predictions")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != `[1,2]` {
		t.Errorf("unexpected payload %s", got)
	}

	db.SetCache(ctx, "stale", []byte(`{}`), -time.Second)
	if _, ok, _ := db.GetCache(ctx, "stale"); ok {
		t.Error("expected expired entry to miss")
	}
}
