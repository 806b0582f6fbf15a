package incidents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
)

var defaultRules = Rules{
	QuakeLimit:            5,
	MinQuakeMagnitude:     3.5,
	FireClusterMin:        5,
	FireHighThreshold:     20,
	FireLatitudeTolerance: 0.5,
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []*models.Incident
}

func (n *recordingNotifier) IncidentCreated(inc *models.Incident) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, inc)
}

func setup(t *testing.T) (*Registrar, *repository.SQLiteDB, *recordingNotifier) {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AddRegion(context.Background(), &models.Region{Name: "Marsabit", Latitude: 2.33, Longitude: 37.99}))

	n := &recordingNotifier{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 6, 0, 0, 0, time.UTC))
	r := NewRegistrar(db, n, defaultRules, clock, observability.NewMetricsForTesting(), logging.Discard())
	return r, db, n
}

func quake(mag, lat, lng float64) models.HazardObservation {
	depth := 10.0
	return models.HazardObservation{
		Source:    models.SourceUSGS,
		Latitude:  lat,
		Longitude: lng,
		Magnitude: mag,
		Depth:     &depth,
		Place:     "near Marsabit",
		Severity:  models.SeverityMedium,
	}
}

func hotspots(n int) []models.HazardObservation {
	spots := make([]models.HazardObservation, n)
	for i := range spots {
		spots[i] = models.HazardObservation{
			Source:    models.SourceFIRMS,
			Latitude:  2.30 + float64(i)*0.01,
			Longitude: 37.95,
			Magnitude: 330,
		}
	}
	return spots
}

func countIncidents(t *testing.T, db *repository.SQLiteDB, typ models.DisasterType) int {
	t.Helper()
	list, err := db.ListIncidents(context.Background(), repository.IncidentFilter{Type: &typ})
	require.NoError(t, err)
	return len(list)
}

func TestRegisterQuakes_DedupAcrossCycles(t *testing.T) {
	r, db, n := setup(t)
	ctx := context.Background()

	// Same event seen by two cycles, second time with jitter below the rounding grid.
	created, err := r.RegisterQuakes(ctx, []models.HazardObservation{quake(4.2, 2.5112, 37.9831)})
	require.NoError(t, err)
	require.Len(t, created, 1)

	created, err = r.RegisterQuakes(ctx, []models.HazardObservation{quake(4.2, 2.5098, 37.9849)})
	require.NoError(t, err)
	assert.Empty(t, created)

	assert.Equal(t, 1, countIncidents(t, db, models.DisasterTypeEarthquake))
	assert.Len(t, n.created, 1)
}

func TestRegisterQuakes_Filters(t *testing.T) {
	r, db, _ := setup(t)

	events := []models.HazardObservation{
		quake(3.4, 1.0, 36.0), // below magnitude
		quake(3.5, 1.1, 36.1),
		quake(5.6, 1.2, 36.2),
		quake(4.0, 1.3, 36.3),
		quake(4.0, 1.4, 36.4),
		quake(4.0, 1.5, 36.5), // beyond the first five
	}
	created, err := r.RegisterQuakes(context.Background(), events)
	require.NoError(t, err)
	assert.Len(t, created, 4)
	assert.Equal(t, 4, countIncidents(t, db, models.DisasterTypeEarthquake))
}

func TestRegisterQuakes_ResolvedDoesNotBlockNewIncident(t *testing.T) {
	r, db, _ := setup(t)
	ctx := context.Background()

	created, err := r.RegisterQuakes(ctx, []models.HazardObservation{quake(4.5, 0.5, 36.0)})
	require.NoError(t, err)
	require.NoError(t, db.ResolveIncident(ctx, created[0].ID, time.Now()))

	again, err := r.RegisterQuakes(ctx, []models.HazardObservation{quake(4.5, 0.5, 36.0)})
	require.NoError(t, err)
	assert.Len(t, again, 1)

	old, err := db.GetIncident(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusResolved, old.Status)
}

func TestRegisterQuakes_AssignsNearestRegion(t *testing.T) {
	r, _, _ := setup(t)

	created, err := r.RegisterQuakes(context.Background(), []models.HazardObservation{
		quake(4.0, 2.40, 38.0),  // ~8km from Marsabit
		quake(4.0, -4.0, 39.6), // far south
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.NotNil(t, created[0].RegionID)
	assert.Equal(t, "Marsabit", created[0].RegionName)
	assert.Nil(t, created[1].RegionID)
	assert.Contains(t, created[0].Description, "M4.0 earthquake at depth 10km")
}

func TestRegisterFireCluster_Severity(t *testing.T) {
	tests := []struct {
		name         string
		count        int
		wantIncident bool
		wantSeverity models.Severity
	}{
		{"large cluster", 25, true, models.SeverityHigh},
		{"medium cluster", 8, true, models.SeverityMedium},
		{"exactly high threshold", 20, true, models.SeverityMedium},
		{"at cluster minimum", 5, false, ""},
		{"small batch", 3, false, ""},
		{"empty", 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, db, _ := setup(t)

			inc, err := r.RegisterFireCluster(context.Background(), hotspots(tt.count))
			require.NoError(t, err)

			if !tt.wantIncident {
				assert.Nil(t, inc)
				assert.Zero(t, countIncidents(t, db, models.DisasterTypeWildfire))
				return
			}
			require.NotNil(t, inc)
			assert.Equal(t, tt.wantSeverity, inc.Severity)
			assert.Equal(t, 2.30, inc.Coordinates.Latitude, "first hotspot represents the cluster")
			assert.Equal(t, "Marsabit", inc.Location)
			assert.Equal(t, models.SourceFIRMS, inc.Source)
			assert.Equal(t, 1, countIncidents(t, db, models.DisasterTypeWildfire))
		})
	}
}

func TestRegisterFireCluster_DedupWithinLatitudeBand(t *testing.T) {
	r, db, _ := setup(t)
	ctx := context.Background()

	first, err := r.RegisterFireCluster(ctx, hotspots(10))
	require.NoError(t, err)
	require.NotNil(t, first)

	shifted := hotspots(30)
	for i := range shifted {
		shifted[i].Latitude += 0.4
	}
	second, err := r.RegisterFireCluster(ctx, shifted)
	require.NoError(t, err)
	assert.Nil(t, second)

	farther := hotspots(30)
	for i := range farther {
		farther[i].Latitude += 1.0
	}
	third, err := r.RegisterFireCluster(ctx, farther)
	require.NoError(t, err)
	assert.NotNil(t, third)

	assert.Equal(t, 2, countIncidents(t, db, models.DisasterTypeWildfire))
}

type failingStore struct {
	Store
}

func (failingStore) HasActiveAtPoint(context.Context, models.DisasterType, float64, float64) (bool, error) {
	return false, errors.New("database is locked")
}

func TestRegisterQuakes_LookupFailureSkipsEvent(t *testing.T) {
	r := NewRegistrar(failingStore{}, nil, defaultRules, clockwork.NewFakeClock(), nil, logging.Discard())

	created, err := r.RegisterQuakes(context.Background(), []models.HazardObservation{quake(4.0, 1, 36), quake(4.1, 2, 37)})
	assert.Error(t, err)
	assert.Empty(t, created)
}

func TestSubmit(t *testing.T) {
	r, db, n := setup(t)
	ctx := context.Background()

	inc := &models.Incident{
		Type:           models.DisasterTypeDrought,
		Coordinates:    &models.Coordinates{Latitude: 2.35, Longitude: 37.97},
		AffectedPeople: 1200,
		Description:    "Water points dry",
		Source:         models.SourceFieldWorker,
	}
	require.NoError(t, r.Submit(ctx, inc))

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, got.Severity)
	assert.Equal(t, "Marsabit", got.RegionName)
	assert.Equal(t, models.IncidentStatusActive, got.Status)
	assert.Len(t, n.created, 1)

	// Reports are not deduplicated.
	dup := *inc
	dup.ID = 0
	dup.RegionID = nil
	require.NoError(t, r.Submit(ctx, &dup))
	assert.Equal(t, 2, countIncidents(t, db, models.DisasterTypeDrought))
}
