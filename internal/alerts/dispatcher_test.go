package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
	"github.com/mr1hm/go-hazard-watch/internal/sms"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

type fakeGateway struct {
	mu         sync.Mutex
	recipients []string
	message    string
	sent       int
	err        error
}

func (g *fakeGateway) Send(ctx context.Context, recipients []string, message string) (sms.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recipients = recipients
	g.message = message
	if g.err != nil {
		return sms.Result{}, g.err
	}
	sent := g.sent
	if sent < 0 {
		sent = len(recipients)
	}
	return sms.Result{Sent: sent, Failed: len(recipients) - sent}, nil
}

type fixture struct {
	db       *repository.SQLiteDB
	region   *models.Region
	incident *models.Incident
	metrics  *observability.Metrics
}

func newFixture(t *testing.T, phones ...string) fixture {
	t.Helper()
	ctx := context.Background()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	region := &models.Region{Name: "Kisumu", Latitude: -0.0917, Longitude: 34.768}
	require.NoError(t, db.AddRegion(ctx, region))
	require.NoError(t, db.AddRefuge(ctx, &models.Refuge{Name: "Far Camp", RegionID: region.ID, Latitude: 0.5, Longitude: 35.2, Capacity: 300, Type: "Camp"}))
	require.NoError(t, db.AddRefuge(ctx, &models.Refuge{Name: "Moi Stadium", RegionID: region.ID, Latitude: -0.09, Longitude: 34.77, Capacity: 5000, Type: "Stadium"}))

	for i, p := range phones {
		require.NoError(t, db.AddWorker(ctx, &models.Worker{Name: "Worker " + string(rune('A'+i)), Phone: p, RegionID: &region.ID}))
	}

	inc := &models.Incident{
		Type:           models.DisasterTypeFlood,
		Severity:       models.SeverityHigh,
		RegionID:       &region.ID,
		Location:       "Nyando",
		Coordinates:    &models.Coordinates{Latitude: -0.1, Longitude: 34.76},
		AffectedPeople: 3500,
		Source:         models.SourceFieldWorker,
	}
	require.NoError(t, db.AddIncident(ctx, inc))

	return fixture{db: db, region: region, incident: inc, metrics: observability.NewMetricsForTesting()}
}

func (f fixture) dispatcher(gen ai.Generator, gw sms.Gateway) *Dispatcher {
	d := NewDispatcher(f.db, gen, gw, nil, Options{
		Workers:     1,
		BufferSize:  4,
		CountryCode: "254",
		Clock:       clockwork.NewFakeClockAt(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)),
		Metrics:     f.metrics,
		Logger:      logging.Discard(),
	})
	d.Start(context.Background())
	return d
}

func (f fixture) alerts(t *testing.T) []models.AlertRecord {
	t.Helper()
	list, err := f.db.ListAlerts(context.Background(), 100)
	require.NoError(t, err)
	return list
}

func TestDispatch_SendsAndRecords(t *testing.T) {
	f := newFixture(t, "0712345678", "254722000000")
	gen := &fakeGenerator{text: "```json\n{\"english\": \"FLOOD in Kisumu. Go to Moi Stadium now. Call 1199.\", \"swahili\": \"MAFURIKO Kisumu. Nenda Moi Stadium sasa. Piga 1199.\"}\n```"}
	gw := &fakeGateway{sent: -1}

	d := f.dispatcher(gen, gw)
	out, err := d.Dispatch(context.Background(), f.incident.ID, nil)
	require.NoError(t, err)
	d.Stop()

	assert.Equal(t, 2, out.Recipients)
	assert.False(t, out.Fallback)
	assert.NotEmpty(t, out.BatchID)
	assert.Contains(t, out.MessageEN, "Moi Stadium")
	assert.Contains(t, gen.prompt, "Nearest refuge: Moi Stadium", "closest refuge goes in the prompt")
	assert.Contains(t, gen.prompt, "1199")

	assert.Equal(t, []string{"+254712345678", "+254722000000"}, gw.recipients)
	assert.Equal(t, out.MessageEN, gw.message)

	recs := f.alerts(t)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].RecipientCount)
	assert.Equal(t, 2, recs[0].DeliveredCount)
	assert.Equal(t, models.AlertStatusSent, recs[0].Status)
	assert.Equal(t, out.MessageSW, recs[0].MessageSW)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlertsRecorded))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SMSDelivered))
}

func TestDispatch_ZeroRecipientsStillRecords(t *testing.T) {
	f := newFixture(t)
	gw := &fakeGateway{sent: -1}

	d := f.dispatcher(&fakeGenerator{err: ai.ErrService}, gw)
	out, err := d.Dispatch(context.Background(), f.incident.ID, nil)
	require.NoError(t, err)
	d.Stop()

	assert.Zero(t, out.Recipients)
	assert.Nil(t, gw.recipients, "gateway is not called without recipients")

	recs := f.alerts(t)
	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].RecipientCount)
	assert.Equal(t, models.AlertStatusNoRecipients, recs[0].Status)
}

func TestDispatch_PartialAndFailedDelivery(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		f := newFixture(t, "0711111111", "0722222222", "0733333333")
		d := f.dispatcher(&fakeGenerator{err: ai.ErrService}, &fakeGateway{sent: 1})
		_, err := d.Dispatch(context.Background(), f.incident.ID, nil)
		require.NoError(t, err)
		d.Stop()

		recs := f.alerts(t)
		require.Len(t, recs, 1)
		assert.Equal(t, 3, recs[0].RecipientCount)
		assert.Equal(t, 1, recs[0].DeliveredCount)
		assert.Equal(t, models.AlertStatusPartial, recs[0].Status)
	})

	t.Run("gateway error", func(t *testing.T) {
		f := newFixture(t, "0711111111")
		d := f.dispatcher(&fakeGenerator{err: ai.ErrService}, &fakeGateway{err: errors.New("connection reset")})
		_, err := d.Dispatch(context.Background(), f.incident.ID, nil)
		require.NoError(t, err)
		d.Stop()

		recs := f.alerts(t)
		require.Len(t, recs, 1)
		assert.Equal(t, 1, recs[0].RecipientCount)
		assert.Zero(t, recs[0].DeliveredCount)
		assert.Equal(t, models.AlertStatusFailed, recs[0].Status)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SMSFailed))
	})
}

func TestDispatch_MessagesNeverExceed160(t *testing.T) {
	long := strings.Repeat("Evacuate immediately to higher ground. ", 10)
	swLong := strings.Repeat("Hamia mahali pa juu mara moja. ", 10)

	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"model text too long", &fakeGenerator{text: `{"english": "` + long + `", "swahili": "` + swLong + `"}`}},
		{"fallback", &fakeGenerator{err: ai.ErrService}},
		{"unparseable reply", &fakeGenerator{text: "Sure! Here are your alerts."}},
		{"empty fields", &fakeGenerator{text: `{"english": "", "swahili": ""}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.dispatcher(tt.gen, &fakeGateway{})
			out, err := d.Dispatch(context.Background(), f.incident.ID, nil)
			require.NoError(t, err)
			d.Stop()

			assert.LessOrEqual(t, utf8.RuneCountInString(out.MessageEN), MaxMessageRunes)
			assert.LessOrEqual(t, utf8.RuneCountInString(out.MessageSW), MaxMessageRunes)
			assert.NotEmpty(t, out.MessageEN)
			assert.NotEmpty(t, out.MessageSW)
		})
	}
}

func TestDispatch_FallbackText(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(&fakeGenerator{err: ai.ErrService}, &fakeGateway{})
	out, err := d.Dispatch(context.Background(), f.incident.ID, nil)
	require.NoError(t, err)
	d.Stop()

	assert.True(t, out.Fallback)
	assert.Equal(t, "NDMA ALERT: Flood in Kisumu. Move to nearest refuge site immediately. Stay safe. Call 1199 for help.", out.MessageEN)
	assert.Equal(t, "TAHADHARI NDMA: Flood katika Kisumu. Nenda kituo cha wakimbizi. Piga simu 1199 kwa msaada.", out.MessageSW)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AIFallbacks.WithLabelValues("sms")))
}

func TestDispatch_RegionOverride(t *testing.T) {
	f := newFixture(t, "0712345678")
	ctx := context.Background()

	other := &models.Region{Name: "Busia", Latitude: 0.46, Longitude: 34.11}
	require.NoError(t, f.db.AddRegion(ctx, other))
	require.NoError(t, f.db.AddWorker(ctx, &models.Worker{Name: "Wafula", Phone: "0799000111", RegionID: &other.ID}))

	gw := &fakeGateway{sent: -1}
	d := f.dispatcher(&fakeGenerator{err: ai.ErrService}, gw)
	out, err := d.Dispatch(ctx, f.incident.ID, &other.ID)
	require.NoError(t, err)
	d.Stop()

	assert.Equal(t, 1, out.Recipients)
	assert.Equal(t, []string{"+254799000111"}, gw.recipients)
	assert.Contains(t, out.MessageEN, "Busia")
}

func TestDispatch_NotFound(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(&fakeGenerator{}, &fakeGateway{})
	defer d.Stop()

	_, err := d.Dispatch(context.Background(), 9999, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	missing := int64(9999)
	_, err = d.Dispatch(context.Background(), f.incident.ID, &missing)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.alerts(t), "not-found dispatches leave no record")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))

	exact := strings.Repeat("a", 160)
	assert.Equal(t, exact, Truncate(exact))

	cut := Truncate(strings.Repeat("b", 161))
	assert.Equal(t, 160, utf8.RuneCountInString(cut))
	assert.True(t, strings.HasSuffix(cut, "..."))

	// Multi-byte text is cut on rune boundaries.
	sw := Truncate(strings.Repeat("é", 200))
	assert.Equal(t, 160, utf8.RuneCountInString(sw))
	assert.True(t, utf8.ValidString(sw))
}

func TestFallbackText_LongPlaceName(t *testing.T) {
	en, sw := FallbackText(models.DisasterTypeLandslide, strings.Repeat("Elgeyo-Marakwet ", 12))
	assert.LessOrEqual(t, utf8.RuneCountInString(en), MaxMessageRunes)
	assert.LessOrEqual(t, utf8.RuneCountInString(sw), MaxMessageRunes)
}
