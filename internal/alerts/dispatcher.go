// Package alerts writes bilingual emergency messages for an incident and
// delivers them to the responders of the affected region.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/observability"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
	"github.com/mr1hm/go-hazard-watch/internal/sms"
	"github.com/mr1hm/go-hazard-watch/internal/worker"
)

const (
	MaxMessageRunes  = 160
	EmergencyContact = "1199"
)

var ErrNotFound = repository.ErrNotFound

type Store interface {
	GetIncident(ctx context.Context, id int64) (*models.Incident, error)
	GetRegion(ctx context.Context, id int64) (*models.Region, error)
	RefugesForRegion(ctx context.Context, regionID int64) ([]models.Refuge, error)
	PhonesForRegion(ctx context.Context, regionID int64) ([]string, error)
	AddAlert(ctx context.Context, a *models.AlertRecord) error
}

type Notifier interface {
	AlertRecorded(rec *models.AlertRecord)
}

// Dispatch is what the caller gets back before delivery has happened.
type Dispatch struct {
	BatchID    string `json:"batch_id"`
	IncidentID int64  `json:"incident_id"`
	MessageEN  string `json:"message_en"`
	MessageSW  string `json:"message_sw"`
	Recipients int    `json:"recipients"`
	Fallback   bool   `json:"fallback,omitempty"`
}

type Options struct {
	Workers     int
	BufferSize  int
	CountryCode string
	Clock       clockwork.Clock
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

type Dispatcher struct {
	store       Store
	gen         ai.Generator
	gateway     sms.Gateway
	notifier    Notifier
	pool        *worker.WorkerPool
	countryCode string
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger
}

type delivery struct {
	batchID    string
	incidentID int64
	messageEN  string
	messageSW  string
	phones     []string
}

func NewDispatcher(store Store, gen ai.Generator, gateway sms.Gateway, notifier Notifier, opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "254"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("alerts")
	}

	d := &Dispatcher{
		store:       store,
		gen:         gen,
		gateway:     gateway,
		notifier:    notifier,
		countryCode: opts.CountryCode,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	d.pool = worker.NewWorkerPool("alerts", opts.Workers, opts.BufferSize, d.deliver)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop waits for queued deliveries to finish.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Dispatch generates the alert text and queues delivery. It returns as soon
// as the text is ready; sending and the audit record happen in the
// background. regionID overrides the incident's own region.
func (d *Dispatcher) Dispatch(ctx context.Context, incidentID int64, regionID *int64) (*Dispatch, error) {
	inc, err := d.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("incident %d: %w", incidentID, err)
	}

	var region *models.Region
	target := inc.RegionID
	if regionID != nil {
		target = regionID
	}
	if target != nil {
		region, err = d.store.GetRegion(ctx, *target)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", *target, err)
		}
	}

	var (
		refuges []models.Refuge
		phones  []string
	)
	if region != nil {
		if refuges, err = d.store.RefugesForRegion(ctx, region.ID); err != nil {
			d.logger.Warn("refuge lookup failed", "region", region.Name, "error", err)
		}
		raw, err := d.store.PhonesForRegion(ctx, region.ID)
		if err != nil {
			return nil, fmt.Errorf("recipients for region %d: %w", region.ID, err)
		}
		phones = sms.NormalizeAll(raw, d.countryCode)
	}

	en, sw, fallback := d.compose(ctx, inc, region, refuges)

	out := &Dispatch{
		BatchID:    uuid.NewString(),
		IncidentID: inc.ID,
		MessageEN:  en,
		MessageSW:  sw,
		Recipients: len(phones),
		Fallback:   fallback,
	}

	job := delivery{
		batchID:    out.BatchID,
		incidentID: inc.ID,
		messageEN:  en,
		messageSW:  sw,
		phones:     phones,
	}
	if err := d.pool.Submit(ctx, job); err != nil {
		return nil, fmt.Errorf("queue alert delivery: %w", err)
	}

	d.logger.Info("alert queued",
		"batch_id", out.BatchID,
		"incident_id", inc.ID,
		"recipients", len(phones),
		"fallback", fallback,
	)
	return out, nil
}

func (d *Dispatcher) compose(ctx context.Context, inc *models.Incident, region *models.Region, refuges []models.Refuge) (en, sw string, fallback bool) {
	place := placeName(inc, region)
	refuge := nearestRefuge(inc, region, refuges)

	text, err := d.gen.Generate(ctx, buildPrompt(inc, place, refuge))
	if err == nil {
		var msg struct {
			English string `json:"english"`
			Swahili string `json:"swahili"`
		}
		err = ai.ExtractJSON(text, &msg)
		if err == nil && (strings.TrimSpace(msg.English) == "" || strings.TrimSpace(msg.Swahili) == "") {
			err = fmt.Errorf("%w: empty alert text", ai.ErrService)
		}
		if err == nil {
			return Truncate(strings.TrimSpace(msg.English)), Truncate(strings.TrimSpace(msg.Swahili)), false
		}
	}

	d.logger.Warn("alert text fell back", "incident_id", inc.ID, "error", err)
	if d.metrics != nil {
		d.metrics.AIFallbacks.WithLabelValues("sms").Inc()
	}
	en, sw = FallbackText(inc.Type, place)
	return en, sw, true
}

func (d *Dispatcher) deliver(ctx context.Context, job worker.Job) error {
	j := job.(delivery)

	var (
		res     sms.Result
		sendErr error
	)
	if len(j.phones) > 0 {
		res, sendErr = d.gateway.Send(ctx, j.phones, j.messageEN)
		if sendErr != nil {
			d.logger.Error("sms delivery failed", "batch_id", j.batchID, "error", sendErr)
			res.Sent = 0
			res.Failed = len(j.phones)
		}
	}

	rec := &models.AlertRecord{
		IncidentID:     j.incidentID,
		MessageEN:      j.messageEN,
		MessageSW:      j.messageSW,
		RecipientCount: len(j.phones),
		DeliveredCount: res.Sent,
		SentAt:         d.clock.Now(),
		Status:         alertStatus(len(j.phones), res.Sent),
	}

	// The audit row is written even when shutdown has cancelled ctx.
	if err := d.store.AddAlert(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Error("failed to record alert", "batch_id", j.batchID, "incident_id", j.incidentID, "error", err)
		return errors.Join(sendErr, err)
	}

	if d.metrics != nil {
		d.metrics.AlertsRecorded.Inc()
		d.metrics.SMSDelivered.Add(float64(res.Sent))
		d.metrics.SMSFailed.Add(float64(res.Failed))
	}
	if d.notifier != nil {
		d.notifier.AlertRecorded(rec)
	}

	d.logger.Info("alert recorded",
		"batch_id", j.batchID,
		"alert_id", rec.ID,
		"recipients", rec.RecipientCount,
		"delivered", rec.DeliveredCount,
		"status", rec.Status,
	)
	return sendErr
}

func alertStatus(attempted, delivered int) models.AlertStatus {
	switch {
	case attempted == 0:
		return models.AlertStatusNoRecipients
	case delivered >= attempted:
		return models.AlertStatusSent
	case delivered == 0:
		return models.AlertStatusFailed
	default:
		return models.AlertStatusPartial
	}
}

// Truncate caps s at MaxMessageRunes, ending with an ellipsis when cut.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageRunes {
		return s
	}
	return string(r[:MaxMessageRunes-3]) + "..."
}

// FallbackText is the fixed bilingual template used when the model is
// unavailable.
func FallbackText(t models.DisasterType, place string) (en, sw string) {
	en = fmt.Sprintf("NDMA ALERT: %s in %s. Move to nearest refuge site immediately. Stay safe. Call %s for help.", t, place, EmergencyContact)
	sw = fmt.Sprintf("TAHADHARI NDMA: %s katika %s. Nenda kituo cha wakimbizi. Piga simu %s kwa msaada.", t, place, EmergencyContact)
	return Truncate(en), Truncate(sw)
}

func placeName(inc *models.Incident, region *models.Region) string {
	switch {
	case region != nil:
		return region.Name
	case inc.Location != "":
		return inc.Location
	default:
		return "your area"
	}
}

// nearestRefuge picks the refuge closest to the incident, or to the region
// centroid when the incident has no coordinates.
func nearestRefuge(inc *models.Incident, region *models.Region, refuges []models.Refuge) *models.Refuge {
	if len(refuges) == 0 {
		return nil
	}

	var origin orb.Point
	switch {
	case inc.Coordinates != nil:
		origin = orb.Point{inc.Coordinates.Longitude, inc.Coordinates.Latitude}
	case region != nil:
		origin = orb.Point{region.Longitude, region.Latitude}
	default:
		return &refuges[0]
	}

	best := 0
	bestDist := geo.Distance(origin, orb.Point{refuges[0].Longitude, refuges[0].Latitude})
	for i := 1; i < len(refuges); i++ {
		if d := geo.Distance(origin, orb.Point{refuges[i].Longitude, refuges[i].Latitude}); d < bestDist {
			best, bestDist = i, d
		}
	}
	return &refuges[best]
}

func buildPrompt(inc *models.Incident, place string, refuge *models.Refuge) string {
	refugeText := "nearest county offices"
	if refuge != nil {
		refugeText = fmt.Sprintf("%s (%s, capacity %d)", refuge.Name, refuge.Type, refuge.Capacity)
	}

	var b strings.Builder
	b.WriteString("You are writing emergency community SMS alerts for disaster-affected Kenyans.\n\n")
	b.WriteString("Incident details:\n")
	fmt.Fprintf(&b, "- Type: %s\n", inc.Type)
	fmt.Fprintf(&b, "- Location: %s\n", place)
	fmt.Fprintf(&b, "- Severity: %s\n", inc.Severity)
	fmt.Fprintf(&b, "- People affected: %d\n", inc.AffectedPeople)
	fmt.Fprintf(&b, "- Nearest refuge: %s\n", refugeText)
	fmt.Fprintf(&b, "- Emergency line: %s\n\n", EmergencyContact)
	fmt.Fprintf(&b, "Write TWO SMS alerts, one in English and one in Swahili, each UNDER %d characters.\n", MaxMessageRunes)
	b.WriteString("Include the disaster type, the refuge, the action to take and the emergency line.\n")
	b.WriteString(`Respond with ONLY valid JSON (no markdown):
{"english": "<message>", "swahili": "<message>"}`)
	return b.String()
}
