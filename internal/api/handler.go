package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-hazard-watch/internal/alerts"
	"github.com/mr1hm/go-hazard-watch/internal/analysis"
	"github.com/mr1hm/go-hazard-watch/internal/broadcast"
	"github.com/mr1hm/go-hazard-watch/internal/ingestion"
	"github.com/mr1hm/go-hazard-watch/internal/logging"
	"github.com/mr1hm/go-hazard-watch/internal/models"
	"github.com/mr1hm/go-hazard-watch/internal/repository"
)

const (
	defaultIncidentLimit = 100
	defaultAlertLimit    = 50
	maxAlertLimit        = 500
)

type IncidentSubmitter interface {
	Submit(ctx context.Context, inc *models.Incident) error
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, incidentID int64, regionID *int64) (*alerts.Dispatch, error)
}

type Analyst interface {
	Predict(ctx context.Context) (analysis.PredictionSet, error)
	Warnings(ctx context.Context) (analysis.WarningSet, error)
	NationalReport(ctx context.Context) (analysis.Report, error)
	Chat(ctx context.Context, messages []analysis.ChatMessage) (analysis.ChatReply, error)
	Stats(ctx context.Context) (analysis.Stats, error)
}

type CycleStatus interface {
	Status() ingestion.Status
}

type Deps struct {
	Store       repository.Store
	Submitter   IncidentSubmitter
	Dispatcher  AlertDispatcher
	Analyst     Analyst
	Broadcaster *broadcast.Broadcaster
	Cycle       CycleStatus
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

type Handler struct {
	store       repository.Store
	submitter   IncidentSubmitter
	dispatcher  AlertDispatcher
	analyst     Analyst
	broadcaster *broadcast.Broadcaster
	cycle       CycleStatus
	clock       clockwork.Clock
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = logging.Component("api")
	}
	return &Handler{
		store:       d.Store,
		submitter:   d.Submitter,
		dispatcher:  d.Dispatcher,
		analyst:     d.Analyst,
		broadcaster: d.Broadcaster,
		cycle:       d.Cycle,
		clock:       d.Clock,
		logger:      d.Logger,
		validate:    newValidator(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/incidents", h.listIncidents)
		api.GET("/incidents/stream", h.streamIncidents)
		api.GET("/incidents/:id", h.getIncident)
		api.PATCH("/incidents/:id/resolve", h.resolveIncident)
		api.POST("/reports", h.submitReport)

		api.GET("/regions", h.listRegions)
		api.GET("/regions/:id", h.getRegion)

		api.GET("/workers", h.listWorkers)
		api.POST("/dispatch", h.dispatchWorker)

		api.POST("/alerts", h.sendAlert)
		api.GET("/alerts", h.listAlerts)

		api.GET("/predictions", h.predictions)
		api.GET("/warnings", h.warnings)
		api.GET("/report/national", h.nationalReport)
		api.GET("/stats", h.stats)
		api.POST("/chat", h.chat)
	}
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.cycle != nil {
		body["cycle"] = h.cycle.Status()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) listIncidents(c *gin.Context) {
	var q incidentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}
	q.Type = canonical(q.Type)
	q.Status = strings.ToLower(q.Status)
	if err := h.validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := repository.IncidentFilter{Limit: defaultIncidentLimit, Offset: q.Offset}
	if q.Limit > 0 {
		filter.Limit = q.Limit
	}
	if q.Status != "" {
		s := models.IncidentStatus(q.Status)
		filter.Status = &s
	}
	if q.Type != "" {
		t := models.DisasterType(q.Type)
		filter.Type = &t
	}
	if q.RegionID > 0 {
		filter.RegionID = &q.RegionID
	}

	incidents, err := h.store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "failed to fetch incidents", err)
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(incidents))
}

func (h *Handler) getIncident(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	inc, err := h.store.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "failed to fetch incident", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// resolveIncident is idempotent: resolving a resolved incident returns it
// unchanged and publishes nothing.
func (h *Handler) resolveIncident(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inc, err := h.store.GetIncident(ctx, id)
	if err != nil {
		h.fail(c, "failed to fetch incident", err)
		return
	}
	if !inc.Active() {
		c.JSON(http.StatusOK, inc)
		return
	}

	if err := h.store.ResolveIncident(ctx, id, h.clock.Now()); err != nil {
		h.fail(c, "failed to resolve incident", err)
		return
	}
	if inc, err = h.store.GetIncident(ctx, id); err != nil {
		h.fail(c, "failed to fetch incident", err)
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.IncidentResolved(inc)
	}
	h.logger.Info("incident resolved", "id", id, "type", inc.Type)
	c.JSON(http.StatusOK, inc)
}

func (h *Handler) submitReport(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.Type = canonical(req.Type)
	req.Severity = canonical(req.Severity)
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.RegionID != nil {
		if _, err := h.store.GetRegion(ctx, *req.RegionID); err != nil {
			h.fail(c, "failed to fetch region", err)
			return
		}
	}

	inc := req.toIncident()
	if err := h.submitter.Submit(ctx, inc); err != nil {
		h.fail(c, "failed to record report", err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// streamIncidents relays broadcaster events as server-sent events until the
// client goes away. ?kind= narrows the stream, e.g. kind=incident.created.
func (h *Handler) streamIncidents(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream unavailable"})
		return
	}

	var filter broadcast.Filter
	if k := c.Query("kind"); k != "" {
		var kinds []broadcast.EventKind
		for _, part := range strings.Split(k, ",") {
			kinds = append(kinds, broadcast.EventKind(strings.TrimSpace(part)))
		}
		filter = broadcast.OnlyKinds(kinds...)
	}

	id, events := h.broadcaster.Subscribe(filter)
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Kind), e)
			return true
		}
	})
}

func (h *Handler) listRegions(c *gin.Context) {
	regions, err := h.store.ListRegions(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to fetch regions", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(regions))
}

func (h *Handler) getRegion(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	region, err := h.store.GetRegion(ctx, id)
	if err != nil {
		h.fail(c, "failed to fetch region", err)
		return
	}
	refuges, err := h.store.RefugesForRegion(ctx, id)
	if err != nil {
		h.fail(c, "failed to fetch refuges", err)
		return
	}
	c.JSON(http.StatusOK, RegionResponse{Region: *region, Refuges: nonNil(refuges)})
}

func (h *Handler) listWorkers(c *gin.Context) {
	workers, err := h.store.ListWorkers(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to fetch workers", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(workers))
}

func (h *Handler) dispatchWorker(c *gin.Context) {
	var req DispatchWorkerRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if err := h.store.DispatchWorker(ctx, req.WorkerID, req.IncidentID); err != nil {
		h.fail(c, "failed to dispatch worker", err)
		return
	}
	w, err := h.store.GetWorker(ctx, req.WorkerID)
	if err != nil {
		h.fail(c, "failed to fetch worker", err)
		return
	}
	h.logger.Info("worker dispatched", "worker_id", w.ID, "incident_id", req.IncidentID)
	c.JSON(http.StatusOK, w)
}

// sendAlert answers once the message text exists; delivery and the audit
// record happen in the background.
func (h *Handler) sendAlert(c *gin.Context) {
	var req AlertRequest
	if !h.bind(c, &req) {
		return
	}
	d, err := h.dispatcher.Dispatch(c.Request.Context(), req.IncidentID, req.RegionID)
	if err != nil {
		h.fail(c, "failed to dispatch alert", err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

func (h *Handler) listAlerts(c *gin.Context) {
	limit := defaultAlertLimit
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxAlertLimit {
			limit = n
		}
	}
	records, err := h.store.ListAlerts(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "failed to fetch alerts", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (h *Handler) predictions(c *gin.Context) {
	set, err := h.analyst.Predict(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to build predictions", err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) warnings(c *gin.Context) {
	set, err := h.analyst.Warnings(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to build warnings", err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) nationalReport(c *gin.Context) {
	rep, err := h.analyst.NationalReport(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.analyst.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) chat(c *gin.Context) {
	var req ChatRequest
	if !h.bind(c, &req) {
		return
	}
	reply, err := h.analyst.Chat(c.Request.Context(), req.toMessages())
	if err != nil {
		h.fail(c, "failed to answer", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// fail maps store lookups that found nothing to 404 and everything else to 500.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
