package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/advisory"
	"github.com/nayasahai/recovery/internal/auth"
	"github.com/nayasahai/recovery/internal/cases"
	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/incident"
	"github.com/nayasahai/recovery/internal/metrics"
	"github.com/nayasahai/recovery/internal/nextaction"
	"github.com/nayasahai/recovery/internal/realtime"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one backing dependency
type HealthCheck func(ctx context.Context) error

// Dependencies are the services the handlers call into. Hub, Metrics and
// Gatherer may be nil.
type Dependencies struct {
	Catalog  *incident.Catalog
	Cases    *cases.Manager
	Advisor  *advisory.Advisor
	Auth     *auth.Service
	Hub      *realtime.Hub
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
	Version  string
}

// Handler contains all API handlers
type Handler struct {
	config  *config.Config
	logger  *zap.Logger
	deps    Dependencies
	catalog *incident.Catalog
	cases   *cases.Manager
	advisor *advisory.Advisor
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		config:  cfg,
		logger:  logger,
		deps:    deps,
		catalog: deps.Catalog,
		cases:   deps.Cases,
		advisor: deps.Advisor,
	}
}

// Health returns service health status
func (h *Handler) Health(c *gin.Context) {
	services := make(map[string]string, len(h.deps.Checks))
	healthy := true
	for name, check := range h.deps.Checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			healthy = false
			services[name] = "unhealthy"
			h.logger.Warn("Health check failed", zap.String("service", name), zap.Error(err))
			continue
		}
		services[name] = "healthy"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC(),
		"version":         h.deps.Version,
		"catalog_version": h.catalog.Version(),
		"services":        services,
	})
}

// ListIncidents searches the knowledge base
func (h *Handler) ListIncidents(c *gin.Context) {
	var results []incident.Definition
	if raw := c.Query("category"); raw != "" {
		category := incident.Category(raw)
		if !category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
			return
		}
		results = filterDefinitions(h.catalog.Search(c.Query("q")), category)
	} else {
		results = h.catalog.Search(c.Query("q"))
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": results,
		"count":     len(results),
		"version":   h.catalog.Version(),
	})
}

func filterDefinitions(defs []incident.Definition, category incident.Category) []incident.Definition {
	out := make([]incident.Definition, 0, len(defs))
	for _, d := range defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// ListCategories returns the incident categories
func (h *Handler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": incident.Categories()})
}

// ListStatuses returns the case statuses a client may set
func (h *Handler) ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statuses": nextaction.Statuses()})
}

// GetIncident returns one incident with its escalation ladder in display order
func (h *Handler) GetIncident(c *gin.Context) {
	def, ok := h.lookupIncident(c, c.Param("id"))
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incident":          def,
		"escalation":        def.SortedEscalation(),
		"emergency_actions": def.EmergencyActions(),
	})
}

// GetNextAction resolves the next action for an incident at a status.
// Resolution is total, so any status value is answered.
func (h *Handler) GetNextAction(c *gin.Context) {
	def, ok := h.lookupIncident(c, c.Param("id"))
	if !ok {
		return
	}

	// Statuses outside the known set resolve through the category default.
	status := nextaction.Status(c.Query("status"))

	c.JSON(http.StatusOK, gin.H{
		"incident_id": def.ID,
		"category":    def.Category,
		"status":      status,
		"next_action": nextaction.ForIncident(def, status),
	})
}

func (h *Handler) lookupIncident(c *gin.Context, id string) (*incident.Definition, bool) {
	def, err := h.catalog.FindByID(id)
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordIncidentLookup(err == nil)
	}
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return def, true
}

type advisoryRequest struct {
	IncidentID         string  `json:"incident_id"`
	Description        string  `json:"description"`
	Status             string  `json:"status"`
	ComplaintReference string  `json:"complaint_reference"`
	PortalUsed         string  `json:"portal_used"`
	LossAmount         float64 `json:"loss_amount"`
}

// GenerateAdvisory returns reconciled guidance for an incident or a free
// text description. The response is always displayable.
func (h *Handler) GenerateAdvisory(c *gin.Context) {
	var body advisoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.IncidentID == "" && strings.TrimSpace(body.Description) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "incident_id or description is required"})
		return
	}

	req := advisory.Request{
		Description:        body.Description,
		Status:             body.Status,
		ComplaintReference: body.ComplaintReference,
		PortalUsed:         body.PortalUsed,
		LossAmount:         body.LossAmount,
	}
	var category incident.Category
	if body.IncidentID != "" {
		def, ok := h.lookupIncident(c, body.IncidentID)
		if !ok {
			return
		}
		req.IncidentTitle = def.Title
		req.Category = string(def.Category)
		category = def.Category
	}

	result := h.advisor.Advise(c.Request.Context(), req, category)
	c.JSON(http.StatusOK, advisoryResponse(result))
}

func advisoryResponse(result advisory.Result) gin.H {
	return gin.H{
		"advisory": result.Payload,
		"fallback": !result.Accepted,
	}
}

// ListCases returns the caller's cases, newest first
func (h *Handler) ListCases(c *gin.Context) {
	records, err := h.cases.List(c.Request.Context(), auth.SessionFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": records, "count": len(records)})
}

// CreateCase logs a new case for the caller
func (h *Handler) CreateCase(c *gin.Context) {
	var in cases.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.cases.Create(c.Request.Context(), auth.SessionFromContext(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetCase returns one case with its evidence coverage
func (h *Handler) GetCase(c *gin.Context) {
	rec, err := h.cases.Get(c.Request.Context(), auth.SessionFromContext(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{"case": rec}
	if def, err := h.catalog.FindByID(rec.IncidentID); err == nil {
		resp["evidence_coverage"] = cases.EvidenceCoverage(def, rec)
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateCaseDetails edits a case's complaint reference, amount or portal
func (h *Handler) UpdateCaseDetails(c *gin.Context) {
	var in cases.DetailsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.cases.UpdateDetails(c.Request.Context(), auth.SessionFromContext(c), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateCaseStatus moves a case to a new status
func (h *Handler) UpdateCaseStatus(c *gin.Context) {
	var req struct {
		Status nextaction.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.cases.UpdateStatus(c.Request.Context(), auth.SessionFromContext(c), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SelectEvidence replaces the case's selected checklist items
func (h *Handler) SelectEvidence(c *gin.Context) {
	var req struct {
		Items []string `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.cases.SelectEvidence(c.Request.Context(), auth.SessionFromContext(c), c.Param("id"), req.Items)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GenerateCaseAdvisory asks for guidance on a stored case and attaches the
// reconciled payload to it. Requires the toolkit plan.
func (h *Handler) GenerateCaseAdvisory(c *gin.Context) {
	sess := auth.SessionFromContext(c)
	if !sess.HasToolkit() {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Recovery toolkit plan required"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.cases.Get(ctx, sess, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	req, category := h.cases.AdvisoryRequest(rec)
	result := h.advisor.Advise(ctx, req, category)

	rec, err = h.cases.AttachAdvisory(ctx, sess, rec.ID, result.Payload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := advisoryResponse(result)
	resp["case"] = rec
	c.JSON(http.StatusOK, resp)
}

// DeleteCase removes one of the caller's cases
func (h *Handler) DeleteCase(c *gin.Context) {
	if err := h.cases.Delete(c.Request.Context(), auth.SessionFromContext(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CaseSummary returns totals over the caller's cases
func (h *Handler) CaseSummary(c *gin.Context) {
	summary, err := h.cases.Summary(c.Request.Context(), auth.SessionFromContext(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExtractIdentifiers pulls UTR and phone numbers out of pasted text
func (h *Handler) ExtractIdentifiers(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cases.ExtractIdentifiers(req.Text))
}

// EvidenceFolders lists the folders of an evidence package
func (h *Handler) EvidenceFolders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"folders": cases.EvidenceFolders()})
}

// respondError maps domain errors onto HTTP responses
func (h *Handler) respondError(c *gin.Context, err error) {
	var storeErr *cases.StoreError
	switch {
	case errors.Is(err, incident.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Incident not found"})
	case errors.Is(err, cases.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
	case errors.Is(err, cases.ErrNoSession):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	case errors.Is(err, cases.ErrInvalidAmount),
		errors.Is(err, cases.ErrInvalidStatus),
		errors.Is(err, cases.ErrInvalidEvidence):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &storeErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Case storage unavailable",
			"retryable": storeErr.Retryable(),
		})
	default:
		h.logger.Error("Unhandled request error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
