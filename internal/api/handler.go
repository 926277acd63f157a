package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"count-service/internal/models"
	"count-service/internal/service"
	"count-service/internal/store"
	"count-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const roleManager = "manager"

// Handler contains HTTP handlers
type Handler struct {
	sessions   *service.SessionService
	counts     *service.CountService
	aggregates *service.AggregationService
	reconcile  *service.ReconcileService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	sessions *service.SessionService,
	counts *service.CountService,
	aggregates *service.AggregationService,
	reconcile *service.ReconcileService,
) *Handler {
	return &Handler{
		sessions:   sessions,
		counts:     counts,
		aggregates: aggregates,
		reconcile:  reconcile,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", h.createSession)
		v1.GET("/sessions", h.listSessions)
		v1.GET("/sessions/:id", h.getSession)
		v1.POST("/sessions/:id/start", h.startSession)
		v1.POST("/sessions/:id/pause", h.pauseSession)
		v1.POST("/sessions/:id/resume", h.resumeSession)
		v1.POST("/sessions/:id/complete", h.completeSession)
		v1.POST("/sessions/:id/approve", requireManager(), h.approveSession)
		v1.POST("/sessions/:id/flag", requireManager(), h.flagSession)
		v1.POST("/sessions/:id/join", h.joinSession)

		v1.POST("/sessions/:id/counts", h.recordCount)
		v1.GET("/sessions/:id/counts", h.listCounts)

		v1.GET("/sessions/:id/diff", h.getDiff)
		v1.GET("/sessions/:id/summary", h.getSummary)
		v1.GET("/sessions/:id/breakdown", h.getBreakdown)
		v1.POST("/sessions/:id/recompute", requireManager(), h.recompute)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireManager gates privileged routes to manager-equivalent roles. The
// identity provider authenticates upstream; the gateway forwards the role.
func requireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Role") != roleManager {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Manager role required",
			})
			return
		}
		c.Next()
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		validationErr *models.ValidationError
		stateErr      *models.InvalidStateError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.ConcurrencyConflict
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": conflictErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return 0, false
	}
	return id, true
}

// createSession handles session creation
func (h *Handler) createSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sess, err := h.sessions.CreateSession(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

// listSessions handles session listing
func (h *Handler) listSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.sessions.ListSessions(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// getSession handles get session by ID
func (h *Handler) getSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.GetSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *Handler) startSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.StartSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) pauseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.PauseSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) resumeSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.ResumeSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) completeSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req service.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sess, err := h.sessions.CompleteSession(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type approveRequest struct {
	ApprovedBy int64  `json:"approved_by" binding:"required"`
	Notes      string `json:"notes,omitempty"`
}

func (h *Handler) approveSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sess, err := h.sessions.ApproveSession(c.Request.Context(), id, req.ApprovedBy, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type flagRequest struct {
	FlaggedBy int64  `json:"flagged_by" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *Handler) flagSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sess, err := h.sessions.FlagSession(c.Request.Context(), id, req.FlaggedBy, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) joinSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.JoinSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// recordCount handles count event submission
func (h *Handler) recordCount(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req service.RecordCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	req.SessionID = id

	event, err := h.counts.RecordCount(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// listCounts handles the count event log view, filterable by product or
// operator for the by-user breakdown screen.
func (h *Handler) listCounts(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	productID, _ := strconv.ParseInt(c.Query("product_id"), 10, 64)
	operatorID, _ := strconv.ParseInt(c.Query("operator_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.counts.ListEvents(c.Request.Context(), id, store.CountEventFilter{
		ProductID:  productID,
		OperatorID: operatorID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) getDiff(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	rows, err := h.reconcile.BuildDiff(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *Handler) getSummary(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	summary, err := h.reconcile.Summarize(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getBreakdown(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	breakdown, err := h.reconcile.BuildUserBreakdown(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	// Flatten the nested map for JSON consumers.
	type breakdownRow struct {
		OperatorID int64   `json:"operator_id"`
		ProductID  int64   `json:"product_id"`
		VariantID  int64   `json:"variant_id"`
		Qty        int     `json:"qty"`
		Liters     float64 `json:"liters"`
		Count      int     `json:"count"`
	}
	rows := make([]breakdownRow, 0)
	for operatorID, byKey := range breakdown {
		for key, tally := range byKey {
			rows = append(rows, breakdownRow{
				OperatorID: operatorID,
				ProductID:  key.ProductID,
				VariantID:  key.VariantID,
				Qty:        tally.Qty,
				Liters:     tally.Liters,
				Count:      tally.Count,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// recompute rebuilds the aggregate cache from the event log (repair/audit).
func (h *Handler) recompute(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	rows, err := h.aggregates.RepairAggregates(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"aggregates": rows})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
