package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/query"
	"github.com/civicpulse/discovery/internal/search"
	"github.com/civicpulse/discovery/internal/service"
	"github.com/civicpulse/discovery/internal/telemetry"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler holds the HTTP request handlers.
type Handler struct {
	svc     *service.DiscoveryService
	metrics *telemetry.Provider
	log     logger.Logger
}

// NewHandler creates a handler instance.
func NewHandler(svc *service.DiscoveryService, metrics *telemetry.Provider, log logger.Logger) *Handler {
	return &Handler{svc: svc, metrics: metrics, log: log}
}

// Search handles search requests, both GET and POST. Empty queries are
// served by the explore surface.
func (h *Handler) Search(c *gin.Context) {
	start := time.Now()
	var req domain.SearchRequest

	if c.Request.Method == http.MethodGet {
		req = parseSearchParams(c)
	} else if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordRequest("search", "invalid", time.Since(start))
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Search(c.Request.Context(), &req)
	if errors.Is(err, service.ErrBrowse) {
		h.serveExplore(c, req.User, start)
		return
	}
	if err != nil {
		h.metrics.RecordRequest("search", "error", time.Since(start))
		h.writeServiceError(c, err, "SEARCH_ERROR", req.Query)
		return
	}

	h.metrics.RecordRequest("search", "ok", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// Recommendations handles GET /recommendations/:userID.
func (h *Handler) Recommendations(c *gin.Context) {
	start := time.Now()
	userID := c.Param("userID")
	limit := intQuery(c, "limit", 0)

	result, err := h.svc.Recommend(c.Request.Context(), userID, parseUserContext(c), limit)
	if err != nil {
		h.metrics.RecordRequest("recommend", "error", time.Since(start))
		h.writeServiceError(c, err, "RECOMMEND_ERROR", userID)
		return
	}
	h.metrics.RecordRequest("recommend", "ok", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// Explore handles GET /explore.
func (h *Handler) Explore(c *gin.Context) {
	h.serveExplore(c, parseUserContext(c), time.Now())
}

func (h *Handler) serveExplore(c *gin.Context, user domain.UserContext, start time.Time) {
	result, err := h.svc.Explore(c.Request.Context(), user)
	if err != nil {
		h.metrics.RecordRequest("explore", "error", time.Since(start))
		h.writeServiceError(c, err, "EXPLORE_ERROR", "")
		return
	}
	h.metrics.RecordRequest("explore", "ok", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// Trending handles GET /trending.
func (h *Handler) Trending(c *gin.Context) {
	start := time.Now()
	limit := intQuery(c, "limit", 0)

	result, err := h.svc.Trending(c.Request.Context(), parseUserContext(c), limit)
	if err != nil {
		h.metrics.RecordRequest("trending", "error", time.Since(start))
		h.writeServiceError(c, err, "TRENDING_ERROR", "")
		return
	}
	h.metrics.RecordRequest("trending", "ok", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// Suggest handles GET /suggest typeahead requests.
func (h *Handler) Suggest(c *gin.Context) {
	start := time.Now()
	prefix := c.Query("q")
	if prefix == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "q parameter is required")
		return
	}

	suggestions, err := h.svc.Suggest(c.Request.Context(), prefix, intQuery(c, "limit", 0))
	if err != nil {
		h.metrics.RecordRequest("suggest", "error", time.Since(start))
		h.writeServiceError(c, err, "SUGGEST_ERROR", prefix)
		return
	}
	h.metrics.RecordRequest("suggest", "ok", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Interactions handles POST /interactions: engagement events feeding the
// trending counters.
func (h *Handler) Interactions(c *gin.Context) {
	var ev domain.Interaction
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Ingest(c.Request.Context(), ev); err != nil {
		h.writeServiceError(c, err, "INGEST_ERROR", ev.ContentID)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// HealthCheck handles liveness probes.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// ReadinessCheck handles readiness probes with dependency statuses.
func (h *Handler) ReadinessCheck(c *gin.Context) {
	status := h.svc.HealthCheck(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// writeServiceError maps the error taxonomy onto HTTP statuses: invalid
// input is a client error, total retrieval failure maps to 503, everything
// else is a 500.
func (h *Handler) writeServiceError(c *gin.Context, err error, code, subject string) {
	h.log.Error("request failed",
		logger.String("code", code),
		logger.String("subject", subject),
		logger.Error(err))

	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, query.ErrInvalidQuery):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, search.ErrAllBranchesFailed):
		writeError(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, code, err.Error())
	}
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{Error: msg, Code: code, Timestamp: time.Now()})
}

func parseSearchParams(c *gin.Context) domain.SearchRequest {
	return domain.SearchRequest{
		Query:         c.Query("q"),
		User:          parseUserContext(c),
		Page:          intQuery(c, "page", 0),
		Size:          intQuery(c, "size", 0),
		IncludeScores: c.Query("include_scores") == "true",
	}
}

func parseUserContext(c *gin.Context) domain.UserContext {
	user := domain.UserContext{
		UserID: c.Query("user_id"),
		Region: c.Query("region"),
		Age:    intQuery(c, "age", 0),
	}
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr == nil && lonErr == nil {
		user.Location = &domain.GeoPoint{Lat: lat, Lon: lon}
	}
	return user
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
