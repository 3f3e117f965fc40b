package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/config"
	"parking-service/internal/domain/parking"
	"parking-service/internal/service"
)

type Handler struct {
	parkingService *service.ParkingService
	config         *config.Config
	log            zerolog.Logger
}

func NewHandler(
	parkingService *service.ParkingService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		parkingService: parkingService,
		config:         cfg,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints: the camera pipeline posts observations unauthenticated.
	public := r.Group("/api/v1")
	{
		public.POST("/observations", h.createObservation)
	}

	// Protected endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/sessions", h.listSessions)
		protected.GET("/sessions/:id", h.getSession)
	}
}

func (h *Handler) createObservation(c *gin.Context) {
	var payload parking.ObservationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	result, err := h.parkingService.ProcessObservation(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
		h.log.Error().Err(err).Msg("failed to process observation")
		c.JSON(http.StatusServiceUnavailable, errorResponse("storage unavailable, retry later"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": result.Session.ID,
		"status":     result.Session.Status,
		"matched":    result.Matched,
		"match_type": result.MatchType,
		"confidence": result.Confidence,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	var status, plateQuery *string
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status = &s
	}
	if p := strings.TrimSpace(c.Query("plate")); p != "" {
		plateQuery = &p
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	sessions, err := h.parkingService.FindSessions(c.Request.Context(), status, plateQuery, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(sessions))
}

func (h *Handler) getSession(c *gin.Context) {
	session, err := h.parkingService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
