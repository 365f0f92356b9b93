package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BarkinBalci/behavior-telemetry/internal/dto"
	"github.com/BarkinBalci/behavior-telemetry/internal/service"
	"github.com/BarkinBalci/behavior-telemetry/internal/tracker"
)

type Handler struct {
	telemetryService service.TelemetryServicer
	gatherer         prometheus.Gatherer
	router           *gin.Engine
	log              *zap.Logger
}

func NewHandler(telemetryService service.TelemetryServicer, gatherer prometheus.Gatherer, log *zap.Logger) *Handler {
	h := &Handler{
		telemetryService: telemetryService,
		gatherer:         gatherer,
		router:           gin.Default(),
		log:              log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/events", h.trackEvent)
	h.router.POST("/events/bulk", h.trackEventsBulk)
	h.router.PUT("/user-properties", h.setUserProperties)
	h.router.POST("/flush", h.flush)
	h.router.POST("/cleanup", h.cleanup)
	h.router.GET("/analytics/behavior", h.getBehavior)
	h.router.GET("/analytics/cohorts", h.getCohorts)
	h.router.GET("/analytics/funnel", h.getFunnel)
	h.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

// respondError maps service errors onto status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, tracker.ErrDisposed):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "unavailable",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}

func bindingError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	})
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.telemetryService.Health(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// trackEvent handles POST /events
func (h *Handler) trackEvent(c *gin.Context) {
	var req dto.TrackEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid event request",
			zap.Error(err),
			zap.String("event_name", req.EventName))
		bindingError(c, err)
		return
	}

	if err := h.telemetryService.TrackEvent(&req); err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Debug("Event accepted", zap.String("event_name", req.EventName))

	c.JSON(http.StatusAccepted, dto.TrackEventResponse{
		Status: "accepted",
	})
}

// trackEventsBulk handles POST /events/bulk
func (h *Handler) trackEventsBulk(c *gin.Context) {
	var bulkRequest dto.TrackEventsBulkRequest

	if err := c.ShouldBindJSON(&bulkRequest); err != nil {
		h.log.Warn("Invalid bulk event request", zap.Error(err))
		bindingError(c, err)
		return
	}

	accepted, rejected := h.telemetryService.TrackEventsBulk(bulkRequest.Events)

	h.log.Info("Bulk events processed",
		zap.Int("accepted", accepted),
		zap.Int("rejected", len(rejected)),
		zap.Int("total", len(bulkRequest.Events)))

	c.JSON(http.StatusAccepted, dto.TrackBulkEventsResponse{
		Accepted: accepted,
		Rejected: len(rejected),
		Errors:   rejected,
	})
}

// setUserProperties handles PUT /user-properties
func (h *Handler) setUserProperties(c *gin.Context) {
	var req dto.UserPropertiesRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid user properties request", zap.Error(err))
		bindingError(c, err)
		return
	}

	if err := h.telemetryService.SetUserProperties(c.Request.Context(), &req); err != nil {
		h.log.Error("Failed to set user properties", zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// flush handles POST /flush. A delivery failure still reports what was
// persisted.
func (h *Handler) flush(c *gin.Context) {
	response, err := h.telemetryService.Flush(c.Request.Context())
	if err != nil {
		h.log.Error("Flush failed", zap.Error(err))
		if response != nil && !errors.Is(err, tracker.ErrDisposed) {
			c.JSON(http.StatusBadGateway, response)
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// cleanup handles POST /cleanup
func (h *Handler) cleanup(c *gin.Context) {
	response, err := h.telemetryService.Cleanup(c.Request.Context())
	if err != nil {
		h.log.Error("Cleanup failed", zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// getBehavior handles GET /analytics/behavior
func (h *Handler) getBehavior(c *gin.Context) {
	response, err := h.telemetryService.GetBehavior(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get behavior analytics", zap.Error(err))
		h.respondError(c, err)
		return
	}

	h.log.Info("Behavior analytics retrieved",
		zap.Int("total_events", response.TotalEvents),
		zap.Int("unique_users", response.UniqueUsers))

	c.JSON(http.StatusOK, response)
}

// getCohorts handles GET /analytics/cohorts
func (h *Handler) getCohorts(c *gin.Context) {
	response, err := h.telemetryService.GetCohorts(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to get cohort analysis", zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// getFunnel handles GET /analytics/funnel?steps=a,b,c
func (h *Handler) getFunnel(c *gin.Context) {
	var req dto.FunnelRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid funnel request", zap.Error(err))
		bindingError(c, err)
		return
	}

	response, err := h.telemetryService.GetFunnel(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to get funnel analysis",
			zap.Error(err),
			zap.String("steps", req.Steps))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
