package http

import (
	"errors"
	"net/http"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"
	"whipcast/internal/core/services"
	"whipcast/internal/infrastructure/monitoring"
	"whipcast/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PublisherHandler exposes the agent's publish lifecycle over HTTP.
type PublisherHandler struct {
	publisher     ports.Publisher
	resumeService *services.ResumeService
	health        *monitoring.HealthChecker
	defaultRoomID domain.RoomID
}

func NewPublisherHandler(
	publisher ports.Publisher,
	resumeService *services.ResumeService,
	health *monitoring.HealthChecker,
	defaultRoomID domain.RoomID,
) *PublisherHandler {
	return &PublisherHandler{
		publisher:     publisher,
		resumeService: resumeService,
		health:        health,
		defaultRoomID: defaultRoomID,
	}
}

func (h *PublisherHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware)
	{
		api.POST("/publish/start", h.StartPublish)
		api.POST("/publish/stop", h.StopPublish)
		api.GET("/status", h.Status)
	}

	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *PublisherHandler) StartPublish(c *gin.Context) {
	var req struct {
		RoomID domain.RoomID `json:"room_id"`
	}
	// Body is optional; the configured room is the default.
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = h.defaultRoomID
	}
	if err := validation.ValidateRoomID(string(roomID)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.publisher.Start(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyPublishing) {
			c.JSON(http.StatusConflict, gin.H{"error": "already publishing"})
			return
		}
		if errors.Is(err, domain.ErrCaptureUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session": session,
	})
}

func (h *PublisherHandler) StopPublish(c *gin.Context) {
	if err := h.publisher.Stop(c.Request.Context()); err != nil {
		if errors.Is(err, domain.ErrNotPublishing) {
			c.JSON(http.StatusConflict, gin.H{"error": "not publishing"})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (h *PublisherHandler) Status(c *gin.Context) {
	status := h.publisher.Status()
	c.JSON(http.StatusOK, gin.H{
		"publisher":    status,
		"resume_state": h.resumeService.State().String(),
	})
}

func (h *PublisherHandler) Healthz(c *gin.Context) {
	results, healthy := h.health.Check(c.Request.Context())
	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": results,
	})
}
