package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/services"
)

type SystemNotificationHandler struct {
	NotificationService *services.SystemNotificationService
	Events              services.EventEmitter
}

func NewSystemNotificationHandler(notificationService *services.SystemNotificationService, events services.EventEmitter) *SystemNotificationHandler {
	return &SystemNotificationHandler{NotificationService: notificationService, Events: events}
}

// EVENT ENDPOINTS

// ListEvents returns every event rule with its targets and the per-category summary
func (h *SystemNotificationHandler) ListEvents(c *gin.Context) {
	resp, err := h.NotificationService.ListEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SystemNotificationHandler) GetEvent(c *gin.Context) {
	event, err := h.NotificationService.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// UpdateEvent applies a partial update. Enabling an event without targets fails with 422.
func (h *SystemNotificationHandler) UpdateEvent(c *gin.Context) {
	var req db.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	event, err := h.NotificationService.UpdateEvent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// TARGET ENDPOINTS

func (h *SystemNotificationHandler) AddTarget(c *gin.Context) {
	var req db.AddTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	target, err := h.NotificationService.AddTarget(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, target)
}

func (h *SystemNotificationHandler) RemoveTarget(c *gin.Context) {
	if err := h.NotificationService.RemoveTarget(c.Request.Context(), c.Param("id"), c.Param("target_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Target removed successfully"})
}

func (h *SystemNotificationHandler) AvailableTargets(c *gin.Context) {
	available, err := h.NotificationService.AvailableTargets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, available)
}

// GLOBAL SETTINGS ENDPOINTS

func (h *SystemNotificationHandler) GetGlobalSettings(c *gin.Context) {
	settings, err := h.NotificationService.GetGlobalSettings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *SystemNotificationHandler) UpdateGlobalSettings(c *gin.Context) {
	var req db.UpdateGlobalSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	settings, err := h.NotificationService.UpdateGlobalSettings(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// CONTAINER CONFIG ENDPOINTS

func (h *SystemNotificationHandler) ListContainerConfigs(c *gin.Context) {
	configs, err := h.NotificationService.ListContainerConfigs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"containers": configs, "total": len(configs)})
}

func (h *SystemNotificationHandler) UpdateContainerConfig(c *gin.Context) {
	var req db.ContainerConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cfg, err := h.NotificationService.UpdateContainerConfig(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// HISTORY ENDPOINTS

func (h *SystemNotificationHandler) History(c *gin.Context) {
	page, err := h.NotificationService.History(c.Request.Context(), services.SystemHistoryFilter{
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
		EventType: c.Query("event_type"),
		Status:    c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Acknowledge stops pending escalations of a notification
func (h *SystemNotificationHandler) Acknowledge(c *gin.Context) {
	if err := h.NotificationService.Acknowledge(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification acknowledged"})
}

// TestEvent runs a synthetic event through the full rule pipeline
func (h *SystemNotificationHandler) TestEvent(c *gin.Context) {
	var ev db.SystemEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err.Error())
		return
	}
	if ev.Title == "" {
		ev.Title = "Test: " + ev.EventType
	}
	if ev.Message == "" {
		ev.Message = "This is a test notification sent from the console."
	}
	ev.Source = "test"
	ev.OccurredAt = time.Now()

	result, err := h.Events.Emit(c.Request.Context(), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
