package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
	"github.com/n8nhost/console/providers"
	"github.com/n8nhost/console/services"
)

type ChannelHandler struct {
	ChannelService *services.ChannelService
	Sender         services.Sender
}

func NewChannelHandler(channelService *services.ChannelService, sender services.Sender) *ChannelHandler {
	return &ChannelHandler{ChannelService: channelService, Sender: sender}
}

// CHANNEL ENDPOINTS

func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels, err := h.ChannelService.ListChannels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": channels, "total": len(channels)})
}

func (h *ChannelHandler) GetChannel(c *gin.Context) {
	ch, err := h.ChannelService.GetChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req db.SaveChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, err := h.ChannelService.CreateChannel(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	var req db.SaveChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, err := h.ChannelService.UpdateChannel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.ChannelService.DeleteChannel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification service deleted successfully"})
}

// TestChannel sends a test message through the channel's provider
func (h *ChannelHandler) TestChannel(c *gin.Context) {
	ctx := c.Request.Context()
	ch, err := h.ChannelService.GetChannel(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	err = h.Sender.Send(ctx, ch, providers.Message{
		Title:    "Test notification",
		Body:     "This is a test message from the n8n console.",
		Priority: rules.PriorityDefault,
		Severity: rules.SeverityInfo,
		Tags:     []string{"test"},
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error(), "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test message sent to " + ch.Name})
}

// GROUP ENDPOINTS

func (h *ChannelHandler) ListGroups(c *gin.Context) {
	groups, err := h.ChannelService.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "total": len(groups)})
}

func (h *ChannelHandler) GetGroup(c *gin.Context) {
	group, err := h.ChannelService.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *ChannelHandler) CreateGroup(c *gin.Context) {
	var req db.SaveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	group, err := h.ChannelService.CreateGroup(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *ChannelHandler) UpdateGroup(c *gin.Context) {
	var req db.SaveGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	group, err := h.ChannelService.UpdateGroup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *ChannelHandler) DeleteGroup(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.ChannelService.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted successfully"})
}
