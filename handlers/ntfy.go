package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/services"
)

type NtfyHandler struct {
	TopicService        *services.TopicService
	TemplateService     *services.TemplateService
	SavedMessageService *services.SavedMessageService
	MessageService      *services.MessageService
	SettingsService     *services.ServerSettingsService
}

func NewNtfyHandler(topicService *services.TopicService, templateService *services.TemplateService,
	savedMessageService *services.SavedMessageService, messageService *services.MessageService,
	settingsService *services.ServerSettingsService) *NtfyHandler {
	return &NtfyHandler{
		TopicService:        topicService,
		TemplateService:     templateService,
		SavedMessageService: savedMessageService,
		MessageService:      messageService,
		SettingsService:     settingsService,
	}
}

// TOPIC ENDPOINTS

func (h *NtfyHandler) ListTopics(c *gin.Context) {
	topics, err := h.TopicService.ListTopics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics, "total": len(topics)})
}

func (h *NtfyHandler) GetTopic(c *gin.Context) {
	topic, err := h.TopicService.GetTopic(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

// CreateTopic returns the subscribe string and webhook slug along with the topic
func (h *NtfyHandler) CreateTopic(c *gin.Context) {
	var req db.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := h.TopicService.CreateTopic(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *NtfyHandler) UpdateTopic(c *gin.Context) {
	var req db.UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	topic, err := h.TopicService.UpdateTopic(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, topic)
}

func (h *NtfyHandler) DeleteTopic(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.TopicService.DeleteTopic(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Topic deleted successfully"})
}

// TEMPLATE ENDPOINTS

func (h *NtfyHandler) ListTemplates(c *gin.Context) {
	templates, err := h.TemplateService.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "total": len(templates)})
}

func (h *NtfyHandler) GetTemplate(c *gin.Context) {
	tmpl, err := h.TemplateService.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *NtfyHandler) CreateTemplate(c *gin.Context) {
	var req db.SaveTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tmpl, err := h.TemplateService.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *NtfyHandler) UpdateTemplate(c *gin.Context) {
	var req db.SaveTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tmpl, err := h.TemplateService.UpdateTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (h *NtfyHandler) DeleteTemplate(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.TemplateService.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

// RenderTemplate previews a template against a payload, or its sample JSON when none is given
func (h *NtfyHandler) RenderTemplate(c *gin.Context) {
	var req db.RenderTemplateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	rendered, err := h.TemplateService.Render(c.Request.Context(), c.Param("id"), req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rendered)
}

// SAVED MESSAGE ENDPOINTS

func (h *NtfyHandler) ListSavedMessages(c *gin.Context) {
	messages, err := h.SavedMessageService.ListSavedMessages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": len(messages)})
}

func (h *NtfyHandler) GetSavedMessage(c *gin.Context) {
	msg, err := h.SavedMessageService.GetSavedMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *NtfyHandler) CreateSavedMessage(c *gin.Context) {
	var req db.SavedMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.SavedMessageService.CreateSavedMessage(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *NtfyHandler) UpdateSavedMessage(c *gin.Context) {
	var req db.SavedMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.SavedMessageService.UpdateSavedMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *NtfyHandler) DeleteSavedMessage(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.SavedMessageService.DeleteSavedMessage(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Saved message deleted successfully"})
}

// SendSavedMessage publishes a saved message as if it came from the composer
func (h *NtfyHandler) SendSavedMessage(c *gin.Context) {
	ctx := c.Request.Context()
	saved, err := h.SavedMessageService.GetSavedMessage(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	req := services.ComposeRequest(saved)
	req.Source = "saved"
	entry, err := h.MessageService.Send(ctx, req)
	if err != nil {
		h.respondSendError(c, entry, err)
		return
	}
	if err := h.SavedMessageService.MarkUsed(ctx, saved.ID, time.Now()); err != nil {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, entry)
}

// MESSAGE ENDPOINTS

func (h *NtfyHandler) SendMessage(c *gin.Context) {
	var req db.ComposeMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.MessageService.Send(c.Request.Context(), req)
	if err != nil {
		h.respondSendError(c, entry, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// respondSendError includes the recorded history entry when the publish itself failed
func (h *NtfyHandler) respondSendError(c *gin.Context, entry db.HistoryEntry, err error) {
	if !errors.Is(err, services.ErrUpstream) {
		respondError(c, err)
		return
	}
	msg := services.Message(err)
	c.JSON(http.StatusBadGateway, gin.H{"error": msg, "detail": msg, "entry": entry})
}

func (h *NtfyHandler) History(c *gin.Context) {
	page, err := h.MessageService.History(c.Request.Context(), services.HistoryFilter{
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
		Topic:  c.Query("topic"),
		Status: c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SERVER SETTINGS ENDPOINTS

func (h *NtfyHandler) GetServer(c *gin.Context) {
	st, err := h.SettingsService.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.Masked(st))
}

func (h *NtfyHandler) UpdateServer(c *gin.Context) {
	var req db.UpdateNtfyServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	st, err := h.SettingsService.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.Masked(st))
}

// TestServer publishes a test message to the default topic
func (h *NtfyHandler) TestServer(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.SettingsService.Get(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if st.DefaultTopic == "" {
		badRequest(c, "set a default topic before sending a test message")
		return
	}

	entry, err := h.MessageService.Send(ctx, db.ComposeMessageRequest{
		Topic:   st.DefaultTopic,
		Title:   "Test notification",
		Message: "ntfy is configured correctly.",
		Tags:    []string{"white_check_mark"},
		Source:  "test",
	})
	if err != nil {
		h.respondSendError(c, entry, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entry": entry})
}
