package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/services"
)

type EnvConfigHandler struct {
	EnvService *services.EnvConfigService
}

func NewEnvConfigHandler(envService *services.EnvConfigService) *EnvConfigHandler {
	return &EnvConfigHandler{EnvService: envService}
}

// GetConfig returns the variables grouped for display, sensitive values masked
func (h *EnvConfigHandler) GetConfig(c *gin.Context) {
	resp, err := h.EnvService.GetConfig()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *EnvConfigHandler) AcknowledgeRisk(c *gin.Context) {
	backup, err := h.EnvService.AcknowledgeRisk()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "backup": backup})
}

func (h *EnvConfigHandler) SetValue(c *gin.Context) {
	var req db.SetEnvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	key := c.Param("key")
	if err := h.EnvService.SetValue(key, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":                 key,
		"affected_containers": h.EnvService.AffectedContainers(key),
	})
}

func (h *EnvConfigHandler) AddCustom(c *gin.Context) {
	var req db.AddEnvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.EnvService.AddCustom(req.Key, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": req.Key})
}

func (h *EnvConfigHandler) DeleteCustom(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.EnvService.DeleteCustom(c.Param("key")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Variable deleted successfully"})
}

// BACKUP ENDPOINTS

func (h *EnvConfigHandler) ListBackups(c *gin.Context) {
	backups, err := h.EnvService.ListBackups()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups, "total": len(backups)})
}

func (h *EnvConfigHandler) CreateBackup(c *gin.Context) {
	backup, err := h.EnvService.CreateBackup()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, backup)
}

// Restore replaces the whole file with a backup after snapshotting the current one
func (h *EnvConfigHandler) Restore(c *gin.Context) {
	var req db.RestoreEnvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	snapshot, err := h.EnvService.Restore(req.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": req.Filename, "snapshot": snapshot})
}

// CHECK + RESTART ENDPOINTS

func (h *EnvConfigHandler) HealthCheck(c *gin.Context) {
	var req db.HealthCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.EnvService.HealthCheck(req.Changes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *EnvConfigHandler) AffectedContainers(c *gin.Context) {
	key := c.Param("key")
	c.JSON(http.StatusOK, gin.H{"key": key, "containers": h.EnvService.AffectedContainers(key)})
}

func (h *EnvConfigHandler) RestartContainers(c *gin.Context) {
	var req db.RestartContainersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	results := h.EnvService.RestartContainers(c.Request.Context(), req.Containers)
	c.JSON(http.StatusOK, gin.H{"results": results})
}
