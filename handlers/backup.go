package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/services"
)

type BackupHandler struct {
	BackupService *services.BackupService
}

func NewBackupHandler(backupService *services.BackupService) *BackupHandler {
	return &BackupHandler{BackupService: backupService}
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.BackupService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": backups, "total": len(backups)})
}

// CreateBackup starts an archive job; poll GetBackup for progress
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	backup, err := h.BackupService.Create(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, backup)
}

func (h *BackupHandler) GetBackup(c *gin.Context) {
	backup, err := h.BackupService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, backup)
}

func (h *BackupHandler) VerifyBackup(c *gin.Context) {
	result, err := h.BackupService.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	path, backup, err := h.BackupService.ArchivePath(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, backup.Filename)
}

func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.BackupService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted successfully"})
}
