package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/services"
)

type CacheHandler struct {
	CacheService *services.CacheService
}

func NewCacheHandler(cacheService *services.CacheService) *CacheHandler {
	return &CacheHandler{CacheService: cacheService}
}

// Status always answers 200; a dead Redis is reported in the body
func (h *CacheHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.CacheService.Status(c.Request.Context()))
}

func (h *CacheHandler) ListKeys(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")
	keys, truncated, err := h.CacheService.Keys(c.Request.Context(), pattern)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "total": len(keys), "truncated": truncated})
}

// cacheKey reads the catch-all key parameter; keys may contain slashes.
func cacheKey(c *gin.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		badRequest(c, "key is required")
		return "", false
	}
	return key, true
}

func (h *CacheHandler) GetKey(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}
	entry, err := h.CacheService.GetKey(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *CacheHandler) DeleteKey(c *gin.Context) {
	key, ok := cacheKey(c)
	if !ok {
		return
	}
	if err := h.CacheService.DeleteKey(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key deleted successfully"})
}

func (h *CacheHandler) Flush(c *gin.Context) {
	if !requireConfirm(c) {
		return
	}
	if err := h.CacheService.Flush(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache flushed"})
}
