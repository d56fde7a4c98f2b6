package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/services"
)

// statusFor maps service sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoTargets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error", "detail"} with the user-facing message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := services.Message(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg, "detail": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "detail": msg})
}

// requireConfirm rejects destructive requests that lack ?confirm=true.
func requireConfirm(c *gin.Context) bool {
	if c.Query("confirm") == "true" {
		return true
	}
	badRequest(c, "add confirm=true to perform this action")
	return false
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
