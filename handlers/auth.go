package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/n8nhost/console/services"
)

type AuthHandler struct {
	AuthService *services.AuthService
	Debug       bool
}

func NewAuthHandler(authService *services.AuthService, debug bool) *AuthHandler {
	return &AuthHandler{AuthService: authService, Debug: debug}
}

// Login exchanges the operator credentials for a session token
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resp, err := h.AuthService.Login(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the session identity and whether debug tooling is enabled
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"username": c.GetString("username"),
		"debug":    h.Debug,
	})
}

// AuthMiddleware validates the bearer session token
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		// websocket upgrades from the browser carry the token in the query
		if authHeader == "" && c.Query("token") != "" {
			authHeader = "Bearer " + c.Query("token")
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Authorization header is required",
				"detail": "Authorization header is required",
			})
			return
		}

		token, err := services.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "detail": err.Error()})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Invalid or expired token",
				"detail": "Invalid or expired token",
			})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
