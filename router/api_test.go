package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/internal/config"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/realtime"
	"github.com/n8nhost/console/services"
)

func newTestRouter(t *testing.T) (*gin.Engine, redismock.ClientMock) {
	gin.SetMode(gin.TestMode)
	config.App = config.Config{JWTSecret: "router-secret", AdminUser: "admin"}

	pg, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	rdb, redisMock := redismock.NewClientMock()

	logger := logging.Discard()
	channels := services.NewChannelService(pg)
	notifications := services.NewSystemNotificationService(pg, rdb, channels)
	dispatcher := services.NewDispatcher(pg, rdb, notifications, channels, nil, logger, 1, 1)
	return NewGinRouter(pg, rdb, logger, dispatcher, realtime.NewHub(logger)), redisMock
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_Preflight(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/backups", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	r, redisMock := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cache/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	session, err := services.NewAuthService("admin", "", "router-secret").Issue("admin")
	require.NoError(t, err)

	redisMock.ExpectPing().SetErr(errors.New("connection refused"))
	req := httptest.NewRequest(http.MethodGet, "/cache/status", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":false`)
}

func TestRouter_LoginWithoutConfiguredPassword(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)
}
