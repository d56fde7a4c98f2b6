package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("topic %w", services.ErrNotFound), http.StatusNotFound, "topic not found"},
		{fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest, "name is required"},
		{fmt.Errorf("%w: target already attached", services.ErrConflict), http.StatusConflict, "target already attached"},
		{services.ErrNoTargets, http.StatusUnprocessableEntity, "Add at least one notification target before enabling"},
		{fmt.Errorf("%w: ntfy returned 500", services.ErrUpstream), http.StatusBadGateway, "ntfy returned 500"},
		{services.ErrUnauthorized, http.StatusUnauthorized, "invalid credentials"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.detail, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.detail, body["detail"])
			assert.Equal(t, tt.detail, body["error"])
		})
	}
}

func TestDeleteWithoutConfirm_IssuesNoSQL(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	h := NewNtfyHandler(services.NewTopicService(pg), services.NewTemplateService(pg), services.NewSavedMessageService(pg), nil, nil)
	ch := NewChannelHandler(services.NewChannelService(pg), nil)
	r := gin.New()
	r.DELETE("/topics/:id", h.DeleteTopic)
	r.DELETE("/templates/:id", h.DeleteTemplate)
	r.DELETE("/saved/:id", h.DeleteSavedMessage)
	r.DELETE("/services/:id", ch.DeleteChannel)
	r.DELETE("/groups/:id", ch.DeleteGroup)

	for _, path := range []string{"/topics/t1", "/templates/t1", "/saved/s1", "/services/c1", "/groups/g1", "/topics/t1?confirm=yes"} {
		w := perform(r, http.MethodDelete, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, decode(t, w)["detail"], "confirm=true")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTopic_Confirmed(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("DELETE FROM ntfy_topics").WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM ntfy_topics").WithArgs("t2").WillReturnResult(sqlmock.NewResult(0, 0))

	h := NewNtfyHandler(services.NewTopicService(pg), nil, nil, nil, nil)
	r := gin.New()
	r.DELETE("/topics/:id", h.DeleteTopic)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodDelete, "/topics/t1?confirm=true", "").Code)
	w := perform(r, http.MethodDelete, "/topics/t2?confirm=true", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "topic not found", decode(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTopic(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("INSERT INTO ntfy_topics").WillReturnResult(sqlmock.NewResult(1, 1))

	h := NewNtfyHandler(services.NewTopicService(pg), nil, nil, nil, nil)
	r := gin.New()
	r.POST("/topics", h.CreateTopic)

	w := perform(r, http.MethodPost, "/topics", `{"name":"alerts"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alerts", body["subscribe_topic"])
	assert.Equal(t, "channel:ntfy_alerts", body["webhook_slug"])

	w = perform(r, http.MethodPost, "/topics", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEvent_EnableGate(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("FROM system_notification_events WHERE id").WithArgs("ev1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "category", "display_name", "description",
			"severity", "frequency", "cooldown_minutes", "enabled", "updated_at"}).
			AddRow("ev1", "backup_failed", "backup", "Backup failed", "", "critical", "every_time", 0, false, time.Now()))
	mock.ExpectQuery("FROM system_notification_targets t").WithArgs("ev1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "target_type", "channel_id", "group_id",
			"escalation_level", "escalation_timeout_minutes", "target_name"}))

	svc := services.NewSystemNotificationService(pg, nil, services.NewChannelService(pg))
	h := NewSystemNotificationHandler(svc, nil)
	r := gin.New()
	r.PUT("/events/:id", h.UpdateEvent)

	w := perform(r, http.MethodPut, "/events/ev1", `{"enabled":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Add at least one notification target before enabling", decode(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubEmitter struct {
	got db.SystemEvent
}

func (s *stubEmitter) Emit(ctx context.Context, ev db.SystemEvent) (services.EmitResult, error) {
	s.got = ev
	return services.EmitResult{Outcome: services.EmitDispatched, Queued: 1}, nil
}

func TestTestEvent(t *testing.T) {
	emitter := &stubEmitter{}
	h := NewSystemNotificationHandler(nil, emitter)
	r := gin.New()
	r.POST("/test-event", h.TestEvent)

	w := perform(r, http.MethodPost, "/test-event", `{"event_type":"backup_failed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.EmitDispatched, decode(t, w)["outcome"])
	assert.Equal(t, "Test: backup_failed", emitter.got.Title)
	assert.Equal(t, "test", emitter.got.Source)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/test-event", `{}`).Code)
}

func TestAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := services.NewAuthService("admin", string(hash), "test-secret")
	h := NewAuthHandler(auth, true)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	protected := r.Group("/", AuthMiddleware(auth))
	protected.GET("/auth/me", h.Me)

	w := perform(r, http.MethodPost, "/auth/login", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodPost, "/auth/login", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/auth/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/auth/me", "", "Authorization", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/auth/me", "", "Authorization", "Bearer abc").Code)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/auth/me?token="+token, "").Code)

	w = perform(r, http.MethodGet, "/auth/me", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, true, body["debug"])
}

func TestCacheFlush_RequiresConfirm(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewCacheHandler(services.NewCacheService(rdb))
	r := gin.New()
	r.POST("/cache/flush", h.Flush)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/cache/flush", "").Code)

	mock.ExpectFlushDB().SetVal("OK")
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/cache/flush?confirm=true", "").Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKey_WithSlashes(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	h := NewCacheHandler(services.NewCacheService(rdb))
	r := gin.New()
	r.GET("/cache/keys", h.ListKeys)
	r.GET("/cache/keys/*key", h.GetKey)
	r.DELETE("/cache/keys/*key", h.DeleteKey)

	mock.ExpectType("sess/abc").SetVal("string")
	mock.ExpectTTL("sess/abc").SetVal(-1)
	mock.ExpectGet("sess/abc").SetVal("payload")
	w := perform(r, http.MethodGet, "/cache/keys/sess/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "sess/abc", body["key"])
	assert.Equal(t, "payload", body["value"])

	mock.ExpectDel("sess/abc").SetVal(1)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodDelete, "/cache/keys/sess/abc", "").Code)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodDelete, "/cache/keys/", "").Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadBackup(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "n8n-backup.tar.gz"), []byte("archive"), 0o600))

	cols := []string{"id", "filename", "status", "progress", "size", "error", "created_at", "completed_at"}
	now := time.Now()
	mock.ExpectQuery("FROM archive_backups WHERE id").WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b1", "n8n-backup.tar.gz", "completed", 100, 7, "", now, now))
	mock.ExpectQuery("FROM archive_backups WHERE id").WithArgs("b2").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b2", "n8n-backup-2.tar.gz", "running", 40, 0, "", now, nil))

	h := NewBackupHandler(services.NewBackupService(pg, "", dir, nil))
	r := gin.New()
	r.GET("/backups/download/:id", h.DownloadBackup)

	w := perform(r, http.MethodGet, "/backups/download/b1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "archive", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "n8n-backup.tar.gz")

	w = perform(r, http.MethodGet, "/backups/download/b2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "backup is running", decode(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
