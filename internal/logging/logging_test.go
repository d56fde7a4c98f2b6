package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(dir, "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("event_type", "backup_failed").Warn("delivery failed")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "console.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"backup_failed"`)
	assert.Contains(t, string(data), `"level":"warning"`)
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := New(t.TempDir(), "chatty")
	require.NoError(t, err)
	defer logger.Close()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf strings.Builder
	logger := Discard()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := gin.New()
	r.Use(RequestLogger(logger))
	r.GET("/backups", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backups", nil))

	assert.Contains(t, buf.String(), `"path":"/backups"`)
	assert.Contains(t, buf.String(), `"status":202`)
}
