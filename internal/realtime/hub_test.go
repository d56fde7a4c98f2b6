package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

func TestHub_Broadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	r := gin.New()
	r.GET("/ws/notifications", hub.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(db.SystemNotification{ID: "n1", EventType: "backup_failed", Severity: "critical", Status: db.NotificationSent})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Feed
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "notification", frame.Type)
	assert.Equal(t, "n1", frame.Notification.ID)
	assert.Equal(t, "backup_failed", frame.Notification.EventType)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast(db.SystemNotification{ID: "n1"})
	assert.Equal(t, 0, hub.Count())
}
