package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

func TestNtfyClient_Publish(t *testing.T) {
	var got map[string]interface{}
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"abc123","topic":"alerts"}`))
	}))
	defer server.Close()

	client := NewNtfyClient(server.URL, "tk_default")
	id, err := client.Publish(context.Background(), "", "", map[string]interface{}{
		"topic":   "alerts",
		"message": "disk full",
	})

	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, "Bearer tk_default", auth)
	assert.Equal(t, "alerts", got["topic"])
}

func TestNtfyClient_PublishError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":40301,"http":403,"error":"forbidden"}`))
	}))
	defer server.Close()

	_, err := NewNtfyClient(server.URL, "").Publish(context.Background(), "", "", map[string]interface{}{"topic": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestNtfyClient_SendOmitsEmptyFields(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	ch := db.Channel{ChannelType: db.ChannelNtfy, Enabled: true, Config: map[string]interface{}{"topic": "ops"}}
	err := NewNtfyClient(server.URL, "").Send(context.Background(), ch, Message{Body: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "ops", got["topic"])
	assert.NotContains(t, got, "title")
	assert.NotContains(t, got, "tags")
	assert.NotContains(t, got, "priority")
}

func TestWebhookSender_Slack(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	ch := db.Channel{ChannelType: db.ChannelSlack, Config: map[string]interface{}{"url": server.URL}}
	err := NewWebhookSender().Slack(context.Background(), ch, Message{Title: "Backup failed", Body: "exit 1"})

	require.NoError(t, err)
	assert.Equal(t, "*Backup failed*\nexit 1", got["text"])
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := db.Channel{ChannelType: db.ChannelWebhook, Config: map[string]interface{}{"url": server.URL}}
	err := NewWebhookSender().Webhook(context.Background(), ch, Message{Body: "x"})
	assert.Error(t, err)
}

func TestRegistry_RetriesThenSucceeds(t *testing.T) {
	r := NewRegistry(100, nil)
	r.Delay = time.Millisecond

	calls := 0
	r.Register("test", func(ctx context.Context, ch db.Channel, msg Message) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	err := r.Send(context.Background(), db.Channel{ChannelType: "test", Enabled: true}, Message{Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRegistry_GivesUpAfterAttempts(t *testing.T) {
	r := NewRegistry(100, nil)
	r.Delay = time.Millisecond

	calls := 0
	r.Register("test", func(ctx context.Context, ch db.Channel, msg Message) error {
		calls++
		return errors.New("down")
	})

	err := r.Send(context.Background(), db.Channel{ChannelType: "test", Enabled: true}, Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRegistry_RefusesDisabledAndUnknown(t *testing.T) {
	r := NewRegistry(100, nil)
	r.Register("test", func(ctx context.Context, ch db.Channel, msg Message) error { return nil })

	err := r.Send(context.Background(), db.Channel{Name: "off", ChannelType: "test"}, Message{})
	assert.Error(t, err)

	err = r.Send(context.Background(), db.Channel{ChannelType: "pager", Enabled: true}, Message{})
	assert.Error(t, err)
}

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		name    string
		ch      db.Channel
		wantErr bool
	}{
		{"ntfy with topic", db.Channel{ChannelType: db.ChannelNtfy, Config: map[string]interface{}{"topic": "ops"}}, false},
		{"ntfy without topic", db.Channel{ChannelType: db.ChannelNtfy, Config: map[string]interface{}{}}, true},
		{"telegram numeric chat", db.Channel{ChannelType: db.ChannelTelegram, Config: map[string]interface{}{"chat_id": float64(-100123)}}, false},
		{"fcm needs token or topic", db.Channel{ChannelType: db.ChannelFCM, Config: map[string]interface{}{}}, true},
		{"fcm topic", db.Channel{ChannelType: db.ChannelFCM, Config: map[string]interface{}{"topic": "ops"}}, false},
		{"unknown type", db.Channel{ChannelType: "pager"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannel(tt.ch)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessageSubject(t *testing.T) {
	assert.Equal(t, "[CRITICAL] Disk full", Message{Title: "Disk full", Severity: "critical"}.Subject())
	assert.Equal(t, "first", Message{Body: "first\nsecond"}.Subject())
	assert.Equal(t, "-100123", chatIDString(db.Channel{Config: map[string]interface{}{"chat_id": float64(-100123)}}))
}

func chatIDString(ch db.Channel) string {
	return configString(ch, "chat_id")
}
