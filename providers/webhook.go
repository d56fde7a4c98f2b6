package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/n8nhost/console/db"
)

// WebhookSender posts JSON to Slack, Discord and generic webhook URLs.
type WebhookSender struct {
	HTTP *http.Client
}

func NewWebhookSender() *WebhookSender {
	return &WebhookSender{HTTP: &http.Client{Timeout: 15 * time.Second}}
}

func (w *WebhookSender) post(ctx context.Context, url string, headers map[string]interface{}, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, raw)
	}
	return nil
}

func (w *WebhookSender) Slack(ctx context.Context, ch db.Channel, msg Message) error {
	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)
	}
	return w.post(ctx, configString(ch, "url"), nil, map[string]string{"text": text})
}

func (w *WebhookSender) Discord(ctx context.Context, ch db.Channel, msg Message) error {
	content := msg.Body
	if msg.Title != "" {
		content = fmt.Sprintf("**%s**\n%s", msg.Title, msg.Body)
	}
	return w.post(ctx, configString(ch, "url"), nil, map[string]string{"content": content})
}

// Webhook sends the message fields as-is. config.headers adds request headers.
func (w *WebhookSender) Webhook(ctx context.Context, ch db.Channel, msg Message) error {
	headers, _ := ch.Config["headers"].(map[string]interface{})
	return w.post(ctx, configString(ch, "url"), headers, map[string]interface{}{
		"title":    msg.Title,
		"message":  msg.Body,
		"severity": msg.Severity,
		"priority": msg.Priority,
		"tags":     msg.Tags,
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	})
}
