package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/n8nhost/console/db"
)

// NtfyClient publishes messages through the ntfy JSON publish API.
type NtfyClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewNtfyClient(baseURL, token string) *NtfyClient {
	return &NtfyClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type ntfyResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Publish posts payload (which must carry "topic") to baseURL and returns
// the message id assigned by the server. Empty baseURL or token fall back
// to the client defaults.
func (c *NtfyClient) Publish(ctx context.Context, baseURL, token string, payload map[string]interface{}) (string, error) {
	if baseURL == "" {
		baseURL = c.BaseURL
	}
	if token == "" {
		token = c.Token
	}
	if baseURL == "" {
		return "", fmt.Errorf("ntfy server URL is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode ntfy message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("ntfy request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out ntfyResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, msg)
	}
	return out.ID, nil
}

// Send delivers a notification to an ntfy channel. The channel config may
// override the server URL and token.
func (c *NtfyClient) Send(ctx context.Context, ch db.Channel, msg Message) error {
	payload := map[string]interface{}{
		"topic":   configString(ch, "topic"),
		"message": msg.Body,
	}
	if msg.Title != "" {
		payload["title"] = msg.Title
	}
	if msg.Priority > 0 {
		payload["priority"] = msg.Priority
	}
	if len(msg.Tags) > 0 {
		payload["tags"] = msg.Tags
	}
	if msg.ClickURL != "" {
		payload["click"] = msg.ClickURL
	}
	_, err := c.Publish(ctx, configString(ch, "server_url"), configString(ch, "token"), payload)
	return err
}
