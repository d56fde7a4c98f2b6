package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/n8nhost/console/db"
)

// Client talks to the console API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. token may be empty for login.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken replaces the session token
func (c *Client) SetToken(token string) {
	c.token = token
}

// APIError is a non-2xx answer from the API
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.Status)
}

// do performs an authenticated JSON request and decodes the response into out
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newAPIError prefers "detail", then "error", then the raw body
func newAPIError(status int, data []byte) *APIError {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	detail := ""
	if json.Unmarshal(data, &body) == nil {
		detail = body.Detail
		if detail == "" {
			detail = body.Error
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(string(data))
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &APIError{Status: status, Detail: detail}
}

func (c *Client) Get(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, endpoint, body, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, out)
}

// LoginResponse is returned by Login
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges credentials for a token and keeps it on the client
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.Post(ctx, "/auth/login", map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return resp, err
	}
	c.token = resp.Token
	return resp, nil
}

// BACKUPS

func (c *Client) CreateBackup(ctx context.Context) (db.Backup, error) {
	var b db.Backup
	err := c.Post(ctx, "/backups", nil, &b)
	return b, err
}

func (c *Client) GetBackup(ctx context.Context, id string) (db.Backup, error) {
	var b db.Backup
	err := c.Get(ctx, "/backups/"+url.PathEscape(id), &b)
	return b, err
}

func (c *Client) ListBackups(ctx context.Context) ([]db.Backup, error) {
	var resp struct {
		Backups []db.Backup `json:"backups"`
	}
	err := c.Get(ctx, "/backups", &resp)
	return resp.Backups, err
}

// EVENTS

func (c *Client) ListEvents(ctx context.Context) (db.EventsResponse, error) {
	var resp db.EventsResponse
	err := c.Get(ctx, "/system-notifications/events", &resp)
	return resp, err
}

func (c *Client) SetEventEnabled(ctx context.Context, id string, enabled bool) (db.NotificationEvent, error) {
	var e db.NotificationEvent
	err := c.Put(ctx, "/system-notifications/events/"+url.PathEscape(id), db.UpdateEventRequest{Enabled: &enabled}, &e)
	return e, err
}

// ENV CONFIG

func (c *Client) GetEnvConfig(ctx context.Context) (db.EnvConfigResponse, error) {
	var resp db.EnvConfigResponse
	err := c.Get(ctx, "/env-config", &resp)
	return resp, err
}

// SetEnv updates a variable and returns the containers that need a restart
func (c *Client) SetEnv(ctx context.Context, key, value string) ([]string, error) {
	var resp struct {
		AffectedContainers []string `json:"affected_containers"`
	}
	err := c.Put(ctx, "/env-config/"+url.PathEscape(key), db.SetEnvRequest{Value: value}, &resp)
	return resp.AffectedContainers, err
}

// CACHE

func (c *Client) CacheStatus(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	err := c.Get(ctx, "/cache/status", &resp)
	return resp, err
}

func (c *Client) FlushCache(ctx context.Context) error {
	return c.Post(ctx, "/cache/flush?confirm=true", nil, nil)
}
