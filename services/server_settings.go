package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

// ServerSettingsService stores the ntfy server the console publishes to.
// Until the operator saves settings, Defaults (from config) apply.
type ServerSettingsService struct {
	PG       *sql.DB
	Defaults db.NtfyServerSettings
}

func NewServerSettingsService(pg *sql.DB, baseURL, token string) *ServerSettingsService {
	return &ServerSettingsService{
		PG: pg,
		Defaults: db.NtfyServerSettings{
			BaseURL:         baseURL,
			AuthToken:       token,
			DefaultPriority: rules.PriorityDefault,
			Enabled:         true,
		},
	}
}

func (s *ServerSettingsService) Get(ctx context.Context) (db.NtfyServerSettings, error) {
	var st db.NtfyServerSettings
	err := s.PG.QueryRowContext(ctx, `
		SELECT base_url, default_topic, auth_token, default_priority, enabled, updated_at
		FROM ntfy_server_settings WHERE id = 1`).
		Scan(&st.BaseURL, &st.DefaultTopic, &st.AuthToken, &st.DefaultPriority, &st.Enabled, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return s.Defaults, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to get ntfy server settings: %w", err)
	}
	return st, nil
}

func (s *ServerSettingsService) Update(ctx context.Context, req db.UpdateNtfyServerRequest) (db.NtfyServerSettings, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return st, err
	}
	if req.BaseURL != nil {
		st.BaseURL = *req.BaseURL
	}
	if req.DefaultTopic != nil {
		st.DefaultTopic = *req.DefaultTopic
	}
	// the console echoes the masked token back when it was not edited
	if req.AuthToken != nil && *req.AuthToken != MaskSecret(st.AuthToken) {
		st.AuthToken = *req.AuthToken
	}
	if req.DefaultPriority != nil {
		st.DefaultPriority = *req.DefaultPriority
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}

	u, err := url.Parse(st.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return st, invalid("base_url must be an http(s) URL")
	}
	if st.DefaultTopic != "" && !topicNamePattern.MatchString(st.DefaultTopic) {
		return st, invalid("invalid default topic %q", st.DefaultTopic)
	}
	if !rules.ValidPriority(st.DefaultPriority) {
		return st, invalid("default priority must be between 1 and 5")
	}
	st.UpdatedAt = time.Now()

	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO ntfy_server_settings (id, base_url, default_topic, auth_token, default_priority, enabled, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET base_url = EXCLUDED.base_url, default_topic = EXCLUDED.default_topic, auth_token = EXCLUDED.auth_token,
			default_priority = EXCLUDED.default_priority, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		st.BaseURL, st.DefaultTopic, st.AuthToken, st.DefaultPriority, st.Enabled, st.UpdatedAt)
	if err != nil {
		return st, fmt.Errorf("failed to save ntfy server settings: %w", err)
	}
	return st, nil
}

// Masked returns a copy safe to send to the browser.
func Masked(st db.NtfyServerSettings) db.NtfyServerSettings {
	st.AuthToken = MaskSecret(st.AuthToken)
	return st
}
