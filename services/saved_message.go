package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

const savedMessageColumns = `id, name, topic, title, message, priority, tags, click_url, attach_url,
	icon_url, delay, email, actions, use_count, last_used, created_at, updated_at`

type SavedMessageService struct {
	PG *sql.DB
}

func NewSavedMessageService(pg *sql.DB) *SavedMessageService {
	return &SavedMessageService{PG: pg}
}

func scanSavedMessage(row scanner) (db.SavedMessage, error) {
	var m db.SavedMessage
	var actions []byte
	var lastUsed sql.NullTime
	err := row.Scan(&m.ID, &m.Name, &m.Topic, &m.Title, &m.Message, &m.Priority, pq.Array(&m.Tags),
		&m.ClickURL, &m.AttachURL, &m.IconURL, &m.Delay, &m.Email, &actions, &m.UseCount, &lastUsed,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	if lastUsed.Valid {
		m.LastUsed = &lastUsed.Time
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &m.Actions); err != nil {
			return m, fmt.Errorf("invalid actions for saved message %s: %w", m.ID, err)
		}
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Actions == nil {
		m.Actions = []db.NtfyAction{}
	}
	return m, nil
}

func (s *SavedMessageService) ListSavedMessages(ctx context.Context) ([]db.SavedMessage, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT `+savedMessageColumns+` FROM ntfy_saved_messages ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved messages: %w", err)
	}
	defer rows.Close()

	messages := []db.SavedMessage{}
	for rows.Next() {
		m, err := scanSavedMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SavedMessageService) GetSavedMessage(ctx context.Context, id string) (db.SavedMessage, error) {
	m, err := scanSavedMessage(s.PG.QueryRowContext(ctx,
		`SELECT `+savedMessageColumns+` FROM ntfy_saved_messages WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return m, notFound("saved message")
	}
	if err != nil {
		return m, fmt.Errorf("failed to get saved message: %w", err)
	}
	return m, nil
}

func normalizeSavedMessage(m *db.SavedMessage) error {
	if m.Name == "" {
		return invalid("name is required")
	}
	if !topicNamePattern.MatchString(m.Topic) {
		return invalid("invalid topic %q", m.Topic)
	}
	if m.Message == "" {
		return invalid("message is required")
	}
	if m.Priority == 0 {
		m.Priority = rules.PriorityDefault
	}
	if !rules.ValidPriority(m.Priority) {
		return invalid("priority must be between 1 and 5")
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Actions == nil {
		m.Actions = []db.NtfyAction{}
	}
	return nil
}

func (s *SavedMessageService) CreateSavedMessage(ctx context.Context, m db.SavedMessage) (db.SavedMessage, error) {
	if err := normalizeSavedMessage(&m); err != nil {
		return m, err
	}
	now := time.Now()
	m.ID = uuid.New().String()
	m.UseCount = 0
	m.LastUsed = nil
	m.CreatedAt = now
	m.UpdatedAt = now

	actions, err := json.Marshal(m.Actions)
	if err != nil {
		return m, fmt.Errorf("failed to encode actions: %w", err)
	}
	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO ntfy_saved_messages (id, name, topic, title, message, priority, tags, click_url,
			attach_url, icon_url, delay, email, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.Name, m.Topic, m.Title, m.Message, m.Priority, pq.Array(m.Tags), m.ClickURL,
		m.AttachURL, m.IconURL, m.Delay, m.Email, actions, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return m, fmt.Errorf("failed to create saved message: %w", err)
	}
	return m, nil
}

func (s *SavedMessageService) UpdateSavedMessage(ctx context.Context, id string, m db.SavedMessage) (db.SavedMessage, error) {
	existing, err := s.GetSavedMessage(ctx, id)
	if err != nil {
		return existing, err
	}
	if err := normalizeSavedMessage(&m); err != nil {
		return existing, err
	}
	m.ID = existing.ID
	m.UseCount = existing.UseCount
	m.LastUsed = existing.LastUsed
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now()

	actions, err := json.Marshal(m.Actions)
	if err != nil {
		return m, fmt.Errorf("failed to encode actions: %w", err)
	}
	_, err = s.PG.ExecContext(ctx, `
		UPDATE ntfy_saved_messages
		SET name = $2, topic = $3, title = $4, message = $5, priority = $6, tags = $7, click_url = $8,
			attach_url = $9, icon_url = $10, delay = $11, email = $12, actions = $13, updated_at = $14
		WHERE id = $1`,
		m.ID, m.Name, m.Topic, m.Title, m.Message, m.Priority, pq.Array(m.Tags), m.ClickURL,
		m.AttachURL, m.IconURL, m.Delay, m.Email, actions, m.UpdatedAt)
	if err != nil {
		return m, fmt.Errorf("failed to update saved message: %w", err)
	}
	return m, nil
}

func (s *SavedMessageService) DeleteSavedMessage(ctx context.Context, id string) error {
	res, err := s.PG.ExecContext(ctx, `DELETE FROM ntfy_saved_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("saved message")
	}
	return nil
}

func (s *SavedMessageService) MarkUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.PG.ExecContext(ctx, `
		UPDATE ntfy_saved_messages SET use_count = use_count + 1, last_used = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record saved message use: %w", err)
	}
	return nil
}

// ComposeRequest turns a saved message back into a composer request.
func ComposeRequest(m db.SavedMessage) db.ComposeMessageRequest {
	return db.ComposeMessageRequest{
		Topic:     m.Topic,
		Title:     m.Title,
		Message:   m.Message,
		Priority:  m.Priority,
		Tags:      m.Tags,
		ClickURL:  m.ClickURL,
		AttachURL: m.AttachURL,
		IconURL:   m.IconURL,
		Delay:     m.Delay,
		Email:     m.Email,
		Actions:   m.Actions,
		Source:    "saved",
	}
}
