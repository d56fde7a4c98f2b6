package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/rules"
)

// Publisher sends a raw ntfy payload and returns the server's message id.
type Publisher interface {
	Publish(ctx context.Context, baseURL, token string, payload map[string]interface{}) (string, error)
}

// MessageService is the composer: it publishes to ntfy and records every
// attempt in the message history.
type MessageService struct {
	PG        *sql.DB
	Settings  *ServerSettingsService
	Topics    *TopicService
	Publisher Publisher
	Logger    *logging.Logger
	now       func() time.Time
}

func NewMessageService(pg *sql.DB, settings *ServerSettingsService, topics *TopicService, publisher Publisher, logger *logging.Logger) *MessageService {
	return &MessageService{
		PG:        pg,
		Settings:  settings,
		Topics:    topics,
		Publisher: publisher,
		Logger:    logger,
		now:       time.Now,
	}
}

// BuildPublishPayload converts a composer request to the ntfy JSON body.
// Empty fields are left out so ntfy applies its own defaults.
func BuildPublishPayload(req db.ComposeMessageRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"topic":   req.Topic,
		"message": req.Message,
	}
	if req.Title != "" {
		payload["title"] = req.Title
	}
	if req.Priority > 0 {
		payload["priority"] = req.Priority
	}
	if len(req.Tags) > 0 {
		payload["tags"] = req.Tags
	}
	if req.ClickURL != "" {
		payload["click"] = req.ClickURL
	}
	if req.AttachURL != "" {
		payload["attach"] = req.AttachURL
	}
	if req.IconURL != "" {
		payload["icon"] = req.IconURL
	}
	if req.Delay != "" {
		payload["delay"] = req.Delay
	}
	if req.Email != "" {
		payload["email"] = req.Email
	}
	if len(req.Actions) > 0 {
		payload["actions"] = req.Actions
	}
	if req.Markdown {
		payload["markdown"] = true
	}
	return payload
}

// ScheduledFor estimates when a delayed message is delivered. ntfy accepts
// durations ("30m"), unix timestamps and natural language; the latter are
// not resolved here.
func ScheduledFor(delay string, now time.Time) *time.Time {
	if d, err := time.ParseDuration(delay); err == nil {
		t := now.Add(d)
		return &t
	}
	if ts, err := strconv.ParseInt(delay, 10, 64); err == nil {
		t := time.Unix(ts, 0)
		return &t
	}
	return nil
}

// Send publishes req and records the outcome. A failed publish is still
// recorded and is returned together with an ErrUpstream error.
func (s *MessageService) Send(ctx context.Context, req db.ComposeMessageRequest) (db.HistoryEntry, error) {
	if !topicNamePattern.MatchString(req.Topic) {
		return db.HistoryEntry{}, invalid("invalid topic %q", req.Topic)
	}
	if req.Message == "" {
		return db.HistoryEntry{}, invalid("message is required")
	}
	if req.Priority != 0 && !rules.ValidPriority(req.Priority) {
		return db.HistoryEntry{}, invalid("priority must be between 1 and 5")
	}

	settings, err := s.Settings.Get(ctx)
	if err != nil {
		return db.HistoryEntry{}, err
	}
	if !settings.Enabled {
		return db.HistoryEntry{}, invalid("ntfy publishing is disabled")
	}

	now := s.now()
	entry := db.HistoryEntry{
		ID:        uuid.New().String(),
		Topic:     req.Topic,
		Priority:  req.Priority,
		Source:    req.Source,
		Title:     req.Title,
		Message:   req.Message,
		Tags:      req.Tags,
		CreatedAt: now,
	}
	if entry.Priority == 0 {
		entry.Priority = settings.DefaultPriority
	}
	if entry.Source == "" {
		entry.Source = "composer"
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	responseID, publishErr := s.Publisher.Publish(ctx, settings.BaseURL, settings.AuthToken, BuildPublishPayload(req))
	switch {
	case publishErr != nil:
		entry.Status = db.MessageStatusFailed
		entry.ErrorMessage = publishErr.Error()
	case req.Delay != "":
		entry.Status = db.MessageStatusScheduled
		entry.ScheduledFor = ScheduledFor(req.Delay, now)
		entry.ResponseID = responseID
	default:
		entry.Status = db.MessageStatusSent
		entry.SentAt = &now
		entry.ResponseID = responseID
	}

	if err := s.insertHistory(ctx, entry); err != nil {
		return entry, err
	}

	if publishErr != nil {
		return entry, fmt.Errorf("%w: %v", ErrUpstream, publishErr)
	}
	if err := s.Topics.RecordMessage(ctx, entry.Topic, now); err != nil && s.Logger != nil {
		s.Logger.Warnf("record topic message: %v", err)
	}
	return entry, nil
}

func (s *MessageService) insertHistory(ctx context.Context, e db.HistoryEntry) error {
	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO ntfy_message_history (id, topic, status, priority, source, title, message, tags,
			error_message, created_at, sent_at, scheduled_for, response_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Topic, e.Status, e.Priority, e.Source, e.Title, e.Message, pq.Array(e.Tags),
		e.ErrorMessage, e.CreatedAt, e.SentAt, e.ScheduledFor, e.ResponseID)
	if err != nil {
		return fmt.Errorf("failed to record message history: %w", err)
	}
	return nil
}

// HistoryFilter selects a page of message history.
type HistoryFilter struct {
	Limit  int
	Offset int
	Topic  string
	Status string
}

func (s *MessageService) History(ctx context.Context, f HistoryFilter) (db.Page[db.HistoryEntry], error) {
	page := db.Page[db.HistoryEntry]{Items: []db.HistoryEntry{}}
	limit, offset := clampPage(f.Limit, f.Offset)

	var where whereBuilder
	if f.Topic != "" {
		where.add("topic = ?", f.Topic)
	}
	if f.Status != "" {
		where.add("status = ?", f.Status)
	}

	if err := s.PG.QueryRowContext(ctx, `SELECT COUNT(*) FROM ntfy_message_history`+where.clause(), where.args...).
		Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count message history: %w", err)
	}

	query := `
		SELECT id, topic, status, priority, source, title, message, tags, error_message,
			created_at, sent_at, scheduled_for, response_id
		FROM ntfy_message_history` + where.clause() +
		` ORDER BY created_at DESC LIMIT ` + where.next(limit) + ` OFFSET ` + where.next(offset)
	rows, err := s.PG.QueryContext(ctx, query, where.args...)
	if err != nil {
		return page, fmt.Errorf("failed to list message history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e db.HistoryEntry
		var sentAt, scheduledFor sql.NullTime
		if err := rows.Scan(&e.ID, &e.Topic, &e.Status, &e.Priority, &e.Source, &e.Title, &e.Message,
			pq.Array(&e.Tags), &e.ErrorMessage, &e.CreatedAt, &sentAt, &scheduledFor, &e.ResponseID); err != nil {
			return page, fmt.Errorf("failed to scan message history: %w", err)
		}
		if sentAt.Valid {
			e.SentAt = &sentAt.Time
		}
		if scheduledFor.Valid {
			e.ScheduledFor = &scheduledFor.Time
		}
		if e.Tags == nil {
			e.Tags = []string{}
		}
		page.Items = append(page.Items, e)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	page.HasMore = offset+len(page.Items) < page.Total
	return page, nil
}
