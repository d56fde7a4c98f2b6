package services

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

var topicNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var accessLevels = map[string]bool{
	"read-write": true,
	"read-only":  true,
	"write-only": true,
	"deny":       true,
}

const topicColumns = `id, name, description, access_level, requires_auth, default_priority,
	default_tags, enabled, message_count, last_message_at, created_at, updated_at`

type TopicService struct {
	PG *sql.DB
}

func NewTopicService(pg *sql.DB) *TopicService {
	return &TopicService{PG: pg}
}

// WebhookSlug is how n8n workflows reference an ntfy topic channel.
func WebhookSlug(topic string) string {
	return "channel:ntfy_" + topic
}

func scanTopic(row scanner) (db.Topic, error) {
	var t db.Topic
	var lastMessage sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.AccessLevel, &t.RequiresAuth, &t.DefaultPriority,
		pq.Array(&t.DefaultTags), &t.Enabled, &t.MessageCount, &lastMessage, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if lastMessage.Valid {
		t.LastMessageAt = &lastMessage.Time
	}
	if t.DefaultTags == nil {
		t.DefaultTags = []string{}
	}
	return t, nil
}

func (s *TopicService) ListTopics(ctx context.Context) ([]db.Topic, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT `+topicColumns+` FROM ntfy_topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	topics := []db.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *TopicService) GetTopic(ctx context.Context, id string) (db.Topic, error) {
	t, err := scanTopic(s.PG.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM ntfy_topics WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return t, notFound("topic")
	}
	if err != nil {
		return t, fmt.Errorf("failed to get topic: %w", err)
	}
	return t, nil
}

func validateTopic(t db.Topic) error {
	if !topicNamePattern.MatchString(t.Name) {
		return invalid("topic name must be 1-64 characters of letters, digits, '-' or '_'")
	}
	if !accessLevels[t.AccessLevel] {
		return invalid("unknown access level %q", t.AccessLevel)
	}
	if !rules.ValidPriority(t.DefaultPriority) {
		return invalid("default priority must be between 1 and 5")
	}
	return nil
}

// CreateTopic stores a new topic and returns the subscribe and webhook
// strings shown to the operator once.
func (s *TopicService) CreateTopic(ctx context.Context, req db.CreateTopicRequest) (db.TopicCreated, error) {
	now := time.Now()
	topic := db.Topic{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		AccessLevel:     req.AccessLevel,
		RequiresAuth:    req.RequiresAuth,
		DefaultPriority: req.DefaultPriority,
		DefaultTags:     req.DefaultTags,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if topic.AccessLevel == "" {
		topic.AccessLevel = "read-write"
	}
	if topic.DefaultPriority == 0 {
		topic.DefaultPriority = rules.PriorityDefault
	}
	if topic.DefaultTags == nil {
		topic.DefaultTags = []string{}
	}
	if err := validateTopic(topic); err != nil {
		return db.TopicCreated{}, err
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO ntfy_topics (id, name, description, access_level, requires_auth, default_priority,
			default_tags, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		topic.ID, topic.Name, topic.Description, topic.AccessLevel, topic.RequiresAuth, topic.DefaultPriority,
		pq.Array(topic.DefaultTags), topic.Enabled, topic.CreatedAt, topic.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return db.TopicCreated{}, conflict("topic %q already exists", topic.Name)
		}
		return db.TopicCreated{}, fmt.Errorf("failed to create topic: %w", err)
	}

	return db.TopicCreated{
		Topic:          topic,
		SubscribeTopic: topic.Name,
		WebhookSlug:    WebhookSlug(topic.Name),
	}, nil
}

// UpdateTopic applies a partial update. The name is fixed at creation.
func (s *TopicService) UpdateTopic(ctx context.Context, id string, req db.UpdateTopicRequest) (db.Topic, error) {
	topic, err := s.GetTopic(ctx, id)
	if err != nil {
		return topic, err
	}
	if req.Name != nil && *req.Name != topic.Name {
		return topic, invalid("topic name cannot be changed")
	}
	if req.Description != nil {
		topic.Description = *req.Description
	}
	if req.AccessLevel != nil {
		topic.AccessLevel = *req.AccessLevel
	}
	if req.RequiresAuth != nil {
		topic.RequiresAuth = *req.RequiresAuth
	}
	if req.DefaultPriority != nil {
		topic.DefaultPriority = *req.DefaultPriority
	}
	if req.DefaultTags != nil {
		topic.DefaultTags = req.DefaultTags
	}
	if req.Enabled != nil {
		topic.Enabled = *req.Enabled
	}
	if err := validateTopic(topic); err != nil {
		return topic, err
	}
	topic.UpdatedAt = time.Now()

	_, err = s.PG.ExecContext(ctx, `
		UPDATE ntfy_topics
		SET description = $2, access_level = $3, requires_auth = $4, default_priority = $5,
			default_tags = $6, enabled = $7, updated_at = $8
		WHERE id = $1`,
		topic.ID, topic.Description, topic.AccessLevel, topic.RequiresAuth, topic.DefaultPriority,
		pq.Array(topic.DefaultTags), topic.Enabled, topic.UpdatedAt)
	if err != nil {
		return topic, fmt.Errorf("failed to update topic: %w", err)
	}
	return topic, nil
}

func (s *TopicService) DeleteTopic(ctx context.Context, id string) error {
	res, err := s.PG.ExecContext(ctx, `DELETE FROM ntfy_topics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("topic")
	}
	return nil
}

// RecordMessage bumps the counters of a topic after a publish. Topics that
// are not managed by the console are ignored.
func (s *TopicService) RecordMessage(ctx context.Context, name string, at time.Time) error {
	_, err := s.PG.ExecContext(ctx, `
		UPDATE ntfy_topics SET message_count = message_count + 1, last_message_at = $2
		WHERE name = $1`, name, at)
	if err != nil {
		return fmt.Errorf("failed to record topic message: %w", err)
	}
	return nil
}
