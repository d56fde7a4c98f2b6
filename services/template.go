package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

var templateTypes = map[string]bool{
	"custom":       true,
	"github":       true,
	"grafana":      true,
	"alertmanager": true,
}

const templateColumns = `id, name, description, template_type, title_template, message_template,
	default_priority, use_markdown, default_tags, sample_json, use_count, last_used, created_at, updated_at`

type TemplateService struct {
	PG *sql.DB
}

func NewTemplateService(pg *sql.DB) *TemplateService {
	return &TemplateService{PG: pg}
}

func scanTemplate(row scanner) (db.MessageTemplate, error) {
	var t db.MessageTemplate
	var lastUsed sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.TemplateType, &t.TitleTemplate, &t.MessageTemplate,
		&t.DefaultPriority, &t.UseMarkdown, pq.Array(&t.DefaultTags), &t.SampleJSON, &t.UseCount, &lastUsed,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if lastUsed.Valid {
		t.LastUsed = &lastUsed.Time
	}
	if t.DefaultTags == nil {
		t.DefaultTags = []string{}
	}
	return t, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context) ([]db.MessageTemplate, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT `+templateColumns+` FROM ntfy_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []db.MessageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *TemplateService) GetTemplate(ctx context.Context, id string) (db.MessageTemplate, error) {
	t, err := scanTemplate(s.PG.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM ntfy_templates WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return t, notFound("template")
	}
	if err != nil {
		return t, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func normalizeTemplate(req db.SaveTemplateRequest) (db.SaveTemplateRequest, error) {
	if req.TemplateType == "" {
		req.TemplateType = "custom"
	}
	if !templateTypes[req.TemplateType] {
		return req, invalid("unknown template type %q", req.TemplateType)
	}
	if req.DefaultPriority == 0 {
		req.DefaultPriority = rules.PriorityDefault
	}
	if !rules.ValidPriority(req.DefaultPriority) {
		return req, invalid("default priority must be between 1 and 5")
	}
	if req.DefaultTags == nil {
		req.DefaultTags = []string{}
	}
	if _, err := parseTemplate("title", req.TitleTemplate); err != nil {
		return req, invalid("title template: %v", err)
	}
	if _, err := parseTemplate("message", req.MessageTemplate); err != nil {
		return req, invalid("message template: %v", err)
	}
	if req.SampleJSON != "" && !json.Valid([]byte(req.SampleJSON)) {
		return req, invalid("sample JSON is not valid JSON")
	}
	return req, nil
}

func (s *TemplateService) CreateTemplate(ctx context.Context, req db.SaveTemplateRequest) (db.MessageTemplate, error) {
	req, err := normalizeTemplate(req)
	if err != nil {
		return db.MessageTemplate{}, err
	}
	now := time.Now()
	t := db.MessageTemplate{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		TemplateType:    req.TemplateType,
		TitleTemplate:   req.TitleTemplate,
		MessageTemplate: req.MessageTemplate,
		DefaultPriority: req.DefaultPriority,
		UseMarkdown:     req.UseMarkdown,
		DefaultTags:     req.DefaultTags,
		SampleJSON:      req.SampleJSON,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO ntfy_templates (id, name, description, template_type, title_template, message_template,
			default_priority, use_markdown, default_tags, sample_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Name, t.Description, t.TemplateType, t.TitleTemplate, t.MessageTemplate,
		t.DefaultPriority, t.UseMarkdown, pq.Array(t.DefaultTags), t.SampleJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return t, fmt.Errorf("failed to create template: %w", err)
	}
	return t, nil
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, req db.SaveTemplateRequest) (db.MessageTemplate, error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return t, err
	}
	req, err = normalizeTemplate(req)
	if err != nil {
		return t, err
	}
	t.Name = req.Name
	t.Description = req.Description
	t.TemplateType = req.TemplateType
	t.TitleTemplate = req.TitleTemplate
	t.MessageTemplate = req.MessageTemplate
	t.DefaultPriority = req.DefaultPriority
	t.UseMarkdown = req.UseMarkdown
	t.DefaultTags = req.DefaultTags
	t.SampleJSON = req.SampleJSON
	t.UpdatedAt = time.Now()

	_, err = s.PG.ExecContext(ctx, `
		UPDATE ntfy_templates
		SET name = $2, description = $3, template_type = $4, title_template = $5, message_template = $6,
			default_priority = $7, use_markdown = $8, default_tags = $9, sample_json = $10, updated_at = $11
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.TemplateType, t.TitleTemplate, t.MessageTemplate,
		t.DefaultPriority, t.UseMarkdown, pq.Array(t.DefaultTags), t.SampleJSON, t.UpdatedAt)
	if err != nil {
		return t, fmt.Errorf("failed to update template: %w", err)
	}
	return t, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.PG.ExecContext(ctx, `DELETE FROM ntfy_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("template")
	}
	return nil
}

// Render executes the template against payload, falling back to the
// template's sample JSON when payload is empty, and records the use.
func (s *TemplateService) Render(ctx context.Context, id string, payload map[string]interface{}) (db.RenderedMessage, error) {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return db.RenderedMessage{}, err
	}
	if len(payload) == 0 && t.SampleJSON != "" {
		if err := json.Unmarshal([]byte(t.SampleJSON), &payload); err != nil {
			return db.RenderedMessage{}, invalid("sample JSON is not an object")
		}
	}

	out, err := RenderTemplate(t, payload)
	if err != nil {
		return out, err
	}

	_, err = s.PG.ExecContext(ctx, `
		UPDATE ntfy_templates SET use_count = use_count + 1, last_used = $2 WHERE id = $1`, t.ID, time.Now())
	if err != nil {
		return out, fmt.Errorf("failed to record template use: %w", err)
	}
	return out, nil
}

// RenderTemplate renders a template without touching storage.
func RenderTemplate(t db.MessageTemplate, payload map[string]interface{}) (db.RenderedMessage, error) {
	title, err := execute("title", t.TitleTemplate, payload)
	if err != nil {
		return db.RenderedMessage{}, invalid("title template: %v", err)
	}
	message, err := execute("message", t.MessageTemplate, payload)
	if err != nil {
		return db.RenderedMessage{}, invalid("message template: %v", err)
	}
	return db.RenderedMessage{
		Title:    title,
		Message:  message,
		Priority: t.DefaultPriority,
		Tags:     t.DefaultTags,
		Markdown: t.UseMarkdown,
	}, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=zero").Parse(text)
}

func execute(name, text string, payload map[string]interface{}) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := parseTemplate(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", err
	}
	// missing map keys print as "<no value>"
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
