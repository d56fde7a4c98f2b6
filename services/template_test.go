package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

func TestRenderTemplate(t *testing.T) {
	tmpl := db.MessageTemplate{
		TitleTemplate:   "{{.repository}} build {{.status}}",
		MessageTemplate: "Commit {{.sha}} by {{.author}}",
		DefaultPriority: 4,
		DefaultTags:     []string{"github"},
	}
	out, err := RenderTemplate(tmpl, map[string]interface{}{
		"repository": "n8n",
		"status":     "failed",
		"sha":        "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "n8n build failed", out.Title)
	// missing keys render empty instead of "<no value>"
	assert.Equal(t, "Commit abc123 by ", out.Message)
	assert.Equal(t, 4, out.Priority)
	assert.Equal(t, []string{"github"}, out.Tags)
}

func TestNormalizeTemplate(t *testing.T) {
	req, err := normalizeTemplate(db.SaveTemplateRequest{Name: "x", MessageTemplate: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "custom", req.TemplateType)
	assert.Equal(t, 3, req.DefaultPriority)

	_, err = normalizeTemplate(db.SaveTemplateRequest{Name: "x", MessageTemplate: "{{.a"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = normalizeTemplate(db.SaveTemplateRequest{Name: "x", MessageTemplate: "hi", TemplateType: "jira"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = normalizeTemplate(db.SaveTemplateRequest{Name: "x", MessageTemplate: "hi", SampleJSON: "{broken"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestTemplateService_Render_UsesSampleJSON(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "template_type", "title_template", "message_template",
		"default_priority", "use_markdown", "default_tags", "sample_json", "use_count", "last_used", "created_at", "updated_at"}).
		AddRow("tpl1", "Grafana", "", "grafana", "[{{.state}}] {{.ruleName}}", "{{.message}}",
			5, true, "{}", `{"state":"alerting","ruleName":"CPU","message":"cpu at 95%"}`, 2, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM ntfy_templates WHERE id").WithArgs("tpl1").WillReturnRows(rows)
	mock.ExpectExec("UPDATE ntfy_templates SET use_count = use_count \\+ 1").
		WithArgs("tpl1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := NewTemplateService(pg).Render(context.Background(), "tpl1", nil)
	require.NoError(t, err)
	assert.Equal(t, "[alerting] CPU", out.Title)
	assert.Equal(t, "cpu at 95%", out.Message)
	assert.True(t, out.Markdown)
	assert.Equal(t, []string{}, out.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}
