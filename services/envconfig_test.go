package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

type fakeRestarter struct {
	restarted []string
	fail      map[string]error
}

func (f *fakeRestarter) Restart(ctx context.Context, name string) error {
	if err := f.fail[name]; err != nil {
		return err
	}
	f.restarted = append(f.restarted, name)
	return nil
}

func testSchema() EnvSchema {
	return EnvSchema{Variables: []db.EnvVariable{
		{Key: "WEBHOOK_URL", Label: "Webhook URL", Type: "url", Group: "General", Editable: true, Required: true, Containers: []string{"n8n"}},
		{Key: "N8N_PORT", Label: "Port", Type: "number", Group: "General", Editable: true},
		{Key: "N8N_ENCRYPTION_KEY", Label: "Encryption key", Type: "string", Group: "Security", Sensitive: true, Required: true,
			Containers: []string{"n8n", "n8n-worker"}},
		{Key: "N8N_BASIC_AUTH_ACTIVE", Label: "Basic auth", Type: "boolean", Group: "Security", Editable: true,
			Warning: "disabling basic auth exposes the editor"},
	}}
}

type envFixture struct {
	svc     *EnvConfigService
	envFile string
	docker  *fakeRestarter
}

func newEnvFixture(t *testing.T) *envFixture {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"WEBHOOK_URL=https://n8n.example.com\nN8N_PORT=5678\nN8N_ENCRYPTION_KEY=supersecretkey\nGENERIC_TIMEZONE=Europe/Berlin\n"), 0o600))

	docker := &fakeRestarter{fail: map[string]error{}}
	svc := NewEnvConfigService(envFile, filepath.Join(dir, "backups"), testSchema(), docker)
	tick := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return &envFixture{svc: svc, envFile: envFile, docker: docker}
}

func (f *envFixture) values(t *testing.T) map[string]string {
	values, err := godotenv.Read(f.envFile)
	require.NoError(t, err)
	return values
}

func TestEnvConfig_GetConfig(t *testing.T) {
	f := newEnvFixture(t)

	resp, err := f.svc.GetConfig()
	require.NoError(t, err)
	assert.False(t, resp.RiskAcknowledged)
	require.Len(t, resp.Groups, 3)
	assert.Equal(t, "General", resp.Groups[0].Name)
	assert.Equal(t, "Security", resp.Groups[1].Name)
	assert.Equal(t, "Custom", resp.Groups[2].Name)

	key := resp.Groups[1].Variables[0]
	assert.Equal(t, "N8N_ENCRYPTION_KEY", key.Key)
	assert.Equal(t, "********tkey", key.Value)

	custom := resp.Groups[2].Variables[0]
	assert.Equal(t, "GENERIC_TIMEZONE", custom.Key)
	assert.True(t, custom.IsCustom)
	assert.Equal(t, "Europe/Berlin", custom.Value)
}

func TestEnvConfig_AcknowledgeRisk(t *testing.T) {
	f := newEnvFixture(t)

	backup, err := f.svc.AcknowledgeRisk()
	require.NoError(t, err)
	assert.Regexp(t, envBackupPattern, backup.Filename)

	resp, err := f.svc.GetConfig()
	require.NoError(t, err)
	assert.True(t, resp.RiskAcknowledged)

	backups, err := f.svc.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, backup.Filename, backups[0].Filename)
}

func TestEnvConfig_SetValue(t *testing.T) {
	f := newEnvFixture(t)

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{"read-only variable", "N8N_ENCRYPTION_KEY", "x", ErrValidation},
		{"not a number", "N8N_PORT", "http", ErrValidation},
		{"required left empty", "WEBHOOK_URL", "", ErrValidation},
		{"relative url", "WEBHOOK_URL", "/hooks", ErrValidation},
		{"unknown key", "NOPE", "1", ErrNotFound},
		{"valid number", "N8N_PORT", "8080", nil},
		{"custom variable", "GENERIC_TIMEZONE", "UTC", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.SetValue(tt.key, tt.value)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.Equal(t, tt.value, f.values(t)[tt.key])
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestEnvConfig_CustomVariables(t *testing.T) {
	f := newEnvFixture(t)

	assert.True(t, errors.Is(f.svc.AddCustom("lower_case", "x"), ErrValidation))
	assert.True(t, errors.Is(f.svc.AddCustom("N8N_PORT", "1"), ErrConflict))
	assert.True(t, errors.Is(f.svc.AddCustom("GENERIC_TIMEZONE", "UTC"), ErrConflict))

	require.NoError(t, f.svc.AddCustom("EXECUTIONS_DATA_PRUNE", "true"))
	assert.Equal(t, "true", f.values(t)["EXECUTIONS_DATA_PRUNE"])

	assert.True(t, errors.Is(f.svc.DeleteCustom("N8N_PORT"), ErrValidation))
	assert.True(t, errors.Is(f.svc.DeleteCustom("MISSING"), ErrNotFound))
	require.NoError(t, f.svc.DeleteCustom("EXECUTIONS_DATA_PRUNE"))
	assert.NotContains(t, f.values(t), "EXECUTIONS_DATA_PRUNE")
}

func TestEnvConfig_Restore(t *testing.T) {
	f := newEnvFixture(t)

	backup, err := f.svc.CreateBackup()
	require.NoError(t, err)
	require.NoError(t, f.svc.SetValue("N8N_PORT", "9999"))

	snapshot, err := f.svc.Restore(backup.Filename)
	require.NoError(t, err)
	assert.NotEqual(t, backup.Filename, snapshot.Filename)
	assert.Equal(t, "5678", f.values(t)["N8N_PORT"])

	backups, err := f.svc.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	// newest first
	assert.Equal(t, snapshot.Filename, backups[0].Filename)
}

func TestEnvConfig_RestoreRejectsBadNames(t *testing.T) {
	f := newEnvFixture(t)

	for _, name := range []string{"../.env", "/etc/passwd", "env-20240101-000000.000.env/../../x", "notes.txt"} {
		_, err := f.svc.Restore(name)
		assert.True(t, errors.Is(err, ErrValidation), name)
	}
	_, err := f.svc.Restore("env-20200101-000000.000.env")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEnvConfig_HealthCheck(t *testing.T) {
	f := newEnvFixture(t)

	result, err := f.svc.HealthCheck(map[string]string{"N8N_PORT": "8080"})
	require.NoError(t, err)
	assert.Equal(t, db.CheckSuccess, result.Status)

	result, err = f.svc.HealthCheck(map[string]string{"N8N_BASIC_AUTH_ACTIVE": "false", "NEW_FLAG": "1"})
	require.NoError(t, err)
	assert.Equal(t, db.CheckWarning, result.Status)
	assert.Len(t, result.Warnings, 2)

	result, err = f.svc.HealthCheck(map[string]string{"N8N_PORT": "abc", "WEBHOOK_URL": ""})
	require.NoError(t, err)
	assert.Equal(t, db.CheckFailure, result.Status)
	assert.Contains(t, result.Errors, "N8N_PORT must be a number")
	assert.Contains(t, result.Errors, "WEBHOOK_URL is required")
}

func TestEnvConfig_Containers(t *testing.T) {
	f := newEnvFixture(t)
	assert.Equal(t, []string{"n8n", "n8n-worker"}, f.svc.AffectedContainers("N8N_ENCRYPTION_KEY"))
	assert.Equal(t, []string{}, f.svc.AffectedContainers("N8N_PORT"))

	f.docker.fail["n8n-worker"] = errors.New("container n8n-worker not found")
	results := f.svc.RestartContainers(context.Background(), []string{"n8n", "n8n-worker", "postgres"})
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "container n8n-worker not found", results[1].Error)
	assert.Equal(t, "container is not managed by the console", results[2].Error)
	assert.Equal(t, []string{"n8n"}, f.docker.restarted)
}

func TestValidateValue(t *testing.T) {
	email := db.EnvVariable{Key: "SMTP_SENDER", Type: "email"}
	assert.NoError(t, ValidateValue(email, "ops@example.com"))
	assert.Error(t, ValidateValue(email, "not-an-email"))

	boolean := db.EnvVariable{Key: "FLAG", Type: "boolean"}
	assert.NoError(t, ValidateValue(boolean, "true"))
	assert.Error(t, ValidateValue(boolean, "yes please"))

	assert.NoError(t, ValidateValue(db.EnvVariable{Key: "ANY", Type: "number"}, ""))
}

func TestLoadEnvSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`variables:
  - key: N8N_HOST
    label: Host
    editable: true
    containers: [n8n]
  - key: DB_TYPE
    type: string
    group: Database
`), 0o600))

	schema, err := LoadEnvSchema(path)
	require.NoError(t, err)
	require.Len(t, schema.Variables, 2)
	assert.Equal(t, "string", schema.Variables[0].Type)
	assert.Equal(t, "General", schema.Variables[0].Group)
	assert.Equal(t, []string{"n8n"}, schema.Variables[0].Containers)
	assert.Equal(t, "Database", schema.Variables[1].Group)
}
