package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

func settingsRow(token string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"base_url", "default_topic", "auth_token", "default_priority", "enabled", "updated_at"}).
		AddRow("https://ntfy.example.com", "alerts", token, 3, true, time.Now())
}

func TestServerSettings_DefaultsUntilSaved(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("FROM ntfy_server_settings").WillReturnError(sql.ErrNoRows)

	st, err := NewServerSettingsService(pg, "https://ntfy.sh", "tk_default").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://ntfy.sh", st.BaseURL)
	assert.Equal(t, "tk_default", st.AuthToken)
	assert.True(t, st.Enabled)
}

func TestServerSettings_MaskedTokenIsIgnored(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("FROM ntfy_server_settings").WillReturnRows(settingsRow("tk_secret1234"))
	mock.ExpectExec("INSERT INTO ntfy_server_settings").
		WithArgs("https://ntfy.example.com", "ops", "tk_secret1234", 3, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	masked := MaskSecret("tk_secret1234")
	topic := "ops"
	st, err := NewServerSettingsService(pg, "", "").Update(context.Background(), db.UpdateNtfyServerRequest{
		AuthToken: &masked, DefaultTopic: &topic,
	})
	require.NoError(t, err)
	assert.Equal(t, "tk_secret1234", st.AuthToken)
	assert.Equal(t, "********1234", Masked(st).AuthToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServerSettings_RejectsBadURL(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("FROM ntfy_server_settings").WillReturnRows(settingsRow(""))

	bad := "ntfy.example.com"
	_, err = NewServerSettingsService(pg, "", "").Update(context.Background(), db.UpdateNtfyServerRequest{BaseURL: &bad})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeSavedMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     db.SavedMessage
		wantErr bool
	}{
		{"missing name", db.SavedMessage{Topic: "alerts", Message: "hi"}, true},
		{"bad topic", db.SavedMessage{Name: "x", Topic: "no spaces allowed", Message: "hi"}, true},
		{"empty body", db.SavedMessage{Name: "x", Topic: "alerts"}, true},
		{"priority out of range", db.SavedMessage{Name: "x", Topic: "alerts", Message: "hi", Priority: 9}, true},
		{"defaults applied", db.SavedMessage{Name: "x", Topic: "alerts", Message: "hi"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.msg
			err := normalizeSavedMessage(&m)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, m.Priority)
			assert.Equal(t, []string{}, m.Tags)
			assert.Equal(t, []db.NtfyAction{}, m.Actions)
		})
	}
}
