package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

func TestClient_LoginSetsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "admin", body["username"])
			json.NewEncoder(w).Encode(map[string]string{"token": "jwt-1", "username": "admin"})
		case "/env-config":
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(db.EnvConfigResponse{RiskAcknowledged: true})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "")
	resp, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", resp.Token)

	cfg, err := c.GetEnvConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.RiskAcknowledged)
}

func TestClient_ErrorSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/system-notifications/events/ev1":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"Add at least one notification target before enabling","detail":"Add at least one notification target before enabling"}`))
		case "/cache/flush":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`bad gateway from proxy`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	_, err := c.SetEventEnabled(context.Background(), "ev1", true)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "Add at least one notification target before enabling", apiErr.Detail)

	err = c.FlushCache(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway from proxy", apiErr.Detail)

	_, err = c.GetBackup(context.Background(), "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Not Found", apiErr.Detail)
}

// backupServer reports "running" for the first runningPolls requests.
func backupServer(t *testing.T, runningPolls int32, final string) (*httptest.Server, *int32) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		b := db.Backup{ID: "b1", Status: db.BackupRunning, Progress: int(n) * 10}
		if n > runningPolls {
			b.Status = final
			b.Progress = 100
			if final == db.BackupFailed {
				b.Error = "disk full"
			}
		}
		json.NewEncoder(w).Encode(b)
	}))
	return srv, &polls
}

func TestWaitForBackup_Completes(t *testing.T) {
	srv, polls := backupServer(t, 2, db.BackupCompleted)
	defer srv.Close()

	var seen []int
	b, err := NewClient(srv.URL, "t").WaitForBackup(context.Background(), "b1", time.Millisecond, 10,
		func(b db.Backup) { seen = append(seen, b.Progress) })
	require.NoError(t, err)
	assert.Equal(t, db.BackupCompleted, b.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
	assert.Equal(t, []int{10, 20, 100}, seen)
}

func TestWaitForBackup_Failed(t *testing.T) {
	srv, _ := backupServer(t, 0, db.BackupFailed)
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").WaitForBackup(context.Background(), "b1", time.Millisecond, 10, nil)
	assert.EqualError(t, err, "backup failed: disk full")
}

func TestWaitForBackup_PollLimit(t *testing.T) {
	srv, polls := backupServer(t, 1000, db.BackupCompleted)
	defer srv.Close()

	b, err := NewClient(srv.URL, "t").WaitForBackup(context.Background(), "b1", time.Millisecond, 5, nil)
	assert.ErrorIs(t, err, ErrPollLimit)
	assert.Equal(t, db.BackupRunning, b.Status)
	assert.Equal(t, int32(5), atomic.LoadInt32(polls))
}

func TestWaitForBackup_Cancelled(t *testing.T) {
	srv, polls := backupServer(t, 1000, db.BackupCompleted)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := NewClient(srv.URL, "t").WaitForBackup(ctx, "b1", time.Hour, 300, nil)
		done <- err
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(polls) == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poll did not stop after cancel")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(polls))
}
