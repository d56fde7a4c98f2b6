package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nhost/console/db"
)

type fakeFirer struct {
	calls int32
	err   error
}

func (f *fakeFirer) FireDueEscalations(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func TestEscalationWorker_TicksUntilCancelled(t *testing.T) {
	firer := &fakeFirer{}
	w := NewEscalationWorker(firer, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.StartEscalationWorker(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&firer.calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEscalationWorker_ProcessEscalations(t *testing.T) {
	w := NewEscalationWorker(&fakeFirer{}, 0, nil)
	assert.Equal(t, 30*time.Second, w.Interval)
	assert.Equal(t, 2, w.processEscalations(context.Background()))

	w.Dispatcher = &fakeFirer{err: errors.New("db down")}
	assert.Equal(t, 0, w.processEscalations(context.Background()))
}

type fakeDigest struct {
	settings db.GlobalSettings
	flushed  int
	err      error
}

func (f *fakeDigest) LoadGlobalSettings(ctx context.Context) (db.GlobalSettings, error) {
	return f.settings, nil
}

func (f *fakeDigest) FlushDigest(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.flushed++
	return 3, nil
}

func newDigestWorker(t *testing.T, f *fakeDigest, now time.Time) (*DigestWorker, redismock.ClientMock) {
	rdb, mock := redismock.NewClientMock()
	w := NewDigestWorker(f, f, rdb, nil)
	w.now = func() time.Time { return now }
	return w, mock
}

func TestDigestWorker_RunOnce(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 5, 0, 0, time.UTC)
	contact := "ch9"

	t.Run("disabled", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: false, DigestTime: "08:00"}}
		w, mock := newDigestWorker(t, f, now)
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("before digest time", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, EmergencyContactID: &contact, DigestTime: "09:30"}}
		w, mock := newDigestWorker(t, f, now)
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("flushes once per day", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, EmergencyContactID: &contact, DigestTime: "08:00"}}
		w, mock := newDigestWorker(t, f, now)
		mock.ExpectSetNX("sysnotif:digest:2024-03-01", 1, 48*time.Hour).SetVal(true)
		mock.ExpectSetNX("sysnotif:digest:2024-03-01", 1, 48*time.Hour).SetVal(false)

		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, sent)

		sent, err = w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Equal(t, 1, f.flushed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed flush releases the claim", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, EmergencyContactID: &contact, DigestTime: "08:00"}, err: errors.New("smtp down")}
		w, mock := newDigestWorker(t, f, now)
		mock.ExpectSetNX("sysnotif:digest:2024-03-01", 1, 48*time.Hour).SetVal(true)
		mock.ExpectDel("sysnotif:digest:2024-03-01").SetVal(1)

		_, err := w.RunOnce(context.Background())
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no emergency contact", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, DigestTime: "08:00"}}
		w, mock := newDigestWorker(t, f, now)
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Equal(t, 0, f.flushed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("digest time in operator zone", func(t *testing.T) {
		// 08:05 UTC is 03:05 at UTC-5, still before 08:00 there
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, EmergencyContactID: &contact, DigestTime: "08:00"}}
		w, mock := newDigestWorker(t, f, now)
		w.Location = time.FixedZone("UTC-5", -5*3600)
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, sent)

		// 13:10 UTC is 08:10 there, and the claim is keyed by the local date
		w.now = func() time.Time { return time.Date(2024, 3, 2, 13, 10, 0, 0, time.UTC) }
		mock.ExpectSetNX("sysnotif:digest:2024-03-02", 1, 48*time.Hour).SetVal(true)
		sent, err = w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid digest time", func(t *testing.T) {
		f := &fakeDigest{settings: db.GlobalSettings{DigestEnabled: true, EmergencyContactID: &contact, DigestTime: "8am"}}
		w, _ := newDigestWorker(t, f, now)
		_, err := w.RunOnce(context.Background())
		assert.Error(t, err)
	})
}
