package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/rules"
)

type settingsLoader interface {
	LoadGlobalSettings(ctx context.Context) (db.GlobalSettings, error)
}

type digestFlusher interface {
	FlushDigest(ctx context.Context) (int, error)
}

// DigestKey marks the day's digest as sent so only one process flushes it.
func DigestKey(t time.Time) string {
	return "sysnotif:digest:" + t.Format("2006-01-02")
}

// DigestWorker sends the queued low priority events once a day at digest_time
type DigestWorker struct {
	Settings settingsLoader
	Flusher  digestFlusher
	Redis    *redis.Client
	Interval time.Duration
	Logger   *logging.Logger
	// Location is the zone digest_time is read in; nil means the process zone.
	Location *time.Location

	now func() time.Time
}

func NewDigestWorker(settings settingsLoader, flusher digestFlusher, rdb *redis.Client, logger *logging.Logger) *DigestWorker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DigestWorker{
		Settings: settings,
		Flusher:  flusher,
		Redis:    rdb,
		Interval: time.Minute,
		Logger:   logger,
		now:      time.Now,
	}
}

func (w *DigestWorker) StartDigestWorker(ctx context.Context) {
	w.Logger.Info("Digest worker started")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Digest worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.Logger.Errorf("Worker: digest failed: %v", err)
			}
		}
	}
}

// RunOnce flushes the digest when digest_time has passed today and no other
// run has claimed the day yet. It reports whether a flush happened.
func (w *DigestWorker) RunOnce(ctx context.Context) (bool, error) {
	settings, err := w.Settings.LoadGlobalSettings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.DigestEnabled || settings.EmergencyContactID == nil {
		return false, nil
	}

	due, err := rules.ParseClock(settings.DigestTime)
	if err != nil {
		return false, err
	}
	now := w.now()
	if w.Location != nil {
		now = now.In(w.Location)
	}
	if now.Hour()*60+now.Minute() < due {
		return false, nil
	}

	claimed, err := w.Redis.SetNX(ctx, DigestKey(now), 1, 48*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim digest: %w", err)
	}
	if !claimed {
		return false, nil
	}

	sent, err := w.Flusher.FlushDigest(ctx)
	if err != nil {
		// release the claim so the next tick retries
		w.Redis.Del(ctx, DigestKey(now))
		return false, err
	}
	w.Logger.Infof("Worker: digest sent with %d entries", sent)
	return true, nil
}
