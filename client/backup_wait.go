package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/n8nhost/console/db"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 300
)

// ErrPollLimit is returned when a backup is still running after maxPolls.
var ErrPollLimit = errors.New("backup did not finish within the poll limit")

// WaitForBackup polls a backup job until it completes or fails. It gives up
// after maxPolls and returns as soon as ctx is cancelled. onProgress, when
// set, sees every polled state.
func (c *Client) WaitForBackup(ctx context.Context, id string, interval time.Duration, maxPolls int,
	onProgress func(db.Backup)) (db.Backup, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last db.Backup
	for poll := 0; poll < maxPolls; poll++ {
		b, err := c.GetBackup(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, err
		}
		last = b
		if onProgress != nil {
			onProgress(b)
		}
		if b.Done() {
			if b.Status == db.BackupFailed {
				return b, fmt.Errorf("backup failed: %s", b.Error)
			}
			return b, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
	return last, ErrPollLimit
}
