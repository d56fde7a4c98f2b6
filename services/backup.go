package services

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
)

// EventEmitter is the part of the dispatcher other services report to.
type EventEmitter interface {
	Emit(ctx context.Context, ev db.SystemEvent) (EmitResult, error)
}

// BackupService archives the n8n data directory into tar.gz files. Jobs run
// in the background and report progress through the archive_backups table.
type BackupService struct {
	PG      *sql.DB
	DataDir string
	Dir     string
	Logger  *logging.Logger
	Events  EventEmitter
	now     func() time.Time
}

func NewBackupService(pg *sql.DB, dataDir, dir string, logger *logging.Logger) *BackupService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BackupService{PG: pg, DataDir: dataDir, Dir: dir, Logger: logger, now: time.Now}
}

const backupColumns = `id, filename, status, progress, size, error, created_at, completed_at`

func scanBackup(row scanner) (db.Backup, error) {
	var b db.Backup
	var completed sql.NullTime
	err := row.Scan(&b.ID, &b.Filename, &b.Status, &b.Progress, &b.Size, &b.Error, &b.CreatedAt, &completed)
	if completed.Valid {
		b.CompletedAt = &completed.Time
	}
	return b, err
}

func (s *BackupService) List(ctx context.Context) ([]db.Backup, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT `+backupColumns+` FROM archive_backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	backups := []db.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func (s *BackupService) Get(ctx context.Context, id string) (db.Backup, error) {
	b, err := scanBackup(s.PG.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM archive_backups WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return b, notFound("backup")
	}
	if err != nil {
		return b, fmt.Errorf("failed to get backup: %w", err)
	}
	return b, nil
}

// Create registers a backup job and starts it in the background. The
// archive_backups_one_active index rejects a second active job.
func (s *BackupService) Create(ctx context.Context) (db.Backup, error) {
	now := s.now()
	b := db.Backup{
		ID:        uuid.New().String(),
		Filename:  "n8n-backup-" + now.Format("20060102-150405") + ".tar.gz",
		Status:    db.BackupPending,
		CreatedAt: now,
	}
	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO archive_backups (id, filename, status, progress, created_at) VALUES ($1, $2, $3, 0, $4)`,
		b.ID, b.Filename, b.Status, b.CreatedAt)
	if isUniqueViolation(err) {
		return db.Backup{}, conflict("another backup job is still running")
	}
	if err != nil {
		return b, fmt.Errorf("failed to create backup: %w", err)
	}

	go s.run(b)
	return b, nil
}

// RecoverInterrupted fails jobs left pending or running by a previous
// process and removes their partial archives. Call it before serving.
func (s *BackupService) RecoverInterrupted(ctx context.Context) (int, error) {
	rows, err := s.PG.QueryContext(ctx, `
		UPDATE archive_backups SET status = $1, error = $2, completed_at = $3
		WHERE status IN ('pending', 'running')
		RETURNING filename`,
		db.BackupFailed, "interrupted by a server restart", s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover backups: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return n, fmt.Errorf("failed to scan backup: %w", err)
		}
		n++
		if err := os.Remove(filepath.Join(s.Dir, filename+".part")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.Logger.Warnf("remove partial archive %s: %v", filename, err)
		}
		s.Logger.Warnf("Backup %s was interrupted and marked failed", filename)
	}
	return n, rows.Err()
}

func (s *BackupService) run(b db.Backup) {
	ctx := context.Background()
	s.setProgress(ctx, b.ID, db.BackupRunning, 0)

	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		s.fail(ctx, b, err)
		return
	}
	dst := filepath.Join(s.Dir, b.Filename)
	lastReported := 0
	size, err := WriteArchive(s.DataDir, dst, func(pct int) {
		if pct-lastReported >= 5 {
			lastReported = pct
			s.setProgress(ctx, b.ID, db.BackupRunning, pct)
		}
	})
	if err != nil {
		s.fail(ctx, b, err)
		return
	}

	_, err = s.PG.ExecContext(ctx, `
		UPDATE archive_backups SET status = $2, progress = 100, size = $3, completed_at = $4 WHERE id = $1`,
		b.ID, db.BackupCompleted, size, s.now())
	if err != nil {
		s.Logger.Errorf("backup %s finished but status update failed: %v", b.ID, err)
	}
	s.Logger.Infof("Backup %s completed (%d bytes)", b.Filename, size)
	s.emit(ctx, db.SystemEvent{
		EventType: "backup_completed",
		Title:     "Backup completed",
		Message:   fmt.Sprintf("%s (%d bytes)", b.Filename, size),
	})
}

func (s *BackupService) setProgress(ctx context.Context, id, status string, pct int) {
	if _, err := s.PG.ExecContext(ctx, `UPDATE archive_backups SET status = $2, progress = $3 WHERE id = $1`,
		id, status, pct); err != nil {
		s.Logger.Warnf("backup %s progress update failed: %v", id, err)
	}
}

func (s *BackupService) fail(ctx context.Context, b db.Backup, cause error) {
	s.Logger.Errorf("Backup %s failed: %v", b.Filename, cause)
	_ = os.Remove(filepath.Join(s.Dir, b.Filename+".part"))
	if _, err := s.PG.ExecContext(ctx, `
		UPDATE archive_backups SET status = $2, error = $3, completed_at = $4 WHERE id = $1`,
		b.ID, db.BackupFailed, cause.Error(), s.now()); err != nil {
		s.Logger.Errorf("backup %s status update failed: %v", b.ID, err)
	}
	s.emit(ctx, db.SystemEvent{
		EventType: "backup_failed",
		Title:     "Backup failed",
		Message:   fmt.Sprintf("%s: %v", b.Filename, cause),
		Severity:  "critical",
	})
}

func (s *BackupService) emit(ctx context.Context, ev db.SystemEvent) {
	if s.Events == nil {
		return
	}
	ev.Source = "backup"
	ev.OccurredAt = s.now()
	if _, err := s.Events.Emit(ctx, ev); err != nil && !errors.Is(err, ErrNotFound) {
		s.Logger.Warnf("emit %s: %v", ev.EventType, err)
	}
}

// WriteArchive writes a gzip compressed tar of src to dst. progress receives
// the share of bytes written so far, 0-100. The archive is written to a
// .part file and renamed on success.
func WriteArchive(src, dst string, progress func(pct int)) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", src, err)
	}

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	var written int64
	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
		written += n
		if progress != nil && total > 0 {
			progress(int(written * 100 / total))
		}
		return nil
	})

	closeErr := errors.Join(tw.Close(), gz.Close(), out.Close())
	if walkErr != nil || closeErr != nil {
		os.Remove(part)
		if walkErr != nil {
			return 0, fmt.Errorf("failed to archive %s: %w", src, walkErr)
		}
		return 0, fmt.Errorf("failed to finish archive: %w", closeErr)
	}
	if err := os.Rename(part, dst); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return 0, err
	}
	if progress != nil {
		progress(100)
	}
	return info.Size(), nil
}

// VerifyArchive reads every entry of a tar.gz and reports counts.
func VerifyArchive(path string) (files int, bytes int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, 0, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, bytes, nil
		}
		if err != nil {
			return files, bytes, fmt.Errorf("corrupt archive after %d files: %w", files, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		n, err := io.Copy(io.Discard, tr)
		if err != nil {
			return files, bytes, fmt.Errorf("corrupt entry %s: %w", hdr.Name, err)
		}
		files++
		bytes += n
	}
}

// Verify checks a completed backup's archive. An unreadable archive is a
// failure; an empty one or a size drift is a warning.
func (s *BackupService) Verify(ctx context.Context, id string) (db.VerifyResult, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return db.VerifyResult{}, err
	}
	if b.Status != db.BackupCompleted {
		return db.VerifyResult{}, invalid("backup is %s, only completed backups can be verified", b.Status)
	}

	path := filepath.Join(s.Dir, b.Filename)
	info, err := os.Stat(path)
	if err != nil {
		return db.VerifyResult{Status: db.CheckFailure, Message: "archive file is missing"}, nil
	}
	files, n, err := VerifyArchive(path)
	result := db.VerifyResult{Files: files, Bytes: n}
	switch {
	case err != nil:
		result.Status = db.CheckFailure
		result.Message = err.Error()
	case files == 0:
		result.Status = db.CheckWarning
		result.Message = "archive is readable but contains no files"
	case info.Size() != b.Size:
		result.Status = db.CheckWarning
		result.Message = fmt.Sprintf("archive size %d differs from recorded size %d", info.Size(), b.Size)
	default:
		result.Status = db.CheckSuccess
		result.Message = fmt.Sprintf("%d files verified", files)
	}
	return result, nil
}

// ArchivePath returns the file of a completed backup.
func (s *BackupService) ArchivePath(ctx context.Context, id string) (string, db.Backup, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return "", b, err
	}
	if b.Status != db.BackupCompleted {
		return "", b, invalid("backup is %s", b.Status)
	}
	path := filepath.Join(s.Dir, filepath.Base(b.Filename))
	if _, err := os.Stat(path); err != nil {
		return "", b, notFound("archive file")
	}
	return path, b, nil
}

func (s *BackupService) Delete(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.Done() {
		return conflict("backup is still running")
	}
	if _, err := s.PG.ExecContext(ctx, `DELETE FROM archive_backups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if err := os.Remove(filepath.Join(s.Dir, filepath.Base(b.Filename))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.Logger.Warnf("backup %s row deleted but file remains: %v", b.ID, err)
	}
	return nil
}
