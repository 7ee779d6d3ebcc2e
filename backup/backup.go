// Package backup keeps an asset's pre-migration files until the migration
// is committed or rolled back.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/logger"
	"safemigrator/models"
)

// Archiver copies a backup somewhere durable before it is deleted.
type Archiver interface {
	Archive(ctx context.Context, e models.BackupEntry) error
}

type Manager struct {
	layout   *layout.Layout
	records  cms.Records
	archiver Archiver
	now      func() time.Time
}

func NewManager(l *layout.Layout, records cms.Records) *Manager {
	return &Manager{layout: l, records: records, now: time.Now}
}

// SetArchiver enables archive-on-commit. nil disables it.
func (m *Manager) SetArchiver(a Archiver) { m.archiver = a }

// SetClock replaces time.Now, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Stash moves every listed uploads-relative file into a fresh backup
// directory for the asset and persists the entry. entry carries the
// rollback data (previous snapshot, converted files, URL pairs); Stash
// fills in the rest. If any move fails the files already moved are put
// back.
func (m *Manager) Stash(ctx context.Context, id models.AssetID, files []string, entry models.BackupEntry) (models.BackupEntry, error) {
	ts := m.now()
	dir := m.layout.BackupDirFor(id, ts)
	entry.AssetID = id
	entry.Timestamp = ts
	entry.Dir = dir
	entry.Files = nil

	for _, rel := range files {
		src := m.layout.Abs(rel)
		if !layout.Exists(src) {
			logger.Warnw("backup: original missing, not stashed", "asset", id, "file", rel)
			continue
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if err := layout.MoveAtomic(src, dst); err != nil {
			m.unwind(entry.Files)
			return entry, failures.Wrap(failures.KindBackupMoveFailed, failures.StepBackup, "stash "+rel, err)
		}
		entry.Files = append(entry.Files, models.BackupFile{Original: rel, Stored: dst})
	}
	if err := m.records.SetBackup(ctx, entry); err != nil {
		m.unwind(entry.Files)
		return entry, failures.Wrap(failures.KindBackupMoveFailed, failures.StepBackup, "persist backup entry", err)
	}
	logger.Infow("backup created", "asset", id, "dir", dir, "files", len(entry.Files))
	return entry, nil
}

func (m *Manager) unwind(moved []models.BackupFile) {
	for i := len(moved) - 1; i >= 0; i-- {
		f := moved[i]
		if err := layout.MoveAtomic(f.Stored, m.layout.Abs(f.Original)); err != nil {
			logger.Errorw("backup: could not put file back", "file", f.Original, "error", err)
		}
	}
	if len(moved) > 0 {
		layout.PruneEmpty(filepath.Dir(moved[0].Stored), m.layout.BackupRoot())
	}
}

// Discard deletes the listed files. Used instead of Stash when validation
// is off.
func (m *Manager) Discard(files []string) error {
	var errs []error
	for _, rel := range files {
		if err := layout.Delete(m.layout.Abs(rel)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return failures.Wrap(failures.KindBackupMoveFailed, failures.StepBackup, "delete originals", err)
	}
	return nil
}

// Get returns the asset's backup entry or nil.
func (m *Manager) Get(ctx context.Context, id models.AssetID) (*models.BackupEntry, error) {
	return m.records.GetBackup(ctx, id)
}

// Check reports a rollback_conflict if any original location is occupied.
func (m *Manager) Check(e *models.BackupEntry) error {
	var conflicts []string
	for _, f := range e.Files {
		if layout.Exists(m.layout.Abs(f.Original)) {
			conflicts = append(conflicts, f.Original)
		}
	}
	if len(conflicts) > 0 {
		return failures.New(failures.KindRollbackConflict, failures.StepRollback,
			fmt.Sprintf("original location occupied: %v", conflicts))
	}
	for _, f := range e.Files {
		if !layout.Exists(f.Stored) {
			return failures.New(failures.KindRollbackUnavailable, failures.StepRollback,
				"backup file missing: "+f.Stored)
		}
	}
	return nil
}

// Restore moves every stashed file back. A collision stops the restore
// with rollback_conflict and leaves both copies in place.
func (m *Manager) Restore(ctx context.Context, e *models.BackupEntry) error {
	if err := m.Check(e); err != nil {
		return err
	}
	for _, f := range e.Files {
		err := layout.MoveAtomic(f.Stored, m.layout.Abs(f.Original))
		if errors.Is(err, layout.ErrExists) {
			return failures.Wrap(failures.KindRollbackConflict, failures.StepRollback, "restore "+f.Original, err)
		}
		if err != nil {
			return failures.Wrap(failures.KindBackupMoveFailed, failures.StepRollback, "restore "+f.Original, err)
		}
	}
	layout.PruneEmpty(e.Dir, m.layout.BackupRoot())
	logger.Infow("backup restored", "asset", e.AssetID, "files", len(e.Files))
	return nil
}

// Clear forgets the asset's backup entry.
func (m *Manager) Clear(ctx context.Context, id models.AssetID) error {
	return m.records.ClearBackup(ctx, id)
}

// Commit archives the backup when an archiver is set, deletes the backup
// directory and clears the entry. An archive failure keeps everything.
func (m *Manager) Commit(ctx context.Context, e *models.BackupEntry) error {
	if m.archiver != nil {
		if err := m.archiver.Archive(ctx, *e); err != nil {
			return failures.Wrap(failures.KindBackupMoveFailed, failures.StepCommit, "archive backup", err)
		}
	}
	if e.Dir != "" {
		if err := os.RemoveAll(e.Dir); err != nil {
			return failures.Wrap(failures.KindBackupMoveFailed, failures.StepCommit, "delete backup dir", err)
		}
		layout.PruneEmpty(filepath.Dir(e.Dir), m.layout.BackupRoot())
	}
	if err := m.records.ClearBackup(ctx, e.AssetID); err != nil {
		return fmt.Errorf("clear backup entry: %w", err)
	}
	logger.Infow("backup deleted", "asset", e.AssetID, "dir", e.Dir)
	return nil
}
