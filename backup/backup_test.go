package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/models"
)

// memRecords implements the backup part of cms.Records.
type memRecords struct {
	cms.Records
	entries map[models.AssetID]models.BackupEntry
	failSet bool
}

func (m *memRecords) GetBackup(_ context.Context, id models.AssetID) (*models.BackupEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memRecords) SetBackup(_ context.Context, e models.BackupEntry) error {
	if m.failSet {
		return errors.New("disk full")
	}
	m.entries[e.AssetID] = e
	return nil
}

func (m *memRecords) ClearBackup(_ context.Context, id models.AssetID) error {
	delete(m.entries, id)
	return nil
}

type fakeArchiver struct {
	got []models.BackupEntry
	err error
}

func (f *fakeArchiver) Archive(_ context.Context, e models.BackupEntry) error {
	f.got = append(f.got, e)
	return f.err
}

var stamp = time.Date(2024, 7, 1, 12, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*Manager, *memRecords, *layout.Layout) {
	t.Helper()
	root := t.TempDir()
	l := layout.New(root, "/uploads", "webp-migrator-backup")
	for _, rel := range []string{"2024/07/a.jpg", "2024/07/a-150x150.jpg"} {
		p := l.Abs(rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("data:"+rel), 0o644))
	}
	rec := &memRecords{entries: map[models.AssetID]models.BackupEntry{}}
	m := NewManager(l, rec)
	m.SetClock(func() time.Time { return stamp })
	return m, rec, l
}

var files = []string{"2024/07/a.jpg", "2024/07/a-150x150.jpg"}

func TestStashAndRestore(t *testing.T) {
	m, rec, l := setup(t)
	ctx := context.Background()

	e, err := m.Stash(ctx, 7, files, models.BackupEntry{Converted: []string{"2024/07/a.webp"}})
	require.NoError(t, err)

	wantDir := filepath.Join(l.Root, "webp-migrator-backup", "20240701-123000", "att-7")
	assert.Equal(t, wantDir, e.Dir)
	require.Len(t, e.Files, 2)
	assert.Equal(t, filepath.Join(wantDir, "a.jpg"), e.Files[0].Stored)
	assert.FileExists(t, filepath.Join(wantDir, "a-150x150.jpg"))
	assert.NoFileExists(t, l.Abs("2024/07/a.jpg"))
	assert.Equal(t, []string{"2024/07/a.webp"}, rec.entries[7].Converted)

	got, err := m.Get(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, m.Restore(ctx, got))

	data, err := os.ReadFile(l.Abs("2024/07/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data:2024/07/a.jpg", string(data))
	assert.NoDirExists(t, l.BackupRoot()+"/20240701-123000")

	require.NoError(t, m.Clear(ctx, 7))
	got, err = m.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStashSkipsMissingFiles(t *testing.T) {
	m, _, l := setup(t)
	require.NoError(t, os.Remove(l.Abs("2024/07/a-150x150.jpg")))

	e, err := m.Stash(context.Background(), 7, files, models.BackupEntry{})
	require.NoError(t, err)
	assert.Len(t, e.Files, 1)
}

func TestStashUnwindsOnPersistFailure(t *testing.T) {
	m, rec, l := setup(t)
	rec.failSet = true

	_, err := m.Stash(context.Background(), 7, files, models.BackupEntry{})
	require.Error(t, err)
	assert.Equal(t, failures.KindBackupMoveFailed, failures.KindOf(err))
	assert.FileExists(t, l.Abs("2024/07/a.jpg"))
	assert.FileExists(t, l.Abs("2024/07/a-150x150.jpg"))
	assert.NoDirExists(t, filepath.Join(l.BackupRoot(), "20240701-123000"))
}

func TestRestoreConflictKeepsBothCopies(t *testing.T) {
	m, _, l := setup(t)
	ctx := context.Background()

	e, err := m.Stash(ctx, 7, files, models.BackupEntry{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(l.Abs("2024/07/a.jpg"), []byte("new upload"), 0o644))

	err = m.Restore(ctx, &e)
	require.Error(t, err)
	assert.Equal(t, failures.KindRollbackConflict, failures.KindOf(err))

	data, err := os.ReadFile(l.Abs("2024/07/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "new upload", string(data))
	assert.FileExists(t, e.Files[0].Stored)
	assert.FileExists(t, e.Files[1].Stored)
	assert.NoFileExists(t, l.Abs("2024/07/a-150x150.jpg"))
}

func TestRestoreMissingBackupFile(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()

	e, err := m.Stash(ctx, 7, files, models.BackupEntry{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(e.Files[1].Stored))

	err = m.Restore(ctx, &e)
	assert.Equal(t, failures.KindRollbackUnavailable, failures.KindOf(err))
}

func TestCommit(t *testing.T) {
	m, rec, l := setup(t)
	ctx := context.Background()
	arch := &fakeArchiver{err: errors.New("bucket gone")}
	m.SetArchiver(arch)

	e, err := m.Stash(ctx, 7, files, models.BackupEntry{})
	require.NoError(t, err)

	err = m.Commit(ctx, &e)
	require.Error(t, err)
	assert.DirExists(t, e.Dir)
	assert.Contains(t, rec.entries, models.AssetID(7))

	arch.err = nil
	require.NoError(t, m.Commit(ctx, &e))
	assert.Len(t, arch.got, 2)
	assert.NoDirExists(t, e.Dir)
	assert.NoDirExists(t, l.BackupRoot()+"/20240701-123000")
	assert.NotContains(t, rec.entries, models.AssetID(7))
}

func TestDiscard(t *testing.T) {
	m, _, l := setup(t)
	require.NoError(t, m.Discard(append(files, "2024/07/gone.jpg")))
	assert.NoFileExists(t, l.Abs("2024/07/a.jpg"))
	assert.NoFileExists(t, l.Abs("2024/07/a-150x150.jpg"))
}
