// Package layout resolves where an asset's files live under the uploads
// root and moves them around without leaving partial files behind.
package layout

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"safemigrator/models"
)

// ErrExists is returned when a move would overwrite an existing file.
var ErrExists = errors.New("destination exists")

// BackupStampFormat is the per-asset backup directory timestamp layout.
const BackupStampFormat = "20060102-150405"

// Layout maps uploads-relative paths to the filesystem and to URLs.
type Layout struct {
	Root         string
	BaseURL      string
	BackupSubdir string
}

func New(root, baseURL, backupSubdir string) *Layout {
	return &Layout{
		Root:         filepath.Clean(root),
		BaseURL:      strings.TrimRight(baseURL, "/"),
		BackupSubdir: backupSubdir,
	}
}

// Abs returns the absolute path of an uploads-relative path.
func (l *Layout) Abs(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// Rel converts an absolute path under Root back to an uploads-relative,
// slash-separated path.
func (l *Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", abs, l.Root)
	}
	return filepath.ToSlash(rel), nil
}

// URL returns the public URL of an uploads-relative path.
func (l *Layout) URL(rel string) string {
	return l.BaseURL + "/" + strings.TrimPrefix(rel, "/")
}

// OriginalOf returns the absolute path of the asset's original file.
func (l *Layout) OriginalOf(a *models.Asset) string {
	return l.Abs(a.Meta.File)
}

// DerivedOf returns the absolute path of the derived size with the given tag.
func (l *Layout) DerivedOf(a *models.Asset, tag string) (string, bool) {
	s, ok := a.Meta.Size(tag)
	if !ok {
		return "", false
	}
	return l.Abs(a.Meta.SizeRel(s)), true
}

// BackupDirFor is <root>/<backup-subdir>/<YYYYMMDD-HHMMSS>/att-<id>.
func (l *Layout) BackupDirFor(id models.AssetID, ts time.Time) string {
	return filepath.Join(l.Root, l.BackupSubdir, ts.Format(BackupStampFormat), "att-"+strconv.FormatInt(int64(id), 10))
}

// BackupRoot is the directory all backups live under.
func (l *Layout) BackupRoot() string {
	return filepath.Join(l.Root, l.BackupSubdir)
}

// ConvertedPath swaps the extension of an uploads-relative path.
func ConvertedPath(rel, ext string) string {
	return strings.TrimSuffix(rel, path.Ext(rel)) + ext
}

// Exists reports whether a regular file or directory is present at p.
func Exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// FileSize returns the size of p, or 0 when it cannot be read.
func FileSize(p string) int64 {
	fi, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// MoveAtomic moves src to dst, creating dst's directory. It never replaces
// an existing dst. Same-volume moves are a rename; across volumes the file
// is copied to a temporary name, synced, verified, renamed into place and
// only then removed from src.
func MoveAtomic(src, dst string) error {
	if Exists(dst) {
		return fmt.Errorf("move %s: %w: %s", src, ErrExists, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return moveAcrossVolumes(src, dst)
}

func moveAcrossVolumes(src, dst string) error {
	tmp := dst + ".part"
	srcSum, err := copyFile(src, tmp)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	dstSum, err := checksum(tmp)
	if err != nil || dstSum != srcSum {
		os.Remove(tmp)
		if err == nil {
			err = errors.New("checksum mismatch")
		}
		return fmt.Errorf("verify %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move %s: %w", tmp, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	in, err := os.Open(src)
	if err != nil {
		return sum, err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return sum, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return sum, err
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return sum, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return sum, err
	}
	if err := out.Close(); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func checksum(p string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := os.Open(p)
	if err != nil {
		return sum, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// Delete removes p. A missing file is not an error.
func Delete(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PruneEmpty removes dir and then each empty parent up to (not including)
// stop.
func PruneEmpty(dir, stop string) {
	stop = filepath.Clean(stop)
	for d := filepath.Clean(dir); d != stop && strings.HasPrefix(d, stop); d = filepath.Dir(d) {
		if err := os.Remove(d); err != nil {
			return
		}
	}
}
