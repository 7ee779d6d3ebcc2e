package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"safemigrator/logger"
)

// UploadToDirectory writes reader to <baseDir>/<key> on the local file
// system. accessInfo needs baseDir.
func UploadToDirectory(ctx context.Context, accessInfo map[string]string, key string, reader io.Reader) error {
	baseDir := accessInfo["baseDir"]
	if baseDir == "" {
		return fmt.Errorf("missing required accessInfo key: baseDir")
	}
	fullPath := filepath.Join(baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	tmp := fullPath + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", tmp, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		return err
	}
	logger.Debugf("archived '%s' to '%s'", key, fullPath)
	return nil
}
