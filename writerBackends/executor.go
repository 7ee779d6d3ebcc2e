// Package writerbackends archives committed backups to durable storage
// before the local copy is deleted.
package writerbackends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"safemigrator/config"
	"safemigrator/layout"
	"safemigrator/logger"
	"safemigrator/models"
)

// Sink types.
const (
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeGCS   = "gcs"
	TypeSFTP  = "sftp"
)

// WriteObject writes one object named key to the sink.
func WriteObject(ctx context.Context, sink config.Sink, key string, reader io.Reader) error {
	key = path.Join(sink.Prefix, key)
	switch sink.Type {
	case TypeLocal:
		if err := UploadToDirectory(ctx, sink.Access, key, reader); err != nil {
			return fmt.Errorf("failed to write to local archive: %w", err)
		}
	case TypeS3:
		if err := UploadToS3WithCreds(ctx, sink.Access, key, reader); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case TypeGCS:
		if err := UploadToGCSWithJSON(ctx, sink.Access, key, reader); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case TypeSFTP:
		if err := UploadToSFTPWithCreds(ctx, sink.Access, key, reader); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", sink.Type)
	}
	return nil
}

// Archiver uploads every file of a backup, plus a manifest, to each sink.
// Sinks are written concurrently; the archive fails if any sink fails.
type Archiver struct {
	sinks []config.Sink
}

func NewArchiver(sinks []config.Sink) (*Archiver, error) {
	for _, s := range sinks {
		switch s.Type {
		case TypeLocal, TypeS3, TypeGCS, TypeSFTP:
		default:
			return nil, fmt.Errorf("sink %q: unknown backend type %q", s.Name, s.Type)
		}
	}
	return &Archiver{sinks: sinks}, nil
}

// ObjectDir is where a backup's files go inside a sink:
// <stamp>/att-<id>.
func ObjectDir(e models.BackupEntry) string {
	return path.Join(e.Timestamp.Format(layout.BackupStampFormat), "att-"+strconv.FormatInt(int64(e.AssetID), 10))
}

func (a *Archiver) Archive(ctx context.Context, e models.BackupEntry) error {
	manifest, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	dir := ObjectDir(e)

	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range a.sinks {
		g.Go(func() error {
			for _, f := range e.Files {
				if err := a.upload(ctx, sink, path.Join(dir, filepath.Base(f.Stored)), f.Stored); err != nil {
					return fmt.Errorf("sink %s: %w", sink.Name, err)
				}
			}
			if err := WriteObject(ctx, sink, path.Join(dir, "manifest.json"), strings.NewReader(string(manifest))); err != nil {
				return fmt.Errorf("sink %s: %w", sink.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Infow("backup archived", "asset", e.AssetID, "sinks", len(a.sinks), "files", len(e.Files))
	return nil
}

func (a *Archiver) upload(ctx context.Context, sink config.Sink, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteObject(ctx, sink, key, f)
}
