package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"safemigrator/logger"
)

// credentialsJSON accepts the service account key as raw JSON or base64.
func credentialsJSON(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}

// UploadToGCSWithJSON uploads content from an io.Reader to a Google Cloud
// Storage object. accessInfo: bucket and credentialsJSON.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, key string, reader io.Reader) error {
	bucketName := accessInfo["bucket"]
	if bucketName == "" || accessInfo["credentialsJSON"] == "" {
		return fmt.Errorf("missing required accessInfo keys: bucket, credentialsJSON")
	}
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON(accessInfo["credentialsJSON"])))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(key).NewWriter(ctx)
	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucketName)
	return nil
}
