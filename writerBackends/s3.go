package writerbackends

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"safemigrator/logger"
)

// UploadToS3WithCreds uploads content from an io.Reader to an S3 object
// and is fully self-contained, initializing its own client. accessInfo:
// accessKey, secretKey, region, bucket and optionally endpoint for
// S3-compatible stores (path-style addressing is then used).
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, key string, reader io.Reader) error {
	bucket := accessInfo["bucket"]
	if bucket == "" {
		return fmt.Errorf("missing required accessInfo key: bucket")
	}
	creds := credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], "")
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: creds,
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	s3Client := s3.New(opts)

	uploader := manager.NewUploader(s3Client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   reader,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}
