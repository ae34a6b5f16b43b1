// Package storage publishes a redacted dataset to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"docredact/internal/config"
	"docredact/internal/ledger"
)

// ErrNotConfigured is returned when no storage endpoint is set.
var ErrNotConfigured = errors.New("object storage endpoint not configured")

// objectStore is the part of *minio.Client the publisher uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Result lists what a publish uploaded.
type Result struct {
	Objects []string
	Failed  []string
}

// Publisher uploads redacted pages and the metadata ledger of a run.
type Publisher struct {
	client objectStore
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewPublisher creates a MinIO client for cfg. No connection is made until the first call.
func NewPublisher(cfg config.StorageConfig, log zerolog.Logger) (*Publisher, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newPublisher(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newPublisher(client objectStore, bucket, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

// EnsureBucket creates the bucket if it doesn't exist
func (p *Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		p.log.Info().Str("bucket", p.bucket).Msg("Bucket created")
	}

	return nil
}

// Publish uploads every redacted file recorded in the ledger, read from
// redactedDir, followed by the saved ledger itself. Objects are grouped under
// the run ID. A file that fails to upload is logged and reported in
// Result.Failed; a failed ledger upload fails the publish.
func (p *Publisher) Publish(ctx context.Context, l *ledger.Ledger, redactedDir string) (*Result, error) {
	if err := p.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	runID := l.DatasetInfo().RunID
	result := &Result{}

	for _, doc := range l.Documents() {
		for _, name := range doc.RedactedFiles {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			object := p.objectName(runID, "redacted", name)
			if err := p.put(ctx, object, filepath.Join(redactedDir, name)); err != nil {
				p.log.Error().
					Err(err).
					Str("object", object).
					Str("document", doc.Filename).
					Msg("Failed to upload redacted file")
				result.Failed = append(result.Failed, name)
				continue
			}
			result.Objects = append(result.Objects, object)
		}
	}

	object := p.objectName(runID, filepath.Base(l.Path()))
	if err := p.put(ctx, object, l.Path()); err != nil {
		return result, fmt.Errorf("failed to upload metadata: %w", err)
	}
	result.Objects = append(result.Objects, object)

	p.log.Info().
		Str("bucket", p.bucket).
		Str("run_id", runID).
		Int("uploaded", len(result.Objects)).
		Int("failed", len(result.Failed)).
		Msg("Dataset published")

	return result, nil
}

func (p *Publisher) put(ctx context.Context, object, file string) error {
	_, err := p.client.FPutObject(ctx, p.bucket, object, file, minio.PutObjectOptions{
		ContentType: contentType(file),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (p *Publisher) objectName(parts ...string) string {
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return path.Join(parts...)
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
