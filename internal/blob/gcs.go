package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/mbeoliero/tradechat/internal/config"
	"google.golang.org/api/option"
)

// GCSStore stores attachments in a Google Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
	expiry time.Duration
}

// NewGCSStore creates a GCSStore, using a service account file when configured
func NewGCSStore(ctx context.Context, cfg *config.BlobConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: cfg.Bucket, expiry: cfg.URLExpiry}, nil
}

// Put uploads an object
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to copy file to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Delete removes an object
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}

// URL returns a V4 signed GET URL
func (s *GCSStore) URL(ctx context.Context, key string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.expiry),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign GCS URL: %w", err)
	}
	return url, nil
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
