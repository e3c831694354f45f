// Package blob is the attachment storage collaborator. Messaging code only
// keeps the key returned by Put; bytes live in the configured backend.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mbeoliero/tradechat/internal/config"
)

// ErrNotFound is returned when a key does not exist in the store
var ErrNotFound = errors.New("blob not found")

// Store persists attachment bytes
type Store interface {
	// Put stores size bytes from r under key
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// URL returns a URL clients can fetch the object from
	URL(ctx context.Context, key string) (string, error)
}

// NewStore builds the store selected by blob.driver
func NewStore(ctx context.Context, cfg *config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "local":
		return NewLocalStore(cfg.LocalDir, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", cfg.Driver)
	}
}
