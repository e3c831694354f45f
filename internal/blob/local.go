package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalPathPrefix is where the HTTP server exposes local blobs
const LocalPathPrefix = "/uploads"

// LocalStore keeps attachments on the local filesystem. Suitable for
// development and single-node setups.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at dir
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put writes the object to disk
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create blob dir: %w", err)
	}

	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return fmt.Errorf("failed to write blob file: %w", err)
	}
	return f.Close()
}

// Delete removes the object from disk
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob file: %w", err)
	}
	return nil
}

// URL joins the configured base URL and the key
func (s *LocalStore) URL(ctx context.Context, key string) (string, error) {
	if s.baseURL == "" {
		return LocalPathPrefix + "/" + strings.TrimPrefix(key, "/"), nil
	}
	return s.baseURL + "/" + strings.TrimPrefix(key, "/"), nil
}
