package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local tooling
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	// PutErr, when set, is returned by every Put
	PutErr error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// Put stores the object in memory
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	putErr := s.PutErr
	s.mu.Unlock()
	if putErr != nil {
		return putErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

// Delete removes the object
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.types, key)
	return nil
}

// URL returns a memory:// URL for the key
func (s *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a copy of the stored bytes
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Len returns the number of stored objects
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// SetPutErr makes subsequent Put calls fail with err (nil to clear)
func (s *MemoryStore) SetPutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutErr = err
}
