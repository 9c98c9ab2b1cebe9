package storage

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	appresolution "github.com/itdd/backend/internal/application/resolution"
)

var _ appresolution.ExportStore = (*MemoryExportStore)(nil)

// MemoryExportStore keeps exports in process memory for tests that need a
// working ExportStore without S3. URLs point at BaseURL and are not signed.
type MemoryExportStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryExportStore creates an empty store
func NewMemoryExportStore(baseURL string) *MemoryExportStore {
	if baseURL == "" {
		baseURL = "http://localhost:8080/exports"
	}
	return &MemoryExportStore{BaseURL: baseURL, objects: map[string]memoryObject{}}
}

// Upload implements resolution.ExportStore
func (s *MemoryExportStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// GenerateDownloadURL implements resolution.ExportStore
func (s *MemoryExportStore) GenerateDownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", time.Time{}, errors.New("object not found: " + key)
	}
	expiresAt := time.Now().Add(expiresIn)
	return s.BaseURL + "/" + key + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}

// Get returns a stored object and its content type
func (s *MemoryExportStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.data, obj.contentType, ok
}
