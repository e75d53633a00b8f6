package storage

import (
	"context"
	"fmt"
	"sync"
)

// MockBlobStore is an in-memory BlobStore for tests.
type MockBlobStore struct {
	mu      sync.Mutex
	Objects map[string][]byte

	// UploadErr forces Upload to fail when set.
	UploadErr error
	// DownloadErr forces Download to fail when set.
	DownloadErr error
	// DeleteErr forces Delete to fail when set.
	DeleteErr error

	UploadCalls   int
	DownloadCalls int
	DeleteCalls   int
}

var _ BlobStore = (*MockBlobStore)(nil)

// NewMockBlobStore creates an empty in-memory store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{Objects: make(map[string][]byte)}
}

// Upload implements BlobStore.
func (m *MockBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UploadCalls++
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	m.Objects[key] = append([]byte(nil), data...)
	return fmt.Sprintf("http://blob.test/%s", key), nil
}

// Download implements BlobStore.
func (m *MockBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DownloadCalls++
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	data, ok := m.Objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements BlobStore.
func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Objects, key)
	return nil
}
