package storage

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/smartedu/dashboard/internal/domain/export"
)

var _ export.ObjectStore = (*MemoryArchiveStore)(nil)

// MemoryArchiveStore keeps exports in process memory. It backs local
// development and tests; content is lost on restart.
type MemoryArchiveStore struct {
	// BaseURL prefixes generated download links
	BaseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryArchiveStore creates an empty store
func NewMemoryArchiveStore(baseURL string) *MemoryArchiveStore {
	return &MemoryArchiveStore{BaseURL: baseURL, objects: make(map[string]memoryObject)}
}

// Put stores a copy of data
func (m *MemoryArchiveStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrKeyRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Get returns the stored body and content type
func (m *MemoryArchiveStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}

// DownloadURL returns a link under BaseURL carrying the expiry as a query parameter
func (m *MemoryArchiveStore) DownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrKeyRequired
	}
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	expiresAt := time.Now().Add(expiresIn)
	q := url.Values{"expires": {strconv.FormatInt(expiresAt.Unix(), 10)}}
	return m.BaseURL + "/" + key + "?" + q.Encode(), expiresAt, nil
}

// Len returns the number of stored objects
func (m *MemoryArchiveStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
