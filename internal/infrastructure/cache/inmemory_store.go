package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryStateStore keeps session state in a process-local map. State is
// lost on restart and not shared between instances.
type InMemoryStateStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	maxSize   int
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// InMemoryOption configures an InMemoryStateStore
type InMemoryOption func(*InMemoryStateStore)

// WithMaxSize bounds the number of entries; 0 means unbounded
func WithMaxSize(n int) InMemoryOption {
	return func(s *InMemoryStateStore) { s.maxSize = n }
}

// NewInMemoryStateStore creates the store and starts its cleanup goroutine
func NewInMemoryStateStore(cleanupInterval time.Duration, opts ...InMemoryOption) *InMemoryStateStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	s := &InMemoryStateStore{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Get returns a copy of the stored value
func (s *InMemoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value until ttl elapses
func (s *InMemoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOne()
	}
	s.entries[key] = entry{value: v, expiresAt: time.Now().Add(ttl)}
	return nil
}

// evictOne drops the entry closest to expiry. Caller holds the lock.
func (s *InMemoryStateStore) evictOne() {
	var (
		victim string
		oldest time.Time
	)
	for k, e := range s.entries {
		if victim == "" || e.expiresAt.Before(oldest) {
			victim, oldest = k, e.expiresAt
		}
	}
	delete(s.entries, victim)
}

// Delete removes key
func (s *InMemoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryStateStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryStateStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryStateStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Size returns the number of entries, expired ones included
func (s *InMemoryStateStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ StateStore = (*InMemoryStateStore)(nil)
