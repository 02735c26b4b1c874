package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TieredStateStore reads through a short-lived local L1 in front of a shared
// L2. Writes go to both tiers; other instances drop their L1 copy when an
// Invalidator is configured.
type TieredStateStore struct {
	l1          *InMemoryStateStore
	l2          StateStore
	invalidator Invalidator
	l1TTL       time.Duration
	instanceID  string
	logger      *zap.Logger

	stopSub context.CancelFunc
	subDone chan struct{}

	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// TieredOption configures a TieredStateStore
type TieredOption func(*TieredStateStore)

// WithInvalidator enables cross-instance L1 invalidation
func WithInvalidator(inv Invalidator) TieredOption {
	return func(s *TieredStateStore) { s.invalidator = inv }
}

// WithTieredLogger sets the logger
func WithTieredLogger(logger *zap.Logger) TieredOption {
	return func(s *TieredStateStore) { s.logger = logger }
}

// NewTieredStateStore creates a two-tier store
func NewTieredStateStore(l1 *InMemoryStateStore, l2 StateStore, opts ...TieredOption) *TieredStateStore {
	s := &TieredStateStore{
		l1:         l1,
		l2:         l2,
		l1TTL:      30 * time.Second,
		instanceID: uuid.NewString(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartInvalidationSubscription listens for invalidations from other
// instances in the background until Close. It is a no-op without an
// Invalidator or when already started.
func (s *TieredStateStore) StartInvalidationSubscription() {
	if s.invalidator == nil || s.stopSub != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSub = cancel
	s.subDone = make(chan struct{})
	go func() {
		defer close(s.subDone)
		err := s.invalidator.Subscribe(ctx, s.handleInvalidation)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Session invalidation subscription stopped", zap.Error(err))
		}
	}()
}

func (s *TieredStateStore) handleInvalidation(msg Invalidation) {
	if msg.Origin == s.instanceID {
		return
	}
	_ = s.l1.Delete(context.Background(), msg.Key)
	s.logger.Debug("Invalidated L1 session state", zap.String("key", msg.Key))
}

// Get reads L1, then L2, back-filling L1 on an L2 hit
func (s *TieredStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := s.l1.Get(ctx, key); err == nil {
		s.l1Hits.Add(1)
		return v, nil
	}
	s.l1Misses.Add(1)

	v, err := s.l2.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			s.l2Misses.Add(1)
		}
		return nil, err
	}
	s.l2Hits.Add(1)
	_ = s.l1.Set(ctx, key, v, s.l1TTL)
	return v, nil
}

// Set writes L2 first so a failed write never leaves a newer L1 copy
func (s *TieredStateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.l2.Set(ctx, key, value, ttl); err != nil {
		_ = s.l1.Delete(ctx, key)
		return err
	}
	_ = s.l1.Set(ctx, key, value, min(ttl, s.l1TTL))
	s.publish(ctx, key)
	return nil
}

// Delete removes key from both tiers
func (s *TieredStateStore) Delete(ctx context.Context, key string) error {
	_ = s.l1.Delete(ctx, key)
	if err := s.l2.Delete(ctx, key); err != nil {
		return err
	}
	s.publish(ctx, key)
	return nil
}

func (s *TieredStateStore) publish(ctx context.Context, key string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Publish(ctx, Invalidation{Key: key, Origin: s.instanceID}); err != nil {
		s.logger.Warn("Failed to publish session invalidation", zap.String("key", key), zap.Error(err))
	}
}

// Stats returns hit counters
func (s *TieredStateStore) Stats() Stats {
	return Stats{
		L1Hits:   s.l1Hits.Load(),
		L1Misses: s.l1Misses.Load(),
		L2Hits:   s.l2Hits.Load(),
		L2Misses: s.l2Misses.Load(),
		L1Size:   s.l1.Size(),
	}
}

// Close stops the subscription and closes the invalidator and both tiers
func (s *TieredStateStore) Close() error {
	if s.stopSub != nil {
		s.stopSub()
		<-s.subDone
	}
	var errs []error
	if s.invalidator != nil {
		errs = append(errs, s.invalidator.Close())
	}
	errs = append(errs, s.l1.Close(), s.l2.Close())
	return errors.Join(errs...)
}

var _ StateStore = (*TieredStateStore)(nil)
