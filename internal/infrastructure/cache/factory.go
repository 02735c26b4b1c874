package cache

import (
	"context"
	"fmt"

	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Store modes accepted in session.store
const (
	ModeMemory = "memory"
	ModeRedis  = "redis"
	ModeAuto   = "auto"
)

// StateStoreFactory builds the session state store from configuration
type StateStoreFactory struct {
	redisConfig config.RedisConfig
	mode        string
	logger      *zap.Logger
}

// FactoryOption configures the factory
type FactoryOption func(*StateStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *StateStoreFactory) { f.logger = logger }
}

// NewStateStoreFactory creates a factory. mode is memory, redis or auto.
func NewStateStoreFactory(cfg config.RedisConfig, mode string, opts ...FactoryOption) *StateStoreFactory {
	if mode == "" {
		mode = ModeAuto
	}
	f := &StateStoreFactory{redisConfig: cfg, mode: mode, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemoryStore creates a process-local store
func (f *StateStoreFactory) CreateInMemoryStore() *InMemoryStateStore {
	return NewInMemoryStateStore(0, WithMaxSize(10000))
}

// CreateTieredStore connects to Redis and puts a local tier in front of it
func (f *StateStoreFactory) CreateTieredStore(ctx context.Context) (*TieredStateStore, error) {
	l2, err := NewRedisStateStore(ctx, RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis session store: %w", err)
	}
	inv := NewRedisInvalidator(l2.Client(), WithInvalidatorLogger(f.logger))
	store := NewTieredStateStore(f.CreateInMemoryStore(), l2,
		WithInvalidator(inv),
		WithTieredLogger(f.logger),
	)
	store.StartInvalidationSubscription()
	return store, nil
}

// CreateStore honours the configured mode. In auto mode Redis is tried first
// and an in-memory store is used when it is unreachable.
func (f *StateStoreFactory) CreateStore(ctx context.Context) (StateStore, error) {
	switch f.mode {
	case ModeMemory:
		f.logger.Info("using in-memory session store")
		return f.CreateInMemoryStore(), nil
	case ModeRedis, ModeAuto:
	default:
		return nil, fmt.Errorf("unknown session store mode %q", f.mode)
	}

	store, err := f.CreateTieredStore(ctx)
	if err == nil {
		f.logger.Info("using Redis session store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}
	if f.mode == ModeRedis {
		return nil, fmt.Errorf("Redis required for session state but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory session store. "+
		"Sessions will not be shared between instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
