package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultInvalidationChannel = "dashboard:session:invalidate"
	defaultCloseTimeout        = 5 * time.Second
)

// Invalidation tells other instances to drop their local copy of a key
type Invalidation struct {
	Key       string `json:"key"`
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}

// Invalidator broadcasts L1 invalidations between dashboard instances
type Invalidator interface {
	Publish(ctx context.Context, msg Invalidation) error
	Subscribe(ctx context.Context, fn func(Invalidation)) error
	Close() error
}

// RedisInvalidator implements Invalidator using Redis Pub/Sub
type RedisInvalidator struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// InvalidatorOption configures a RedisInvalidator
type InvalidatorOption func(*RedisInvalidator)

// WithInvalidatorLogger sets the logger
func WithInvalidatorLogger(logger *zap.Logger) InvalidatorOption {
	return func(i *RedisInvalidator) { i.logger = logger }
}

// NewRedisInvalidator creates an invalidator on an existing client. The
// caller keeps ownership of the client.
func NewRedisInvalidator(client *redis.Client, opts ...InvalidatorOption) *RedisInvalidator {
	i := &RedisInvalidator{
		client:  client,
		channel: defaultInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Publish sends msg to all subscribers
func (i *RedisInvalidator) Publish(ctx context.Context, msg Invalidation) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		i.logger.Error("Failed to publish invalidation",
			zap.String("channel", i.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe blocks, invoking fn for every invalidation, until ctx is done or Close is called
func (i *RedisInvalidator) Subscribe(ctx context.Context, fn func(Invalidation)) error {
	i.mu.Lock()
	if i.isRunning {
		i.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	i.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	i.cancelFn = cancel
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.isRunning = false
		i.mu.Unlock()
		i.markDone()
	}()

	pubsub := i.client.Subscribe(subCtx, i.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	i.logger.Info("Subscribed to session invalidation channel", zap.String("channel", i.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				i.logger.Warn("Session invalidation channel closed")
				return nil
			}
			var inv Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				i.logger.Error("Failed to unmarshal invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			fn(inv)
		}
	}
}

func (i *RedisInvalidator) markDone() {
	i.doneOnce.Do(func() { close(i.doneCh) })
}

// Close stops a running subscription and waits for it to exit
func (i *RedisInvalidator) Close() error {
	i.mu.Lock()
	cancel := i.cancelFn
	running := i.isRunning
	i.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if !running {
		return nil
	}
	select {
	case <-i.doneCh:
	case <-time.After(defaultCloseTimeout):
		i.logger.Warn("Timed out waiting for invalidation subscription to stop")
	}
	return nil
}
