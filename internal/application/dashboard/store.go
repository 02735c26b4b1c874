package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	defaultExportPageSize = 100
	defaultScanLimit      = 1000
)

// Store is one browser session's dashboard. Actions are serialised per
// store; State may be read at any time and reports Loading while a fetch
// is in flight.
type Store struct {
	opMu sync.Mutex // serialises actions
	mu   sync.Mutex // guards state

	api            ParentsAPI
	state          State
	logger         *zap.Logger
	now            func() time.Time
	exportPageSize int
	scanLimit      int
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the fallback logger used when ctx carries none
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the clock used for date presets
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithExportPageSize sets the page size used when building exports locally
func WithExportPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.exportPageSize = n
		}
	}
}

// WithScanLimit caps how many parents a local export or duplicate scan reads
func WithScanLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanLimit = n
		}
	}
}

// NewStore creates a store in its initial state
func NewStore(api ParentsAPI, opts ...Option) *Store {
	s := &Store{
		api:            api,
		state:          InitialState(),
		logger:         zap.NewNop(),
		now:            time.Now,
		exportPageSize: defaultExportPageSize,
		scanLimit:      defaultScanLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// DrainFlashes returns pending toasts and clears them
func (s *Store) DrainFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state.Flashes
	s.state.Flashes = nil
	return out
}

// Toast queues a message for the next render
func (s *Store) Toast(level, message string) {
	s.update(func(st *State) {
		st.Flashes = append(st.Flashes, Flash{Level: level, Message: message})
	})
}

func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

func (s *Store) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// revert restores prev but keeps toasts queued since it was taken
func (s *Store) revert(prev State) {
	s.update(func(st *State) {
		flashes := st.Flashes
		*st = prev
		st.Flashes = flashes
	})
}

func (s *Store) log(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l != nil && l.Core().Enabled(zap.ErrorLevel) {
		return logger.L(ctx)
	}
	return s.logger
}

// fail logs err, queues exactly one error toast and returns err
func (s *Store) fail(ctx context.Context, label string, err error, fields ...zap.Field) error {
	msg := label
	if m := apiclient.Message(err); m != "" {
		msg = label + ": " + m
	}
	s.log(ctx).Warn(label, append(fields, zap.Error(err))...)
	s.Toast(FlashError, msg)
	return err
}
