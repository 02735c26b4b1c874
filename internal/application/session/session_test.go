package session

import (
	"context"
	"testing"
	"time"

	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/smartedu/dashboard/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, now time.Time, opts ...ManagerOption) (*Manager, *cache.InMemoryStateStore) {
	t.Helper()
	store := cache.NewInMemoryStateStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	opts = append(opts, WithClock(func() time.Time { return now }))
	return NewManager(store, 12*time.Hour, opts...), store
}

func TestManager_LoginWithJWT(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m, _ := newManager(t, now)
	ctx := context.Background()

	token, err := auth.NewSigner("secret", "admissions", time.Hour).Issue("u-1", "cust-7", "jo@example.com", now)
	require.NoError(t, err)

	s, err := m.Login(ctx, LoginInput{Token: "Bearer " + token})
	require.NoError(t, err)
	assert.Equal(t, token, s.Token)
	assert.Equal(t, "cust-7", s.CustomerID)
	assert.Equal(t, "u-1", s.UserID)
	assert.WithinDuration(t, now.Add(time.Hour), s.ExpiresAt, 0, "session never outlives the token")
	assert.Equal(t, "jo@example.com", s.DisplayName())

	loaded, err := m.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Credentials(), loaded.Credentials())
}

func TestManager_LoginOpaqueToken(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	t.Run("requires a customer", func(t *testing.T) {
		m, _ := newManager(t, now)
		_, err := m.Login(ctx, LoginInput{Token: "opaque"})
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "customer_id", de.Field)
	})

	t.Run("falls back to configured customer", func(t *testing.T) {
		m, _ := newManager(t, now, WithDefaults("cust-1", "user-1"))
		s, err := m.Login(ctx, LoginInput{Token: "opaque"})
		require.NoError(t, err)
		assert.Equal(t, "cust-1", s.CustomerID)
		assert.Equal(t, "user-1", s.UserID)
		assert.Equal(t, now.Add(12*time.Hour), s.ExpiresAt)
	})

	t.Run("form customer wins", func(t *testing.T) {
		m, _ := newManager(t, now, WithDefaults("cust-1", ""))
		s, err := m.Login(ctx, LoginInput{Token: "opaque", CustomerID: " cust-9 "})
		require.NoError(t, err)
		assert.Equal(t, "cust-9", s.CustomerID)
	})

	t.Run("empty token", func(t *testing.T) {
		m, _ := newManager(t, now)
		_, err := m.Login(ctx, LoginInput{Token: "  "})
		require.Error(t, err)
	})
}

func TestManager_LoginExpiredToken(t *testing.T) {
	now := time.Now()
	m, _ := newManager(t, now)

	token, err := auth.NewSigner("secret", "admissions", time.Minute).Issue("u", "c", "", now.Add(-time.Hour))
	require.NoError(t, err)

	_, err = m.Login(context.Background(), LoginInput{Token: token})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestManager_LoadExpiredAndDestroy(t *testing.T) {
	now := time.Now()
	m, store := newManager(t, now, WithDefaults("cust", ""))
	ctx := context.Background()

	s, err := m.Login(ctx, LoginInput{Token: "opaque"})
	require.NoError(t, err)

	later := NewManager(store, 12*time.Hour, WithClock(func() time.Time { return now.Add(13 * time.Hour) }))
	_, err = later.Load(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	s2, err := m.Login(ctx, LoginInput{Token: "opaque"})
	require.NoError(t, err)
	require.NoError(t, m.Destroy(ctx, s2.ID))
	_, err = m.Load(ctx, s2.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Load(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UnreadableSessionIsDiscarded(t *testing.T) {
	m, store := newManager(t, time.Now())
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, key("bad"), []byte("{"), time.Hour))

	_, err := m.Load(ctx, "bad")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, key("bad"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
