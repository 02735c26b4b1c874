package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.APIConfig{
		BaseURL:    srv.URL + "/api",
		CustomerID: "cust-1",
		UserID:     "user-1",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	_, err := New(config.APIConfig{})
	require.Error(t, err)

	c, err := New(config.APIConfig{BaseURL: "http://backend:8000/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000/api/", c.BaseURL())
}

func TestClient_InjectsTenantAndAuth(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(w, http.StatusOK, parent.Stats{TotalParents: 3})
	})

	ctx := WithCredentials(context.Background(), Credentials{Token: "opaque-token", CustomerID: "cust-9"})
	ctx, _ = logger.WithRequestID(ctx, zap.NewNop(), "req-123")

	stats, err := c.Parents().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalParents)

	require.NotNil(t, got)
	assert.Equal(t, "/api/parents/stats", got.URL.Path)
	assert.Equal(t, "cust-9", got.URL.Query().Get("customer_id"))
	assert.Equal(t, "Bearer opaque-token", got.Header.Get("Authorization"))
	assert.Equal(t, "req-123", got.Header.Get("X-Request-ID"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
}

func TestClient_FallsBackToDefaultCustomer(t *testing.T) {
	var customer string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		customer = r.URL.Query().Get("customer_id")
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, parent.Stats{})
	})

	_, err := c.Parents().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cust-1", customer)
}

func TestClient_DefaultCredentials(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(w, http.StatusOK, parent.Stats{})
	}, WithDefaultCredentials(Credentials{Token: "cli-token", CustomerID: "cust-5"}))

	_, err := c.Parents().Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cust-5", got.URL.Query().Get("customer_id"))
	assert.Equal(t, "Bearer cli-token", got.Header.Get("Authorization"))

	ctx := WithCredentials(context.Background(), Credentials{CustomerID: "cust-9"})
	_, err = c.Parents().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cust-9", got.URL.Query().Get("customer_id"))
	assert.Equal(t, "Bearer cli-token", got.Header.Get("Authorization"))
}

func TestClient_NoCustomer(t *testing.T) {
	c, err := New(config.APIConfig{BaseURL: "http://127.0.0.1:1/api"})
	require.NoError(t, err)

	_, err = c.Parents().Stats(context.Background())
	assert.ErrorIs(t, err, ErrNoCustomer)
}

func TestClient_ExpiredTokenFailsFast(t *testing.T) {
	var calls, hooked atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, parent.Stats{})
	}, WithOnUnauthorized(func(context.Context) { hooked.Add(1) }))

	signer := auth.NewSigner("secret", "test", time.Minute)
	token, err := signer.Issue("u1", "cust-1", "u1@example.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	ctx := WithCredentials(context.Background(), Credentials{Token: token})
	_, err = c.Parents().Stats(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int32(1), hooked.Load())
}

func TestClient_UnauthorizedResponse(t *testing.T) {
	var hooked atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Token revoked"})
	}, WithOnUnauthorized(func(context.Context) { hooked.Add(1) }))

	_, err := c.Parents().Get(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Token revoked", Message(err))
	assert.Equal(t, int32(1), hooked.Load())
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, parent.ListPage{Total: 1, Page: 1, Pages: 1, Parents: []parent.Parent{{ID: 1, Name: "Ada"}}})
	})

	page, err := c.Parents().Search(context.Background(), parent.DefaultFilters(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, page.Parents, 1)
	assert.Equal(t, "Ada", page.Parents[0].Name)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream down"})
	})

	_, err := c.Parents().Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "upstream down", Message(err))
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "boom"})
	})

	_, err := c.Parents().BulkDelete(context.Background(), parent.BulkDelete{ParentIDs: []int64{1}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Parent not found"})
	})

	_, err := c.Parents().Get(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsUnsupported(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, nil)
	}, WithRetryConfig(RetryConfig{MaxRetries: 5, RetryDelay: time.Second, Multiplier: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Parents().Stats(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, parent.Stats{})
	}, WithMetrics(m))

	_, err := c.Parents().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("parents.stats", http.MethodGet, "200")))
}

func TestClient_RateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, parent.Stats{})
	}, WithRateLimit(1, 1))

	ctx := context.Background()
	_, err := c.Parents().Stats(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Parents().Stats(short)
	require.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	var path, customer string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		customer = r.URL.Query().Get("customer_id")
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "/health", path)
	assert.Empty(t, customer)
}

func TestClient_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "not json")
	})

	_, err := c.Parents().Stats(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "decoding response")
}

func TestClient_Backoff(t *testing.T) {
	c := &Client{retry: RetryConfig{RetryDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}}

	d1 := c.backoff(1)
	assert.GreaterOrEqual(t, d1, 75*time.Millisecond)
	assert.LessOrEqual(t, d1, 125*time.Millisecond)

	d5 := c.backoff(5)
	assert.LessOrEqual(t, d5, 375*time.Millisecond)
}
