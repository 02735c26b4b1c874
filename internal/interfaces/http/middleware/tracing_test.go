package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs a recording tracer provider for the test
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})

	return sr
}

func findSpan(sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test"}))
	router.GET("/parents", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_NamesSpansByRoute(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(RequestID(), Tracing(), SpanAttributes())
	router.GET("/parents/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/parents/42", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	span := findSpan(sr, "GET /parents/:id")
	require.NotNil(t, span)
	v, ok := attr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-123", v.AsString())
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracing_SkipsProbesAndAssets(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing())
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/static/*path", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/healthz", "/static/app.js"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, sr.Ended())
}

func TestSpanAttributes_Session(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(), func(c *gin.Context) {
		c.Set(SessionKey, &session.Session{ID: "sess-1", CustomerID: "7"})
		c.Next()
	}, SpanAttributes())
	router.GET("/parents", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parents", nil))

	span := findSpan(sr, "GET /parents")
	require.NotNil(t, span)
	v, ok := attr(span, "customer_id")
	require.True(t, ok)
	assert.Equal(t, "7", v.AsString())
	v, ok = attr(span, "session_id")
	require.True(t, ok)
	assert.Equal(t, "sess-1", v.AsString())
}

func TestSpanAttributes_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		desc   string
	}{
		{"not found", http.StatusNotFound, "Not Found"},
		{"unauthorized", http.StatusUnauthorized, "Unauthorized"},
		{"bad gateway", http.StatusBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			router := gin.New()
			router.Use(Tracing(), SpanAttributes())
			router.GET("/parents", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/parents", nil))
			assert.Equal(t, tt.status, w.Code)

			span := findSpan(sr, "GET /parents")
			require.NotNil(t, span)
			assert.Equal(t, codes.Error, span.Status().Code)
			if tt.desc != "" {
				assert.Equal(t, tt.desc, span.Status().Description)
			}
		})
	}
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.Equal(t, "admissions-dashboard", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
}
