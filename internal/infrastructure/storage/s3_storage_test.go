package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	bucket   bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})

	switch {
	case r.Method == http.MethodHead && r.URL.Path == "/exports":
		if !f.bucket {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	case r.Method == http.MethodPut && r.URL.Path == "/exports":
		f.bucket = true
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeS3) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestS3(t *testing.T, endpoint string) *S3ArchiveStore {
	t.Helper()
	store, err := NewS3ArchiveStore(context.Background(), config.ExportConfig{
		Bucket:    "exports",
		Region:    "eu-west-2",
		Endpoint:  endpoint,
		AccessKey: "test-key",
		SecretKey: "test-secret",
		PathStyle: true,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return store
}

func TestNewS3ArchiveStore_Validation(t *testing.T) {
	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewS3ArchiveStore(context.Background(), config.ExportConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("half configured credentials", func(t *testing.T) {
		_, err := NewS3ArchiveStore(context.Background(), config.ExportConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("valid config", func(t *testing.T) {
		store := newTestS3(t, "localhost:9000")
		assert.Equal(t, "exports", store.Bucket())
		assert.Equal(t, 15*time.Minute, store.presignExpiration)
	})

	t.Run("presign expiration option", func(t *testing.T) {
		store, err := NewS3ArchiveStore(context.Background(), config.ExportConfig{
			Bucket: "b", AccessKey: "k", SecretKey: "s",
		}, WithPresignExpiration(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, time.Hour, store.presignExpiration)
	})
}

func TestS3ArchiveStore_Put(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := newTestS3(t, srv.URL)
	err := store.Put(context.Background(), "exports/7/2024/03/01/abc.csv", []byte("id,name\n1,Jane\n"), "text/csv")
	require.NoError(t, err)

	reqs := fake.recorded()
	require.NotEmpty(t, reqs)
	last := reqs[len(reqs)-1]
	assert.Equal(t, http.MethodPut, last.method)
	assert.Equal(t, "/exports/exports/7/2024/03/01/abc.csv", last.path)
	assert.Contains(t, last.body, "1,Jane")

	assert.ErrorIs(t, store.Put(context.Background(), "", nil, "text/csv"), ErrKeyRequired)
}

func TestS3ArchiveStore_EnsureBucket(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := newTestS3(t, srv.URL)
	require.NoError(t, store.EnsureBucket(context.Background()))

	var created bool
	for _, r := range fake.recorded() {
		if r.method == http.MethodPut && r.path == "/exports" {
			created = true
		}
	}
	assert.True(t, created, "bucket should be created after a 404 head")

	n := len(fake.recorded())
	require.NoError(t, store.EnsureBucket(context.Background()))
	assert.Len(t, fake.recorded(), n+1, "existing bucket needs only a head request")
}

func TestS3ArchiveStore_DownloadURL(t *testing.T) {
	store := newTestS3(t, "http://localhost:9000")

	link, expiresAt, err := store.DownloadURL(context.Background(), "exports/7/a.csv", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:9000/exports/exports/7/a.csv?"), link)
	assert.Contains(t, link, "X-Amz-Expires=300")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	link, _, err = store.DownloadURL(context.Background(), "k.csv", 0)
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Expires=900")

	_, _, err = store.DownloadURL(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrKeyRequired)
}
