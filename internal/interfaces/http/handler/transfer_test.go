package handler

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const importCSV = `Parent Name,Email Address,Status
Jane Doe,jane@example.com,warm
John Roe,not-an-email,lead
`

func (e *testEnv) upload(path, name, content string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.uploadWith(path, name, content, nil)
}

func (e *testEnv) uploadWith(path, name, content string, fields map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", name)
	require.NoError(e.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, path, &body)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

func TestParentsHandler_Export(t *testing.T) {
	t.Run("backend CSV", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()
		env.api.On("Export", mock.Anything, mock.Anything).
			Return([]byte("id,name\n1,Amara Okafor\n"), nil)

		w := env.get("/parents/export")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))
		assert.Equal(t, "backend", w.Header().Get("X-Export-Source"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=")
		assert.Equal(t, "id,name\n1,Amara Okafor\n", w.Body.String())
	})

	t.Run("built locally without an export endpoint", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()
		env.page1()
		env.api.On("Export", mock.Anything, mock.Anything).
			Return(nil, &apiclient.APIError{Status: http.StatusNotFound, Message: "Not Found"})

		w := env.get("/parents/export")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-Export-Rows"))
		assert.Equal(t, "local", w.Header().Get("X-Export-Source"))
		assert.Contains(t, w.Body.String(), "Amara Okafor")
	})

	t.Run("failure returns to the list", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()
		env.api.On("Export", mock.Anything, mock.Anything).
			Return(nil, &apiclient.APIError{Status: http.StatusInternalServerError, Message: "boom"})

		w := env.get("/parents/export")
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/parents", w.Header().Get("Location"))
		require.Len(t, env.state().Flashes, 1)
	})
}

func TestParentsHandler_ArchiveFile(t *testing.T) {
	files := storage.NewMemoryArchiveStore("/archive")
	ctx := context.Background()
	require.NoError(t, files.Put(ctx, "exports/7/2026/03/02/a.csv", []byte("id\n1\n"), "text/csv"))
	require.NoError(t, files.Put(ctx, "exports/8/2026/03/02/b.csv", []byte("id\n2\n"), "text/csv"))

	env := newTestEnv(t, ParentsDeps{ArchiveFiles: files, ArchivePrefix: "exports/"}).login()

	t.Run("own export", func(t *testing.T) {
		w := env.get(fmt.Sprintf("/archive/exports/7/2026/03/02/a.csv?expires=%d", testNow.Unix()+60))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "id\n1\n", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="a.csv"`)
	})

	t.Run("another customer's export", func(t *testing.T) {
		w := env.get("/archive/exports/8/2026/03/02/b.csv")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("path tricks stay in scope", func(t *testing.T) {
		w := env.get("/archive/exports/7/../8/2026/03/02/b.csv")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("expired link", func(t *testing.T) {
		w := env.get(fmt.Sprintf("/archive/exports/7/2026/03/02/a.csv?expires=%d", testNow.Unix()-1))
		assert.Equal(t, http.StatusGone, w.Code)
	})
}

func TestParentsHandler_Import(t *testing.T) {
	t.Run("preview", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()

		w := env.upload("/parents/import/preview", "families.csv", importCSV)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "1 rows ready, 1 with problems")
		assert.Contains(t, body, `class="invalid"`)
		env.api.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("semicolon separated preview", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()

		semi := strings.ReplaceAll(importCSV, ",", ";")
		w := env.uploadWith("/parents/import/preview", "families.csv", semi, map[string]string{"delimiter": "semicolon"})
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "1 rows ready, 1 with problems")
		assert.Contains(t, body, `name="delimiter" value="semicolon"`)
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()

		w := env.postForm("/parents/import/preview", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "choose a CSV file")
	})

	t.Run("sends only the valid rows", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()
		env.page1()
		env.api.On("Import", mock.Anything, "families.csv", mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "Jane Doe") && !strings.Contains(body, "not-an-email")
		})).Return(&parent.ImportResult{Imported: 1}, nil)

		w := env.upload("/parents/import", "families.csv", importCSV)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Imported 1, skipped 1")
		env.api.AssertExpectations(t)
	})

	t.Run("nothing valid", func(t *testing.T) {
		env := newTestEnv(t, ParentsDeps{}).login()

		w := env.upload("/parents/import", "families.csv", "name,email\n,nobody@example.com\n")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "No valid rows to import")
	})
}
