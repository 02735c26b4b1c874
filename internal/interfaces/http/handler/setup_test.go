package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/session"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/cache"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

// mockAPI mocks the backend calls the tests exercise. Anything else hits
// the nil embedded interface and panics.
type mockAPI struct {
	mock.Mock
	dashboard.ParentsAPI
}

func (m *mockAPI) Search(ctx context.Context, f parent.Filters, page int) (*parent.ListPage, error) {
	args := m.Called(ctx, f, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.ListPage), args.Error(1)
}

func (m *mockAPI) Stats(ctx context.Context) (*parent.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Stats), args.Error(1)
}

func (m *mockAPI) Get(ctx context.Context, id int64) (*parent.Details, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Details), args.Error(1)
}

func (m *mockAPI) Tasks(ctx context.Context, parentID int64) ([]parent.Task, error) {
	args := m.Called(ctx, parentID)
	return args.Get(0).([]parent.Task), args.Error(1)
}

func (m *mockAPI) Emails(ctx context.Context, parentID int64, limit int) ([]parent.EmailSummary, error) {
	args := m.Called(ctx, parentID, limit)
	return args.Get(0).([]parent.EmailSummary), args.Error(1)
}

func (m *mockAPI) Journey(ctx context.Context, parentID int64) ([]parent.JourneyEvent, error) {
	args := m.Called(ctx, parentID)
	return args.Get(0).([]parent.JourneyEvent), args.Error(1)
}

func (m *mockAPI) Update(ctx context.Context, id int64, in parent.Update) (*parent.Parent, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Parent), args.Error(1)
}

func (m *mockAPI) BulkUpdateStatus(ctx context.Context, in parent.BulkStatus) (*apiclient.BulkResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.BulkResult), args.Error(1)
}

func (m *mockAPI) Export(ctx context.Context, ids []int64) ([]byte, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockAPI) Import(ctx context.Context, filename string, r io.Reader) (*parent.ImportResult, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, filename, string(data))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.ImportResult), args.Error(1)
}

func (m *mockAPI) SendEmail(ctx context.Context, parentID int64, in parent.EmailInput) (*parent.EmailSummary, error) {
	args := m.Called(ctx, parentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.EmailSummary), args.Error(1)
}

type testEnv struct {
	t        *testing.T
	engine   *gin.Engine
	api      *mockAPI
	manager  *session.Manager
	sessions middleware.SessionConfig
	cookie   *http.Cookie
}

// newTestEnv wires the page and JSON routes behind a signed-in session
func newTestEnv(t *testing.T, deps ParentsDeps) *testEnv {
	t.Helper()
	store := cache.NewInMemoryStateStore(0)
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store, time.Hour)
	cfg := middleware.SessionConfig{Manager: manager, CookieName: "sid"}
	api := new(mockAPI)

	renderer, err := views.New(func() time.Time { return testNow })
	require.NoError(t, err)
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}

	engine := gin.New()
	engine.HTMLRender = renderer
	engine.Use(middleware.RequestID(), middleware.Sessions(cfg))

	auth := NewAuthHandler(cfg)
	engine.GET("/login", auth.LoginPage)
	engine.POST("/login", auth.Login)
	engine.POST("/logout", auth.Logout)

	newStore := func() *dashboard.Store { return dashboard.NewStore(api) }
	app := engine.Group("", middleware.RequireLogin(), middleware.Dashboard(manager, newStore))
	ph := NewParentsHandler(cfg, deps)
	app.GET("/parents", ph.List)
	app.POST("/parents/search", ph.Search)
	app.POST("/parents/filters", ph.Filters)
	app.POST("/parents/select", ph.Select)
	app.POST("/parents/bulk", ph.Bulk)
	app.GET("/parents/export", ph.Export)
	app.GET("/parents/import", ph.ImportPage)
	app.POST("/parents/import/preview", ph.ImportPreview)
	app.POST("/parents/import", ph.Import)
	app.GET("/parents/compose", ph.Compose)
	app.POST("/parents/emails", ph.SendEmails)
	app.GET("/parents/:id", ph.Show)
	app.POST("/parents/:id", ph.UpdateField)
	app.GET("/archive/*key", ph.ArchiveFile)

	apiH := NewDashboardAPIHandler(cfg, 0)
	v1 := app.Group("/api/v1")
	v1.GET("/dashboard", apiH.GetState)
	v1.PUT("/dashboard/page", apiH.SetPage)
	v1.POST("/dashboard/selection", apiH.Select)
	v1.PATCH("/parents/:id", apiH.UpdateParent)

	return &testEnv{t: t, engine: engine, api: api, manager: manager, sessions: cfg}
}

// login starts a session for customer 7 and remembers its cookie
func (e *testEnv) login() *testEnv {
	e.t.Helper()
	sess, err := e.manager.Login(context.Background(), session.LoginInput{Token: "opaque-token", CustomerID: "7"})
	require.NoError(e.t, err)
	e.cookie = &http.Cookie{Name: "sid", Value: sess.ID}
	return e
}

func (e *testEnv) send(req *http.Request) *httptest.ResponseRecorder {
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.send(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.send(req)
}

func (e *testEnv) sendJSON(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return e.send(req)
}

// page1 answers the first search with two families
func (e *testEnv) page1() {
	e.api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{
		Parents: []parent.Parent{
			{ID: 1, Name: "Amara Okafor", Email: "amara@example.com", Status: parent.StatusLead, Tags: []string{}},
			{ID: 2, Name: "Ben Hughes", Status: parent.StatusWarm, Tags: []string{}},
		},
		Total: 2, Page: 1, PerPage: 20, Pages: 1,
	}, nil)
	e.api.On("Stats", mock.Anything).Return(&parent.Stats{TotalParents: 2, ConversionRate: 12.345, AverageLeadScore: 40}, nil)
}
