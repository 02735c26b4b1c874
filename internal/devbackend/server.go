package devbackend

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/smartedu/dashboard/internal/infrastructure/csvimport"
	"go.uber.org/zap"
)

// Optional endpoint groups that can be switched off to exercise the
// dashboard's fallbacks
const (
	FeatureExport  = "export"
	FeatureImport  = "import"
	FeatureMerge   = "merge"
	FeatureReport  = "report"
	FeatureTasks   = "tasks"
	FeatureEmails  = "emails"
	FeatureJourney = "journey"
)

// Server serves the admissions API from a Store
type Server struct {
	store    *Store
	signer   *auth.Signer
	logger   *zap.Logger
	disabled map[string]bool
	engine   *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithSigner requires requests to carry a bearer token issued by signer
func WithSigner(signer *auth.Signer) Option {
	return func(s *Server) { s.signer = signer }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithoutFeatures leaves the named endpoint groups unregistered
func WithoutFeatures(names ...string) Option {
	return func(s *Server) {
		for _, n := range names {
			s.disabled[strings.TrimSpace(n)] = true
		}
	}
}

// NewServer builds the router
func NewServer(store *Store, opts ...Option) *Server {
	s := &Server{store: store, logger: zap.NewNop(), disabled: map[string]bool{}}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())
	r.NoRoute(func(c *gin.Context) { detail(c, http.StatusNotFound, "Not Found") })
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "admissions-devbackend"})
	})

	api := r.Group("/api", s.authenticate(), s.requireCustomer())
	api.GET("/parents/search", s.search)
	api.GET("/parents/stats", s.stats)
	api.POST("/parents/", s.create)
	api.POST("/parents/bulk/status", s.bulkStatus)
	api.POST("/parents/bulk/tags", s.bulkTags)
	api.POST("/parents/bulk/delete", s.bulkDelete)
	api.GET("/parents/:id", s.get)
	api.PUT("/parents/:id", s.update)
	api.DELETE("/parents/:id", s.delete)

	api.GET("/parents/:id/children", s.children)
	api.POST("/parents/:id/children", s.addChild)
	api.PATCH("/children/:id", s.updateChild)
	api.DELETE("/children/:id", s.deleteChild)

	api.GET("/parents/:id/notes", s.notes)
	api.POST("/parents/:id/notes", s.addNote)
	api.PATCH("/notes/:id", s.updateNote)
	api.DELETE("/notes/:id", s.deleteNote)

	if !s.disabled[FeatureTasks] {
		api.GET("/parents/:id/tasks", s.tasks)
		api.POST("/parents/:id/tasks", s.addTask)
		api.PATCH("/tasks/:id", s.updateTask)
		api.DELETE("/tasks/:id", s.deleteTask)
	}
	if !s.disabled[FeatureEmails] {
		api.GET("/parents/:id/emails", s.emails)
		api.POST("/parents/:id/emails", s.sendEmail)
		api.GET("/emails/:id", s.email)
	}
	if !s.disabled[FeatureJourney] {
		api.GET("/parents/:id/journey", s.journey)
	}
	if !s.disabled[FeatureExport] {
		api.GET("/parents/export", s.export)
	}
	if !s.disabled[FeatureImport] {
		api.POST("/parents/import", s.importCSV)
	}
	if !s.disabled[FeatureMerge] {
		api.POST("/parents/merge", s.merge)
	}
	if !s.disabled[FeatureReport] {
		api.GET("/parents/report", s.report)
	}

	s.engine = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("devbackend request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetHeader("X-Request-ID")),
		)
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.signer == nil {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		claims, err := s.signer.Verify(token)
		if err != nil {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if cust := claims.Customer(); cust != "" && cust != c.Query("customer_id") {
			detail(c, http.StatusForbidden, "Token is not valid for this customer")
			return
		}
		c.Next()
	}
}

func (s *Server) requireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("customer_id") == "" {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{
				"loc":  []string{"query", "customer_id"},
				"msg":  "Field required",
				"type": "missing",
			}}})
			return
		}
		c.Next()
	}
}

func customer(c *gin.Context) string {
	return c.Query("customer_id")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		detail(c, http.StatusUnprocessableEntity, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func bind[T interface{ Validate() error }](c *gin.Context, out *T) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return false
	}
	if err := (*out).Validate(); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func respond[T any](c *gin.Context, status int, v T, err error) {
	if errors.Is(err, errNotFound) {
		detail(c, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(status, v)
}

func intQuery(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &v, nil
}

func (s *Server) search(c *gin.Context) {
	q := SearchParams{
		Query:         c.Query("query"),
		Status:        c.Query("status"),
		Stage:         c.Query("stage"),
		Source:        c.Query("source"),
		Tags:          c.QueryArray("tags"),
		CreatedAfter:  c.Query("created_after"),
		CreatedBefore: c.Query("created_before"),
		SortBy:        c.DefaultQuery("sort_by", parent.DefaultSortBy),
		SortOrder:     c.DefaultQuery("sort_order", parent.DefaultSortOrder),
	}
	var err error
	if q.MinLeadScore, err = intQuery(c, "min_lead_score"); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if q.MaxLeadScore, err = intQuery(c, "max_lead_score"); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if raw := c.Query("has_children"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			detail(c, http.StatusUnprocessableEntity, "has_children must be a boolean")
			return
		}
		q.HasChildren = &v
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(parent.DefaultPerPage)))
	if q.PerPage > parent.MaxPerPage {
		detail(c, http.StatusUnprocessableEntity, "per_page must be at most 100")
		return
	}
	c.JSON(http.StatusOK, s.store.Search(customer(c), q))
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats(customer(c)))
}

func (s *Server) create(c *gin.Context) {
	var in parent.Create
	if !bind(c, &in) {
		return
	}
	c.JSON(http.StatusCreated, s.store.Create(customer(c), in))
}

func (s *Server) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := s.store.Get(customer(c), id)
	respond(c, http.StatusOK, d, err)
}

func (s *Server) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.Update
	if !bind(c, &in) {
		return
	}
	p, err := s.store.Update(customer(c), id, in)
	respond(c, http.StatusOK, p, err)
}

func (s *Server) delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if s.store.Delete(customer(c), id) == 0 {
		detail(c, http.StatusNotFound, "Parent not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Parent deleted"})
}

func (s *Server) bulkStatus(c *gin.Context) {
	var in parent.BulkStatus
	if !bind(c, &in) {
		return
	}
	n := s.store.BulkStatus(customer(c), in.ParentIDs, in.Status)
	c.JSON(http.StatusOK, gin.H{"updated": n, "message": fmt.Sprintf("Updated %d parents", n)})
}

func (s *Server) bulkTags(c *gin.Context) {
	var in parent.BulkTags
	if !bind(c, &in) {
		return
	}
	n := s.store.BulkTags(customer(c), in.ParentIDs, in.Tags)
	c.JSON(http.StatusOK, gin.H{"updated": n, "message": fmt.Sprintf("Tagged %d parents", n)})
}

func (s *Server) bulkDelete(c *gin.Context) {
	var in parent.BulkDelete
	if !bind(c, &in) {
		return
	}
	n := s.store.Delete(customer(c), in.ParentIDs...)
	c.JSON(http.StatusOK, gin.H{"deleted": n, "message": fmt.Sprintf("Deleted %d parents", n)})
}

func (s *Server) children(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Children(customer(c), id)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) addChild(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.ChildInput
	if !bind(c, &in) {
		return
	}
	out, err := s.store.AddChild(customer(c), id, in)
	respond(c, http.StatusCreated, out, err)
}

func (s *Server) updateChild(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.ChildInput
	if !bind(c, &in) {
		return
	}
	out, err := s.store.UpdateChild(customer(c), id, in)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) deleteChild(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Child deleted"}, s.store.DeleteChild(customer(c), id))
}

func limit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Server) notes(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Notes(customer(c), id, limit(c, 50))
	respond(c, http.StatusOK, out, err)
}

func (s *Server) addNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.NoteInput
	if !bind(c, &in) {
		return
	}
	userID := c.DefaultQuery("user_id", "system")
	out, err := s.store.AddNote(customer(c), id, userID, in)
	respond(c, http.StatusCreated, out, err)
}

func (s *Server) updateNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.NoteInput
	if !bind(c, &in) {
		return
	}
	out, err := s.store.UpdateNote(customer(c), id, in)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) deleteNote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Note deleted"}, s.store.DeleteNote(customer(c), id))
}

func (s *Server) tasks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Tasks(customer(c), id)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) addTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.TaskInput
	if !bind(c, &in) {
		return
	}
	out, err := s.store.AddTask(customer(c), id, in)
	respond(c, http.StatusCreated, out, err)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.TaskUpdate
	if !bind(c, &in) {
		return
	}
	out, err := s.store.UpdateTask(customer(c), id, in)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Task deleted"}, s.store.DeleteTask(customer(c), id))
}

func (s *Server) emails(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Emails(customer(c), id, limit(c, 50))
	respond(c, http.StatusOK, out, err)
}

func (s *Server) email(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Email(customer(c), id)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) sendEmail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in parent.EmailInput
	if !bind(c, &in) {
		return
	}
	out, err := s.store.SendEmail(customer(c), id, in)
	respond(c, http.StatusCreated, out, err)
}

func (s *Server) journey(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := s.store.Journey(customer(c), id)
	respond(c, http.StatusOK, out, err)
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Server) export(c *gin.Context) {
	ids, err := parseIDs(c.Query("parent_ids"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	var buf bytes.Buffer
	if _, err := export.WriteCSV(&buf, s.store.All(customer(c), ids)); err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="parents.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) importCSV(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()

	pv, err := csvimport.BuildPreview(io.LimitReader(f, 10<<20), csvimport.DefaultOptions())
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	res := parent.ImportResult{}
	for _, row := range pv.Rows {
		if !row.OK() {
			res.Skipped++
			res.Errors = append(res.Errors, parent.ImportError{Row: row.Line, Message: row.Errors[0].Message})
			continue
		}
		s.store.Create(customer(c), row.Parent)
		res.Imported++
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) merge(c *gin.Context) {
	var in parent.Merge
	if !bind(c, &in) {
		return
	}
	out, err := s.store.Merge(customer(c), in)
	respond(c, http.StatusOK, out, err)
}

func (s *Server) report(c *gin.Context) {
	st := s.store.Stats(customer(c))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"metric", "key", "value"})
	_ = w.Write([]string{"total", "", strconv.Itoa(st.TotalParents)})
	for _, group := range []struct {
		name   string
		counts map[string]int
	}{{"status", st.ByStatus}, {"stage", st.ByStage}, {"source", st.BySource}} {
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = w.Write([]string{group.name, k, strconv.Itoa(group.counts[k])})
		}
	}
	w.Flush()
	c.Header("Content-Disposition", `attachment; filename="parents-report.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
