package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/archive"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/savedview"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

// Reporter renders the backend's parents report for a search
type Reporter interface {
	Report(ctx context.Context, f parent.Filters) ([]byte, string, error)
}

// ArchiveFiles serves archived exports kept in process memory
type ArchiveFiles interface {
	Get(key string) ([]byte, string, bool)
}

// ParentsDeps are the collaborators of the parents pages
type ParentsDeps struct {
	Views          *savedview.Service
	Archive        *archive.Service
	ArchiveFiles   ArchiveFiles
	ArchivePrefix  string
	Reports        Reporter
	Now            func() time.Time
	DuplicateRatio float64
	ImportRows     int
}

// ParentsHandler serves the parents list, detail and transfer pages
type ParentsHandler struct {
	BaseHandler
	deps ParentsDeps
}

// NewParentsHandler creates a new parents handler
func NewParentsHandler(sessions middleware.SessionConfig, deps ParentsDeps) *ParentsHandler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DuplicateRatio <= 0 {
		deps.DuplicateRatio = 0.15
	}
	return &ParentsHandler{BaseHandler: BaseHandler{Sessions: sessions}, deps: deps}
}

// done finishes a form post: expired tokens go to sign-in, everything
// else goes back to target where the queued toast is shown
func (h *ParentsHandler) done(c *gin.Context, err error, target string) {
	if h.Expired(c, err) {
		return
	}
	h.Redirect(c, target)
}

// List shows the current page of parents with the counters
func (h *ParentsHandler) List(c *gin.Context) {
	st := store(c)
	ctx := c.Request.Context()

	var err error
	if raw := c.Query("page"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			n = 1
		}
		err = st.SetPage(ctx, n)
	} else {
		err = st.FetchParents(ctx)
	}
	if h.Expired(c, err) {
		return
	}
	if err == nil {
		if h.Expired(c, st.FetchStats(ctx)) {
			return
		}
	}

	data := views.ListData{
		State:   st.State(),
		Archive: h.deps.Archive != nil && h.deps.Archive.Enabled(),
	}
	if h.deps.Views != nil {
		if sess := middleware.CurrentSession(c); sess != nil {
			saved, verr := h.deps.Views.List(ctx, sess.CustomerID)
			if verr != nil {
				middleware.GetLogger(c).Warn("list saved views", zap.Error(verr))
			}
			data.SavedViews = saved
		}
	}
	h.Render(c, http.StatusOK, "parents.html", "Parents", "parents", data)
}

// Search sets the free-text query
func (h *ParentsHandler) Search(c *gin.Context) {
	err := store(c).Search(c.Request.Context(), strings.TrimSpace(c.PostForm("query")))
	h.done(c, err, "/parents")
}

// Filters applies the advanced filter panel
func (h *ParentsHandler) Filters(c *gin.Context) {
	st := store(c)
	var form dto.FiltersForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents")
		return
	}
	f, err := form.Apply(st.State().Filters)
	if err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents")
		return
	}
	h.done(c, st.SetFilters(c.Request.Context(), f), "/parents")
}

// ResetFilters clears every filter
func (h *ParentsHandler) ResetFilters(c *gin.Context) {
	h.done(c, store(c).ResetFilters(c.Request.Context()), "/parents")
}

// Preset applies a quick filter
func (h *ParentsHandler) Preset(c *gin.Context) {
	h.done(c, store(c).ApplyPreset(c.Request.Context(), c.PostForm("preset")), "/parents")
}

// Sort sorts by a column, flipping the order on a repeat click
func (h *ParentsHandler) Sort(c *gin.Context) {
	h.done(c, store(c).Sort(c.Request.Context(), c.PostForm("field")), "/parents")
}

// Select toggles one row
func (h *ParentsHandler) Select(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		h.Toast(c, dashboard.FlashError, "Invalid parent id")
	} else if _, err := store(c).Toggle(id); err != nil {
		h.FormError(c, err)
	}
	h.Redirect(c, "/parents")
}

// SelectAll selects the page, or clears it when already fully selected
func (h *ParentsHandler) SelectAll(c *gin.Context) {
	store(c).SelectAll()
	h.Redirect(c, "/parents")
}

// ClearSelection deselects every row
func (h *ParentsHandler) ClearSelection(c *gin.Context) {
	store(c).ClearSelection()
	h.Redirect(c, "/parents")
}

// Bulk runs a selection bar action
func (h *ParentsHandler) Bulk(c *gin.Context) {
	st := store(c)
	ctx := c.Request.Context()

	var form dto.BulkForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents")
		return
	}
	ids := form.IDs
	if len(ids) == 0 {
		ids = st.SelectedIDs()
	}
	if len(ids) == 0 {
		h.Toast(c, dashboard.FlashInfo, "Select at least one parent first")
		h.Redirect(c, "/parents")
		return
	}

	switch form.Action {
	case dto.BulkActionStatus:
		h.done(c, st.BulkUpdateStatus(ctx, ids, parent.Status(form.Status)), "/parents")
	case dto.BulkActionTag:
		h.done(c, st.BulkAddTag(ctx, ids, strings.TrimSpace(form.Tag)), "/parents")
	case dto.BulkActionDelete:
		h.done(c, st.BulkDelete(ctx, ids), "/parents")
	case dto.BulkActionExport:
		h.download(c, ids)
	case dto.BulkActionEmail:
		h.Redirect(c, "/parents/compose?ids="+url.QueryEscape(joinIDs(ids)))
	}
}

// NewParent shows the new-family form
func (h *ParentsHandler) NewParent(c *gin.Context) {
	h.Render(c, http.StatusOK, "parent_new.html", "New parent", "parents", views.NewParentData{Form: dto.ParentForm{}})
}

// Create saves a new family and opens it
func (h *ParentsHandler) Create(c *gin.Context) {
	var form dto.ParentForm
	if err := c.ShouldBind(&form); err != nil {
		h.renderNewParent(c, http.StatusBadRequest, form, err)
		return
	}
	in := form.ToCreate()
	if err := in.Validate(); err != nil {
		h.renderNewParent(c, http.StatusBadRequest, form, err)
		return
	}

	created, err := store(c).CreateParent(c.Request.Context(), in)
	if err != nil {
		if h.Expired(c, err) {
			return
		}
		h.renderNewParent(c, http.StatusUnprocessableEntity, form, err)
		return
	}
	h.Redirect(c, fmt.Sprintf("/parents/%d", created.ID))
}

func (h *ParentsHandler) renderNewParent(c *gin.Context, status int, form dto.ParentForm, err error) {
	errs := map[string]string{}
	for _, d := range middleware.ValidationDetails(err) {
		errs[d.Field] = d.Message
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Field != "" {
		errs[de.Field] = de.Message
	}
	if len(errs) == 0 {
		h.FormError(c, err)
	}
	h.Render(c, status, "parent_new.html", "New parent", "parents", views.NewParentData{Form: form, Errors: errs})
}

// Report downloads the backend report for the current search
func (h *ParentsHandler) Report(c *gin.Context) {
	if h.deps.Reports == nil {
		h.Toast(c, dashboard.FlashInfo, "Reports are not available")
		h.Redirect(c, "/parents")
		return
	}
	f := store(c).State().Filters
	data, contentType, err := h.deps.Reports.Report(c.Request.Context(), f)
	if err != nil {
		if h.Expired(c, err) {
			return
		}
		if apiclient.IsUnsupported(err) {
			h.Toast(c, dashboard.FlashInfo, "The admissions platform does not offer reports")
		} else {
			middleware.GetLogger(c).Warn("report failed", zap.Error(err))
			h.Toast(c, dashboard.FlashError, "Failed to build report: "+apiclient.Message(err))
		}
		h.Redirect(c, "/parents")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := "parents-report-" + h.deps.Now().Format("2006-01-02") + reportExtension(contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, data)
}

func reportExtension(contentType string) string {
	switch {
	case strings.Contains(contentType, "pdf"):
		return ".pdf"
	case strings.Contains(contentType, "csv"):
		return ".csv"
	case strings.Contains(contentType, "json"):
		return ".json"
	case strings.Contains(contentType, "html"):
		return ".html"
	default:
		return ""
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
