package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
)

// DashboardAPIHandler exposes the session's dashboard as JSON
type DashboardAPIHandler struct {
	BaseHandler
	duplicateRatio float64
}

// NewDashboardAPIHandler creates a new dashboard API handler
func NewDashboardAPIHandler(sessions middleware.SessionConfig, duplicateRatio float64) *DashboardAPIHandler {
	if duplicateRatio <= 0 {
		duplicateRatio = 0.15
	}
	return &DashboardAPIHandler{BaseHandler: BaseHandler{Sessions: sessions}, duplicateRatio: duplicateRatio}
}

// fail answers a store error. The store has already queued a toast for
// the pages; a JSON caller gets the error instead, so the toast is dropped.
func (h *DashboardAPIHandler) fail(c *gin.Context, err error) {
	store(c).DrainFlashes()
	if h.Expired(c, err) {
		return
	}
	h.HandleError(c, err)
}

func (h *DashboardAPIHandler) state(c *gin.Context) {
	st := store(c)
	h.Success(c, toStateResponse(st.State(), st.DrainFlashes()))
}

// GetState godoc
// @Summary      Current dashboard state
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} APIResponse[StateResponse]
// @Router       /dashboard [get]
func (h *DashboardAPIHandler) GetState(c *gin.Context) {
	h.state(c)
}

// Refresh godoc
// @Summary      Reload the current page and counters
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} APIResponse[StateResponse]
// @Failure      502 {object} APIResponse[any]
// @Router       /dashboard/refresh [post]
func (h *DashboardAPIHandler) Refresh(c *gin.Context) {
	if err := store(c).Refresh(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// PatchFilters godoc
// @Summary      Merge filter fields into the current search
// @Description  Fields present in the body replace the current ones; the list returns to page 1
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Success      200 {object} APIResponse[StateResponse]
// @Failure      400 {object} APIResponse[any]
// @Router       /dashboard/filters [patch]
func (h *DashboardAPIHandler) PatchFilters(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid request body")
		return
	}
	if err := store(c).PatchFilters(c.Request.Context(), body); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// ResetFilters godoc
// @Summary      Restore the default search
// @Tags         dashboard
// @Produce      json
// @Success      200 {object} APIResponse[StateResponse]
// @Router       /dashboard/filters [delete]
func (h *DashboardAPIHandler) ResetFilters(c *gin.Context) {
	if err := store(c).ResetFilters(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// PresetRequest names a quick filter
type PresetRequest struct {
	Preset string `json:"preset" binding:"required"`
}

// ApplyPreset godoc
// @Summary      Apply a quick filter
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body PresetRequest true "Preset"
// @Success      200 {object} APIResponse[StateResponse]
// @Router       /dashboard/preset [post]
func (h *DashboardAPIHandler) ApplyPreset(c *gin.Context) {
	var req PresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := store(c).ApplyPreset(c.Request.Context(), req.Preset); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// SortRequest names the column to sort by
type SortRequest struct {
	Field string `json:"field" binding:"required,sort_field"`
}

// Sort godoc
// @Summary      Sort by a column, flipping the order on a repeat
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body SortRequest true "Sort field"
// @Success      200 {object} APIResponse[StateResponse]
// @Router       /dashboard/sort [post]
func (h *DashboardAPIHandler) Sort(c *gin.Context) {
	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := store(c).Sort(c.Request.Context(), req.Field); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// SetPage godoc
// @Summary      Move to another page
// @Description  Pages beyond the last are clamped; the selection is cleared
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body dto.PageRequest true "Page"
// @Success      200 {object} APIResponse[StateResponse]
// @Router       /dashboard/page [put]
func (h *DashboardAPIHandler) SetPage(c *gin.Context) {
	var req dto.PageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if err := store(c).SetPage(c.Request.Context(), req.Page); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// Select godoc
// @Summary      Change the row selection
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body dto.SelectionRequest true "Selection change"
// @Success      200 {object} APIResponse[SelectionResponse]
// @Failure      404 {object} APIResponse[any]
// @Router       /dashboard/selection [post]
func (h *DashboardAPIHandler) Select(c *gin.Context) {
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	st := store(c)
	switch req.Action {
	case dto.SelectToggle:
		if _, err := st.Toggle(req.ID); err != nil {
			h.HandleError(c, err)
			return
		}
	case dto.SelectAll:
		st.SelectAll()
	case dto.SelectClear:
		st.ClearSelection()
	case dto.SelectSet:
		st.SetSelection(req.IDs)
	}
	state := st.State()
	h.Success(c, SelectionResponse{Selected: state.Selected, AllSelected: state.AllSelected()})
}

// Bulk godoc
// @Summary      Apply an action to many parents
// @Description  Without ids the current selection is used. Export answers with the CSV.
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body dto.BulkForm true "Bulk action"
// @Success      200 {object} APIResponse[StateResponse]
// @Failure      400 {object} APIResponse[any]
// @Router       /dashboard/bulk [post]
func (h *DashboardAPIHandler) Bulk(c *gin.Context) {
	var req dto.BulkForm
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	st := store(c)
	ctx := c.Request.Context()
	ids := req.IDs
	if len(ids) == 0 {
		ids = st.SelectedIDs()
	}
	if len(ids) == 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Select at least one parent first")
		return
	}

	var err error
	switch req.Action {
	case dto.BulkActionStatus:
		err = st.BulkUpdateStatus(ctx, ids, parent.Status(req.Status))
	case dto.BulkActionTag:
		err = st.BulkAddTag(ctx, ids, req.Tag)
	case dto.BulkActionDelete:
		err = st.BulkDelete(ctx, ids)
	case dto.BulkActionExport:
		res, xerr := st.Export(ctx, ids)
		if xerr != nil {
			h.fail(c, xerr)
			return
		}
		st.DrainFlashes()
		c.Header("Content-Disposition", "attachment; filename=\""+res.FileName+"\"")
		c.Data(http.StatusOK, "text/csv; charset=utf-8", res.Data)
		return
	case dto.BulkActionEmail:
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Use POST /api/v1/emails to email parents")
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// BulkEmailRequest emails many parents
type BulkEmailRequest struct {
	IDs     []int64 `json:"ids" binding:"omitempty,dive,gt=0"`
	Subject string  `json:"subject" binding:"required,max=300"`
	Body    string  `json:"body" binding:"required"`
}

// SendEmails godoc
// @Summary      Email the given parents, or the selection
// @Tags         dashboard
// @Accept       json
// @Produce      json
// @Param        request body BulkEmailRequest true "Email"
// @Success      200 {object} APIResponse[BulkEmailResponse]
// @Router       /emails [post]
func (h *DashboardAPIHandler) SendEmails(c *gin.Context) {
	var req BulkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	st := store(c)
	ids := req.IDs
	if len(ids) == 0 {
		ids = st.SelectedIDs()
	}
	sent, err := st.BulkEmail(c.Request.Context(), ids, parent.EmailInput{Subject: req.Subject, Body: req.Body})
	if err != nil && sent == 0 {
		h.fail(c, err)
		return
	}
	st.DrainFlashes()
	h.Success(c, BulkEmailResponse{Sent: sent, Requested: len(ids)})
}

// GetParent godoc
// @Summary      Open a parent with its tabs
// @Tags         parents
// @Produce      json
// @Param        id path int true "Parent ID"
// @Success      200 {object} APIResponse[dashboard.Detail]
// @Failure      404 {object} APIResponse[any]
// @Router       /parents/{id} [get]
func (h *DashboardAPIHandler) GetParent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid parent ID")
		return
	}
	d, err := store(c).LoadDetail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Success(c, d)
}

// UpdateParent godoc
// @Summary      Change fields of a parent
// @Description  The list row and open detail change immediately and revert when the backend rejects the update
// @Tags         parents
// @Accept       json
// @Produce      json
// @Param        id path int true "Parent ID"
// @Param        request body parent.Update true "Fields to change"
// @Success      200 {object} APIResponse[parent.Parent]
// @Router       /parents/{id} [patch]
func (h *DashboardAPIHandler) UpdateParent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid parent ID")
		return
	}
	var upd parent.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.BindError(c, err)
		return
	}
	updated, err := store(c).UpdateParent(c.Request.Context(), id, upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	store(c).DrainFlashes()
	h.Success(c, updated)
}

// DeleteParent godoc
// @Summary      Delete a parent
// @Tags         parents
// @Param        id path int true "Parent ID"
// @Success      204
// @Router       /parents/{id} [delete]
func (h *DashboardAPIHandler) DeleteParent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid parent ID")
		return
	}
	if err := store(c).DeleteParent(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	store(c).DrainFlashes()
	h.NoContent(c)
}

// Stats godoc
// @Summary      Counters for the admissions funnel
// @Tags         parents
// @Produce      json
// @Success      200 {object} APIResponse[StatsResponse]
// @Router       /stats [get]
func (h *DashboardAPIHandler) Stats(c *gin.Context) {
	st := store(c)
	if err := st.FetchStats(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.Success(c, toStatsResponse(st.State().Stats))
}

// Duplicates godoc
// @Summary      Likely duplicates in the current search
// @Tags         parents
// @Produce      json
// @Success      200 {object} APIResponse[DuplicatesResponse]
// @Router       /duplicates [get]
func (h *DashboardAPIHandler) Duplicates(c *gin.Context) {
	groups, err := store(c).Duplicates(c.Request.Context(), h.duplicateRatio)
	if err != nil {
		h.fail(c, err)
		return
	}
	if groups == nil {
		groups = []parent.DuplicateGroup{}
	}
	h.Success(c, DuplicatesResponse{Groups: groups, Ratio: h.duplicateRatio})
}
