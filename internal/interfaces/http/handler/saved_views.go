package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/application/savedview"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/domain/view"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// SavedViewsHandler stores and reapplies named searches
type SavedViewsHandler struct {
	BaseHandler
	svc *savedview.Service
}

// NewSavedViewsHandler creates a new saved views handler
func NewSavedViewsHandler(sessions middleware.SessionConfig, svc *savedview.Service) *SavedViewsHandler {
	return &SavedViewsHandler{BaseHandler: BaseHandler{Sessions: sessions}, svc: svc}
}

// Page lists the customer's views
func (h *SavedViewsHandler) Page(c *gin.Context) {
	views, err := h.svc.List(c.Request.Context(), middleware.CurrentSession(c).CustomerID)
	if err != nil {
		middleware.GetLogger(c).Error("list saved views", zap.Error(err))
		h.Toast(c, dashboard.FlashError, "Failed to load saved views")
		views = []view.SavedView{}
	}
	h.Render(c, http.StatusOK, "views.html", "Saved views", "views", views)
}

// Save stores the current filters under a name
func (h *SavedViewsHandler) Save(c *gin.Context) {
	var form dto.SaveViewForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents")
		return
	}
	sess := middleware.CurrentSession(c)
	v, err := h.svc.Save(c.Request.Context(), sess.CustomerID, sess.UserID, form.Name, store(c).State().Filters)
	if err != nil {
		h.viewError(c, "Failed to save view", err)
		h.Redirect(c, "/parents")
		return
	}
	h.Toast(c, dashboard.FlashSuccess, fmt.Sprintf("Saved view %q", v.Name))
	h.Redirect(c, "/parents")
}

// Apply replaces the filters with the view's
func (h *SavedViewsHandler) Apply(c *gin.Context) {
	v, err := h.svc.Apply(c.Request.Context(), middleware.CurrentSession(c).CustomerID, c.Param("slug"))
	if err != nil {
		h.viewError(c, "Failed to open view", err)
		h.Redirect(c, "/views")
		return
	}
	if err := store(c).SetFilters(c.Request.Context(), v.Filters); err != nil {
		if h.Expired(c, err) {
			return
		}
	}
	h.Redirect(c, "/parents")
}

// Delete removes a view
func (h *SavedViewsHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentSession(c).CustomerID, c.Param("slug")); err != nil {
		h.viewError(c, "Failed to delete view", err)
	} else {
		h.Toast(c, dashboard.FlashSuccess, "View deleted")
	}
	h.Redirect(c, "/views")
}

func (h *SavedViewsHandler) viewError(c *gin.Context, label string, err error) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		middleware.GetLogger(c).Error(label, zap.Error(err))
	}
	h.Toast(c, dashboard.FlashError, label+": "+FormMessage(err))
}

// List godoc
// @Summary      List saved views
// @Tags         views
// @Produce      json
// @Success      200 {object} APIResponse[[]view.SavedView]
// @Router       /views [get]
func (h *SavedViewsHandler) List(c *gin.Context) {
	views, err := h.svc.List(c.Request.Context(), middleware.CurrentSession(c).CustomerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, views)
}

// Create godoc
// @Summary      Save the current filters as a view
// @Tags         views
// @Accept       json
// @Produce      json
// @Param        request body dto.SaveViewForm true "View name"
// @Success      201 {object} APIResponse[view.SavedView]
// @Failure      409 {object} APIResponse[any]
// @Router       /views [post]
func (h *SavedViewsHandler) Create(c *gin.Context) {
	var req dto.SaveViewForm
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	sess := middleware.CurrentSession(c)
	v, err := h.svc.Save(c.Request.Context(), sess.CustomerID, sess.UserID, req.Name, store(c).State().Filters)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, v)
}

// ApplyJSON godoc
// @Summary      Apply a saved view to the dashboard
// @Tags         views
// @Produce      json
// @Param        slug path string true "View slug"
// @Success      200 {object} APIResponse[StateResponse]
// @Failure      404 {object} APIResponse[any]
// @Router       /views/{slug}/apply [post]
func (h *SavedViewsHandler) ApplyJSON(c *gin.Context) {
	v, err := h.svc.Apply(c.Request.Context(), middleware.CurrentSession(c).CustomerID, c.Param("slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	st := store(c)
	if err := st.SetFilters(c.Request.Context(), v.Filters); err != nil {
		st.DrainFlashes()
		if !h.Expired(c, err) {
			h.HandleError(c, err)
		}
		return
	}
	h.Success(c, toStateResponse(st.State(), st.DrainFlashes()))
}

// Remove godoc
// @Summary      Delete a saved view
// @Tags         views
// @Param        slug path string true "View slug"
// @Success      204
// @Router       /views/{slug} [delete]
func (h *SavedViewsHandler) Remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentSession(c).CustomerID, c.Param("slug")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
