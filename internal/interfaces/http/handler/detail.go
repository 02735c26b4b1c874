package handler

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
)

func detailURL(id int64, tab string) string {
	if tab == "" || tab == "overview" {
		return fmt.Sprintf("/parents/%d", id)
	}
	return fmt.Sprintf("/parents/%d?tab=%s", id, tab)
}

// parentID reads :id, answering 404 when it is not a positive integer
func (h *ParentsHandler) parentID(c *gin.Context) (int64, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Parent not found")
	}
	return id, ok
}

// Show opens a parent on one of its tabs
func (h *ParentsHandler) Show(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	tab := c.DefaultQuery("tab", "overview")
	if !slices.Contains(views.DetailTabs, tab) {
		tab = "overview"
	}

	d, err := store(c).LoadDetail(c.Request.Context(), id)
	if err != nil {
		if h.Expired(c, err) {
			return
		}
		if apiclient.IsNotFound(err) {
			h.RenderError(c, http.StatusNotFound, "Parent not found")
			return
		}
		h.Redirect(c, "/parents")
		return
	}
	h.Render(c, http.StatusOK, "parent_detail.html", d.Parent.Name, "parents", views.DetailData{
		Detail: d,
		Tab:    tab,
		Tabs:   views.DetailTabs,
	})
}

// UpdateField saves one edited field
func (h *ParentsHandler) UpdateField(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	var form dto.FieldForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, ""))
		return
	}
	upd, err := parent.FieldUpdate(form.Field, form.Value)
	if err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, ""))
		return
	}
	_, err = store(c).UpdateParent(c.Request.Context(), id, upd)
	h.done(c, err, detailURL(id, ""))
}

// Delete removes a parent and returns to the list
func (h *ParentsHandler) Delete(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	if err := store(c).DeleteParent(c.Request.Context(), id); err != nil {
		h.done(c, err, detailURL(id, ""))
		return
	}
	h.Redirect(c, "/parents")
}

// AddNote records a note on the overview tab
func (h *ParentsHandler) AddNote(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	var form dto.NoteForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, ""))
		return
	}
	_, err := store(c).AddNote(c.Request.Context(), id, parent.NoteInput{Content: form.Content, NoteType: form.NoteType})
	h.done(c, err, detailURL(id, ""))
}

// AddTask creates a follow-up task
func (h *ParentsHandler) AddTask(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	var form dto.TaskForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, "tasks"))
		return
	}
	_, err := store(c).AddTask(c.Request.Context(), id, form.ToInput())
	h.done(c, err, detailURL(id, "tasks"))
}

// UpdateTask marks a task done or reopens it
func (h *ParentsHandler) UpdateTask(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	taskID, ok := paramID(c, "tid")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Task not found")
		return
	}
	var form dto.TaskStateForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, "tasks"))
		return
	}
	completed := form.Completed
	_, err := store(c).UpdateTask(c.Request.Context(), id, taskID, parent.TaskUpdate{Completed: &completed})
	h.done(c, err, detailURL(id, "tasks"))
}

// DeleteTask removes a task
func (h *ParentsHandler) DeleteTask(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	taskID, ok := paramID(c, "tid")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Task not found")
		return
	}
	h.done(c, store(c).DeleteTask(c.Request.Context(), id, taskID), detailURL(id, "tasks"))
}

// AddChild adds a child to the family
func (h *ParentsHandler) AddChild(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	var form dto.ChildForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, ""))
		return
	}
	_, err := store(c).AddChild(c.Request.Context(), id, form.ToInput())
	h.done(c, err, detailURL(id, ""))
}

// UpdateChild edits a child
func (h *ParentsHandler) UpdateChild(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	childID, ok := paramID(c, "cid")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Child not found")
		return
	}
	var form dto.ChildForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, detailURL(id, ""))
		return
	}
	_, err := store(c).UpdateChild(c.Request.Context(), id, childID, form.ToInput())
	h.done(c, err, detailURL(id, ""))
}

// DeleteChild removes a child
func (h *ParentsHandler) DeleteChild(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	childID, ok := paramID(c, "cid")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Child not found")
		return
	}
	h.done(c, store(c).DeleteChild(c.Request.Context(), id, childID), detailURL(id, ""))
}

// ShowEmail opens one email from the communications tab
func (h *ParentsHandler) ShowEmail(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	emailID, ok := paramID(c, "eid")
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Email not found")
		return
	}
	email, err := store(c).Email(c.Request.Context(), emailID)
	if err != nil {
		if h.Expired(c, err) {
			return
		}
		if apiclient.IsNotFound(err) {
			h.RenderError(c, http.StatusNotFound, "Email not found")
			return
		}
		h.Redirect(c, detailURL(id, "communications"))
		return
	}
	h.Render(c, http.StatusOK, "email.html", email.Subject, "parents", views.EmailData{ParentID: id, Email: email})
}

// ComposeOne writes an email to the open parent
func (h *ParentsHandler) ComposeOne(c *gin.Context) {
	id, ok := h.parentID(c)
	if !ok {
		return
	}
	st := store(c)
	d := st.State().Current
	if d == nil || d.Parent.ID != id {
		var err error
		if d, err = st.LoadDetail(c.Request.Context(), id); err != nil {
			h.done(c, err, "/parents")
			return
		}
	}
	h.renderCompose(c, []parent.Parent{d.Parent.Parent}, "", "")
}

// Compose writes one email to the selected parents
func (h *ParentsHandler) Compose(c *gin.Context) {
	ids := parseIDs(c.Query("ids"))
	if len(ids) == 0 {
		ids = store(c).SelectedIDs()
	}
	var recipients []parent.Parent
	for _, p := range store(c).State().Parents {
		if slices.Contains(ids, p.ID) {
			recipients = append(recipients, p)
		}
	}
	if len(recipients) == 0 {
		h.Toast(c, dashboard.FlashInfo, "Select at least one parent first")
		h.Redirect(c, "/parents")
		return
	}
	h.renderCompose(c, recipients, "", "")
}

func (h *ParentsHandler) renderCompose(c *gin.Context, all []parent.Parent, subject, body string) {
	data := views.ComposeData{Subject: subject, Body: body}
	for _, p := range all {
		if p.Email == "" {
			data.Missing++
			continue
		}
		data.Recipients = append(data.Recipients, p)
	}
	h.Render(c, http.StatusOK, "compose.html", "Compose email", "parents", data)
}

// SendEmails sends the composed email to each recipient
func (h *ParentsHandler) SendEmails(c *gin.Context) {
	var ids []int64
	for _, raw := range c.PostFormArray("ids") {
		ids = append(ids, parseIDs(raw)...)
	}
	var form dto.EmailForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents")
		return
	}

	in := parent.EmailInput{Subject: form.Subject, Body: form.Body}
	_, err := store(c).BulkEmail(c.Request.Context(), ids, in)
	if len(ids) == 1 {
		h.done(c, err, detailURL(ids[0], "communications"))
		return
	}
	h.done(c, err, "/parents")
}
