package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smartedu/dashboard/internal/domain/parent"
)

// BulkResult is the backend's reply to a bulk action
type BulkResult struct {
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// Affected returns how many parents the action touched
func (r BulkResult) Affected() int {
	return max(r.Updated, r.Deleted)
}

// Parents is the tenant-scoped parents API
type Parents struct {
	c *Client
}

// Parents returns the parents API bound to c
func (c *Client) Parents() *Parents {
	return &Parents{c: c}
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}

// Search lists one page of parents matching f
func (p *Parents) Search(ctx context.Context, f parent.Filters, page int) (*parent.ListPage, error) {
	var out parent.ListPage
	if err := p.c.getJSON(ctx, "parents.search", "/parents/search", f.Values(page), &out); err != nil {
		return nil, err
	}
	if out.Parents == nil {
		out.Parents = []parent.Parent{}
	}
	return &out, nil
}

// Get returns a parent with its related records
func (p *Parents) Get(ctx context.Context, id int64) (*parent.Details, error) {
	var out parent.Details
	if err := p.c.getJSON(ctx, "parents.get", idPath("/parents/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a parent
func (p *Parents) Create(ctx context.Context, in parent.Create) (*parent.Parent, error) {
	var out parent.Parent
	if err := p.c.sendJSON(ctx, "parents.create", http.MethodPost, "/parents/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update changes the set fields of a parent
func (p *Parents) Update(ctx context.Context, id int64, in parent.Update) (*parent.Parent, error) {
	var out parent.Parent
	if err := p.c.sendJSON(ctx, "parents.update", http.MethodPut, idPath("/parents/%d", id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a parent
func (p *Parents) Delete(ctx context.Context, id int64) error {
	return p.c.sendJSON(ctx, "parents.delete", http.MethodDelete, idPath("/parents/%d", id), nil, nil)
}

// Stats returns the aggregate counters
func (p *Parents) Stats(ctx context.Context) (*parent.Stats, error) {
	var out parent.Stats
	if err := p.c.getJSON(ctx, "parents.stats", "/parents/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Children lists a parent's children
func (p *Parents) Children(ctx context.Context, parentID int64) ([]parent.Child, error) {
	var out []parent.Child
	if err := p.c.getJSON(ctx, "children.list", idPath("/parents/%d/children", parentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddChild adds a child to a parent
func (p *Parents) AddChild(ctx context.Context, parentID int64, in parent.ChildInput) (*parent.Child, error) {
	var out parent.Child
	if err := p.c.sendJSON(ctx, "children.create", http.MethodPost, idPath("/parents/%d/children", parentID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChild changes a child
func (p *Parents) UpdateChild(ctx context.Context, childID int64, in parent.ChildInput) (*parent.Child, error) {
	var out parent.Child
	if err := p.c.sendJSON(ctx, "children.update", http.MethodPatch, idPath("/children/%d", childID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChild removes a child
func (p *Parents) DeleteChild(ctx context.Context, childID int64) error {
	return p.c.sendJSON(ctx, "children.delete", http.MethodDelete, idPath("/children/%d", childID), nil, nil)
}

// Notes lists a parent's notes
func (p *Parents) Notes(ctx context.Context, parentID int64, limit int) ([]parent.Note, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []parent.Note
	if err := p.c.getJSON(ctx, "notes.list", idPath("/parents/%d/notes", parentID), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddNote records a note authored by the session's user
func (p *Parents) AddNote(ctx context.Context, parentID int64, in parent.NoteInput) (*parent.Note, error) {
	creds, _ := CredentialsFrom(ctx)
	creds = creds.merge(p.c.defaults)
	var q url.Values
	if creds.UserID != "" {
		q = url.Values{"user_id": {creds.UserID}}
	}
	var out parent.Note
	err := p.c.doJSON(ctx, request{
		endpoint: "notes.create",
		method:   http.MethodPost,
		path:     idPath("/parents/%d/notes", parentID),
		query:    q,
		body:     in,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateNote changes a note
func (p *Parents) UpdateNote(ctx context.Context, noteID int64, in parent.NoteInput) (*parent.Note, error) {
	var out parent.Note
	if err := p.c.sendJSON(ctx, "notes.update", http.MethodPatch, idPath("/notes/%d", noteID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNote removes a note
func (p *Parents) DeleteNote(ctx context.Context, noteID int64) error {
	return p.c.sendJSON(ctx, "notes.delete", http.MethodDelete, idPath("/notes/%d", noteID), nil, nil)
}

// Tasks lists a parent's tasks
func (p *Parents) Tasks(ctx context.Context, parentID int64) ([]parent.Task, error) {
	var out []parent.Task
	if err := p.c.getJSON(ctx, "tasks.list", idPath("/parents/%d/tasks", parentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTask creates a task
func (p *Parents) AddTask(ctx context.Context, parentID int64, in parent.TaskInput) (*parent.Task, error) {
	var out parent.Task
	if err := p.c.sendJSON(ctx, "tasks.create", http.MethodPost, idPath("/parents/%d/tasks", parentID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask changes a task
func (p *Parents) UpdateTask(ctx context.Context, taskID int64, in parent.TaskUpdate) (*parent.Task, error) {
	var out parent.Task
	if err := p.c.sendJSON(ctx, "tasks.update", http.MethodPatch, idPath("/tasks/%d", taskID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes a task
func (p *Parents) DeleteTask(ctx context.Context, taskID int64) error {
	return p.c.sendJSON(ctx, "tasks.delete", http.MethodDelete, idPath("/tasks/%d", taskID), nil, nil)
}

// Emails lists a parent's emails, newest first
func (p *Parents) Emails(ctx context.Context, parentID int64, limit int) ([]parent.EmailSummary, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []parent.EmailSummary
	if err := p.c.getJSON(ctx, "emails.list", idPath("/parents/%d/emails", parentID), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Email returns one email with its body
func (p *Parents) Email(ctx context.Context, emailID int64) (*parent.Email, error) {
	var out parent.Email
	if err := p.c.getJSON(ctx, "emails.get", idPath("/emails/%d", emailID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEmail asks the backend to send an email to a parent
func (p *Parents) SendEmail(ctx context.Context, parentID int64, in parent.EmailInput) (*parent.EmailSummary, error) {
	var out parent.EmailSummary
	if err := p.c.sendJSON(ctx, "emails.send", http.MethodPost, idPath("/parents/%d/emails", parentID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Journey lists a parent's journey events
func (p *Parents) Journey(ctx context.Context, parentID int64) ([]parent.JourneyEvent, error) {
	var out []parent.JourneyEvent
	if err := p.c.getJSON(ctx, "journey.list", idPath("/parents/%d/journey", parentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BulkUpdateStatus moves many parents to one status
func (p *Parents) BulkUpdateStatus(ctx context.Context, in parent.BulkStatus) (*BulkResult, error) {
	var out BulkResult
	if err := p.c.sendJSON(ctx, "parents.bulk_status", http.MethodPost, "/parents/bulk/status", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkAddTags tags many parents
func (p *Parents) BulkAddTags(ctx context.Context, in parent.BulkTags) (*BulkResult, error) {
	var out BulkResult
	if err := p.c.sendJSON(ctx, "parents.bulk_tags", http.MethodPost, "/parents/bulk/tags", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkDelete removes many parents
func (p *Parents) BulkDelete(ctx context.Context, in parent.BulkDelete) (*BulkResult, error) {
	var out BulkResult
	if err := p.c.sendJSON(ctx, "parents.bulk_delete", http.MethodPost, "/parents/bulk/delete", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export returns a CSV of the given parents, or of all parents when ids is empty
func (p *Parents) Export(ctx context.Context, ids []int64) ([]byte, error) {
	q := url.Values{}
	if len(ids) > 0 {
		q.Set("parent_ids", joinIDs(ids))
	}
	resp, err := p.c.do(ctx, request{
		endpoint: "parents.export",
		method:   http.MethodGet,
		path:     "/parents/export",
		query:    q,
		accept:   "text/csv",
	})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Import uploads a CSV of parents as multipart field "file"
func (p *Parents) Import(ctx context.Context, filename string, r io.Reader) (*parent.ImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating multipart file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("copying import file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var out parent.ImportResult
	err = p.c.doJSON(ctx, request{
		endpoint:    "parents.import",
		method:      http.MethodPost,
		path:        "/parents/import",
		rawBody:     buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Merge folds duplicates into the primary record and returns it
func (p *Parents) Merge(ctx context.Context, in parent.Merge) (*parent.Parent, error) {
	var out parent.Parent
	if err := p.c.sendJSON(ctx, "parents.merge", http.MethodPost, "/parents/merge", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report downloads the backend-generated report for the filters
func (p *Parents) Report(ctx context.Context, f parent.Filters) ([]byte, string, error) {
	q := f.Values(1)
	q.Del("page")
	q.Del("per_page")
	resp, err := p.c.do(ctx, request{
		endpoint: "parents.report",
		method:   http.MethodGet,
		path:     "/parents/report",
		query:    q,
		accept:   "*/*",
	})
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.header.Get("Content-Type"), nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
