// Package dashboard holds the per-session parents dashboard: the current
// result page, filters, selection and open parent, plus the optimistic
// mutations the views trigger.
package dashboard

import (
	"context"
	"io"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
)

// ParentsAPI is the part of the admissions backend the dashboard uses
type ParentsAPI interface {
	Search(ctx context.Context, f parent.Filters, page int) (*parent.ListPage, error)
	Get(ctx context.Context, id int64) (*parent.Details, error)
	Create(ctx context.Context, in parent.Create) (*parent.Parent, error)
	Update(ctx context.Context, id int64, in parent.Update) (*parent.Parent, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*parent.Stats, error)

	AddChild(ctx context.Context, parentID int64, in parent.ChildInput) (*parent.Child, error)
	UpdateChild(ctx context.Context, childID int64, in parent.ChildInput) (*parent.Child, error)
	DeleteChild(ctx context.Context, childID int64) error
	AddNote(ctx context.Context, parentID int64, in parent.NoteInput) (*parent.Note, error)
	Tasks(ctx context.Context, parentID int64) ([]parent.Task, error)
	AddTask(ctx context.Context, parentID int64, in parent.TaskInput) (*parent.Task, error)
	UpdateTask(ctx context.Context, taskID int64, in parent.TaskUpdate) (*parent.Task, error)
	DeleteTask(ctx context.Context, taskID int64) error
	Emails(ctx context.Context, parentID int64, limit int) ([]parent.EmailSummary, error)
	Email(ctx context.Context, emailID int64) (*parent.Email, error)
	SendEmail(ctx context.Context, parentID int64, in parent.EmailInput) (*parent.EmailSummary, error)
	Journey(ctx context.Context, parentID int64) ([]parent.JourneyEvent, error)

	BulkUpdateStatus(ctx context.Context, in parent.BulkStatus) (*apiclient.BulkResult, error)
	BulkAddTags(ctx context.Context, in parent.BulkTags) (*apiclient.BulkResult, error)
	BulkDelete(ctx context.Context, in parent.BulkDelete) (*apiclient.BulkResult, error)
	Export(ctx context.Context, ids []int64) ([]byte, error)
	Import(ctx context.Context, filename string, r io.Reader) (*parent.ImportResult, error)
	Merge(ctx context.Context, in parent.Merge) (*parent.Parent, error)
}

var _ ParentsAPI = (*apiclient.Parents)(nil)
