package dashboard

import (
	"context"
	"io"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/stretchr/testify/mock"
)

// MockParentsAPI is a mock implementation of ParentsAPI
type MockParentsAPI struct {
	mock.Mock
}

func (m *MockParentsAPI) Search(ctx context.Context, f parent.Filters, page int) (*parent.ListPage, error) {
	args := m.Called(ctx, f, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.ListPage), args.Error(1)
}

func (m *MockParentsAPI) Get(ctx context.Context, id int64) (*parent.Details, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Details), args.Error(1)
}

func (m *MockParentsAPI) Create(ctx context.Context, in parent.Create) (*parent.Parent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Parent), args.Error(1)
}

func (m *MockParentsAPI) Update(ctx context.Context, id int64, in parent.Update) (*parent.Parent, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Parent), args.Error(1)
}

func (m *MockParentsAPI) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockParentsAPI) Stats(ctx context.Context) (*parent.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Stats), args.Error(1)
}

func (m *MockParentsAPI) AddChild(ctx context.Context, parentID int64, in parent.ChildInput) (*parent.Child, error) {
	args := m.Called(ctx, parentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Child), args.Error(1)
}

func (m *MockParentsAPI) UpdateChild(ctx context.Context, childID int64, in parent.ChildInput) (*parent.Child, error) {
	args := m.Called(ctx, childID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Child), args.Error(1)
}

func (m *MockParentsAPI) DeleteChild(ctx context.Context, childID int64) error {
	return m.Called(ctx, childID).Error(0)
}

func (m *MockParentsAPI) AddNote(ctx context.Context, parentID int64, in parent.NoteInput) (*parent.Note, error) {
	args := m.Called(ctx, parentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Note), args.Error(1)
}

func (m *MockParentsAPI) Tasks(ctx context.Context, parentID int64) ([]parent.Task, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]parent.Task), args.Error(1)
}

func (m *MockParentsAPI) AddTask(ctx context.Context, parentID int64, in parent.TaskInput) (*parent.Task, error) {
	args := m.Called(ctx, parentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Task), args.Error(1)
}

func (m *MockParentsAPI) UpdateTask(ctx context.Context, taskID int64, in parent.TaskUpdate) (*parent.Task, error) {
	args := m.Called(ctx, taskID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Task), args.Error(1)
}

func (m *MockParentsAPI) DeleteTask(ctx context.Context, taskID int64) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *MockParentsAPI) Emails(ctx context.Context, parentID int64, limit int) ([]parent.EmailSummary, error) {
	args := m.Called(ctx, parentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]parent.EmailSummary), args.Error(1)
}

func (m *MockParentsAPI) Email(ctx context.Context, emailID int64) (*parent.Email, error) {
	args := m.Called(ctx, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Email), args.Error(1)
}

func (m *MockParentsAPI) SendEmail(ctx context.Context, parentID int64, in parent.EmailInput) (*parent.EmailSummary, error) {
	args := m.Called(ctx, parentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.EmailSummary), args.Error(1)
}

func (m *MockParentsAPI) Journey(ctx context.Context, parentID int64) ([]parent.JourneyEvent, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]parent.JourneyEvent), args.Error(1)
}

func (m *MockParentsAPI) BulkUpdateStatus(ctx context.Context, in parent.BulkStatus) (*apiclient.BulkResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.BulkResult), args.Error(1)
}

func (m *MockParentsAPI) BulkAddTags(ctx context.Context, in parent.BulkTags) (*apiclient.BulkResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.BulkResult), args.Error(1)
}

func (m *MockParentsAPI) BulkDelete(ctx context.Context, in parent.BulkDelete) (*apiclient.BulkResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiclient.BulkResult), args.Error(1)
}

func (m *MockParentsAPI) Export(ctx context.Context, ids []int64) ([]byte, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockParentsAPI) Import(ctx context.Context, filename string, r io.Reader) (*parent.ImportResult, error) {
	args := m.Called(ctx, filename, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.ImportResult), args.Error(1)
}

func (m *MockParentsAPI) Merge(ctx context.Context, in parent.Merge) (*parent.Parent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parent.Parent), args.Error(1)
}
