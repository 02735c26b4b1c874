package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	ctx         = context.Background()
	notFound    = &apiclient.APIError{Status: http.StatusNotFound, Message: "Not Found"}
	serverError = &apiclient.APIError{Status: http.StatusInternalServerError, Message: "boom"}
)

func rows(ids ...int64) []parent.Parent {
	out := make([]parent.Parent, len(ids))
	for i, id := range ids {
		out[i] = parent.Parent{ID: id, Name: "Parent " + string(rune('A'+i)), Status: parent.StatusLead, Tags: []string{}}
	}
	return out
}

// seeded returns a store showing page 1 of 2 with rows 1..3 and 25 parents in total
func seeded(api *MockParentsAPI, opts ...Option) *Store {
	s := NewStore(api, opts...)
	s.state.Parents = rows(1, 2, 3)
	s.state.Pagination = Pagination{Current: 1, Pages: 2, Total: 25}
	return s
}

func errorFlashes(s *Store) []Flash {
	var out []Flash
	for _, f := range s.State().Flashes {
		if f.Level == FlashError {
			out = append(out, f)
		}
	}
	return out
}

func TestInitialState(t *testing.T) {
	st := NewStore(new(MockParentsAPI)).State()
	assert.NotNil(t, st.Parents)
	assert.Empty(t, st.Parents)
	assert.Equal(t, Pagination{Current: 1, Pages: 1}, st.Pagination)
	assert.Equal(t, parent.DefaultFilters(), st.Filters)
}

func TestStore_FetchParents(t *testing.T) {
	t.Run("replaces rows and defaults pagination", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Search", mock.Anything, parent.DefaultFilters(), 1).
			Return(&parent.ListPage{Parents: rows(7, 8), Total: 2, Page: 0, Pages: 0}, nil)

		s := NewStore(api)
		require.NoError(t, s.FetchParents(ctx))

		st := s.State()
		assert.Len(t, st.Parents, 2)
		assert.Equal(t, Pagination{Current: 1, Pages: 1, Total: 2}, st.Pagination)
		assert.False(t, st.Loading)
		assert.Empty(t, st.Error)
		api.AssertExpectations(t)
	})

	t.Run("nil parents become an empty slice", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{}, nil)

		s := NewStore(api)
		require.NoError(t, s.FetchParents(ctx))
		assert.NotNil(t, s.State().Parents)
	})

	t.Run("failure empties rows and toasts once", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Search", mock.Anything, mock.Anything, 1).Return(nil, errors.New("Network Error"))

		s := seeded(api)
		s.state.Selected = []int64{1}
		err := s.FetchParents(ctx)
		require.Error(t, err)

		st := s.State()
		assert.NotNil(t, st.Parents)
		assert.Empty(t, st.Parents)
		assert.Empty(t, st.Selected)
		assert.Equal(t, "Network Error", st.Error)
		flashes := errorFlashes(s)
		require.Len(t, flashes, 1)
		assert.Equal(t, "Failed to fetch parents: Network Error", flashes[0].Message)
	})

	t.Run("prunes selection to rows still on the page", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Search", mock.Anything, mock.Anything, 1).
			Return(&parent.ListPage{Parents: rows(2, 3), Page: 1, Pages: 1, Total: 2}, nil)

		s := seeded(api)
		s.state.Selected = []int64{1, 3}
		require.NoError(t, s.FetchParents(ctx))
		assert.Equal(t, []int64{3}, s.SelectedIDs())
	})
}

func TestStore_FetchStatsKeepsPreviousOnFailure(t *testing.T) {
	api := new(MockParentsAPI)
	api.On("Stats", mock.Anything).Return(&parent.Stats{TotalParents: 9}, nil).Once()
	api.On("Stats", mock.Anything).Return(nil, serverError).Once()

	s := NewStore(api)
	require.NoError(t, s.FetchStats(ctx))
	require.Error(t, s.FetchStats(ctx))

	st := s.State()
	require.NotNil(t, st.Stats)
	assert.Equal(t, 9, st.Stats.TotalParents)
	assert.Len(t, errorFlashes(s), 1)
}

func TestStore_SetFilters(t *testing.T) {
	t.Run("resets page and selection then fetches", func(t *testing.T) {
		want := parent.DefaultFilters()
		want.Status = parent.StatusWarm

		api := new(MockParentsAPI)
		api.On("Search", mock.Anything, want, 1).
			Return(&parent.ListPage{Parents: rows(4), Page: 1, Pages: 1, Total: 1}, nil)

		s := seeded(api)
		s.state.Pagination.Current = 2
		s.state.Selected = []int64{1, 2}

		f := parent.DefaultFilters()
		f.Status = parent.StatusWarm
		require.NoError(t, s.SetFilters(ctx, f))

		st := s.State()
		assert.Equal(t, parent.StatusWarm, st.Filters.Status)
		assert.Equal(t, 1, st.Pagination.Current)
		assert.Empty(t, st.Selected)
		api.AssertExpectations(t)
	})

	t.Run("invalid filters leave state untouched", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)

		low, high := 90, 10
		f := parent.DefaultFilters()
		f.MinLeadScore, f.MaxLeadScore = &low, &high

		err := s.SetFilters(ctx, f)
		require.Error(t, err)
		assert.Equal(t, parent.DefaultFilters(), s.State().Filters)
		assert.Len(t, errorFlashes(s), 1)
		api.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStore_PatchFilters(t *testing.T) {
	api := new(MockParentsAPI)
	api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{}, nil)

	s := NewStore(api)
	require.NoError(t, s.PatchFilters(ctx, []byte(`{"status":"lead","min_lead_score":50}`)))
	require.NoError(t, s.PatchFilters(ctx, []byte(`{"query":"smith","min_lead_score":null}`)))

	f := s.State().Filters
	assert.Equal(t, parent.StatusLead, f.Status)
	assert.Equal(t, "smith", f.Query)
	assert.Nil(t, f.MinLeadScore)

	require.Error(t, s.PatchFilters(ctx, []byte(`{not json`)))
}

func TestStore_ApplyPresetAndSort(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	api := new(MockParentsAPI)
	api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{}, nil)

	s := NewStore(api, WithClock(func() time.Time { return now }))
	require.NoError(t, s.ApplyPreset(ctx, parent.PresetRecent))
	assert.Equal(t, "2024-03-03", s.State().Filters.CreatedAfter)

	require.NoError(t, s.Sort(ctx, "name"))
	assert.Equal(t, "name", s.State().Filters.SortBy)
	assert.Equal(t, "desc", s.State().Filters.SortOrder)

	require.NoError(t, s.Sort(ctx, "name"))
	assert.Equal(t, "asc", s.State().Filters.SortOrder)

	require.Error(t, s.ApplyPreset(ctx, "vip_only"))

	require.NoError(t, s.ResetFilters(ctx))
	assert.Equal(t, parent.DefaultFilters(), s.State().Filters)
}

func TestStore_ApplyPresetSwitchesScoreBound(t *testing.T) {
	api := new(MockParentsAPI)
	api.On("Search", mock.Anything, mock.MatchedBy(func(f parent.Filters) bool {
		return f.Status == parent.StatusLead && f.MaxLeadScore == nil
	}), 1).Return(&parent.ListPage{Parents: rows(4), Page: 1, Pages: 1, Total: 1}, nil).Once()
	api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{}, nil)

	s := NewStore(api)
	require.NoError(t, s.ApplyPreset(ctx, parent.PresetAtRisk))
	require.NoError(t, s.ApplyPreset(ctx, parent.PresetHotLeads))

	f := s.State().Filters
	require.NotNil(t, f.MinLeadScore)
	assert.Equal(t, 80, *f.MinLeadScore)
	assert.Nil(t, f.MaxLeadScore)
	assert.Empty(t, errorFlashes(s))
	api.AssertNumberOfCalls(t, "Search", 2)
}

func TestStore_SetPageClamps(t *testing.T) {
	api := new(MockParentsAPI)
	api.On("Search", mock.Anything, mock.Anything, 2).
		Return(&parent.ListPage{Parents: rows(21), Page: 2, Pages: 2, Total: 21}, nil)
	api.On("Search", mock.Anything, mock.Anything, 1).
		Return(&parent.ListPage{Parents: rows(1), Page: 1, Pages: 2, Total: 21}, nil)

	s := seeded(api)
	s.state.Selected = []int64{1}

	require.NoError(t, s.SetPage(ctx, 99))
	assert.Equal(t, 2, s.State().Pagination.Current)
	assert.Empty(t, s.State().Selected)

	require.NoError(t, s.SetPage(ctx, -3))
	assert.Equal(t, 1, s.State().Pagination.Current)
}

func TestStore_Selection(t *testing.T) {
	s := seeded(new(MockParentsAPI))

	on, err := s.Toggle(2)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = s.Toggle(42)
	require.Error(t, err)

	on, err = s.Toggle(2)
	require.NoError(t, err)
	assert.False(t, on)

	assert.Equal(t, []int64{1, 2, 3}, s.SelectAll())
	assert.True(t, s.State().AllSelected())
	assert.Empty(t, s.SelectAll(), "select all on a fully selected page clears it")

	assert.Equal(t, []int64{3, 1}, s.SetSelection([]int64{3, 99, 1, 3}))
	s.ClearSelection()
	assert.Empty(t, s.SelectedIDs())
}

func TestStore_UpdateParentOptimistic(t *testing.T) {
	t.Run("applies before the call and reconciles after", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)
		upd := parent.StatusUpdate(parent.StatusApplicant)

		api.On("Update", mock.Anything, int64(2), upd).
			Run(func(mock.Arguments) {
				st := s.snapshot()
				assert.Equal(t, parent.StatusApplicant, st.Parents[1].Status, "row updated before the call returns")
			}).
			Return(&parent.Parent{ID: 2, Name: "Server Name", Status: parent.StatusApplicant}, nil)

		_, err := s.UpdateParent(ctx, 2, upd)
		require.NoError(t, err)
		assert.Equal(t, "Server Name", s.State().Parents[1].Name)
	})

	t.Run("failure reverts and toasts", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)
		upd := parent.StatusUpdate(parent.StatusLost)
		api.On("Update", mock.Anything, int64(2), upd).Return(nil, serverError)

		_, err := s.UpdateParent(ctx, 2, upd)
		require.Error(t, err)
		assert.Equal(t, parent.StatusLead, s.State().Parents[1].Status)
		flashes := errorFlashes(s)
		require.Len(t, flashes, 1)
		assert.Equal(t, "Failed to update parent: boom", flashes[0].Message)
	})

	t.Run("empty update is rejected locally", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)
		_, err := s.UpdateParent(ctx, 2, parent.Update{})
		require.Error(t, err)
		api.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStore_BulkUpdateStatus(t *testing.T) {
	api := new(MockParentsAPI)
	s := seeded(api)
	in := parent.BulkStatus{ParentIDs: []int64{1, 3}, Status: parent.StatusWarm}
	api.On("BulkUpdateStatus", mock.Anything, in).Return(&apiclient.BulkResult{Updated: 2}, nil).Once()
	api.On("BulkUpdateStatus", mock.Anything, in).Return(nil, serverError).Once()

	require.NoError(t, s.BulkUpdateStatus(ctx, []int64{1, 3}, parent.StatusWarm))
	st := s.State()
	assert.Equal(t, parent.StatusWarm, st.Parents[0].Status)
	assert.Equal(t, parent.StatusLead, st.Parents[1].Status)
	assert.Equal(t, parent.StatusWarm, st.Parents[2].Status)

	s.state.Parents[0].Status = parent.StatusLead
	require.Error(t, s.BulkUpdateStatus(ctx, []int64{1, 3}, parent.StatusWarm))
	assert.Equal(t, parent.StatusLead, s.State().Parents[0].Status)
	assert.Equal(t, parent.StatusWarm, s.State().Parents[2].Status, "reverted to the pre-call snapshot")

	require.Error(t, s.BulkUpdateStatus(ctx, nil, parent.StatusWarm))
}

func TestStore_BulkAddTagIsIdempotent(t *testing.T) {
	api := new(MockParentsAPI)
	s := seeded(api)
	s.state.Parents[0].Tags = []string{"vip"}
	api.On("BulkAddTags", mock.Anything, parent.BulkTags{ParentIDs: []int64{1, 2}, Tags: []string{"vip"}}).
		Return(&apiclient.BulkResult{Updated: 2}, nil)

	require.NoError(t, s.BulkAddTag(ctx, []int64{1, 2}, "vip"))
	st := s.State()
	assert.Equal(t, []string{"vip"}, st.Parents[0].Tags)
	assert.Equal(t, []string{"vip"}, st.Parents[1].Tags)
	assert.Empty(t, st.Parents[2].Tags)
}

func TestStore_BulkDelete(t *testing.T) {
	t.Run("removes rows, total and selection", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)
		s.state.Selected = []int64{1, 2}
		api.On("BulkDelete", mock.Anything, parent.BulkDelete{ParentIDs: []int64{1, 2}}).
			Return(&apiclient.BulkResult{Deleted: 2}, nil)

		require.NoError(t, s.BulkDelete(ctx, []int64{1, 2}))
		st := s.State()
		require.Len(t, st.Parents, 1)
		assert.Equal(t, int64(3), st.Parents[0].ID)
		assert.Equal(t, 23, st.Pagination.Total)
		assert.Empty(t, st.Selected)
	})

	t.Run("failure restores rows", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := seeded(api)
		s.state.Selected = []int64{2}
		api.On("BulkDelete", mock.Anything, mock.Anything).Return(nil, serverError)

		require.Error(t, s.BulkDelete(ctx, []int64{2}))
		st := s.State()
		assert.Len(t, st.Parents, 3)
		assert.Equal(t, 25, st.Pagination.Total)
		assert.Equal(t, []int64{2}, st.Selected)
		assert.Len(t, errorFlashes(s), 1)
	})

	t.Run("emptied last page steps back", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := NewStore(api)
		s.state.Parents = rows(21)
		s.state.Pagination = Pagination{Current: 2, Pages: 2, Total: 21}
		api.On("Delete", mock.Anything, int64(21)).Return(nil)
		api.On("Search", mock.Anything, mock.Anything, 1).
			Return(&parent.ListPage{Parents: rows(1, 2), Page: 1, Pages: 1, Total: 20}, nil)

		require.NoError(t, s.DeleteParent(ctx, 21))
		st := s.State()
		assert.Equal(t, 1, st.Pagination.Current)
		assert.Len(t, st.Parents, 2)
	})
}

func TestStore_CreateParentRefetches(t *testing.T) {
	api := new(MockParentsAPI)
	in := parent.Create{Name: "Ada Lovelace"}
	api.On("Create", mock.Anything, in).Return(&parent.Parent{ID: 50, Name: "Ada Lovelace"}, nil)
	api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{Parents: rows(50), Page: 1, Pages: 1, Total: 1}, nil)
	api.On("Stats", mock.Anything).Return(&parent.Stats{TotalParents: 1}, nil)

	s := NewStore(api)
	created, err := s.CreateParent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(50), created.ID)
	assert.Equal(t, 1, s.State().Stats.TotalParents)

	_, err = s.CreateParent(ctx, parent.Create{})
	require.Error(t, err)
	api.AssertNumberOfCalls(t, "Create", 1)
}

func TestStore_LoadDetail(t *testing.T) {
	details := &parent.Details{
		Parent:        parent.Parent{ID: 5, Name: "Jane"},
		RecentEmails:  []parent.EmailSummary{{ID: 1, Subject: "Embedded"}},
		JourneyEvents: []parent.JourneyEvent{{ID: 1, Title: "Enquiry"}},
	}

	t.Run("degrades missing tabs to embedded data", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Get", mock.Anything, int64(5)).Return(details, nil)
		api.On("Tasks", mock.Anything, int64(5)).Return(nil, notFound)
		api.On("Emails", mock.Anything, int64(5), detailEmailLimit).
			Return([]parent.EmailSummary{{ID: 2, Subject: "Fresh"}, {ID: 1, Subject: "Embedded"}}, nil)
		api.On("Journey", mock.Anything, int64(5)).Return(nil, &apiclient.APIError{Status: http.StatusNotImplemented})

		s := NewStore(api)
		d, err := s.LoadDetail(ctx, 5)
		require.NoError(t, err)

		assert.Equal(t, "Jane", d.Parent.Name)
		assert.NotNil(t, d.Tasks)
		assert.Empty(t, d.Tasks)
		assert.Len(t, d.Emails, 2)
		assert.Equal(t, "Enquiry", d.Journey[0].Title)
		assert.Contains(t, d.Partial, "tasks")
		assert.Contains(t, d.Partial, "journey")
		assert.NotContains(t, d.Partial, "communications")
		assert.Empty(t, errorFlashes(s))
	})

	t.Run("failed details toast", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Get", mock.Anything, int64(6)).Return(nil, notFound)

		s := NewStore(api)
		_, err := s.LoadDetail(ctx, 6)
		require.Error(t, err)
		assert.True(t, apiclient.IsNotFound(err))
		assert.Nil(t, s.State().Current)
		assert.Len(t, errorFlashes(s), 1)
	})
}

func TestStore_DetailMutations(t *testing.T) {
	open := func(api *MockParentsAPI) *Store {
		s := NewStore(api)
		s.state.Current = &Detail{
			Parent: parent.Details{Parent: parent.Parent{ID: 5}, Children: []parent.Child{{ID: 1, Name: "Sam"}}},
			Tasks:  []parent.Task{{ID: 10, Title: "Call"}},
		}
		return s
	}

	t.Run("add note swaps the placeholder", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := open(api)
		in := parent.NoteInput{Content: "Visited campus"}
		api.On("AddNote", mock.Anything, int64(5), in).
			Run(func(mock.Arguments) {
				assert.Equal(t, int64(-1), s.snapshot().Current.Parent.RecentNotes[0].ID)
			}).
			Return(&parent.Note{ID: 77, Content: "Visited campus"}, nil)

		_, err := s.AddNote(ctx, 5, in)
		require.NoError(t, err)
		assert.Equal(t, int64(77), s.State().Current.Parent.RecentNotes[0].ID)
	})

	t.Run("task update reverts on failure", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := open(api)
		done := true
		upd := parent.TaskUpdate{Completed: &done}
		api.On("UpdateTask", mock.Anything, int64(10), upd).Return(nil, serverError)

		_, err := s.UpdateTask(ctx, 5, 10, upd)
		require.Error(t, err)
		assert.False(t, s.State().Current.Tasks[0].Completed)
	})

	t.Run("delete child", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := open(api)
		api.On("DeleteChild", mock.Anything, int64(1)).Return(nil)

		require.NoError(t, s.DeleteChild(ctx, 5, 1))
		assert.Empty(t, s.State().Current.Parent.Children)
	})

	t.Run("add task for a parent that is not open", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := open(api)
		in := parent.TaskInput{Title: "Send prospectus"}
		api.On("AddTask", mock.Anything, int64(9), in).Return(&parent.Task{ID: 11, ParentID: 9}, nil)

		_, err := s.AddTask(ctx, 9, in)
		require.NoError(t, err)
		assert.Len(t, s.State().Current.Tasks, 1)
	})
}

func TestStore_BulkEmail(t *testing.T) {
	in := parent.EmailInput{Subject: "Open day", Body: "Join us on Saturday"}

	t.Run("sends to every parent and toasts once", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := NewStore(api)
		api.On("SendEmail", mock.Anything, mock.AnythingOfType("int64"), in).Return(&parent.EmailSummary{ID: 1}, nil)

		sent, err := s.BulkEmail(ctx, []int64{1, 2, 3}, in)
		require.NoError(t, err)
		assert.Equal(t, 3, sent)
		flashes := s.State().Flashes
		require.Len(t, flashes, 1)
		assert.Equal(t, Flash{Level: FlashSuccess, Message: "Sent 3 emails"}, flashes[0])
	})

	t.Run("keeps going after a failure", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := NewStore(api)
		api.On("SendEmail", mock.Anything, int64(1), in).Return(&parent.EmailSummary{ID: 1}, nil)
		api.On("SendEmail", mock.Anything, int64(2), in).Return(nil, serverError)
		api.On("SendEmail", mock.Anything, int64(3), in).Return(&parent.EmailSummary{ID: 3}, nil)

		sent, err := s.BulkEmail(ctx, []int64{1, 2, 3}, in)
		require.Error(t, err)
		assert.Equal(t, 2, sent)
		require.Len(t, errorFlashes(s), 1)
		assert.True(t, strings.HasPrefix(errorFlashes(s)[0].Message, "Sent 2 of 3 emails"))
	})

	t.Run("rejects an empty subject without calling the backend", func(t *testing.T) {
		api := new(MockParentsAPI)
		s := NewStore(api)

		_, err := s.BulkEmail(ctx, []int64{1}, parent.EmailInput{Body: "hi"})
		require.Error(t, err)
		api.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, errorFlashes(s), 1)
	})
}

func TestStore_Export(t *testing.T) {
	t.Run("backend csv", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, []int64{1}).Return([]byte("id,name\n1,Ada\n"), nil)

		s := NewStore(api, WithClock(func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }))
		res, err := s.Export(ctx, []int64{1})
		require.NoError(t, err)
		assert.Equal(t, export.SourceBackend, res.Source)
		assert.Equal(t, 1, res.Rows)
		assert.Equal(t, "parents-export-2024-03-01.csv", res.FileName)
	})

	t.Run("selected rows built locally when backend lacks export", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, []int64{3, 1}).Return(nil, notFound)

		s := seeded(api)
		res, err := s.Export(ctx, []int64{3, 1})
		require.NoError(t, err)
		assert.Equal(t, export.SourceLocal, res.Source)
		assert.Equal(t, 2, res.Rows)
		lines := strings.Split(strings.TrimSpace(string(res.Data)), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[1], "3,"))
		api.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("whole search paged locally", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, []int64(nil)).Return(nil, &apiclient.APIError{Status: http.StatusMethodNotAllowed})
		api.On("Search", mock.Anything, mock.MatchedBy(func(f parent.Filters) bool { return f.PerPage == 2 }), 1).
			Return(&parent.ListPage{Parents: rows(1, 2), Page: 1, Pages: 2, Total: 3}, nil)
		api.On("Search", mock.Anything, mock.MatchedBy(func(f parent.Filters) bool { return f.PerPage == 2 }), 2).
			Return(&parent.ListPage{Parents: rows(3), Page: 2, Pages: 2, Total: 3}, nil)

		s := NewStore(api, WithExportPageSize(2))
		res, err := s.Export(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Rows)
		assert.False(t, res.Truncated)
	})

	t.Run("local export reports the scan limit", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, []int64(nil)).Return(nil, notFound)
		api.On("Search", mock.Anything, mock.Anything, 1).
			Return(&parent.ListPage{Parents: rows(1, 2), Page: 1, Pages: 3, Total: 5}, nil)

		s := NewStore(api, WithExportPageSize(2), WithScanLimit(2))
		res, err := s.Export(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Rows)
		assert.True(t, res.Truncated)
		api.AssertNumberOfCalls(t, "Search", 1)

		flashes := s.DrainFlashes()
		require.Len(t, flashes, 1)
		assert.Equal(t, FlashInfo, flashes[0].Level)
		assert.Contains(t, flashes[0].Message, "first 2 parents only")
	})

	t.Run("exact fit at the scan limit is complete", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, []int64(nil)).Return(nil, notFound)
		api.On("Search", mock.Anything, mock.Anything, 1).
			Return(&parent.ListPage{Parents: rows(1, 2), Page: 1, Pages: 1, Total: 2}, nil)

		s := NewStore(api, WithScanLimit(2))
		res, err := s.Export(ctx, nil)
		require.NoError(t, err)
		assert.False(t, res.Truncated)
		assert.Equal(t, []Flash{{Level: FlashSuccess, Message: "Exported 2 parents"}}, s.DrainFlashes())
	})

	t.Run("other backend errors toast", func(t *testing.T) {
		api := new(MockParentsAPI)
		api.On("Export", mock.Anything, mock.Anything).Return(nil, serverError)

		s := NewStore(api)
		_, err := s.Export(ctx, nil)
		require.Error(t, err)
		assert.Len(t, errorFlashes(s), 1)
	})
}

func TestStore_Duplicates(t *testing.T) {
	api := new(MockParentsAPI)
	api.On("Search", mock.Anything, mock.Anything, 1).Return(&parent.ListPage{
		Parents: []parent.Parent{
			{ID: 1, Name: "Jane Smith", Email: "jane@example.com", LeadScore: 40},
			{ID: 2, Name: "Jane Smyth", Email: "JANE@example.com", LeadScore: 90},
			{ID: 3, Name: "Tom Jones"},
		},
		Page: 1, Pages: 1, Total: 3,
	}, nil)

	groups, err := NewStore(api).Duplicates(ctx, 0.2)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(2), groups[0].Primary.ID)
}

func TestStore_SnapshotRestore(t *testing.T) {
	api := new(MockParentsAPI)
	s := seeded(api)
	s.state.Selected = []int64{2}
	s.state.Filters.Query = "smith"
	s.Toast(FlashInfo, "hello")

	data, err := s.Snapshot()
	require.NoError(t, err)

	restored := NewStore(api)
	require.NoError(t, restored.Restore(data))
	st := restored.State()
	assert.Equal(t, "smith", st.Filters.Query)
	assert.Equal(t, []int64{2}, st.Selected)
	assert.Equal(t, 25, st.Pagination.Total)
	assert.Equal(t, []Flash{{Level: FlashInfo, Message: "hello"}}, restored.DrainFlashes())
	assert.Empty(t, restored.DrainFlashes())

	t.Run("repairs broken invariants", func(t *testing.T) {
		broken := []byte(`{"version":1,"state":{"parents":null,"selected":[9],"pagination":{"current":7,"pages":0},"filters":{"per_page":500}}}`)
		s := NewStore(api)
		require.NoError(t, s.Restore(broken))
		st := s.State()
		assert.NotNil(t, st.Parents)
		assert.Empty(t, st.Selected)
		assert.Equal(t, Pagination{Current: 1, Pages: 1}, st.Pagination)
		assert.Equal(t, parent.DefaultFilters(), st.Filters)
	})

	t.Run("rejects unknown versions", func(t *testing.T) {
		require.Error(t, NewStore(api).Restore([]byte(`{"version":99}`)))
		require.Error(t, NewStore(api).Restore([]byte(`nope`)))
	})
}
