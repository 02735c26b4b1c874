package views

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smartedu/dashboard/internal/application/archive"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/view"
	"github.com/smartedu/dashboard/internal/infrastructure/csvimport"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func ts(t time.Time) parent.Timestamp { return parent.NewTimestamp(t) }

func amara() parent.Parent {
	return parent.Parent{
		ID: 1, ParentID: "P-0001", Name: "Amara Okafor", Email: "amara@example.com",
		Status: parent.StatusWarm, Stage: parent.Stages[0], LeadScore: 72,
		Tags: []string{"open-day"}, CreatedAt: ts(now.Add(-48 * time.Hour)),
	}
}

func renderPage(t *testing.T, r *Renderer, name string, data any) string {
	t.Helper()
	require.True(t, r.Has(name), name)
	w := httptest.NewRecorder()
	page := Page{Title: "Test", User: "Ms Admissions", RequestID: "req-1", Data: data,
		Flashes: []dashboard.Flash{{Level: dashboard.FlashSuccess, Message: "Saved"}}}
	require.NoError(t, r.Instance(name, page).Render(w))
	return w.Body.String()
}

func TestRenderer_Pages(t *testing.T) {
	r, err := New(func() time.Time { return now })
	require.NoError(t, err)

	st := dashboard.InitialState()
	st.Parents = []parent.Parent{amara()}
	st.Selected = []int64{1}
	st.Pagination = dashboard.Pagination{Current: 2, Pages: 9, Total: 170}
	st.Stats = &parent.Stats{TotalParents: 1234567, ConversionRate: 12.345, AverageLeadScore: 48.25}

	details := parent.Details{
		Parent:   amara(),
		Children: []parent.Child{{ID: 3, Name: "Kemi Okafor"}},
	}
	detail := &dashboard.Detail{
		Parent:  details,
		Tasks:   []parent.Task{{ID: 4, ParentID: 1, Title: "Book a tour", DueDate: ts(now.Add(-time.Hour))}},
		Emails:  []parent.EmailSummary{{ID: 9, Subject: "Welcome pack", Direction: "outbound"}},
		Journey: []parent.JourneyEvent{{ID: 5, EventType: "visit", Title: "Open morning"}},
		Partial: map[string]string{"journey": "unavailable"},
	}

	pv, err := csvimport.BuildPreview(
		strings.NewReader("name,email\nJane Doe,jane@example.com\nJohn Roe,bad\n"), csvimport.DefaultOptions())
	require.NoError(t, err)

	tests := []struct {
		page string
		data any
		want []string
	}{
		{"login.html", LoginData{Next: "/parents", Error: "token: This field is required"}, []string{"Sign in", "This field is required"}},
		{"parents.html", ListData{State: st, SavedViews: []view.SavedView{{ID: uuid.New(), Slug: "warm-leads", Name: "Warm leads"}}},
			[]string{"Amara Okafor", "1,234,567", "12.3%", "Warm leads", "1 selected"}},
		{"parent_new.html", NewParentData{Form: dto.ParentForm{}, Errors: map[string]string{"name": "is required"}}, []string{"is required"}},
		{"parent_detail.html", DetailData{Detail: detail, Tab: "overview", Tabs: DetailTabs}, []string{"Amara Okafor", "P-0001"}},
		{"parent_detail.html", DetailData{Detail: detail, Tab: "tasks", Tabs: DetailTabs}, []string{"Book a tour"}},
		{"parent_detail.html", DetailData{Detail: detail, Tab: "communications", Tabs: DetailTabs}, []string{"Welcome pack"}},
		{"parent_detail.html", DetailData{Detail: detail, Tab: "journey", Tabs: DetailTabs}, []string{"Open morning"}},
		{"email.html", EmailData{ParentID: 1, Email: &parent.Email{
			EmailSummary: parent.EmailSummary{ID: 9, Subject: "Welcome pack"}, Body: "Hello"}}, []string{"Welcome pack", "Hello"}},
		{"compose.html", ComposeData{Recipients: []parent.Parent{amara()}, Missing: 2}, []string{"amara@example.com", "2 selected parents have no email address"}},
		{"import.html", ImportData{Preview: pv, FileName: "families.csv"}, []string{"1 rows ready, 1 with problems", "families.csv"}},
		{"import.html", ImportData{Result: &parent.ImportResult{Imported: 3, Skipped: 1}}, []string{"Imported 3, skipped 1"}},
		{"duplicates.html", DuplicatesData{Groups: []parent.DuplicateGroup{{Primary: amara(), Duplicates: []parent.Parent{amara()}, Reason: "same email"}}, Ratio: 0.15},
			[]string{"same email"}},
		{"exports.html", ExportsData{Enabled: true, Links: []archive.Link{{
			Record: export.Record{FileName: "parents-2026-03-02.csv", RowCount: 12}, URL: "/archive/x.csv", ExpiresAt: now.Add(time.Hour)}}},
			[]string{"parents-2026-03-02.csv"}},
		{"views.html", []view.SavedView{{ID: uuid.New(), Slug: "warm-leads", Name: "Warm leads", UseCount: 3}}, []string{"Warm leads"}},
		{"error.html", ErrorData{Status: 404, Message: "Parent not found"}, []string{"Parent not found"}},
	}
	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			body := renderPage(t, r, tt.page, tt.data)
			assert.Contains(t, body, "Ms Admissions")
			assert.Contains(t, body, "Saved")
			for _, want := range tt.want {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestRenderer_UnknownPageFallsBackToError(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	assert.False(t, r.Has("missing.html"))

	w := httptest.NewRecorder()
	require.NoError(t, r.Instance("missing.html", Page{Data: ErrorData{Status: 500, Message: "Something went wrong"}}).Render(w))
	assert.Contains(t, w.Body.String(), "Something went wrong")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "12.3%", Percent(12.345))
	assert.Equal(t, "0.0%", Percent(0))
	assert.Equal(t, "48.3", Score(48.25))
	assert.Equal(t, "—", Date(parent.Timestamp{}))
	assert.Equal(t, "2 Mar 2026", Date(ts(now)))
	assert.Equal(t, "2 Mar 2026 09:30", DateTime(ts(now)))
}

func TestAgo(t *testing.T) {
	tests := []struct {
		at   parent.Timestamp
		want string
	}{
		{parent.Timestamp{}, "never"},
		{ts(now.Add(-10 * time.Second)), "just now"},
		{ts(now.Add(-time.Minute)), "1 minute ago"},
		{ts(now.Add(-5 * time.Hour)), "5 hours ago"},
		{ts(now.Add(-72 * time.Hour)), "3 days ago"},
		{ts(now.AddDate(0, -3, 0)), "2 Dec 2025"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ago(tt.at, now))
	}
}

func TestOverdue(t *testing.T) {
	past := ts(now.Add(-time.Hour))
	assert.True(t, Overdue(parent.Task{DueDate: past}, now))
	assert.False(t, Overdue(parent.Task{DueDate: past, Completed: true}, now))
	assert.False(t, Overdue(parent.Task{}, now))
	assert.False(t, Overdue(parent.Task{DueDate: ts(now.Add(time.Hour))}, now))
}

func TestPageLinks(t *testing.T) {
	assert.Nil(t, PageLinks(dashboard.Pagination{Current: 1, Pages: 1}))

	links := PageLinks(dashboard.Pagination{Current: 6, Pages: 12})
	var pages []int
	for _, l := range links {
		pages = append(pages, l.Page)
		if l.Page == 6 {
			assert.True(t, l.Current)
		}
	}
	assert.Equal(t, []int{1, 0, 4, 5, 6, 7, 8, 0, 12}, pages)

	links = PageLinks(dashboard.Pagination{Current: 1, Pages: 4})
	assert.Len(t, links, 4)
}

func TestSortMark(t *testing.T) {
	f := parent.Filters{SortBy: "name", SortOrder: "asc"}
	assert.Equal(t, "▲", SortMark(f, "name"))
	assert.Equal(t, "", SortMark(f, "created_at"))
	f.SortOrder = "desc"
	assert.Equal(t, "▼", SortMark(f, "name"))
}

func TestFilterValues(t *testing.T) {
	n := 40
	yes, no := true, false
	assert.Equal(t, "", IntValue(nil))
	assert.Equal(t, "40", IntValue(&n))
	assert.Equal(t, "", HasChildrenValue(nil))
	assert.Equal(t, "yes", HasChildrenValue(&yes))
	assert.Equal(t, "no", HasChildrenValue(&no))
}

func TestFlashClass(t *testing.T) {
	assert.Equal(t, "toast toast-error", FlashClass(dashboard.FlashError))
	assert.Equal(t, "toast toast-success", FlashClass(dashboard.FlashSuccess))
	assert.Equal(t, "toast toast-info", FlashClass("anything"))
}

func TestDict(t *testing.T) {
	m, err := dict("a", 1, "b", "two")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": "two"}, m)

	_, err = dict("a")
	assert.Error(t, err)
	_, err = dict(1, 2)
	assert.Error(t, err)
}

func TestNextURL(t *testing.T) {
	tests := map[string]string{
		"":                        "/parents",
		"/parents?page=2":         "/parents?page=2",
		"/parents/7?tab=tasks":    "/parents/7?tab=tasks",
		"https://evil.example/":   "/parents",
		"//evil.example/":         "/parents",
		"parents":                 "/parents",
	}
	for raw, want := range tests {
		assert.Equal(t, want, NextURL(raw), raw)
	}
}
