package dashboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FetchParents loads the current page for the current filters. On failure
// the rows are emptied and an error toast is queued.
func (s *Store) FetchParents(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.fetchParents(ctx)
}

func (s *Store) fetchParents(ctx context.Context) (err error) {
	var (
		filters parent.Filters
		page    int
	)
	s.update(func(st *State) {
		st.Loading = true
		filters = st.Filters
		page = st.Pagination.Current
	})
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "fetch_parents", telemetry.WithAttribute("page", page))
	defer func() { telemetry.End(span, err) }()

	res, err := s.api.Search(ctx, filters, page)
	if err != nil {
		s.update(func(st *State) {
			st.Loading = false
			st.Parents = []parent.Parent{}
			st.Selected = []int64{}
			st.Error = apiclient.Message(err)
		})
		return s.fail(ctx, "Failed to fetch parents", err, zap.Int("page", page))
	}

	s.update(func(st *State) {
		st.Loading = false
		st.Error = ""
		st.Parents = res.Parents
		if st.Parents == nil {
			st.Parents = []parent.Parent{}
		}
		st.Pagination = Pagination{
			Current: defaultInt(res.Page, 1),
			Pages:   defaultInt(res.Pages, 1),
			Total:   max(res.Total, 0),
		}
		st.Pagination.Current = min(st.Pagination.Current, st.Pagination.Pages)
		st.pruneSelection()
	})
	return nil
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// FetchStats loads the counters. On failure the previous stats are kept.
func (s *Store) FetchStats(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.fetchStats(ctx)
}

func (s *Store) fetchStats(ctx context.Context) error {
	stats, err := s.api.Stats(ctx)
	if err != nil {
		return s.fail(ctx, "Failed to load statistics", err)
	}
	s.update(func(st *State) { st.Stats = stats })
	return nil
}

// Refresh reloads the page and the counters
func (s *Store) Refresh(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.fetchParents(ctx); err != nil {
		return err
	}
	return s.fetchStats(ctx)
}

// SetFilters replaces the filters, returns to page 1, clears the selection
// and refetches. Invalid filters leave the state untouched.
func (s *Store) SetFilters(ctx context.Context, f parent.Filters) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.setFilters(ctx, f)
}

func (s *Store) setFilters(ctx context.Context, f parent.Filters) error {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return s.fail(ctx, "Invalid filters", err)
	}
	s.update(func(st *State) {
		st.Filters = f
		st.Pagination.Current = 1
		st.Selected = []int64{}
	})
	return s.fetchParents(ctx)
}

// PatchFilters merges a JSON object into the current filters. Keys absent
// from patch keep their value; explicit nulls clear optional fields.
func (s *Store) PatchFilters(ctx context.Context, patch []byte) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	f := s.snapshot().Filters
	if err := json.Unmarshal(patch, &f); err != nil {
		return s.fail(ctx, "Invalid filters",
			shared.NewValidationError("filters", fmt.Sprintf("malformed JSON: %v", err)))
	}
	return s.setFilters(ctx, f)
}

// UpdateFilters applies fn to a copy of the current filters and sets the result
func (s *Store) UpdateFilters(ctx context.Context, fn func(f *parent.Filters)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	f := s.snapshot().Filters
	fn(&f)
	return s.setFilters(ctx, f)
}

// ResetFilters restores the default search, keeping the page size
func (s *Store) ResetFilters(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	f := parent.DefaultFilters()
	f.PerPage = s.snapshot().Filters.PerPage
	return s.setFilters(ctx, f)
}

// ApplyPreset overlays a quick filter on the current filters
func (s *Store) ApplyPreset(ctx context.Context, name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	f, err := s.snapshot().Filters.ApplyPreset(name, s.now())
	if err != nil {
		return s.fail(ctx, "Invalid filters", err)
	}
	return s.setFilters(ctx, f)
}

// Search sets the free-text query
func (s *Store) Search(ctx context.Context, query string) error {
	return s.UpdateFilters(ctx, func(f *parent.Filters) { f.Query = query })
}

// Sort sorts by field, flipping the order when it is already the sort field
func (s *Store) Sort(ctx context.Context, field string) error {
	return s.UpdateFilters(ctx, func(f *parent.Filters) { *f = f.ToggleSort(field) })
}

// SetPage moves to page n, clamped to the known page range
func (s *Store) SetPage(ctx context.Context, n int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.update(func(st *State) {
		st.Pagination.Current = min(max(n, 1), max(st.Pagination.Pages, 1))
		st.Selected = []int64{}
	})
	return s.fetchParents(ctx)
}

// Toggle flips the selection of a row on the current page. It reports
// whether id is selected afterwards and fails for ids not on the page.
func (s *Store) Toggle(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.rowIndex(id) < 0 {
		return false, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("parent %d is not on the current page", id))
	}
	for i, v := range s.state.Selected {
		if v == id {
			s.state.Selected = append(s.state.Selected[:i], s.state.Selected[i+1:]...)
			return false, nil
		}
	}
	s.state.Selected = append(s.state.Selected, id)
	return true, nil
}

// SelectAll selects every row on the page, or clears the selection when
// every row is already selected
func (s *Store) SelectAll() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.AllSelected() {
		s.state.Selected = []int64{}
		return []int64{}
	}
	ids := make([]int64, len(s.state.Parents))
	for i, p := range s.state.Parents {
		ids[i] = p.ID
	}
	s.state.Selected = ids
	return append([]int64{}, ids...)
}

// SetSelection replaces the selection, ignoring ids that are not on the page
func (s *Store) SetSelection(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Selected = []int64{}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] && s.state.rowIndex(id) >= 0 {
			seen[id] = true
			s.state.Selected = append(s.state.Selected, id)
		}
	}
	return append([]int64{}, s.state.Selected...)
}

// ClearSelection deselects everything
func (s *Store) ClearSelection() {
	s.update(func(st *State) { st.Selected = []int64{} })
}

// SelectedIDs returns the selection in the order it was made
func (s *Store) SelectedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64{}, s.state.Selected...)
}
