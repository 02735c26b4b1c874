package dashboard

import (
	"github.com/smartedu/dashboard/internal/domain/parent"
)

// Flash levels
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a toast waiting to be shown
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Pagination describes the page currently displayed
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
}

// Detail is the parent opened on the detail page plus its tabs
type Detail struct {
	Parent  parent.Details        `json:"parent"`
	Tasks   []parent.Task         `json:"tasks"`
	Emails  []parent.EmailSummary `json:"emails"`
	Journey []parent.JourneyEvent `json:"journey"`
	Partial map[string]string     `json:"partial,omitempty"` // tab -> reason it fell back
}

// State is everything a dashboard session shows
type State struct {
	Parents    []parent.Parent `json:"parents"`
	Filters    parent.Filters  `json:"filters"`
	Pagination Pagination      `json:"pagination"`
	Selected   []int64         `json:"selected"`
	Stats      *parent.Stats   `json:"stats,omitempty"`
	Current    *Detail         `json:"current,omitempty"`
	Loading    bool            `json:"loading"`
	Error      string          `json:"error,omitempty"`
	Flashes    []Flash         `json:"flashes,omitempty"`
}

// InitialState is the state of a fresh session
func InitialState() State {
	return State{
		Parents:    []parent.Parent{},
		Filters:    parent.DefaultFilters(),
		Pagination: Pagination{Current: 1, Pages: 1},
		Selected:   []int64{},
	}
}

// clone deep-copies the parts optimistic updates touch
func (s State) clone() State {
	cp := s
	cp.Parents = make([]parent.Parent, len(s.Parents))
	for i, p := range s.Parents {
		cp.Parents[i] = p.Clone()
	}
	cp.Selected = append([]int64{}, s.Selected...)
	cp.Flashes = append([]Flash(nil), s.Flashes...)
	if s.Current != nil {
		d := *s.Current
		d.Parent.Parent = s.Current.Parent.Parent.Clone()
		d.Parent.Children = append([]parent.Child(nil), s.Current.Parent.Children...)
		d.Parent.RecentNotes = append([]parent.Note(nil), s.Current.Parent.RecentNotes...)
		d.Tasks = append([]parent.Task(nil), s.Current.Tasks...)
		cp.Current = &d
	}
	if s.Stats != nil {
		st := *s.Stats
		cp.Stats = &st
	}
	return cp
}

// IsSelected reports whether id is in the selection
func (s State) IsSelected(id int64) bool {
	for _, v := range s.Selected {
		if v == id {
			return true
		}
	}
	return false
}

// AllSelected reports whether every row on the page is selected
func (s State) AllSelected() bool {
	return len(s.Parents) > 0 && len(s.Selected) == len(s.Parents)
}

func (s *State) rowIndex(id int64) int {
	for i := range s.Parents {
		if s.Parents[i].ID == id {
			return i
		}
	}
	return -1
}

// pruneSelection keeps only ids present on the page, in selection order
func (s *State) pruneSelection() {
	kept := s.Selected[:0]
	for _, id := range s.Selected {
		if s.rowIndex(id) >= 0 {
			kept = append(kept, id)
		}
	}
	s.Selected = kept
}
