package dashboard

import (
	"encoding/json"
	"fmt"

	"github.com/smartedu/dashboard/internal/domain/parent"
)

const snapshotVersion = 1

type snapshot struct {
	Version int   `json:"version"`
	State   State `json:"state"`
}

// Snapshot serialises the state so a session can be resumed
func (s *Store) Snapshot() ([]byte, error) {
	st := s.snapshot()
	st.Loading = false
	data, err := json.Marshal(snapshot{Version: snapshotVersion, State: st})
	if err != nil {
		return nil, fmt.Errorf("marshal dashboard state: %w", err)
	}
	return data, nil
}

// Restore replaces the state with a snapshot, repairing anything that would
// break the list invariants
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal dashboard state: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported dashboard state version %d", snap.Version)
	}

	st := snap.State
	st.Loading = false
	if st.Parents == nil {
		st.Parents = []parent.Parent{}
	}
	if st.Selected == nil {
		st.Selected = []int64{}
	}
	st.Filters = st.Filters.Normalize()
	if st.Filters.Validate() != nil {
		st.Filters = parent.DefaultFilters()
	}
	st.Pagination.Pages = max(st.Pagination.Pages, 1)
	st.Pagination.Current = min(max(st.Pagination.Current, 1), st.Pagination.Pages)
	st.Pagination.Total = max(st.Pagination.Total, 0)
	st.pruneSelection()

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}
