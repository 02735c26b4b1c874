package dashboard

import (
	"context"
	"fmt"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// UpdateParent applies upd to the cached row and open detail, sends it, and
// reconciles with the server's copy. Failure reverts and toasts.
func (s *Store) UpdateParent(ctx context.Context, id int64, upd parent.Update) (_ *parent.Parent, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "update_parent", telemetry.WithAttribute("parent_id", id))
	defer func() { telemetry.End(span, err) }()

	if err := upd.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to update parent", err, zap.Int64("parent_id", id))
	}

	prev := s.snapshot()
	s.update(func(st *State) {
		if i := st.rowIndex(id); i >= 0 {
			upd.ApplyTo(&st.Parents[i])
		}
		if st.Current != nil && st.Current.Parent.ID == id {
			upd.ApplyTo(&st.Current.Parent.Parent)
		}
	})

	updated, err := s.api.Update(ctx, id, upd)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to update parent", err, zap.Int64("parent_id", id))
	}

	s.update(func(st *State) {
		if i := st.rowIndex(id); i >= 0 {
			st.Parents[i] = updated.Clone()
		}
		if st.Current != nil && st.Current.Parent.ID == id {
			st.Current.Parent.Parent = updated.Clone()
		}
	})
	s.Toast(FlashSuccess, "Parent updated")
	return updated, nil
}

// BulkUpdateStatus moves the given parents to status
func (s *Store) BulkUpdateStatus(ctx context.Context, ids []int64, status parent.Status) (err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "bulk_update_status",
		telemetry.WithAttribute("parent_ids", ids),
		telemetry.WithAttribute("status", string(status)),
	)
	defer func() { telemetry.End(span, err) }()

	in := parent.BulkStatus{ParentIDs: ids, Status: status}
	if err := in.Validate(); err != nil {
		return s.fail(ctx, "Failed to update status", err)
	}

	prev := s.snapshot()
	s.update(func(st *State) {
		for _, id := range ids {
			if i := st.rowIndex(id); i >= 0 {
				st.Parents[i].Status = status
			}
		}
		if st.Current != nil && contains(ids, st.Current.Parent.ID) {
			st.Current.Parent.Status = status
		}
	})

	res, err := s.api.BulkUpdateStatus(ctx, in)
	if err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to update status", err, zap.Int64s("parent_ids", ids))
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Updated status for %d parents", affected(res.Affected(), len(ids))))
	return nil
}

// BulkAddTag adds tag to the given parents
func (s *Store) BulkAddTag(ctx context.Context, ids []int64, tag string) (err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "bulk_add_tag", telemetry.WithAttribute("parent_ids", ids))
	defer func() { telemetry.End(span, err) }()

	in := parent.BulkTags{ParentIDs: ids, Tags: []string{tag}}
	if err := in.Validate(); err != nil {
		return s.fail(ctx, "Failed to add tag", err)
	}

	prev := s.snapshot()
	s.update(func(st *State) {
		for _, id := range ids {
			if i := st.rowIndex(id); i >= 0 {
				st.Parents[i].AddTag(tag)
			}
		}
		if st.Current != nil && contains(ids, st.Current.Parent.ID) {
			st.Current.Parent.AddTag(tag)
		}
	})

	res, err := s.api.BulkAddTags(ctx, in)
	if err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to add tag", err, zap.Int64s("parent_ids", ids), zap.String("tag", tag))
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Tagged %d parents with %q", affected(res.Affected(), len(ids)), tag))
	return nil
}

// BulkDelete removes the given parents from the page, the total and the
// selection, then deletes them on the backend
func (s *Store) BulkDelete(ctx context.Context, ids []int64) (err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "bulk_delete", telemetry.WithAttribute("parent_ids", ids))
	defer func() { telemetry.End(span, err) }()

	in := parent.BulkDelete{ParentIDs: ids}
	if err := in.Validate(); err != nil {
		return s.fail(ctx, "Failed to delete parents", err)
	}

	prev := s.snapshot()
	s.removeRows(ids)

	res, err := s.api.BulkDelete(ctx, in)
	if err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to delete parents", err, zap.Int64s("parent_ids", ids))
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Deleted %d parents", affected(res.Affected(), len(ids))))
	return s.refillPage(ctx)
}

// DeleteParent removes one parent
func (s *Store) DeleteParent(ctx context.Context, id int64) (err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "delete_parent", telemetry.WithAttribute("parent_id", id))
	defer func() { telemetry.End(span, err) }()

	prev := s.snapshot()
	s.removeRows([]int64{id})

	if err := s.api.Delete(ctx, id); err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to delete parent", err, zap.Int64("parent_id", id))
	}
	s.Toast(FlashSuccess, "Parent deleted")
	return s.refillPage(ctx)
}

func (s *Store) removeRows(ids []int64) {
	s.update(func(st *State) {
		kept := st.Parents[:0]
		removed := 0
		for _, p := range st.Parents {
			if contains(ids, p.ID) {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		st.Parents = kept
		st.Pagination.Total = max(st.Pagination.Total-removed, 0)
		st.pruneSelection()
		if st.Current != nil && contains(ids, st.Current.Parent.ID) {
			st.Current = nil
		}
	})
}

// refillPage steps back a page when a delete emptied the last one
func (s *Store) refillPage(ctx context.Context) error {
	st := s.snapshot()
	if len(st.Parents) > 0 || st.Pagination.Total == 0 {
		return nil
	}
	s.update(func(st *State) {
		if st.Pagination.Current > 1 {
			st.Pagination.Current--
		}
	})
	return s.fetchParents(ctx)
}

// CreateParent creates a parent, then reloads the page and counters.
// Ids are assigned by the backend so nothing is inserted locally.
func (s *Store) CreateParent(ctx context.Context, in parent.Create) (_ *parent.Parent, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "create_parent")
	defer func() { telemetry.End(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to create parent", err)
	}
	created, err := s.api.Create(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, "Failed to create parent", err, zap.String("name", in.Name))
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Created %s", created.Name))

	// A failed reload already toasts; the create itself succeeded.
	_ = s.fetchParents(ctx)
	_ = s.fetchStats(ctx)
	return created, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func affected(reported, requested int) int {
	if reported > 0 {
		return reported
	}
	return requested
}
