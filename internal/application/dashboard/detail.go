package dashboard

import (
	"cmp"
	"context"
	"fmt"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const detailEmailLimit = 50

// LoadDetail opens a parent. The tasks, emails and journey tabs load in
// parallel; an endpoint the backend does not offer falls back to what the
// details payload embeds.
func (s *Store) LoadDetail(ctx context.Context, id int64) (_ *Detail, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "load_detail", telemetry.WithAttribute("parent_id", id))
	defer func() { telemetry.End(span, err) }()

	s.update(func(st *State) { st.Loading = true })
	details, err := s.api.Get(ctx, id)
	if err != nil {
		s.update(func(st *State) {
			st.Loading = false
			st.Current = nil
		})
		return nil, s.fail(ctx, "Failed to load parent", err, zap.Int64("parent_id", id))
	}

	d := &Detail{
		Parent:  *details,
		Tasks:   []parent.Task{},
		Emails:  details.RecentEmails,
		Journey: details.JourneyEvents,
		Partial: map[string]string{},
	}

	var (
		tasks   []parent.Task
		emails  []parent.EmailSummary
		journey []parent.JourneyEvent
		tabErrs = make([]error, 3)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, tabErrs[0] = s.api.Tasks(gctx, id)
		return nil
	})
	g.Go(func() error {
		emails, tabErrs[1] = s.api.Emails(gctx, id, detailEmailLimit)
		return nil
	})
	g.Go(func() error {
		journey, tabErrs[2] = s.api.Journey(gctx, id)
		return nil
	})
	_ = g.Wait()

	if err := s.tab(ctx, d, "tasks", tabErrs[0], id); err == nil && tasks != nil {
		d.Tasks = tasks
	}
	if err := s.tab(ctx, d, "communications", tabErrs[1], id); err == nil && emails != nil {
		d.Emails = emails
	}
	if err := s.tab(ctx, d, "journey", tabErrs[2], id); err == nil && journey != nil {
		d.Journey = journey
	}
	normalizeDetail(d)

	s.update(func(st *State) {
		st.Loading = false
		st.Current = d
	})
	cp := s.snapshot().Current
	return cp, nil
}

// tab records why a secondary tab fell back. Missing endpoints are expected;
// other failures are logged but do not fail the page.
func (s *Store) tab(ctx context.Context, d *Detail, name string, err error, id int64) error {
	if err == nil {
		return nil
	}
	if apiclient.IsUnsupported(err) {
		d.Partial[name] = "not available"
		return err
	}
	d.Partial[name] = apiclient.Message(err)
	s.log(ctx).Warn("detail tab failed to load",
		zap.String("tab", name),
		zap.Int64("parent_id", id),
		zap.Error(err))
	return err
}

func normalizeDetail(d *Detail) {
	if d.Emails == nil {
		d.Emails = []parent.EmailSummary{}
	}
	if d.Journey == nil {
		d.Journey = []parent.JourneyEvent{}
	}
	if d.Parent.Children == nil {
		d.Parent.Children = []parent.Child{}
	}
	if d.Parent.RecentNotes == nil {
		d.Parent.RecentNotes = []parent.Note{}
	}
}

// withCurrent runs fn on the open detail when it is parentID
func (s *Store) withCurrent(parentID int64, fn func(d *Detail)) {
	s.update(func(st *State) {
		if st.Current != nil && st.Current.Parent.ID == parentID {
			fn(st.Current)
		}
	})
}

// AddNote prepends a placeholder note, then swaps in the saved one
func (s *Store) AddNote(ctx context.Context, parentID int64, in parent.NoteInput) (*parent.Note, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to add note", err)
	}

	prev := s.snapshot()
	placeholder := parent.Note{ID: -1, ParentID: parentID, Content: in.Content, NoteType: in.NoteType, CreatedAt: parent.NewTimestamp(s.now())}
	s.withCurrent(parentID, func(d *Detail) {
		d.Parent.RecentNotes = append([]parent.Note{placeholder}, d.Parent.RecentNotes...)
	})

	note, err := s.api.AddNote(ctx, parentID, in)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to add note", err, zap.Int64("parent_id", parentID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Parent.RecentNotes {
			if d.Parent.RecentNotes[i].ID == placeholder.ID {
				d.Parent.RecentNotes[i] = *note
				break
			}
		}
	})
	s.Toast(FlashSuccess, "Note added")
	return note, nil
}

// AddTask appends a placeholder task, then swaps in the saved one
func (s *Store) AddTask(ctx context.Context, parentID int64, in parent.TaskInput) (*parent.Task, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to add task", err)
	}

	prev := s.snapshot()
	placeholder := parent.Task{ID: -1, ParentID: parentID, Title: in.Title, Description: in.Description, Priority: in.Priority}
	if in.DueDate != "" {
		if due, err := parent.ParseTime(in.DueDate); err == nil {
			placeholder.DueDate = parent.NewTimestamp(due)
		}
	}
	s.withCurrent(parentID, func(d *Detail) {
		d.Tasks = append(d.Tasks, placeholder)
		d.Parent.TaskCount++
	})

	task, err := s.api.AddTask(ctx, parentID, in)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to add task", err, zap.Int64("parent_id", parentID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Tasks {
			if d.Tasks[i].ID == placeholder.ID {
				d.Tasks[i] = *task
				break
			}
		}
	})
	s.Toast(FlashSuccess, "Task added")
	return task, nil
}

// UpdateTask changes a task of the open parent
func (s *Store) UpdateTask(ctx context.Context, parentID, taskID int64, upd parent.TaskUpdate) (*parent.Task, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := upd.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to update task", err)
	}

	prev := s.snapshot()
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Tasks {
			if d.Tasks[i].ID == taskID {
				upd.ApplyTo(&d.Tasks[i])
			}
		}
	})

	task, err := s.api.UpdateTask(ctx, taskID, upd)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to update task", err, zap.Int64("parent_id", parentID), zap.Int64("task_id", taskID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Tasks {
			if d.Tasks[i].ID == taskID && task.ID != 0 {
				d.Tasks[i] = *task
			}
		}
	})
	return task, nil
}

// DeleteTask removes a task of the open parent
func (s *Store) DeleteTask(ctx context.Context, parentID, taskID int64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	prev := s.snapshot()
	s.withCurrent(parentID, func(d *Detail) {
		kept := make([]parent.Task, 0, len(d.Tasks))
		for _, t := range d.Tasks {
			if t.ID != taskID {
				kept = append(kept, t)
			}
		}
		if len(kept) < len(d.Tasks) {
			d.Parent.TaskCount = max(d.Parent.TaskCount-1, 0)
		}
		d.Tasks = kept
	})

	if err := s.api.DeleteTask(ctx, taskID); err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to delete task", err, zap.Int64("parent_id", parentID), zap.Int64("task_id", taskID))
	}
	s.Toast(FlashSuccess, "Task deleted")
	return nil
}

// AddChild appends a placeholder child, then swaps in the saved one
func (s *Store) AddChild(ctx context.Context, parentID int64, in parent.ChildInput) (*parent.Child, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to add child", err)
	}

	prev := s.snapshot()
	placeholder := parent.Child{ID: -1, ParentID: parentID}
	in.ApplyTo(&placeholder)
	s.withCurrent(parentID, func(d *Detail) {
		d.Parent.Children = append(d.Parent.Children, placeholder)
	})

	child, err := s.api.AddChild(ctx, parentID, in)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to add child", err, zap.Int64("parent_id", parentID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Parent.Children {
			if d.Parent.Children[i].ID == placeholder.ID {
				d.Parent.Children[i] = *child
				break
			}
		}
	})
	s.Toast(FlashSuccess, fmt.Sprintf("Added %s", child.Name))
	return child, nil
}

// UpdateChild changes a child of the open parent
func (s *Store) UpdateChild(ctx context.Context, parentID, childID int64, in parent.ChildInput) (*parent.Child, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to update child", err)
	}

	prev := s.snapshot()
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Parent.Children {
			if d.Parent.Children[i].ID == childID {
				in.ApplyTo(&d.Parent.Children[i])
			}
		}
	})

	child, err := s.api.UpdateChild(ctx, childID, in)
	if err != nil {
		s.revert(prev)
		return nil, s.fail(ctx, "Failed to update child", err, zap.Int64("parent_id", parentID), zap.Int64("child_id", childID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		for i := range d.Parent.Children {
			if d.Parent.Children[i].ID == childID && child.ID != 0 {
				d.Parent.Children[i] = *child
			}
		}
	})
	s.Toast(FlashSuccess, "Child updated")
	return child, nil
}

// DeleteChild removes a child of the open parent
func (s *Store) DeleteChild(ctx context.Context, parentID, childID int64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	prev := s.snapshot()
	s.withCurrent(parentID, func(d *Detail) {
		kept := make([]parent.Child, 0, len(d.Parent.Children))
		for _, c := range d.Parent.Children {
			if c.ID != childID {
				kept = append(kept, c)
			}
		}
		d.Parent.Children = kept
	})

	if err := s.api.DeleteChild(ctx, childID); err != nil {
		s.revert(prev)
		return s.fail(ctx, "Failed to remove child", err, zap.Int64("parent_id", parentID), zap.Int64("child_id", childID))
	}
	s.Toast(FlashSuccess, "Child removed")
	return nil
}

// SendEmail sends an email and records it on the communications tab
func (s *Store) SendEmail(ctx context.Context, parentID int64, in parent.EmailInput) (*parent.EmailSummary, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to send email", err)
	}
	sent, err := s.api.SendEmail(ctx, parentID, in)
	if err != nil {
		return nil, s.fail(ctx, "Failed to send email", err, zap.Int64("parent_id", parentID))
	}
	s.withCurrent(parentID, func(d *Detail) {
		d.Emails = append([]parent.EmailSummary{*sent}, d.Emails...)
		d.Parent.EmailCount++
	})
	s.Toast(FlashSuccess, "Email sent")
	return sent, nil
}

// Email loads one email with its body
func (s *Store) Email(ctx context.Context, emailID int64) (*parent.Email, error) {
	email, err := s.api.Email(ctx, emailID)
	if err != nil {
		return nil, s.fail(ctx, "Failed to load email", err, zap.Int64("email_id", emailID))
	}
	return email, nil
}

// BulkEmail sends the same email to each parent in turn and toasts once.
// It reports how many were sent; the error is the first failure.
func (s *Store) BulkEmail(ctx context.Context, ids []int64, in parent.EmailInput) (_ int, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "bulk_email", telemetry.WithAttribute("parent_ids", ids))
	defer func() { telemetry.End(span, err) }()

	if len(ids) == 0 {
		return 0, s.fail(ctx, "Failed to send emails", shared.NewValidationError("ids", "select at least one parent"))
	}
	if err := in.Validate(); err != nil {
		return 0, s.fail(ctx, "Failed to send emails", err)
	}

	var (
		sent     int
		failed   []int64
		firstErr error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			firstErr = cmp.Or(firstErr, err)
			break
		}
		if _, err := s.api.SendEmail(ctx, id, in); err != nil {
			failed = append(failed, id)
			firstErr = cmp.Or(firstErr, err)
			continue
		}
		sent++
	}

	if firstErr != nil {
		s.log(ctx).Warn("bulk email incomplete",
			zap.Int("sent", sent), zap.Int64s("failed_ids", failed), zap.Error(firstErr))
		s.Toast(FlashError, fmt.Sprintf("Sent %d of %d emails: %s", sent, len(ids), apiclient.Message(firstErr)))
		return sent, firstErr
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Sent %d emails", sent))
	return sent, nil
}
