package devbackend

import (
	"github.com/smartedu/dashboard/internal/domain/parent"
)

func (s *Store) exists(t *tenant, parentID int64) bool {
	_, ok := t.parents[parentID]
	return ok
}

// Children lists a parent's children
func (s *Store) Children(customerID string, parentID int64) ([]parent.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)
	if !s.exists(t, parentID) {
		return nil, errNotFound
	}
	return t.childrenOf(parentID), nil
}

// AddChild attaches a child to a parent
func (s *Store) AddChild(customerID string, parentID int64, in parent.ChildInput) (parent.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	if !s.exists(t, parentID) {
		return parent.Child{}, errNotFound
	}
	now := parent.NewTimestamp(s.now().UTC())
	ch := &parent.Child{ID: s.id(), ParentID: parentID, CreatedAt: now, UpdatedAt: now}
	in.ApplyTo(ch)
	t.children[ch.ID] = ch
	return *ch, nil
}

// UpdateChild replaces a child's fields
func (s *Store) UpdateChild(customerID string, childID int64, in parent.ChildInput) (parent.Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.tenant(customerID).children[childID]
	if !ok {
		return parent.Child{}, errNotFound
	}
	in.ApplyTo(ch)
	ch.UpdatedAt = parent.NewTimestamp(s.now().UTC())
	return *ch, nil
}

// DeleteChild removes a child
func (s *Store) DeleteChild(customerID string, childID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	if _, ok := t.children[childID]; !ok {
		return errNotFound
	}
	delete(t.children, childID)
	return nil
}

// Notes lists a parent's notes, newest first
func (s *Store) Notes(customerID string, parentID int64, limit int) ([]parent.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)
	if !s.exists(t, parentID) {
		return nil, errNotFound
	}
	return t.notesOf(parentID, limit), nil
}

// AddNote records a note by userID
func (s *Store) AddNote(customerID string, parentID int64, userID string, in parent.NoteInput) (parent.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	p, ok := t.parents[parentID]
	if !ok {
		return parent.Note{}, errNotFound
	}
	now := parent.NewTimestamp(s.now().UTC())
	n := &parent.Note{
		ID:        s.id(),
		ParentID:  parentID,
		Content:   in.Content,
		NoteType:  in.NoteType,
		CreatedBy: userID,
		CreatedAt: now,
	}
	if n.NoteType == "" {
		n.NoteType = "general"
	}
	t.notes[n.ID] = n
	p.LastContactDate = now
	return *n, nil
}

// UpdateNote edits a note
func (s *Store) UpdateNote(customerID string, noteID int64, in parent.NoteInput) (parent.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.tenant(customerID).notes[noteID]
	if !ok {
		return parent.Note{}, errNotFound
	}
	n.Content = in.Content
	if in.NoteType != "" {
		n.NoteType = in.NoteType
	}
	return *n, nil
}

// DeleteNote removes a note
func (s *Store) DeleteNote(customerID string, noteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	if _, ok := t.notes[noteID]; !ok {
		return errNotFound
	}
	delete(t.notes, noteID)
	return nil
}

// Tasks lists a parent's tasks by due date
func (s *Store) Tasks(customerID string, parentID int64) ([]parent.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)
	if !s.exists(t, parentID) {
		return nil, errNotFound
	}
	return t.tasksOf(parentID), nil
}

// AddTask creates a task
func (s *Store) AddTask(customerID string, parentID int64, in parent.TaskInput) (parent.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	if !s.exists(t, parentID) {
		return parent.Task{}, errNotFound
	}
	task := &parent.Task{
		ID:          s.id(),
		ParentID:    parentID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		CreatedAt:   parent.NewTimestamp(s.now().UTC()),
	}
	if task.Priority == "" {
		task.Priority = "medium"
	}
	if in.DueDate != "" {
		if d, err := parent.ParseTime(in.DueDate); err == nil {
			task.DueDate = parent.NewTimestamp(d)
		}
	}
	t.tasks[task.ID] = task
	return *task, nil
}

// UpdateTask applies a partial task update
func (s *Store) UpdateTask(customerID string, taskID int64, upd parent.TaskUpdate) (parent.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tenant(customerID).tasks[taskID]
	if !ok {
		return parent.Task{}, errNotFound
	}
	upd.ApplyTo(task)
	return *task, nil
}

// DeleteTask removes a task
func (s *Store) DeleteTask(customerID string, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	if _, ok := t.tasks[taskID]; !ok {
		return errNotFound
	}
	delete(t.tasks, taskID)
	return nil
}

// Emails lists a parent's emails, newest first
func (s *Store) Emails(customerID string, parentID int64, limit int) ([]parent.EmailSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)
	if !s.exists(t, parentID) {
		return nil, errNotFound
	}
	return t.emailsOf(parentID, limit), nil
}

// Email returns one email with its body
func (s *Store) Email(customerID string, emailID int64) (parent.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.view(customerID).emails[emailID]
	if !ok {
		return parent.Email{}, errNotFound
	}
	return *e, nil
}

// SendEmail records an outbound email and a journey event
func (s *Store) SendEmail(customerID string, parentID int64, in parent.EmailInput) (parent.EmailSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	p, ok := t.parents[parentID]
	if !ok {
		return parent.EmailSummary{}, errNotFound
	}
	now := parent.NewTimestamp(s.now().UTC())
	e := &parent.Email{
		EmailSummary: parent.EmailSummary{
			ID:           s.id(),
			Subject:      in.Subject,
			FromAddress:  "admissions@school.example",
			Direction:    "outbound",
			DateReceived: now,
			Status:       "sent",
			BodyPreview:  preview(in.Body),
		},
		ToAddress: p.Email,
		Body:      in.Body,
	}
	t.emails[e.ID] = e
	t.owner[e.ID] = parentID
	t.journey[parentID] = append([]parent.JourneyEvent{{
		ID: s.id(), EventType: "email", EventSubtype: "outbound", Title: in.Subject, EventDate: now,
	}}, t.journey[parentID]...)
	p.LastContactDate = now
	return e.EmailSummary, nil
}

// Journey lists a parent's journey events, newest first
func (s *Store) Journey(customerID string, parentID int64) ([]parent.JourneyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)
	if !s.exists(t, parentID) {
		return nil, errNotFound
	}
	return append([]parent.JourneyEvent{}, t.journey[parentID]...), nil
}
