package devbackend

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/smartedu/dashboard/internal/domain/parent"
)

var errNotFound = errors.New("not found")

// SearchParams are the decoded /parents/search query parameters
type SearchParams struct {
	Query         string
	Status        string
	Stage         string
	Source        string
	MinLeadScore  *int
	MaxLeadScore  *int
	Tags          []string
	CreatedAfter  string
	CreatedBefore string
	HasChildren   *bool
	Page          int
	PerPage       int
	SortBy        string
	SortOrder     string
}

func (t *tenant) childCount(parentID int64) int {
	n := 0
	for _, ch := range t.children {
		if ch.ParentID == parentID {
			n++
		}
	}
	return n
}

func (t *tenant) matches(p *parent.Parent, q SearchParams) bool {
	if q.Query != "" {
		needle := strings.ToLower(q.Query)
		hay := strings.ToLower(p.Name + " " + p.Email + " " + p.Phone + " " + p.PartnerName)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	if q.Status != "" && string(p.Status) != q.Status {
		return false
	}
	if q.Stage != "" && string(p.Stage) != q.Stage {
		return false
	}
	if q.Source != "" && p.Source != q.Source {
		return false
	}
	if q.MinLeadScore != nil && p.LeadScore < *q.MinLeadScore {
		return false
	}
	if q.MaxLeadScore != nil && p.LeadScore > *q.MaxLeadScore {
		return false
	}
	for _, tag := range q.Tags {
		if !p.HasTag(tag) {
			return false
		}
	}
	created := p.CreatedAt.UTC().Format(time.DateOnly)
	if q.CreatedAfter != "" && created < q.CreatedAfter {
		return false
	}
	if q.CreatedBefore != "" && created > q.CreatedBefore {
		return false
	}
	if q.HasChildren != nil && (t.childCount(p.ID) > 0) != *q.HasChildren {
		return false
	}
	return true
}

func less(a, b *parent.Parent, field string) bool {
	switch field {
	case "name":
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	case "lead_score":
		return a.LeadScore < b.LeadScore
	case "engagement_score":
		return a.EngagementScore < b.EngagementScore
	case "risk_score":
		return a.RiskScore < b.RiskScore
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt.Time)
	case "last_contact_date":
		return a.LastContactDate.Before(b.LastContactDate.Time)
	default:
		return a.CreatedAt.Before(b.CreatedAt.Time)
	}
}

// Search filters, sorts and pages a tenant's parents
func (s *Store) Search(customerID string, q SearchParams) parent.ListPage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)

	matched := make([]*parent.Parent, 0, len(t.parents))
	for _, p := range t.parents {
		if t.matches(p, q) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case less(a, b, q.SortBy):
			return q.SortOrder == "asc"
		case less(b, a, q.SortBy):
			return q.SortOrder != "asc"
		default:
			return a.ID < b.ID
		}
	})

	perPage := q.PerPage
	if perPage < 1 {
		perPage = parent.DefaultPerPage
	}
	page := max(q.Page, 1)
	out := parent.ListPage{
		Parents: []parent.Parent{},
		Total:   len(matched),
		Page:    page,
		PerPage: perPage,
		Pages:   int(math.Ceil(float64(len(matched)) / float64(perPage))),
	}
	start := (page - 1) * perPage
	for i := start; i < len(matched) && i < start+perPage; i++ {
		out.Parents = append(out.Parents, matched[i].Clone())
	}
	return out
}

// All returns every parent of a tenant in id order, or only ids when given
func (s *Store) All(customerID string, ids []int64) []parent.Parent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)

	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []parent.Parent{}
	for _, p := range t.parents {
		if len(want) == 0 || want[p.ID] {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats aggregates a tenant's parents
func (s *Store) Stats(customerID string) parent.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)

	st := parent.Stats{
		TotalParents: len(t.parents),
		ByStatus:     map[string]int{},
		ByStage:      map[string]int{},
		BySource:     map[string]int{},
	}
	weekAgo := s.now().AddDate(0, 0, -7)
	var scoreSum, enrolled int
	for _, p := range t.parents {
		st.ByStatus[string(p.Status)]++
		st.ByStage[string(p.Stage)]++
		if p.Source != "" {
			st.BySource[p.Source]++
		}
		scoreSum += p.LeadScore
		if p.RiskScore >= 70 {
			st.HighRiskCount++
		}
		if p.CreatedAt.After(weekAgo) {
			st.RecentEnquiries7d++
		}
		if p.Status == parent.StatusEnrolled {
			enrolled++
		}
	}
	if st.TotalParents > 0 {
		st.AverageLeadScore = math.Round(float64(scoreSum)/float64(st.TotalParents)*10) / 10
		st.ConversionRate = math.Round(float64(enrolled)/float64(st.TotalParents)*1000) / 10
	}
	return st
}

// Get returns a parent with its related records
func (s *Store) Get(customerID string, id int64) (*parent.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.view(customerID)

	p, ok := t.parents[id]
	if !ok {
		return nil, errNotFound
	}
	d := &parent.Details{
		Parent:        p.Clone(),
		Children:      t.childrenOf(id),
		RecentEmails:  t.emailsOf(id, 5),
		RecentNotes:   t.notesOf(id, 5),
		JourneyEvents: append([]parent.JourneyEvent{}, t.journey[id]...),
	}
	d.EmailCount = len(t.emailsOf(id, 0))
	d.TaskCount = len(t.tasksOf(id))
	return d, nil
}

func (t *tenant) childrenOf(id int64) []parent.Child {
	out := []parent.Child{}
	for _, ch := range t.children {
		if ch.ParentID == id {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tenant) notesOf(id int64, limit int) []parent.Note {
	out := []parent.Note{}
	for _, n := range t.notes {
		if n.ParentID == id {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t *tenant) tasksOf(id int64) []parent.Task {
	out := []parent.Task{}
	for _, task := range t.tasks {
		if task.ParentID == id {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out
}

func (t *tenant) emailsOf(id int64, limit int) []parent.EmailSummary {
	out := []parent.EmailSummary{}
	for eid, e := range t.emails {
		if t.owner[eid] == id {
			out = append(out, e.EmailSummary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateReceived.After(out[j].DateReceived.Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Create adds a parent and any children in the payload
func (s *Store) Create(customerID string, in parent.Create) parent.Parent {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	now := parent.NewTimestamp(s.now().UTC())

	p := &parent.Parent{
		ID:                     s.id(),
		CustomerID:             customerID,
		Name:                   in.Name,
		Email:                  in.Email,
		Phone:                  in.Phone,
		SecondaryEmail:         in.SecondaryEmail,
		SecondaryPhone:         in.SecondaryPhone,
		PartnerName:            in.PartnerName,
		Address:                in.Address,
		Status:                 in.Status,
		Stage:                  in.Stage,
		Source:                 in.Source,
		SourceDetail:           in.SourceDetail,
		PreferredContactMethod: in.PreferredContactMethod,
		PreferredContactTime:   in.PreferredContactTime,
		Language:               in.Language,
		Tags:                   append([]string{}, in.Tags...),
		CustomFields:           in.CustomFields,
		LeadScore:              50,
		EngagementScore:        50,
		CreatedAt:              now,
		UpdatedAt:              now,
		FirstContactDate:       now,
		LastContactDate:        now,
	}
	if p.Status == "" {
		p.Status = parent.StatusLead
	}
	if p.Stage == "" {
		p.Stage = parent.StageAwareness
	}
	p.ParentID = parentRef(p.ID)
	t.parents[p.ID] = p

	for _, c := range in.Children {
		ch := &parent.Child{ID: s.id(), ParentID: p.ID, CreatedAt: now, UpdatedAt: now}
		c.ApplyTo(ch)
		t.children[ch.ID] = ch
	}
	t.journey[p.ID] = []parent.JourneyEvent{{
		ID: s.id(), EventType: "enquiry", Title: "Record created", EventDate: now,
	}}
	return p.Clone()
}

func parentRef(id int64) string {
	return fmt.Sprintf("P%06d", id)
}

// Update applies a partial update
func (s *Store) Update(customerID string, id int64, upd parent.Update) (parent.Parent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tenant(customerID).parents[id]
	if !ok {
		return parent.Parent{}, errNotFound
	}
	upd.ApplyTo(p)
	p.UpdatedAt = parent.NewTimestamp(s.now().UTC())
	return p.Clone(), nil
}

// Delete removes parents and everything attached to them, returning how many existed
func (s *Store) Delete(customerID string, ids ...int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)

	n := 0
	for _, id := range ids {
		if _, ok := t.parents[id]; !ok {
			continue
		}
		n++
		delete(t.parents, id)
		delete(t.journey, id)
		for cid, ch := range t.children {
			if ch.ParentID == id {
				delete(t.children, cid)
			}
		}
		for nid, note := range t.notes {
			if note.ParentID == id {
				delete(t.notes, nid)
			}
		}
		for tid, task := range t.tasks {
			if task.ParentID == id {
				delete(t.tasks, tid)
			}
		}
		for eid, owner := range t.owner {
			if owner == id {
				delete(t.owner, eid)
				delete(t.emails, eid)
			}
		}
	}
	return n
}

// BulkStatus moves the given parents to status
func (s *Store) BulkStatus(customerID string, ids []int64, status parent.Status) int {
	return s.each(customerID, ids, func(p *parent.Parent) { p.Status = status })
}

// BulkTags adds tags to the given parents
func (s *Store) BulkTags(customerID string, ids []int64, tags []string) int {
	return s.each(customerID, ids, func(p *parent.Parent) {
		for _, tag := range tags {
			p.AddTag(tag)
		}
	})
}

func (s *Store) each(customerID string, ids []int64, fn func(*parent.Parent)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	now := parent.NewTimestamp(s.now().UTC())
	n := 0
	for _, id := range ids {
		if p, ok := t.parents[id]; ok {
			fn(p)
			p.UpdatedAt = now
			n++
		}
	}
	return n
}

// Merge moves the duplicates' related records onto the primary and deletes them
func (s *Store) Merge(customerID string, m parent.Merge) (parent.Parent, error) {
	s.mu.Lock()
	t := s.tenant(customerID)
	primary, ok := t.parents[m.PrimaryID]
	if !ok {
		s.mu.Unlock()
		return parent.Parent{}, errNotFound
	}
	for _, dupID := range m.DuplicateIDs {
		dup, ok := t.parents[dupID]
		if !ok {
			continue
		}
		for _, tag := range dup.Tags {
			primary.AddTag(tag)
		}
		if primary.Phone == "" {
			primary.Phone = dup.Phone
		}
		if primary.Email == "" {
			primary.Email = dup.Email
		} else if dup.Email != "" && dup.Email != primary.Email && primary.SecondaryEmail == "" {
			primary.SecondaryEmail = dup.Email
		}
		for _, ch := range t.children {
			if ch.ParentID == dupID {
				ch.ParentID = primary.ID
			}
		}
		for _, note := range t.notes {
			if note.ParentID == dupID {
				note.ParentID = primary.ID
			}
		}
		for _, task := range t.tasks {
			if task.ParentID == dupID {
				task.ParentID = primary.ID
			}
		}
		for eid, owner := range t.owner {
			if owner == dupID {
				t.owner[eid] = primary.ID
			}
		}
		t.journey[primary.ID] = append(t.journey[primary.ID], t.journey[dupID]...)
		delete(t.journey, dupID)
		delete(t.parents, dupID)
	}
	sortJourney(t.journey[primary.ID])
	primary.UpdatedAt = parent.NewTimestamp(s.now().UTC())
	out := primary.Clone()
	s.mu.Unlock()
	return out, nil
}
