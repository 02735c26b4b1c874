// Package devbackend is an in-memory admissions backend for local
// development. It speaks the same wire format as the real service and is
// seeded with fake families.
package devbackend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/smartedu/dashboard/internal/domain/parent"
)

type tenant struct {
	parents  map[int64]*parent.Parent
	children map[int64]*parent.Child
	notes    map[int64]*parent.Note
	tasks    map[int64]*parent.Task
	emails   map[int64]*parent.Email
	owner    map[int64]int64 // email id -> parent id
	journey  map[int64][]parent.JourneyEvent
}

func newTenant() *tenant {
	return &tenant{
		parents:  make(map[int64]*parent.Parent),
		children: make(map[int64]*parent.Child),
		notes:    make(map[int64]*parent.Note),
		tasks:    make(map[int64]*parent.Task),
		emails:   make(map[int64]*parent.Email),
		owner:    make(map[int64]int64),
		journey:  make(map[int64][]parent.JourneyEvent),
	}
}

// Store holds every tenant's records
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*tenant
	nextID  int64
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{tenants: make(map[string]*tenant), now: time.Now}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) tenant(customerID string) *tenant {
	t, ok := s.tenants[customerID]
	if !ok {
		t = newTenant()
		s.tenants[customerID] = t
	}
	return t
}

// view is tenant for read paths; an unknown tenant is not stored
func (s *Store) view(customerID string) *tenant {
	if t, ok := s.tenants[customerID]; ok {
		return t
	}
	return newTenant()
}

var (
	seedStatuses = []string{"lead", "lead", "warm", "warm", "applicant", "offer_made", "enrolled", "lost"}
	seedStages   = []string{"awareness", "interest", "consideration", "intent", "evaluation", "enrolled"}
	seedSources  = []string{"website", "open_day", "referral", "social_media", "agent", "walk_in"}
	seedTags     = []string{"sibling", "scholarship", "boarding", "international", "sen", "bursary", "vip"}
	seedYears    = []string{"Reception", "Year 1", "Year 3", "Year 5", "Year 7", "Year 9", "Year 12"}
)

// Seed adds n fake families to customerID. The same seed yields the same data.
func (s *Store) Seed(customerID string, n int, seed uint64) {
	f := gofakeit.New(seed)

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(customerID)
	now := s.now().UTC()

	for i := 0; i < n; i++ {
		created := f.DateRange(now.AddDate(-1, 0, 0), now)
		last := f.DateRange(created, now)
		first, lastName := f.FirstName(), f.LastName()

		p := &parent.Parent{
			ID:                     s.id(),
			CustomerID:             customerID,
			Name:                   first + " " + lastName,
			Email:                  strings.ToLower(fmt.Sprintf("%s.%s@%s", first, lastName, f.DomainName())),
			Phone:                  f.Phone(),
			Address:                map[string]any{"street": f.Street(), "city": f.City(), "postcode": f.Zip()},
			Status:                 parent.Status(f.RandomString(seedStatuses)),
			Stage:                  parent.Stage(f.RandomString(seedStages)),
			Source:                 f.RandomString(seedSources),
			LeadScore:              f.Number(0, 100),
			EngagementScore:        f.Number(0, 100),
			RiskScore:              f.Number(0, 100),
			PreferredContactMethod: f.RandomString([]string{"email", "phone", "sms", "whatsapp"}),
			Language:               f.RandomString([]string{"en", "en", "fr", "zh", "ar"}),
			Tags:                   []string{},
			CreatedAt:              parent.NewTimestamp(created),
			UpdatedAt:              parent.NewTimestamp(last),
			FirstContactDate:       parent.NewTimestamp(created),
			LastContactDate:        parent.NewTimestamp(last),
		}
		if f.Bool() {
			p.PartnerName = f.FirstName() + " " + lastName
		}
		for j := f.Number(0, 2); j > 0; j-- {
			p.AddTag(f.RandomString(seedTags))
		}
		p.ParentID = parentRef(p.ID)
		t.parents[p.ID] = p

		for j := f.Number(0, 3); j > 0; j-- {
			ch := &parent.Child{
				ID:              s.id(),
				ParentID:        p.ID,
				Name:            f.FirstName() + " " + lastName,
				DOB:             f.DateRange(now.AddDate(-17, 0, 0), now.AddDate(-4, 0, 0)).Format(time.DateOnly),
				TargetYearGroup: f.RandomString(seedYears),
				CurrentSchool:   f.Company() + " School",
				CreatedAt:       parent.NewTimestamp(created),
				UpdatedAt:       parent.NewTimestamp(created),
			}
			t.children[ch.ID] = ch
		}

		for j := f.Number(0, 4); j > 0; j-- {
			sent := f.DateRange(created, now)
			direction := f.RandomString([]string{"inbound", "outbound"})
			from := "admissions@school.example"
			if direction == "inbound" {
				from = p.Email
			}
			score := f.Float64Range(-1, 1)
			body := f.Paragraph(2, 3, 12, "\n\n")
			e := &parent.Email{
				EmailSummary: parent.EmailSummary{
					ID:             s.id(),
					Subject:        f.Sentence(6),
					FromAddress:    from,
					Direction:      direction,
					SentimentScore: &score,
					SentimentLabel: sentimentLabel(score),
					DateReceived:   parent.NewTimestamp(sent),
					Status:         "delivered",
					BodyPreview:    preview(body),
				},
				Body: body,
			}
			t.emails[e.ID] = e
			t.owner[e.ID] = p.ID
		}

		for j := f.Number(0, 2); j > 0; j-- {
			task := &parent.Task{
				ID:        s.id(),
				ParentID:  p.ID,
				Title:     "Follow up: " + f.Sentence(3),
				DueDate:   parent.NewTimestamp(f.DateRange(now.AddDate(0, 0, -7), now.AddDate(0, 0, 21))),
				Priority:  f.RandomString([]string{"low", "medium", "high"}),
				Completed: f.Bool(),
				CreatedAt: parent.NewTimestamp(created),
			}
			t.tasks[task.ID] = task
		}

		events := []parent.JourneyEvent{{
			ID:        s.id(),
			EventType: "enquiry",
			Title:     "Enquiry received via " + parent.Label(p.Source),
			EventDate: parent.NewTimestamp(created),
		}}
		for j := f.Number(0, 3); j > 0; j-- {
			impact := f.Number(-10, 20)
			events = append(events, parent.JourneyEvent{
				ID:          s.id(),
				EventType:   f.RandomString([]string{"visit", "call", "email", "event"}),
				Title:       f.Sentence(4),
				Description: f.Sentence(10),
				EventDate:   parent.NewTimestamp(f.DateRange(created, now)),
				ImpactScore: &impact,
			})
		}
		sortJourney(events)
		t.journey[p.ID] = events
	}
}

func sentimentLabel(score float64) string {
	switch {
	case score > 0.3:
		return "positive"
	case score < -0.3:
		return "negative"
	default:
		return "neutral"
	}
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if r := []rune(body); len(r) > 120 {
		return string(r[:120]) + "…"
	}
	return body
}

func sortJourney(events []parent.JourneyEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventDate.After(events[j].EventDate.Time)
	})
}
