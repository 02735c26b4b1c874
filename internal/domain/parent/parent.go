// Package parent holds the admissions backend's family records and the
// pure rules the dashboard applies to them: filters, optimistic updates
// and duplicate detection.
package parent

// Parent is a prospective family as returned by the admissions backend
type Parent struct {
	ID                     int64          `json:"id"`
	ParentID               string         `json:"parent_id"`
	CustomerID             string         `json:"customer_id"`
	Name                   string         `json:"name"`
	Email                  string         `json:"email,omitempty"`
	Phone                  string         `json:"phone,omitempty"`
	SecondaryEmail         string         `json:"secondary_email,omitempty"`
	SecondaryPhone         string         `json:"secondary_phone,omitempty"`
	PartnerName            string         `json:"partner_name,omitempty"`
	Address                map[string]any `json:"address,omitempty"`
	Status                 Status         `json:"status"`
	Stage                  Stage          `json:"stage"`
	Source                 string         `json:"source,omitempty"`
	SourceDetail           string         `json:"source_detail,omitempty"`
	LeadScore              int            `json:"lead_score"`
	EngagementScore        int            `json:"engagement_score"`
	RiskScore              int            `json:"risk_score"`
	PreferredContactMethod string         `json:"preferred_contact_method,omitempty"`
	PreferredContactTime   string         `json:"preferred_contact_time,omitempty"`
	Language               string         `json:"language,omitempty"`
	Tags                   []string       `json:"tags"`
	CustomFields           map[string]any `json:"custom_fields,omitempty"`
	CreatedAt              Timestamp      `json:"created_at"`
	UpdatedAt              Timestamp      `json:"updated_at"`
	FirstContactDate       Timestamp      `json:"first_contact_date"`
	LastContactDate        Timestamp      `json:"last_contact_date"`
}

// HasTag reports whether the parent carries tag
func (p *Parent) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present
func (p *Parent) AddTag(tag string) {
	if tag == "" || p.HasTag(tag) {
		return
	}
	p.Tags = append(p.Tags, tag)
}

// Sentiment buckets the engagement score: "up" at 70 and above, "down" at 30 and below
func (p *Parent) Sentiment() string {
	switch {
	case p.EngagementScore >= 70:
		return "up"
	case p.EngagementScore <= 30:
		return "down"
	default:
		return "flat"
	}
}

// Clone returns a deep copy of the slices and maps a view may mutate
func (p Parent) Clone() Parent {
	cp := p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	cp.Address = cloneMap(p.Address)
	cp.CustomFields = cloneMap(p.CustomFields)
	return cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Child is a prospective pupil belonging to a parent
type Child struct {
	ID                  int64     `json:"id"`
	ParentID            int64     `json:"parent_id"`
	Name                string    `json:"name"`
	DOB                 string    `json:"dob,omitempty"`
	CurrentYearGroup    string    `json:"current_year_group,omitempty"`
	TargetYearGroup     string    `json:"target_year_group,omitempty"`
	CurrentSchool       string    `json:"current_school,omitempty"`
	Interests           string    `json:"interests,omitempty"`
	SpecialRequirements string    `json:"special_requirements,omitempty"`
	CreatedAt           Timestamp `json:"created_at"`
	UpdatedAt           Timestamp `json:"updated_at"`
}

// Note is a free-text note recorded against a parent
type Note struct {
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parent_id"`
	Content   string    `json:"content"`
	NoteType  string    `json:"note_type"`
	CreatedBy string    `json:"created_by"`
	CreatedAt Timestamp `json:"created_at"`
}

// Task is a follow-up action for a parent
type Task struct {
	ID          int64     `json:"id"`
	ParentID    int64     `json:"parent_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     Timestamp `json:"due_date"`
	Priority    string    `json:"priority,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   Timestamp `json:"created_at"`
}

// EmailSummary is the list form of an email exchanged with a parent
type EmailSummary struct {
	ID             int64     `json:"id"`
	Subject        string    `json:"subject"`
	FromAddress    string    `json:"from_address"`
	Direction      string    `json:"direction"` // inbound or outbound
	SentimentScore *float64  `json:"sentiment_score"`
	SentimentLabel string    `json:"sentiment_label,omitempty"`
	DateReceived   Timestamp `json:"date_received"`
	Status         string    `json:"status"`
	BodyPreview    string    `json:"body_preview,omitempty"`
}

// Inbound reports whether the email was received from the parent
func (e EmailSummary) Inbound() bool {
	return e.Direction == "inbound"
}

// Email is a full email including its body
type Email struct {
	EmailSummary
	ToAddress string `json:"to_address,omitempty"`
	Body      string `json:"body"`
	BodyHTML  string `json:"body_html,omitempty"`
}

// JourneyEvent is a timestamped interaction in a parent's admissions journey
type JourneyEvent struct {
	ID           int64     `json:"id"`
	EventType    string    `json:"event_type"`
	EventSubtype string    `json:"event_subtype,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	EventDate    Timestamp `json:"event_date"`
	ImpactScore  *int      `json:"impact_score"`
}

// Details is a parent with its related records, as shown on the detail page
type Details struct {
	Parent
	Children      []Child        `json:"children"`
	RecentEmails  []EmailSummary `json:"recent_emails"`
	RecentNotes   []Note         `json:"recent_notes"`
	JourneyEvents []JourneyEvent `json:"journey_events"`
	EmailCount    int            `json:"email_count"`
	TaskCount     int            `json:"task_count"`
}

// ListPage is one page of search results
type ListPage struct {
	Parents []Parent `json:"parents"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
	Pages   int      `json:"pages"`
}

// Stats are the aggregate counters shown above the parent list
type Stats struct {
	TotalParents      int            `json:"total_parents"`
	ByStatus          map[string]int `json:"by_status"`
	ByStage           map[string]int `json:"by_stage"`
	BySource          map[string]int `json:"by_source"`
	AverageLeadScore  float64        `json:"average_lead_score"`
	HighRiskCount     int            `json:"high_risk_count"`
	RecentEnquiries7d int            `json:"recent_enquiries_7d"`
	ConversionRate    float64        `json:"conversion_rate"`
}

// ImportResult reports the outcome of a bulk import
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportError describes one rejected import row
type ImportError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}
