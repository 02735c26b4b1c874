package parent

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/smartedu/dashboard/internal/domain/shared"
)

// Defaults applied to a fresh search
const (
	DefaultPerPage   = 20
	MaxPerPage       = 100
	DefaultSortBy    = "created_at"
	DefaultSortOrder = "desc"
)

// SortFields are the columns the backend accepts for sort_by
var SortFields = []string{
	"created_at", "updated_at", "name", "lead_score",
	"engagement_score", "risk_score", "last_contact_date",
}

// Filters is the search state of the parent list
type Filters struct {
	Query         string   `json:"query,omitempty"`
	Status        Status   `json:"status,omitempty" validate:"omitempty,parent_status"`
	Stage         Stage    `json:"stage,omitempty" validate:"omitempty,parent_stage"`
	Source        string   `json:"source,omitempty"`
	MinLeadScore  *int     `json:"min_lead_score,omitempty" validate:"omitempty,min=0,max=100"`
	MaxLeadScore  *int     `json:"max_lead_score,omitempty" validate:"omitempty,min=0,max=100"`
	Tags          []string `json:"tags,omitempty" validate:"dive,required"`
	CreatedAfter  string   `json:"created_after,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CreatedBefore string   `json:"created_before,omitempty" validate:"omitempty,datetime=2006-01-02"`
	HasChildren   *bool    `json:"has_children,omitempty"`
	PerPage       int      `json:"per_page" validate:"min=1,max=100"`
	SortBy        string   `json:"sort_by" validate:"sort_field"`
	SortOrder     string   `json:"sort_order" validate:"oneof=asc desc"`
}

// DefaultFilters returns an empty search sorted newest first
func DefaultFilters() Filters {
	return Filters{
		PerPage:   DefaultPerPage,
		SortBy:    DefaultSortBy,
		SortOrder: DefaultSortOrder,
	}
}

// Normalize fills zero-valued paging and sort fields with their defaults
func (f Filters) Normalize() Filters {
	if f.PerPage == 0 {
		f.PerPage = DefaultPerPage
	}
	if f.SortBy == "" {
		f.SortBy = DefaultSortBy
	}
	if f.SortOrder == "" {
		f.SortOrder = DefaultSortOrder
	}
	return f
}

// Validate checks field ranges and cross-field constraints
func (f Filters) Validate() error {
	if err := validateStruct(f); err != nil {
		return err
	}
	if f.MinLeadScore != nil && f.MaxLeadScore != nil && *f.MinLeadScore > *f.MaxLeadScore {
		return shared.NewValidationError("min_lead_score", "must not exceed max_lead_score")
	}
	if f.CreatedAfter != "" && f.CreatedBefore != "" && f.CreatedAfter > f.CreatedBefore {
		return shared.NewValidationError("created_after", "must not be after created_before")
	}
	return nil
}

// IsFiltered reports whether any narrowing filter is set
func (f Filters) IsFiltered() bool {
	return f.Query != "" || f.Status != "" || f.Stage != "" || f.Source != "" ||
		f.MinLeadScore != nil || f.MaxLeadScore != nil || len(f.Tags) > 0 ||
		f.CreatedAfter != "" || f.CreatedBefore != "" || f.HasChildren != nil
}

// Values encodes the filters and page as search parameters. Empty values are
// left out so the backend applies its own defaults.
func (f Filters) Values(page int) url.Values {
	f = f.Normalize()
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("query", f.Query)
	set("status", string(f.Status))
	set("stage", string(f.Stage))
	set("source", f.Source)
	if f.MinLeadScore != nil {
		q.Set("min_lead_score", strconv.Itoa(*f.MinLeadScore))
	}
	if f.MaxLeadScore != nil {
		q.Set("max_lead_score", strconv.Itoa(*f.MaxLeadScore))
	}
	for _, tag := range f.Tags {
		if tag != "" {
			q.Add("tags", tag)
		}
	}
	set("created_after", f.CreatedAfter)
	set("created_before", f.CreatedBefore)
	if f.HasChildren != nil {
		q.Set("has_children", strconv.FormatBool(*f.HasChildren))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(f.PerPage))
	q.Set("sort_by", f.SortBy)
	q.Set("sort_order", f.SortOrder)
	return q
}

// ToggleSort sorts by field. Choosing the current field flips the order,
// a new field starts descending.
func (f Filters) ToggleSort(field string) Filters {
	f = f.Normalize()
	if f.SortBy == field {
		if f.SortOrder == "desc" {
			f.SortOrder = "asc"
		} else {
			f.SortOrder = "desc"
		}
		return f
	}
	f.SortBy = field
	f.SortOrder = "desc"
	return f
}

// Quick filter presets
const (
	PresetHotLeads   = "hot_leads"
	PresetAtRisk     = "at_risk"
	PresetRecent     = "recent"
	PresetNoChildren = "no_children"
)

// Presets lists the quick filters in display order
var Presets = []string{PresetHotLeads, PresetAtRisk, PresetRecent, PresetNoChildren}

// ApplyPreset overlays a quick filter on f. now anchors the "recent" window.
func (f Filters) ApplyPreset(name string, now time.Time) (Filters, error) {
	switch name {
	case PresetHotLeads:
		f.Status = StatusLead
		f.MinLeadScore = intPtr(80)
		f.MaxLeadScore = nil
	case PresetAtRisk:
		f.Status = StatusApplicant
		f.MinLeadScore = nil
		f.MaxLeadScore = intPtr(30)
	case PresetRecent:
		f.CreatedAfter = now.AddDate(0, 0, -7).Format(time.DateOnly)
	case PresetNoChildren:
		no := false
		f.HasChildren = &no
	default:
		return f, shared.NewValidationError("preset", fmt.Sprintf("unknown quick filter %q", name))
	}
	return f, nil
}

func intPtr(v int) *int { return &v }
