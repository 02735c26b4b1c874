package dto

import (
	"strconv"
	"strings"

	"github.com/smartedu/dashboard/internal/domain/parent"
)

// LoginForm is posted by the sign-in page
type LoginForm struct {
	Token      string `form:"token" json:"token" binding:"required"`
	CustomerID string `form:"customer_id" json:"customer_id" binding:"omitempty,max=64"`
}

// FiltersForm is the advanced filter panel. Every field is optional; blank
// values clear the matching filter.
type FiltersForm struct {
	Query         string `form:"query" json:"query"`
	Status        string `form:"status" json:"status"`
	Stage         string `form:"stage" json:"stage"`
	Source        string `form:"source" json:"source"`
	MinLeadScore  string `form:"min_lead_score" json:"min_lead_score"`
	MaxLeadScore  string `form:"max_lead_score" json:"max_lead_score"`
	Tags          string `form:"tags" json:"tags"`
	CreatedAfter  string `form:"created_after" json:"created_after"`
	CreatedBefore string `form:"created_before" json:"created_before"`
	HasChildren   string `form:"has_children" json:"has_children"` // "", "yes" or "no"
	PerPage       int    `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=100"`
}

// Apply overlays the form on base, keeping base's sort. A score that is not
// a number is reported as a validation error.
func (f FiltersForm) Apply(base parent.Filters) (parent.Filters, error) {
	out := base
	out.Query = strings.TrimSpace(f.Query)
	out.Status = parent.Status(strings.TrimSpace(f.Status))
	out.Stage = parent.Stage(strings.TrimSpace(f.Stage))
	out.Source = strings.TrimSpace(f.Source)
	out.CreatedAfter = strings.TrimSpace(f.CreatedAfter)
	out.CreatedBefore = strings.TrimSpace(f.CreatedBefore)
	out.Tags = parent.SplitTags(f.Tags)
	if len(out.Tags) == 0 {
		out.Tags = nil
	}

	var err error
	if out.MinLeadScore, err = optionalInt("min_lead_score", f.MinLeadScore); err != nil {
		return base, err
	}
	if out.MaxLeadScore, err = optionalInt("max_lead_score", f.MaxLeadScore); err != nil {
		return base, err
	}

	switch f.HasChildren {
	case "yes", "true":
		v := true
		out.HasChildren = &v
	case "no", "false":
		v := false
		out.HasChildren = &v
	default:
		out.HasChildren = nil
	}
	if f.PerPage > 0 {
		out.PerPage = f.PerPage
	}
	return out, nil
}

func optionalInt(field, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &FieldError{Field: field, Message: "must be a whole number"}
	}
	return &v, nil
}

// FieldError is a form value that could not be parsed
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Bulk actions offered by the selection bar
const (
	BulkActionTag    = "tag"
	BulkActionStatus = "status"
	BulkActionDelete = "delete"
	BulkActionExport = "export"
	BulkActionEmail  = "email"
)

// BulkForm applies an action to the selected parents. IDs default to the
// current selection when empty.
type BulkForm struct {
	Action string  `form:"action" json:"action" binding:"required,oneof=tag status delete export email"`
	Status string  `form:"status" json:"status" binding:"required_if=Action status"`
	Tag    string  `form:"tag" json:"tag" binding:"required_if=Action tag"`
	IDs    []int64 `form:"ids" json:"ids" binding:"omitempty,dive,gt=0"`
}

// ParentForm is the new-family form
type ParentForm struct {
	Name                   string `form:"name" json:"name" binding:"required,max=200"`
	Email                  string `form:"email" json:"email"`
	Phone                  string `form:"phone" json:"phone"`
	PartnerName            string `form:"partner_name" json:"partner_name"`
	Status                 string `form:"status" json:"status"`
	Stage                  string `form:"stage" json:"stage"`
	Source                 string `form:"source" json:"source"`
	SourceDetail           string `form:"source_detail" json:"source_detail"`
	PreferredContactMethod string `form:"preferred_contact_method" json:"preferred_contact_method"`
	Language               string `form:"language" json:"language"`
	Tags                   string `form:"tags" json:"tags"`
	ChildName              string `form:"child_name" json:"child_name"`
	ChildDOB               string `form:"child_dob" json:"child_dob"`
	ChildYearGroup         string `form:"child_year_group" json:"child_year_group"`
}

// ToCreate converts the form into the backend payload
func (f ParentForm) ToCreate() parent.Create {
	in := parent.Create{
		Name:                   strings.TrimSpace(f.Name),
		Email:                  strings.ToLower(strings.TrimSpace(f.Email)),
		Phone:                  strings.TrimSpace(f.Phone),
		PartnerName:            strings.TrimSpace(f.PartnerName),
		Status:                 parent.Status(f.Status),
		Stage:                  parent.Stage(f.Stage),
		Source:                 strings.TrimSpace(f.Source),
		SourceDetail:           strings.TrimSpace(f.SourceDetail),
		PreferredContactMethod: f.PreferredContactMethod,
		Language:               strings.TrimSpace(f.Language),
	}
	if tags := parent.SplitTags(f.Tags); len(tags) > 0 {
		in.Tags = tags
	}
	if name := strings.TrimSpace(f.ChildName); name != "" {
		in.Children = []parent.ChildInput{{
			Name:            name,
			DOB:             strings.TrimSpace(f.ChildDOB),
			TargetYearGroup: strings.TrimSpace(f.ChildYearGroup),
		}}
	}
	return in
}

// FieldForm edits one field on the detail page
type FieldForm struct {
	Field string `form:"field" json:"field" binding:"required"`
	Value string `form:"value" json:"value"`
}

// NoteForm adds a note
type NoteForm struct {
	Content  string `form:"content" json:"content" binding:"required"`
	NoteType string `form:"note_type" json:"note_type"`
}

// TaskForm adds a task
type TaskForm struct {
	Title       string `form:"title" json:"title" binding:"required"`
	Description string `form:"description" json:"description"`
	DueDate     string `form:"due_date" json:"due_date"`
	Priority    string `form:"priority" json:"priority"`
}

// ToInput converts the form into the backend payload
func (f TaskForm) ToInput() parent.TaskInput {
	return parent.TaskInput{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		DueDate:     strings.TrimSpace(f.DueDate),
		Priority:    f.Priority,
	}
}

// TaskStateForm marks a task done or open
type TaskStateForm struct {
	Completed bool `form:"completed" json:"completed"`
}

// ChildForm adds or edits a child
type ChildForm struct {
	Name                string `form:"name" json:"name" binding:"required"`
	DOB                 string `form:"dob" json:"dob"`
	CurrentYearGroup    string `form:"current_year_group" json:"current_year_group"`
	TargetYearGroup     string `form:"target_year_group" json:"target_year_group"`
	CurrentSchool       string `form:"current_school" json:"current_school"`
	Interests           string `form:"interests" json:"interests"`
	SpecialRequirements string `form:"special_requirements" json:"special_requirements"`
}

// ToInput converts the form into the backend payload
func (f ChildForm) ToInput() parent.ChildInput {
	return parent.ChildInput{
		Name:                strings.TrimSpace(f.Name),
		DOB:                 strings.TrimSpace(f.DOB),
		CurrentYearGroup:    strings.TrimSpace(f.CurrentYearGroup),
		TargetYearGroup:     strings.TrimSpace(f.TargetYearGroup),
		CurrentSchool:       strings.TrimSpace(f.CurrentSchool),
		Interests:           strings.TrimSpace(f.Interests),
		SpecialRequirements: strings.TrimSpace(f.SpecialRequirements),
	}
}

// EmailForm composes an email to one parent
type EmailForm struct {
	Subject string `form:"subject" json:"subject" binding:"required,max=300"`
	Body    string `form:"body" json:"body" binding:"required"`
}

// MergeForm folds duplicates into a primary record
type MergeForm struct {
	PrimaryID    int64   `form:"primary_id" json:"primary_id" binding:"required,gt=0"`
	DuplicateIDs []int64 `form:"duplicate_ids" json:"duplicate_ids" binding:"required,min=1,dive,gt=0"`
}

// SaveViewForm stores the current filters under a name
type SaveViewForm struct {
	Name string `form:"name" json:"name" binding:"required,max=100"`
}

// PageRequest moves the list to another page
type PageRequest struct {
	Page int `form:"page" json:"page" binding:"required,min=1"`
}

// Selection actions
const (
	SelectToggle = "toggle"
	SelectAll    = "all"
	SelectClear  = "clear"
	SelectSet    = "set"
)

// SelectionRequest changes the row selection
type SelectionRequest struct {
	Action string  `form:"action" json:"action" binding:"required,oneof=toggle all clear set"`
	ID     int64   `form:"id" json:"id" binding:"required_if=Action toggle"`
	IDs    []int64 `form:"ids" json:"ids"`
}
