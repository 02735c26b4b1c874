package parent

import (
	"strings"

	"github.com/smartedu/dashboard/internal/domain/shared"
)

// Create is the payload for registering a new family
type Create struct {
	Name                   string         `json:"name" validate:"required,max=200"`
	Email                  string         `json:"email,omitempty" validate:"omitempty,email"`
	Phone                  string         `json:"phone,omitempty" validate:"omitempty,max=50"`
	SecondaryEmail         string         `json:"secondary_email,omitempty" validate:"omitempty,email"`
	SecondaryPhone         string         `json:"secondary_phone,omitempty" validate:"omitempty,max=50"`
	PartnerName            string         `json:"partner_name,omitempty"`
	Address                map[string]any `json:"address,omitempty"`
	Status                 Status         `json:"status,omitempty" validate:"omitempty,parent_status"`
	Stage                  Stage          `json:"stage,omitempty" validate:"omitempty,parent_stage"`
	Source                 string         `json:"source,omitempty"`
	SourceDetail           string         `json:"source_detail,omitempty"`
	PreferredContactMethod string         `json:"preferred_contact_method,omitempty" validate:"omitempty,oneof=email phone sms whatsapp"`
	PreferredContactTime   string         `json:"preferred_contact_time,omitempty"`
	Language               string         `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Tags                   []string       `json:"tags,omitempty" validate:"dive,required"`
	CustomFields           map[string]any `json:"custom_fields,omitempty"`
	Children               []ChildInput   `json:"children,omitempty" validate:"dive"`
}

// Validate checks the payload before it is sent
func (c Create) Validate() error {
	return validateStruct(c)
}

// Update carries only the fields to change; nil fields are left untouched
type Update struct {
	Name                   *string        `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email                  *string        `json:"email,omitempty" validate:"omitempty,email"`
	Phone                  *string        `json:"phone,omitempty" validate:"omitempty,max=50"`
	SecondaryEmail         *string        `json:"secondary_email,omitempty" validate:"omitempty,email"`
	SecondaryPhone         *string        `json:"secondary_phone,omitempty" validate:"omitempty,max=50"`
	PartnerName            *string        `json:"partner_name,omitempty"`
	Address                map[string]any `json:"address,omitempty"`
	Status                 *Status        `json:"status,omitempty" validate:"omitempty,parent_status"`
	Stage                  *Stage         `json:"stage,omitempty" validate:"omitempty,parent_stage"`
	Source                 *string        `json:"source,omitempty"`
	SourceDetail           *string        `json:"source_detail,omitempty"`
	PreferredContactMethod *string        `json:"preferred_contact_method,omitempty" validate:"omitempty,oneof=email phone sms whatsapp"`
	PreferredContactTime   *string        `json:"preferred_contact_time,omitempty"`
	Language               *string        `json:"language,omitempty"`
	Tags                   *[]string      `json:"tags,omitempty"`
	CustomFields           map[string]any `json:"custom_fields,omitempty"`
}

// Validate checks the payload before it is sent
func (u Update) Validate() error {
	if u.IsEmpty() {
		return shared.NewValidationError("update", "no fields to change")
	}
	return validateStruct(u)
}

// IsEmpty reports whether the update changes nothing
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.SecondaryEmail == nil &&
		u.SecondaryPhone == nil && u.PartnerName == nil && u.Address == nil && u.Status == nil &&
		u.Stage == nil && u.Source == nil && u.SourceDetail == nil && u.PreferredContactMethod == nil &&
		u.PreferredContactTime == nil && u.Language == nil && u.Tags == nil && u.CustomFields == nil
}

// ApplyTo copies the set fields onto p
func (u Update) ApplyTo(p *Parent) {
	setString(&p.Name, u.Name)
	setString(&p.Email, u.Email)
	setString(&p.Phone, u.Phone)
	setString(&p.SecondaryEmail, u.SecondaryEmail)
	setString(&p.SecondaryPhone, u.SecondaryPhone)
	setString(&p.PartnerName, u.PartnerName)
	setString(&p.Source, u.Source)
	setString(&p.SourceDetail, u.SourceDetail)
	setString(&p.PreferredContactMethod, u.PreferredContactMethod)
	setString(&p.PreferredContactTime, u.PreferredContactTime)
	setString(&p.Language, u.Language)
	if u.Address != nil {
		p.Address = cloneMap(u.Address)
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.Stage != nil {
		p.Stage = *u.Stage
	}
	if u.Tags != nil {
		p.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.CustomFields != nil {
		p.CustomFields = cloneMap(u.CustomFields)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// StatusUpdate returns an update that only changes the status
func StatusUpdate(s Status) Update {
	return Update{Status: &s}
}

// FieldUpdate builds an update for a single editable field from its form value
func FieldUpdate(field, value string) (Update, error) {
	v := strings.TrimSpace(value)
	var u Update
	switch field {
	case "name":
		if v == "" {
			return u, shared.NewValidationError("name", "is required")
		}
		u.Name = &v
	case "email":
		u.Email = &v
	case "phone":
		u.Phone = &v
	case "secondary_email":
		u.SecondaryEmail = &v
	case "secondary_phone":
		u.SecondaryPhone = &v
	case "partner_name":
		u.PartnerName = &v
	case "source":
		u.Source = &v
	case "source_detail":
		u.SourceDetail = &v
	case "preferred_contact_method":
		u.PreferredContactMethod = &v
	case "preferred_contact_time":
		u.PreferredContactTime = &v
	case "language":
		u.Language = &v
	case "status":
		s := Status(v)
		u.Status = &s
	case "stage":
		s := Stage(v)
		u.Stage = &s
	case "tags":
		tags := SplitTags(v)
		u.Tags = &tags
	default:
		return u, shared.NewValidationError("field", "cannot edit "+field)
	}
	return u, u.Validate()
}

// SplitTags parses a comma separated tag list, dropping blanks and duplicates
func SplitTags(s string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// ChildInput is the payload for adding or replacing a child
type ChildInput struct {
	Name                string `json:"name" validate:"required,max=200"`
	DOB                 string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CurrentYearGroup    string `json:"current_year_group,omitempty"`
	TargetYearGroup     string `json:"target_year_group,omitempty"`
	CurrentSchool       string `json:"current_school,omitempty"`
	Interests           string `json:"interests,omitempty"`
	SpecialRequirements string `json:"special_requirements,omitempty"`
}

// Validate checks the payload before it is sent
func (c ChildInput) Validate() error {
	return validateStruct(c)
}

// ApplyTo copies the input onto an existing child
func (c ChildInput) ApplyTo(ch *Child) {
	ch.Name = c.Name
	ch.DOB = c.DOB
	ch.CurrentYearGroup = c.CurrentYearGroup
	ch.TargetYearGroup = c.TargetYearGroup
	ch.CurrentSchool = c.CurrentSchool
	ch.Interests = c.Interests
	ch.SpecialRequirements = c.SpecialRequirements
}

// NoteInput is the payload for adding or editing a note
type NoteInput struct {
	Content  string `json:"content" validate:"required,max=10000"`
	NoteType string `json:"note_type,omitempty"`
}

// Validate checks the payload before it is sent
func (n NoteInput) Validate() error {
	if strings.TrimSpace(n.Content) == "" {
		return shared.NewValidationError("content", "is required")
	}
	return validateStruct(n)
}

// TaskInput is the payload for creating a task
type TaskInput struct {
	Title       string `json:"title" validate:"required,max=300"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Priority    string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
}

// Validate checks the payload before it is sent
func (t TaskInput) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return shared.NewValidationError("title", "is required")
	}
	return validateStruct(t)
}

// TaskUpdate changes selected task fields
type TaskUpdate struct {
	Title     *string `json:"title,omitempty" validate:"omitempty,min=1,max=300"`
	Completed *bool   `json:"completed,omitempty"`
	DueDate   *string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Priority  *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
}

// Validate checks the payload before it is sent
func (t TaskUpdate) Validate() error {
	return validateStruct(t)
}

// ApplyTo copies the set fields onto task
func (t TaskUpdate) ApplyTo(task *Task) {
	setString(&task.Title, t.Title)
	setString(&task.Priority, t.Priority)
	if t.Completed != nil {
		task.Completed = *t.Completed
	}
	if t.DueDate != nil {
		if d, err := ParseTime(*t.DueDate); err == nil {
			task.DueDate = NewTimestamp(d)
		}
	}
}

// EmailInput is the payload for sending an email to a parent
type EmailInput struct {
	Subject string `json:"subject" validate:"required,max=300"`
	Body    string `json:"body" validate:"required"`
}

// Validate checks the payload before it is sent
func (e EmailInput) Validate() error {
	return validateStruct(e)
}

// BulkStatus moves many parents to one status
type BulkStatus struct {
	ParentIDs []int64 `json:"parent_ids" validate:"min=1,dive,gt=0"`
	Status    Status  `json:"status" validate:"required,parent_status"`
}

// Validate checks the payload before it is sent
func (b BulkStatus) Validate() error {
	return validateStruct(b)
}

// BulkTags adds tags to many parents
type BulkTags struct {
	ParentIDs []int64  `json:"parent_ids" validate:"min=1,dive,gt=0"`
	Tags      []string `json:"tags" validate:"min=1,dive,required,max=50"`
}

// Validate checks the payload before it is sent
func (b BulkTags) Validate() error {
	return validateStruct(b)
}

// BulkDelete removes many parents
type BulkDelete struct {
	ParentIDs []int64 `json:"parent_ids" validate:"min=1,dive,gt=0"`
}

// Validate checks the payload before it is sent
func (b BulkDelete) Validate() error {
	return validateStruct(b)
}

// Merge folds duplicate records into a primary one
type Merge struct {
	PrimaryID    int64   `json:"primary_id" validate:"gt=0"`
	DuplicateIDs []int64 `json:"duplicate_ids" validate:"min=1,dive,gt=0"`
}

// Validate checks the payload and rejects merging a record into itself
func (m Merge) Validate() error {
	if err := validateStruct(m); err != nil {
		return err
	}
	for _, id := range m.DuplicateIDs {
		if id == m.PrimaryID {
			return shared.NewValidationError("duplicate_ids", "must not contain primary_id")
		}
	}
	return nil
}
