package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
)

// Canonical import columns, in the order a cleaned file is written
var Columns = []string{
	"name", "email", "phone", "secondary_email", "secondary_phone", "partner_name",
	"status", "stage", "source", "source_detail", "preferred_contact_method",
	"preferred_contact_time", "language", "tags", "child_name", "child_dob", "child_year_group",
}

// RequiredColumns must appear in the header
var RequiredColumns = []string{"name"}

var aliases = map[string]string{
	"full_name":        "name",
	"parent_name":      "name",
	"parent":           "name",
	"contact_name":     "name",
	"email_address":    "email",
	"e_mail":           "email",
	"mail":             "email",
	"phone_number":     "phone",
	"telephone":        "phone",
	"mobile":           "phone",
	"mobile_phone":     "phone",
	"alt_email":        "secondary_email",
	"alt_phone":        "secondary_phone",
	"partner":          "partner_name",
	"spouse":           "partner_name",
	"lead_status":      "status",
	"pipeline_stage":   "stage",
	"lead_source":      "source",
	"contact_method":   "preferred_contact_method",
	"contact_time":     "preferred_contact_time",
	"labels":           "tags",
	"child":            "child_name",
	"student":          "child_name",
	"student_name":     "child_name",
	"child_birthdate":  "child_dob",
	"date_of_birth":    "child_dob",
	"dob":              "child_dob",
	"year_group":       "child_year_group",
	"target_year":      "child_year_group",
	"entry_year_group": "child_year_group",
}

// CanonicalColumn normalizes a header cell and resolves known aliases
func CanonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '/':
			return '_'
		}
		return r
	}, h)
	h = strings.Trim(h, "_")
	if canon, ok := aliases[h]; ok {
		return canon
	}
	return h
}

func known(column string) bool {
	for _, c := range Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Options bounds a preview
type Options struct {
	MaxRows int
}

// DefaultOptions matches the backend's import limit
func DefaultOptions() Options {
	return Options{MaxRows: 5000}
}

// PreviewRow is one mapped line with the problems found on it
type PreviewRow struct {
	Line   int           `json:"line"`
	Parent parent.Create `json:"parent"`
	Errors []RowError    `json:"errors,omitempty"`
}

// OK reports whether the row can be imported
func (r PreviewRow) OK() bool {
	return len(r.Errors) == 0
}

// Preview is the dry run of an upload
type Preview struct {
	Headers   []string     `json:"headers"`
	Ignored   []string     `json:"ignored,omitempty"`
	Rows      []PreviewRow `json:"rows"`
	Valid     int          `json:"valid"`
	Invalid   int          `json:"invalid"`
	Truncated bool         `json:"truncated"`
}

// BuildPreview parses an upload and validates every row without sending anything
func BuildPreview(r io.Reader, opts Options, parserOpts ...ParserOption) (*Preview, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultOptions().MaxRows
	}

	p, err := NewParser(r, parserOpts...)
	if err != nil {
		return nil, err
	}
	if err := p.ParseHeader(); err != nil {
		return nil, err
	}
	if missing := p.MissingHeaders(RequiredColumns); len(missing) > 0 {
		return nil, &RowError{
			Row:     1,
			Code:    ErrCodeMissingHeader,
			Message: "missing required columns: " + strings.Join(missing, ", "),
		}
	}

	pv := &Preview{Rows: []PreviewRow{}}
	for _, h := range p.Headers() {
		if h == "" {
			continue
		}
		if known(h) {
			pv.Headers = append(pv.Headers, h)
		} else {
			pv.Ignored = append(pv.Ignored, h)
		}
	}

	seen := map[string]int{}
	for {
		row, err := p.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var re *RowError
			if !errors.As(err, &re) {
				return nil, err
			}
			pv.add(PreviewRow{Line: re.Row, Errors: []RowError{*re}})
			continue
		}
		if row.IsEmpty() {
			continue
		}
		if len(pv.Rows) >= opts.MaxRows {
			pv.Truncated = true
			break
		}

		pr := mapRow(row)
		if key := dedupeKey(pr.Parent); key != "" {
			if first, dup := seen[key]; dup {
				pr.Errors = append(pr.Errors, RowError{
					Row:     row.LineNumber,
					Column:  "email",
					Code:    ErrCodeDuplicateInFile,
					Message: fmt.Sprintf("same contact as row %d", first),
					Value:   key,
				})
			} else {
				seen[key] = row.LineNumber
			}
		}
		pv.add(pr)
	}

	if len(pv.Rows) == 0 {
		return nil, ErrNoDataRows
	}
	return pv, nil
}

func (pv *Preview) add(r PreviewRow) {
	pv.Rows = append(pv.Rows, r)
	if r.OK() {
		pv.Valid++
	} else {
		pv.Invalid++
	}
}

// Errors flattens the row errors in line order
func (pv *Preview) Errors() []RowError {
	var out []RowError
	for _, r := range pv.Rows {
		out = append(out, r.Errors...)
	}
	return out
}

// CleanCSV re-encodes only the importable rows with canonical headers
func (pv *Preview) CleanCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, r := range pv.Rows {
		if !r.OK() {
			continue
		}
		if err := w.Write(record(r.Parent)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write import file: %w", err)
	}
	return buf.Bytes(), nil
}

func mapRow(row *Row) PreviewRow {
	get := row.Get
	c := parent.Create{
		Name:                   get("name"),
		Email:                  strings.ToLower(get("email")),
		Phone:                  get("phone"),
		SecondaryEmail:         strings.ToLower(get("secondary_email")),
		SecondaryPhone:         get("secondary_phone"),
		PartnerName:            get("partner_name"),
		Status:                 parent.Status(strings.ToLower(get("status"))),
		Stage:                  parent.Stage(strings.ToLower(get("stage"))),
		Source:                 get("source"),
		SourceDetail:           get("source_detail"),
		PreferredContactMethod: strings.ToLower(get("preferred_contact_method")),
		PreferredContactTime:   get("preferred_contact_time"),
		Language:               get("language"),
	}
	if tags := get("tags"); tags != "" {
		c.Tags = parent.SplitTags(strings.ReplaceAll(tags, ";", ","))
	}

	pr := PreviewRow{Line: row.LineNumber}
	if err := c.Validate(); err != nil {
		pr.Errors = append(pr.Errors, rowError(row, err, ""))
	}

	if name := get("child_name"); name != "" || get("child_dob") != "" {
		child := parent.ChildInput{
			Name:            name,
			DOB:             get("child_dob"),
			TargetYearGroup: get("child_year_group"),
		}
		if err := child.Validate(); err != nil {
			pr.Errors = append(pr.Errors, rowError(row, err, "child_"))
		} else {
			c.Children = []parent.ChildInput{child}
		}
	}
	pr.Parent = c
	return pr
}

func rowError(row *Row, err error, prefix string) RowError {
	re := RowError{Row: row.LineNumber, Code: ErrCodeInvalidValue, Message: err.Error()}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Field != "" {
		re.Column = prefix + de.Field
		re.Message = de.Message
		re.Value = row.Get(re.Column)
		if re.Value == "" {
			re.Code = ErrCodeRequiredField
		}
	}
	return re
}

func dedupeKey(c parent.Create) string {
	if c.Email != "" {
		return c.Email
	}
	var digits strings.Builder
	for _, r := range c.Phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 7 {
		return ""
	}
	return digits.String()
}

func record(c parent.Create) []string {
	var childName, childDOB, childYear string
	if len(c.Children) > 0 {
		childName = c.Children[0].Name
		childDOB = c.Children[0].DOB
		childYear = c.Children[0].TargetYearGroup
	}
	return []string{
		c.Name, c.Email, c.Phone, c.SecondaryEmail, c.SecondaryPhone, c.PartnerName,
		string(c.Status), string(c.Stage), c.Source, c.SourceDetail, c.PreferredContactMethod,
		c.PreferredContactTime, c.Language, strings.Join(c.Tags, ";"), childName, childDOB, childYear,
	}
}
