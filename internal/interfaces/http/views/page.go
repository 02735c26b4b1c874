package views

import (
	"github.com/smartedu/dashboard/internal/application/archive"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/view"
	"github.com/smartedu/dashboard/internal/infrastructure/csvimport"
)

// Page is what every template receives
type Page struct {
	Title     string
	User      string
	Nav       string
	RequestID string
	Flashes   []dashboard.Flash
	Data      any
}

// LoginData backs login.html
type LoginData struct {
	Next       string
	CustomerID string
	Error      string
}

// ListData backs parents.html
type ListData struct {
	State      dashboard.State
	SavedViews []view.SavedView
	Archive    bool
}

// NewParentData backs parent_new.html
type NewParentData struct {
	Form   any
	Errors map[string]string
}

// DetailData backs parent_detail.html
type DetailData struct {
	Detail *dashboard.Detail
	Tab    string
	Tabs   []string
}

// EmailData backs email.html
type EmailData struct {
	ParentID int64
	Email    *parent.Email
}

// ComposeData backs compose.html
type ComposeData struct {
	Recipients []parent.Parent
	Missing    int
	Subject    string
	Body       string
}

// ImportData backs import.html
type ImportData struct {
	Preview   *csvimport.Preview
	FileName  string
	Delimiter string // form value, see csvimport.Delimiters
	Result    *parent.ImportResult
}

// DuplicatesData backs duplicates.html
type DuplicatesData struct {
	Groups []parent.DuplicateGroup
	Ratio  float64
}

// ExportsData backs exports.html
type ExportsData struct {
	Enabled bool
	Links   []archive.Link
}

// ErrorData backs error.html
type ErrorData struct {
	Status  int
	Message string
}

// DetailTabs are the detail page tabs in display order
var DetailTabs = []string{"overview", "communications", "journey", "tasks"}
