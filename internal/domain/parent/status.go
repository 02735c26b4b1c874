package parent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the admissions pipeline status of a family
type Status string

const (
	StatusLead      Status = "lead"
	StatusWarm      Status = "warm"
	StatusApplicant Status = "applicant"
	StatusOfferMade Status = "offer_made"
	StatusEnrolled  Status = "enrolled"
	StatusLost      Status = "lost"
	StatusAlumni    Status = "alumni"
)

// Statuses lists every status in pipeline order
var Statuses = []Status{
	StatusLead, StatusWarm, StatusApplicant, StatusOfferMade,
	StatusEnrolled, StatusLost, StatusAlumni,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Label returns the display form, e.g. "Offer Made"
func (s Status) Label() string {
	return label(string(s))
}

// Stage is the marketing funnel stage of a family
type Stage string

const (
	StageAwareness     Stage = "awareness"
	StageInterest      Stage = "interest"
	StageConsideration Stage = "consideration"
	StageIntent        Stage = "intent"
	StageEvaluation    Stage = "evaluation"
	StageEnrolled      Stage = "enrolled"
)

// Stages lists every stage in funnel order
var Stages = []Stage{
	StageAwareness, StageInterest, StageConsideration,
	StageIntent, StageEvaluation, StageEnrolled,
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	for _, v := range Stages {
		if v == s {
			return true
		}
	}
	return false
}

// Label returns the display form of the stage
func (s Stage) Label() string {
	return label(string(s))
}

var titleCaser = cases.Title(language.English)

func label(v string) string {
	return titleCaser.String(strings.ReplaceAll(v, "_", " "))
}

// Label formats any snake_case backend value (sources, event types) for display
func Label(v string) string {
	return label(v)
}
