package handler

import (
	"github.com/shopspring/decimal"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
)

// APIResponse represents a generic API response for documentation
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// StatsResponse are the counters above the parent list. Rates and averages
// are rounded to one decimal place.
type StatsResponse struct {
	TotalParents      int             `json:"total_parents"`
	ByStatus          map[string]int  `json:"by_status"`
	ByStage           map[string]int  `json:"by_stage"`
	BySource          map[string]int  `json:"by_source"`
	AverageLeadScore  decimal.Decimal `json:"average_lead_score"`
	HighRiskCount     int             `json:"high_risk_count"`
	RecentEnquiries7d int             `json:"recent_enquiries_7d"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
}

// StateResponse is the dashboard as the JSON API reports it
type StateResponse struct {
	Parents    []parent.Parent      `json:"parents"`
	Filters    parent.Filters       `json:"filters"`
	Pagination dashboard.Pagination `json:"pagination"`
	Selected   []int64              `json:"selected"`
	Stats      *StatsResponse       `json:"stats,omitempty"`
	Current    *dashboard.Detail    `json:"current,omitempty"`
	Flashes    []dashboard.Flash    `json:"flashes"`
}

// SelectionResponse is the selection after a change
type SelectionResponse struct {
	Selected    []int64 `json:"selected"`
	AllSelected bool    `json:"all_selected"`
}

// BulkEmailResponse reports a bulk send
type BulkEmailResponse struct {
	Sent      int `json:"sent"`
	Requested int `json:"requested"`
}

// DuplicatesResponse lists likely duplicates in the current search
type DuplicatesResponse struct {
	Groups []parent.DuplicateGroup `json:"groups"`
	Ratio  float64                 `json:"ratio"`
}

// HealthResponse is the liveness answer
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func toStatsResponse(s *parent.Stats) *StatsResponse {
	if s == nil {
		return nil
	}
	return &StatsResponse{
		TotalParents:      s.TotalParents,
		ByStatus:          s.ByStatus,
		ByStage:           s.ByStage,
		BySource:          s.BySource,
		AverageLeadScore:  oneDecimal(s.AverageLeadScore),
		HighRiskCount:     s.HighRiskCount,
		RecentEnquiries7d: s.RecentEnquiries7d,
		ConversionRate:    oneDecimal(s.ConversionRate),
	}
}

func toStateResponse(st dashboard.State, flashes []dashboard.Flash) StateResponse {
	if flashes == nil {
		flashes = []dashboard.Flash{}
	}
	return StateResponse{
		Parents:    st.Parents,
		Filters:    st.Filters,
		Pagination: st.Pagination,
		Selected:   st.Selected,
		Stats:      toStatsResponse(st.Stats),
		Current:    st.Current,
		Flashes:    flashes,
	}
}
