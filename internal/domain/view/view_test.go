package view

import (
	"strings"
	"testing"
	"time"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hot Leads", "hot-leads"},
		{"  At-Risk   applicants!! ", "at-risk-applicants"},
		{"year_7 intake", "year_7-intake"},
		{"!!!", "view"},
		{"", "view"},
		{strings.Repeat("a", 80), strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestUniqueSlug(t *testing.T) {
	existing := []SavedView{{Slug: "hot-leads"}, {Slug: "hot-leads-2"}}
	assert.Equal(t, "hot-leads-3", UniqueSlug(existing, "Hot leads"))
	assert.Equal(t, "recent", UniqueSlug(existing, "Recent"))

	long := strings.Repeat("b", 63)
	got := UniqueSlug([]SavedView{{Slug: long}}, long)
	assert.Len(t, got, 63)
	assert.True(t, strings.HasSuffix(got, "-2"))
}

func TestNewSavedView(t *testing.T) {
	f := parent.Filters{Status: parent.StatusLead}

	v, err := NewSavedView("1", " Hot Leads ", "admin", f, nil)
	require.NoError(t, err)
	assert.Equal(t, "hot-leads", v.Slug)
	assert.Equal(t, "Hot Leads", v.Name)
	assert.Equal(t, parent.DefaultPerPage, v.Filters.PerPage, "filters are normalised")
	assert.NotEmpty(t, v.ID)

	_, err = NewSavedView("1", "", "admin", f, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewSavedView("", "x", "admin", f, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewSavedView("1", "bad", "admin", parent.Filters{Status: "vip"}, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestSavedView_Touch(t *testing.T) {
	v := SavedView{}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v.Touch(at)
	v.Touch(at)
	assert.Equal(t, 2, v.UseCount)
	assert.Equal(t, at, *v.LastUsedAt)
}
