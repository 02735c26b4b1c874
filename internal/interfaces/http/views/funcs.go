package views

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Funcs returns the helpers available to every template
func Funcs(now func() time.Time) template.FuncMap {
	return template.FuncMap{
		"label":      parent.Label,
		"number":     Number,
		"percent":    Percent,
		"score":      Score,
		"date":       Date,
		"datetime":   DateTime,
		"ago":        func(t parent.Timestamp) string { return Ago(t, now()) },
		"overdue":    func(t parent.Task) bool { return Overdue(t, now()) },
		"selected":   func(st dashboard.State, id int64) bool { return st.IsSelected(id) },
		"sortMark":   SortMark,
		"pageLinks":  PageLinks,
		"filterQS":   FilterQuery,
		"intVal":     IntValue,
		"childVal":   HasChildrenValue,
		"joinTags":   func(tags []string) string { return strings.Join(tags, ", ") },
		"statuses":   func() []parent.Status { return parent.Statuses },
		"stages":     func() []parent.Stage { return parent.Stages },
		"presets":    func() []string { return parent.Presets },
		"sentiment":  SentimentMark,
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"flashClass": FlashClass,
		"contains":   containsTab,
		"dict":       dict,
		"list":       func(items ...string) []string { return items },
	}
}

// Number formats n with thousands separators
func Number(n int) string {
	return printer.Sprintf("%d", n)
}

// Percent formats a percentage value (12.345 -> "12.3%")
func Percent(v float64) string {
	return decimal.NewFromFloat(v).Round(1).StringFixed(1) + "%"
}

// Score formats an average score to one decimal place
func Score(v float64) string {
	return decimal.NewFromFloat(v).Round(1).StringFixed(1)
}

// Date formats a timestamp as 2 Jan 2006, or a dash when unset
func Date(t parent.Timestamp) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2 Jan 2006")
}

// DateTime formats a timestamp with its time of day
func DateTime(t parent.Timestamp) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2 Jan 2006 15:04")
}

// Ago describes how long before now t was, in the coarsest sensible unit
func Ago(t parent.Timestamp, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t.Time)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return Date(t)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// Overdue reports whether an open task is past its due date
func Overdue(t parent.Task, now time.Time) bool {
	return !t.Completed && !t.DueDate.IsZero() && t.DueDate.Before(now)
}

// SortMark returns the arrow shown next to the active sort column
func SortMark(f parent.Filters, field string) string {
	if f.SortBy != field {
		return ""
	}
	if f.SortOrder == "asc" {
		return "▲"
	}
	return "▼"
}

// PageLink is one entry of the pager; Page 0 renders as a gap
type PageLink struct {
	Page    int
	Current bool
}

// PageLinks returns the first, last and up to two pages either side of
// the current one, with gaps where pages are skipped
func PageLinks(p dashboard.Pagination) []PageLink {
	if p.Pages <= 1 {
		return nil
	}
	var links []PageLink
	last := 0
	for n := 1; n <= p.Pages; n++ {
		if n != 1 && n != p.Pages && (n < p.Current-2 || n > p.Current+2) {
			continue
		}
		if last != 0 && n > last+1 {
			links = append(links, PageLink{})
		}
		links = append(links, PageLink{Page: n, Current: n == p.Current})
		last = n
	}
	return links
}

// FilterQuery encodes the filters as the list page's query string
func FilterQuery(f parent.Filters) template.URL {
	q := f.Values(1)
	q.Del("page")
	return template.URL(q.Encode())
}

// IntValue renders an optional number for an input value
func IntValue(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// HasChildrenValue renders the has_children filter as its select value
func HasChildrenValue(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "yes"
	default:
		return "no"
	}
}

// SentimentMark maps engagement sentiment to an arrow
func SentimentMark(p parent.Parent) string {
	switch p.Sentiment() {
	case "up":
		return "↑"
	case "down":
		return "↓"
	default:
		return "→"
	}
}

// FlashClass is the CSS class for a toast level
func FlashClass(level string) string {
	switch level {
	case dashboard.FlashError:
		return "toast toast-error"
	case dashboard.FlashSuccess:
		return "toast toast-success"
	default:
		return "toast toast-info"
	}
}

func containsTab(partial map[string]string, tab string) bool {
	_, ok := partial[tab]
	return ok
}

func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict needs key/value pairs, got %d values", len(kv))
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// NextURL keeps a post-login redirect on this site
func NextURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/parents"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/parents"
	}
	return raw
}
