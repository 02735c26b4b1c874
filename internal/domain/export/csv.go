package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/smartedu/dashboard/internal/domain/parent"
)

// Columns is the header of locally built exports
var Columns = []string{
	"id", "parent_id", "name", "email", "phone", "status", "stage", "source",
	"lead_score", "engagement_score", "risk_score", "tags", "created_at", "last_contact_date",
}

// WriteCSV writes parents under Columns and returns the number of data rows
func WriteCSV(w io.Writer, parents []parent.Parent) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i, p := range parents {
		if err := cw.Write(row(p)); err != nil {
			return i, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(parents), fmt.Errorf("flush csv: %w", err)
	}
	return len(parents), nil
}

func row(p parent.Parent) []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.ParentID,
		p.Name,
		p.Email,
		p.Phone,
		string(p.Status),
		string(p.Stage),
		p.Source,
		strconv.Itoa(p.LeadScore),
		strconv.Itoa(p.EngagementScore),
		strconv.Itoa(p.RiskScore),
		strings.Join(p.Tags, ";"),
		formatTime(p.CreatedAt),
		formatTime(p.LastContactDate),
	}
}

func formatTime(t parent.Timestamp) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
