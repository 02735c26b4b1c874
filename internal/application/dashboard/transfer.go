package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ExportResult is a CSV ready for download
type ExportResult struct {
	Data     []byte
	Rows     int
	Source   export.Source
	FileName string
	// Truncated is set when a locally built export stopped at the scan limit
	Truncated bool
}

// Export returns a CSV of ids, or of every parent matching the current
// filters when ids is empty. When the backend has no export endpoint the
// CSV is built locally from search results.
func (s *Store) Export(ctx context.Context, ids []int64) (_ *ExportResult, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "export", telemetry.WithAttribute("parent_ids", ids))
	defer func() { telemetry.End(span, err) }()

	res := &ExportResult{FileName: export.FileName(s.now())}

	data, err := s.api.Export(ctx, ids)
	switch {
	case err == nil:
		res.Data, res.Rows, res.Source = data, countRows(data), export.SourceBackend
	case apiclient.IsUnsupported(err):
		s.log(ctx).Info("backend export unavailable, building CSV locally", zap.Int("ids", len(ids)))
		parents, truncated, err := s.exportRows(ctx, ids)
		if err != nil {
			return nil, s.fail(ctx, "Failed to export parents", err, zap.Int64s("parent_ids", ids))
		}
		var buf bytes.Buffer
		n, err := export.WriteCSV(&buf, parents)
		if err != nil {
			return nil, s.fail(ctx, "Failed to export parents", err)
		}
		res.Data, res.Rows, res.Source = buf.Bytes(), n, export.SourceLocal
		res.Truncated = truncated
	default:
		return nil, s.fail(ctx, "Failed to export parents", err, zap.Int64s("parent_ids", ids))
	}

	if res.Truncated {
		s.log(ctx).Warn("local export truncated at scan limit",
			zap.Int("rows", res.Rows), zap.Int("limit", s.scanLimit))
		s.Toast(FlashInfo, fmt.Sprintf("Exported the first %d parents only; narrow the filters to export the rest", res.Rows))
		return res, nil
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Exported %d parents", res.Rows))
	return res, nil
}

func countRows(data []byte) int {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(records) == 0 {
		return 0
	}
	return len(records) - 1
}

// exportRows resolves ids from the page when possible, else scans the
// current search. truncated reports that the scan hit its limit.
func (s *Store) exportRows(ctx context.Context, ids []int64) (rows []parent.Parent, truncated bool, err error) {
	st := s.snapshot()
	if len(ids) > 0 {
		rows = make([]parent.Parent, 0, len(ids))
		for _, id := range ids {
			if i := st.rowIndex(id); i >= 0 {
				rows = append(rows, st.Parents[i])
			}
		}
		if len(rows) == len(ids) {
			return rows, false, nil
		}
	}

	all, truncated, err := s.scan(ctx, st.Filters)
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return all, truncated, nil
	}
	rows = make([]parent.Parent, 0, len(ids))
	for _, p := range all {
		if contains(ids, p.ID) {
			rows = append(rows, p)
		}
	}
	return rows, truncated && len(rows) < len(ids), nil
}

// scan pages through the search for f up to the scan limit. truncated
// reports that more matches existed past the limit.
func (s *Store) scan(ctx context.Context, f parent.Filters) (_ []parent.Parent, truncated bool, err error) {
	f.PerPage = min(s.exportPageSize, parent.MaxPerPage)
	var out []parent.Parent
	for page := 1; ; page++ {
		res, err := s.api.Search(ctx, f, page)
		if err != nil {
			return nil, false, fmt.Errorf("page %d: %w", page, err)
		}
		out = append(out, res.Parents...)
		last := len(res.Parents) == 0 || page >= res.Pages
		if len(out) >= s.scanLimit {
			return out[:s.scanLimit], len(out) > s.scanLimit || !last, nil
		}
		if last {
			return out, false, nil
		}
	}
}

// Duplicates scans the current search for likely duplicate families
func (s *Store) Duplicates(ctx context.Context, maxRatio float64) ([]parent.DuplicateGroup, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	all, truncated, err := s.scan(ctx, s.snapshot().Filters)
	if err != nil {
		return nil, s.fail(ctx, "Failed to find duplicates", err)
	}
	if truncated {
		s.log(ctx).Warn("duplicate scan truncated at scan limit", zap.Int("limit", s.scanLimit))
		s.Toast(FlashInfo, fmt.Sprintf("Checked the first %d parents only; narrow the filters to check the rest", len(all)))
	}
	return parent.LikelyDuplicates(all, maxRatio), nil
}

// Merge folds duplicates into primary and reloads
func (s *Store) Merge(ctx context.Context, primary int64, duplicates []int64) (_ *parent.Parent, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "merge",
		telemetry.WithAttribute("primary_id", primary),
		telemetry.WithAttribute("duplicate_ids", duplicates),
	)
	defer func() { telemetry.End(span, err) }()

	in := parent.Merge{PrimaryID: primary, DuplicateIDs: duplicates}
	if err := in.Validate(); err != nil {
		return nil, s.fail(ctx, "Failed to merge parents", err)
	}
	merged, err := s.api.Merge(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, "Failed to merge parents", err,
			zap.Int64("primary_id", primary), zap.Int64s("duplicate_ids", duplicates))
	}
	s.Toast(FlashSuccess, fmt.Sprintf("Merged %d records into %s", len(duplicates), merged.Name))
	s.removeRows(duplicates)
	_ = s.fetchParents(ctx)
	_ = s.fetchStats(ctx)
	return merged, nil
}

// Import uploads a CSV to the backend and reloads
func (s *Store) Import(ctx context.Context, filename string, r io.Reader) (_ *parent.ImportResult, err error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	ctx, span := telemetry.StartActionSpan(ctx, "dashboard", "import", telemetry.WithAttribute("file", filename))
	defer func() { telemetry.End(span, err) }()

	res, err := s.api.Import(ctx, filename, r)
	if err != nil {
		return nil, s.fail(ctx, "Failed to import parents", err, zap.String("file", filename))
	}
	msg := fmt.Sprintf("Imported %d parents", res.Imported)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(", skipped %d", res.Skipped)
	}
	s.Toast(FlashSuccess, msg)
	_ = s.fetchParents(ctx)
	_ = s.fetchStats(ctx)
	return res, nil
}
