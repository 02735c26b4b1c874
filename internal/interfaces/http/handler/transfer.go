package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smartedu/dashboard/internal/application/archive"
	"github.com/smartedu/dashboard/internal/application/dashboard"
	"github.com/smartedu/dashboard/internal/infrastructure/csvimport"
	"github.com/smartedu/dashboard/internal/interfaces/http/dto"
	"github.com/smartedu/dashboard/internal/interfaces/http/middleware"
	"github.com/smartedu/dashboard/internal/interfaces/http/views"
	"go.uber.org/zap"
)

const recentExports = 20

// Export downloads every parent matching the current filters
func (h *ParentsHandler) Export(c *gin.Context) {
	h.download(c, nil)
}

// download sends the CSV for ids and archives a copy when archiving is on.
// A failed archive is logged; the download still goes out.
func (h *ParentsHandler) download(c *gin.Context, ids []int64) {
	res, err := store(c).Export(c.Request.Context(), ids)
	if err != nil {
		h.done(c, err, "/parents")
		return
	}

	if h.deps.Archive.Enabled() {
		sess := middleware.CurrentSession(c)
		_, aerr := h.deps.Archive.Archive(c.Request.Context(), archive.Export{
			Data:       res.Data,
			Rows:       res.Rows,
			Source:     res.Source,
			FileName:   res.FileName,
			CustomerID: sess.CustomerID,
			UserID:     sess.UserID,
		})
		if aerr != nil {
			middleware.GetLogger(c).Warn("archive export", zap.Error(aerr))
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	c.Header("X-Export-Rows", strconv.Itoa(res.Rows))
	c.Header("X-Export-Source", string(res.Source))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", res.Data)
}

// Exports lists the archived exports of the customer
func (h *ParentsHandler) Exports(c *gin.Context) {
	data := views.ExportsData{Enabled: h.deps.Archive.Enabled()}
	if data.Enabled {
		links, err := h.deps.Archive.Recent(c.Request.Context(), middleware.CurrentSession(c).CustomerID, recentExports)
		if err != nil && !errors.Is(err, archive.ErrDisabled) {
			middleware.GetLogger(c).Error("list exports", zap.Error(err))
			h.Toast(c, dashboard.FlashError, "Failed to load recent exports")
		}
		data.Links = links
	}
	h.Render(c, http.StatusOK, "exports.html", "Exports", "exports", data)
}

// ArchiveFile serves an export kept in memory. Keys are scoped to the
// session's customer and links stop working once they expire.
func (h *ParentsHandler) ArchiveFile(c *gin.Context) {
	if h.deps.ArchiveFiles == nil {
		h.RenderError(c, http.StatusNotFound, "Export not found")
		return
	}
	key := strings.TrimPrefix(path.Clean(c.Param("key")), "/")
	owner := h.deps.ArchivePrefix + middleware.CurrentSession(c).CustomerID + "/"
	if !strings.HasPrefix(key, owner) {
		h.RenderError(c, http.StatusNotFound, "Export not found")
		return
	}
	if raw := c.Query("expires"); raw != "" {
		exp, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || h.deps.Now().Unix() > exp {
			h.RenderError(c, http.StatusGone, "This download link has expired")
			return
		}
	}
	data, contentType, ok := h.deps.ArchiveFiles.Get(key)
	if !ok {
		h.RenderError(c, http.StatusNotFound, "Export not found")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	c.Data(http.StatusOK, contentType, data)
}

// ImportPage shows the upload form
func (h *ParentsHandler) ImportPage(c *gin.Context) {
	h.Render(c, http.StatusOK, "import.html", "Import parents", "import", views.ImportData{})
}

// preview parses the uploaded file without sending anything
func (h *ParentsHandler) preview(c *gin.Context) (*csvimport.Preview, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", &dto.FieldError{Field: "file", Message: "choose a CSV file"}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fh.Filename, err
	}
	defer f.Close()

	opts := csvimport.DefaultOptions()
	if h.deps.ImportRows > 0 {
		opts.MaxRows = h.deps.ImportRows
	}
	var parserOpts []csvimport.ParserOption
	if d, ok := csvimport.Delimiters[c.PostForm("delimiter")]; ok {
		parserOpts = append(parserOpts, csvimport.WithDelimiter(d))
	}
	pv, err := csvimport.BuildPreview(f, opts, parserOpts...)
	return pv, fh.Filename, err
}

// ImportPreview validates an upload row by row
func (h *ParentsHandler) ImportPreview(c *gin.Context) {
	pv, name, err := h.preview(c)
	if err != nil {
		h.FormError(c, err)
		h.Render(c, http.StatusBadRequest, "import.html", "Import parents", "import", views.ImportData{FileName: name})
		return
	}
	h.Render(c, http.StatusOK, "import.html", "Import parents", "import",
		views.ImportData{Preview: pv, FileName: name, Delimiter: c.PostForm("delimiter")})
}

// Import sends the valid rows of an upload to the backend
func (h *ParentsHandler) Import(c *gin.Context) {
	pv, name, err := h.preview(c)
	if err != nil {
		h.FormError(c, err)
		h.Render(c, http.StatusBadRequest, "import.html", "Import parents", "import", views.ImportData{FileName: name})
		return
	}
	if pv.Valid == 0 {
		h.Toast(c, dashboard.FlashError, "No valid rows to import")
		h.Render(c, http.StatusUnprocessableEntity, "import.html", "Import parents", "import", views.ImportData{Preview: pv, FileName: name})
		return
	}
	clean, err := pv.CleanCSV()
	if err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents/import")
		return
	}

	res, err := store(c).Import(c.Request.Context(), name, bytes.NewReader(clean))
	if err != nil {
		if h.Expired(c, err) {
			return
		}
		h.Render(c, http.StatusBadGateway, "import.html", "Import parents", "import", views.ImportData{Preview: pv, FileName: name})
		return
	}
	res.Skipped += pv.Invalid
	h.Render(c, http.StatusOK, "import.html", "Import parents", "import", views.ImportData{Result: res, FileName: name})
}

// Duplicates lists likely duplicate families in the current search
func (h *ParentsHandler) Duplicates(c *gin.Context) {
	ratio := h.deps.DuplicateRatio
	if raw := c.Query("ratio"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v < 1 {
			ratio = v
		}
	}
	groups, err := store(c).Duplicates(c.Request.Context(), ratio)
	if err != nil {
		h.done(c, err, "/parents")
		return
	}
	h.Render(c, http.StatusOK, "duplicates.html", "Duplicates", "duplicates", views.DuplicatesData{Groups: groups, Ratio: ratio})
}

// Merge folds the ticked duplicates into the primary record
func (h *ParentsHandler) Merge(c *gin.Context) {
	var form dto.MergeForm
	if err := c.ShouldBind(&form); err != nil {
		h.FormError(c, err)
		h.Redirect(c, "/parents/duplicates")
		return
	}
	merged, err := store(c).Merge(c.Request.Context(), form.PrimaryID, form.DuplicateIDs)
	if err != nil {
		h.done(c, err, "/parents/duplicates")
		return
	}
	h.Redirect(c, detailURL(merged.ID, ""))
}
