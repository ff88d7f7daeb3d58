package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aethra/makazi/internal/audit"
	"github.com/aethra/makazi/internal/reports"
)

// ReportSummary returns residence and member counts per village
// GET /api/reports/summary
func (h *Handler) ReportSummary(c *gin.Context) {
	sum, err := h.reports.Summary(reqCtx(c), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func exportName(ext string) string {
	return fmt.Sprintf("residences-%s.%s", time.Now().UTC().Format("20060102-1504"), ext)
}

// ExportCSV streams the residences in reach as CSV
// GET /api/reports/residences.csv
func (h *Handler) ExportCSV(c *gin.Context) {
	rows, err := h.reports.ExportRows(reqCtx(c), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteCSV(&buf, rows); err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName("csv")))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportXLSX returns the residences in reach as a workbook
// GET /api/reports/residences.xlsx
func (h *Handler) ExportXLSX(c *gin.Context) {
	rows, err := h.reports.ExportRows(reqCtx(c), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := reports.BuildXLSX(rows)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName("xlsx")))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ListAudit returns audit entries newest first
// GET /api/audit
func (h *Handler) ListAudit(c *gin.Context) {
	f := audit.Filter{
		EntityType: c.Query("entity_type"),
		EntityID:   uint(parseIntParam(c.Query("entity_id"), 0)),
		UserID:     uint(parseIntParam(c.Query("user_id"), 0)),
		Limit:      parseIntParam(c.Query("limit"), 50),
		Offset:     parseIntParam(c.Query("offset"), 0),
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	rows, total, err := h.audit.List(reqCtx(c), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "total": total})
}
