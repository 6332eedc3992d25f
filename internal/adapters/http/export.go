package httpadapter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

const exportSheetName = "Results"

// handleExport runs the keyword path and renders the fused result list as
// an XLSX workbook for offline civic-data consumers.
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}
	filter, err := parseTypeFilter(r.URL.Query().Get("types"))
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	results, err := rt.search.SearchAll(r.Context(), q, filter, rt.opts.ResultLimit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": "search failed"})
		return
	}

	workbook, err := buildResultsWorkbook(results)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "build export workbook"})
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="search-results.xlsx"`)
	if err := workbook.Write(w); err != nil {
		// Headers are already out; nothing sensible left to send.
		return
	}
}

func buildResultsWorkbook(results []domain.SearchResult) (*excelize.File, error) {
	workbook := excelize.NewFile()

	index, err := workbook.NewSheet(exportSheetName)
	if err != nil {
		return nil, err
	}
	workbook.SetActiveSheet(index)
	if err := workbook.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	header := []any{"Rank", "Content Type", "Source ID", "Snippet", "Score", "Occurred At", "Meeting"}
	if err := workbook.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return nil, err
	}

	for i, result := range results {
		occurred := ""
		if result.OccurredAt != nil {
			occurred = result.OccurredAt.Format("2006-01-02")
		}
		row := []any{
			i + 1,
			string(result.ContentType),
			result.SourceID,
			result.Snippet,
			result.RankScore,
			occurred,
			result.Metadata["meeting_title"],
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := workbook.SetSheetRow(exportSheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := workbook.SetColWidth(exportSheetName, "D", "D", 80); err != nil {
		return nil, err
	}
	return workbook, nil
}
