package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// LegalExportRequest represents the request parameters for a legal
// compliance export
type LegalExportRequest struct {
	Format         string `json:"format" binding:"required,oneof=json excel"`
	IncludeContent bool   `json:"include_content,omitempty"` // Include full document text
}

// LegalExportData represents the structured data for export
type LegalExportData struct {
	ExportInfo LegalExportInfo    `json:"export_info"`
	Pages      []LegalPageExport  `json:"pages"`
	Summary    LegalExportSummary `json:"summary"`
}

type LegalExportInfo struct {
	ExportDate     time.Time `json:"export_date"`
	TotalPages     int       `json:"total_pages"`
	Format         string    `json:"format"`
	IncludeContent bool      `json:"include_content"`
}

type LegalPageExport struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Title            string    `json:"title"`
	Slug             string    `json:"slug"`
	Version          string    `json:"version"`
	EffectiveDate    time.Time `json:"effective_date"`
	LastReviewDate   time.Time `json:"last_review_date"`
	AIGenerated      bool      `json:"ai_generated"`
	LegalReviewed    bool      `json:"legal_reviewed"`
	ReviewNotes      string    `json:"review_notes,omitempty"`
	Jurisdiction     string    `json:"jurisdiction"`
	ApplicableLaws   []string  `json:"applicable_laws"`
	PreviousVersions []string  `json:"previous_versions"`
	Content          string    `json:"content,omitempty"`
}

type LegalExportSummary struct {
	TotalPages    int `json:"total_pages"`
	AIGenerated   int `json:"ai_generated"`
	Reviewed      int `json:"reviewed"`
	NeedsReview   int `json:"needs_review"`
	OverdueReview int `json:"overdue_review"`
}

// LegalExportService produces the compliance export of all legal pages.
type LegalExportService struct {
	legal *LegalService
	now   func() time.Time
}

func NewLegalExportService(legal *LegalService) *LegalExportService {
	return &LegalExportService{legal: legal, now: time.Now}
}

// BuildExport collects the pages and computes the compliance summary.
func (es *LegalExportService) BuildExport(ctx context.Context, req *LegalExportRequest) (*LegalExportData, error) {
	pages, err := es.legal.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legal pages: %w", err)
	}

	now := es.now().UTC()
	annualDeadline := now.AddDate(-1, 0, 0)

	exportPages := make([]LegalPageExport, len(pages))
	summary := LegalExportSummary{TotalPages: len(pages)}

	for i, page := range pages {
		exportPage := LegalPageExport{
			ID:               page.ID,
			Type:             page.Type,
			Title:            page.Title,
			Slug:             page.Slug,
			Version:          page.Version,
			EffectiveDate:    page.EffectiveDate,
			LastReviewDate:   page.LastReviewDate,
			AIGenerated:      page.AIGenerated,
			LegalReviewed:    page.LegalReviewed,
			ReviewNotes:      page.ReviewNotes,
			Jurisdiction:     page.Jurisdiction,
			ApplicableLaws:   page.ApplicableLaws,
			PreviousVersions: page.PreviousVersions,
		}
		if req.IncludeContent {
			exportPage.Content = page.Content
		}
		exportPages[i] = exportPage

		if page.AIGenerated {
			summary.AIGenerated++
		}
		if page.LegalReviewed {
			summary.Reviewed++
		}
		if page.AIGenerated && !page.LegalReviewed {
			summary.NeedsReview++
		} else if page.LastReviewDate.Before(annualDeadline) {
			summary.OverdueReview++
		}
	}

	return &LegalExportData{
		ExportInfo: LegalExportInfo{
			ExportDate:     now,
			TotalPages:     len(pages),
			Format:         req.Format,
			IncludeContent: req.IncludeContent,
		},
		Pages:   exportPages,
		Summary: summary,
	}, nil
}

// StreamExport streams export data directly to the HTTP response
func (es *LegalExportService) StreamExport(ctx *gin.Context, data *LegalExportData, format string) error {
	switch format {
	case "json":
		ctx.Header("Content-Type", "application/json")
		ctx.Header("Content-Disposition", "attachment; filename=legal_pages_export.json")

		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}

		ctx.Header("Content-Length", strconv.Itoa(len(jsonData)))
		ctx.Data(http.StatusOK, "application/json", jsonData)

	case "excel":
		buf, err := es.buildWorkbook(data)
		if err != nil {
			return err
		}

		ctx.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		ctx.Header("Content-Disposition", "attachment; filename=legal_pages_export.xlsx")
		ctx.Header("Content-Length", strconv.Itoa(buf.Len()))
		ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	return nil
}

func (es *LegalExportService) buildWorkbook(data *LegalExportData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Error closing Excel file: %v\n", err)
		}
	}()

	sheetName := "Legal Pages"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Type", "Title", "Slug", "Version", "Effective Date", "Last Review Date",
		"AI Generated", "Legal Reviewed", "Review Notes", "Jurisdiction", "Applicable Laws", "Previous Versions",
	}

	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, page := range data.Pages {
		row := rowIdx + 2 // Start from row 2 (after headers)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), page.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), page.Type)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), page.Title)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), page.Slug)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), page.Version)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), page.EffectiveDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), page.LastReviewDate.Format("2006-01-02"))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), page.AIGenerated)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), page.LegalReviewed)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), page.ReviewNotes)
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), page.Jurisdiction)
		f.SetCellValue(sheetName, fmt.Sprintf("L%d", row), joinList(page.ApplicableLaws))
		f.SetCellValue(sheetName, fmt.Sprintf("M%d", row), joinList(page.PreviousVersions))
	}

	for i := 0; i < len(headers); i++ {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}

	summarySheetName := "Compliance Summary"
	_, err = f.NewSheet(summarySheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryData := [][]interface{}{
		{"Export Information", ""},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Total Pages", data.ExportInfo.TotalPages},
		{"", ""},
		{"Compliance Summary", ""},
		{"AI Generated", data.Summary.AIGenerated},
		{"Reviewed", data.Summary.Reviewed},
		{"Needs Review", data.Summary.NeedsReview},
		{"Overdue Review", data.Summary.OverdueReview},
	}

	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheetName, cellRef, cell)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return &buf, nil
}

func joinList(items []string) string {
	return strings.Join(items, "; ")
}
