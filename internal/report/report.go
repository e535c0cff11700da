// Package report renders evaluation reports for people and spreadsheets.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/ahrav/go-grader/internal/domain"
)

// Sheet names of the XLSX export.
const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

const maxFeedbackRunes = 2000

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *domain.EvaluationReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteXLSX renders the report as a workbook with a per-question Results
// sheet and a Summary sheet.
func WriteXLSX(r *domain.EvaluationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeResults(f, r.Results); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeSummary(f, r); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(ResultsSheet)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

var resultHeaders = []string{
	"Question ID", "Question", "Answer", "Max Marks", "Obtained", "Percentage", "Status", "Feedback",
}

func writeResults(f *excelize.File, results []domain.EvaluationResult) error {
	if err := f.SetSheetRow(ResultsSheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for i, res := range results {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			res.QuestionID,
			res.QuestionText,
			res.AnswerText,
			res.MaxMarks,
			res.ObtainedMarks,
			res.Percentage,
			string(res.Status),
			truncate(res.Feedback, maxFeedbackRunes),
		}
		if err := f.SetSheetRow(ResultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write result %s: %w", res.QuestionID, err)
		}
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 12)
	_ = f.SetColWidth(ResultsSheet, "B", "C", 48)
	_ = f.SetColWidth(ResultsSheet, "D", "G", 12)
	_ = f.SetColWidth(ResultsSheet, "H", "H", 80)
	return nil
}

func writeSummary(f *excelize.File, r *domain.EvaluationReport) error {
	s := r.Summary
	rows := [][]any{
		{"Run ID", r.RunID},
		{"Created At", r.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Policy", r.Policy},
		{"Total Max", s.TotalMax},
		{"Total Obtained", s.TotalObtained},
		{"Overall Percentage", s.OverallPercentage},
		{"Grade", s.Grade},
		{"Average Score", s.AverageScore},
		{"Evaluated", s.Counts.Evaluated},
		{"OK", s.Counts.OK},
		{"Default", s.Counts.Default},
		{"Error", s.Counts.Error},
		{"Above 80%", s.Counts.Above80},
		{"Below 50%", s.Counts.Below50},
	}
	if s.NormalizedScore != nil && s.NormalizationTarget != nil {
		rows = append(rows,
			[]any{"Normalization Target", *s.NormalizationTarget},
			[]any{"Normalized Score", *s.NormalizedScore})
	}
	rows = append(rows,
		[]any{"API Requests", r.Usage.APIRequests},
		[]any{"Input Tokens", r.Usage.InputTokens},
		[]any{"Output Tokens", r.Usage.OutputTokens})

	groups := make([]string, 0, len(r.SelectedChoices))
	for g := range r.SelectedChoices {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		rows = append(rows, []any{"Choice " + g, r.SelectedChoices[g]})
	}
	for _, p := range r.PageErrors {
		rows = append(rows, []any{fmt.Sprintf("Page %d error", p.Index+1), p.Err})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 22)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
