package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ahrav/go-grader/internal/domain"
)

func sampleReport() *domain.EvaluationReport {
	target := 100.0
	normalized := 60.0
	return &domain.EvaluationReport{
		RunID:     "run-1",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Policy:    "rubric",
		Results: []domain.EvaluationResult{
			{
				QuestionID: "Q1", QuestionText: "Define an algorithm.", MaxMarks: 10,
				Feedback: "Evaluation error: model call failed", Status: domain.StatusError,
				RubricScores: domain.RubricScores{},
			},
			{
				QuestionID: "Q2", QuestionText: "Explain TCP.", AnswerText: "Reliable streams.",
				MaxMarks: 20, ObtainedMarks: 18, Percentage: 90, Feedback: "Strong answer.",
				Status: domain.StatusOK,
				RubricScores: domain.RubricScores{
					domain.CriterionAccuracy: {Score: 8, MaxScore: 8, Level: "Excellent", Justification: "correct"},
				},
			},
		},
		Summary: domain.Summary{
			TotalMax: 30, TotalObtained: 18, OverallPercentage: 60, Grade: "C",
			Counts:              domain.Counts{Evaluated: 2, OK: 1, Error: 1, Above80: 1, Below50: 1},
			AverageScore:        9,
			NormalizationTarget: &target,
			NormalizedScore:     &normalized,
		},
		Usage:           domain.UsageStats{APIRequests: 3, InputTokens: 300, OutputTokens: 30, RunsCompleted: 1},
		SelectedChoices: map[string]string{"G2": "Q5", "G1": "Q3"},
		PageErrors:      []domain.PageText{{Index: 1, Text: "[Error processing page 2: boom]", Err: "boom"}},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"run_id\": \"run-1\""))

	var decoded domain.EvaluationReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "C", decoded.Summary.Grade)
	assert.Equal(t, int64(3), decoded.Usage.APIRequests)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, 8.0, decoded.Results[1].RubricScores[domain.CriterionAccuracy].Score)
}

func TestWriteXLSX(t *testing.T) {
	data, err := WriteXLSX(sampleReport())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Equal(t, []string{ResultsSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultHeaders, rows[0])
	assert.Equal(t, "Q1", rows[1][0])
	assert.Equal(t, "error", rows[1][6])
	assert.Equal(t, "Q2", rows[2][0])
	assert.Equal(t, "18", rows[2][4])
	assert.Equal(t, "ok", rows[2][6])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	values := map[string]string{}
	for _, row := range summary {
		if len(row) == 2 {
			values[row[0]] = row[1]
		}
	}
	assert.Equal(t, "run-1", values["Run ID"])
	assert.Equal(t, "C", values["Grade"])
	assert.Equal(t, "30", values["Total Max"])
	assert.Equal(t, "60", values["Normalized Score"])
	assert.Equal(t, "Q3", values["Choice G1"])
	assert.Equal(t, "boom", values["Page 2 error"])
}

func TestWriteXLSXEmptyReport(t *testing.T) {
	data, err := WriteXLSX(&domain.EvaluationReport{Summary: domain.Summary{Grade: "N/A"}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdefgh", 4))
	assert.Equal(t, "ééé…", truncate("éééééé", 4))
}
