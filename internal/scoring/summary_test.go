package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/domain"
)

func result(id string, maxMarks int, obtained float64, status domain.ResultStatus) domain.EvaluationResult {
	return domain.EvaluationResult{
		QuestionID:    id,
		MaxMarks:      maxMarks,
		ObtainedMarks: obtained,
		Percentage:    domain.Percentage(obtained, float64(maxMarks)),
		Status:        status,
	}
}

func TestSummarize(t *testing.T) {
	results := []domain.EvaluationResult{
		result("Q1", 10, 9, domain.StatusOK),
		result("Q2", 10, 4.5, domain.StatusOK),
		result("Q3", 5, 0, domain.StatusDefault),
		result("Q4", 5, 0, domain.StatusError),
	}
	target := 100.0
	s := Summarize(results, &target)

	assert.Equal(t, 30, s.TotalMax)
	assert.InDelta(t, 13.5, s.TotalObtained, 1e-9)
	assert.InDelta(t, 45.0, s.OverallPercentage, 1e-9)
	assert.Equal(t, "F", s.Grade)
	assert.Equal(t, domain.Counts{Evaluated: 4, OK: 2, Default: 1, Error: 1, Above80: 1, Below50: 3}, s.Counts)
	assert.InDelta(t, 3.38, s.AverageScore, 1e-9)
	require.NotNil(t, s.NormalizedScore)
	assert.InDelta(t, 45.0, *s.NormalizedScore, 1e-9)
	assert.InDelta(t, 100.0, *s.NormalizationTarget, 1e-9)
}

func TestSummarizeEdgeCases(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := Summarize(nil, nil)
		assert.Equal(t, GradeNotAvailable, s.Grade)
		assert.Zero(t, s.OverallPercentage)
		assert.Nil(t, s.NormalizedScore)
	})

	t.Run("zero max marks", func(t *testing.T) {
		target := 50.0
		s := Summarize([]domain.EvaluationResult{result("Q1", 0, 0, domain.StatusOK)}, &target)
		assert.Zero(t, s.OverallPercentage)
		assert.Equal(t, "F", s.Grade)
		require.NotNil(t, s.NormalizedScore)
		assert.Zero(t, *s.NormalizedScore)
	})

	t.Run("normalization rounds to two decimals", func(t *testing.T) {
		target := 100.0
		s := Summarize([]domain.EvaluationResult{result("Q1", 3, 1, domain.StatusOK)}, &target)
		assert.InDelta(t, 33.33, *s.NormalizedScore, 1e-9)
		assert.InDelta(t, 33.33, s.OverallPercentage, 1e-9)
	})
}
