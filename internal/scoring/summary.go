package scoring

import (
	"github.com/ahrav/go-grader/internal/domain"
)

// GradeNotAvailable is reported when there is nothing to grade.
const GradeNotAvailable = "N/A"

// Summarize aggregates results. Every record counts toward the totals,
// including default and error records, so a failed question still costs its
// marks.
func Summarize(results []domain.EvaluationResult, target *float64) domain.Summary {
	var s domain.Summary
	var obtained float64
	for _, r := range results {
		s.TotalMax += r.MaxMarks
		obtained += r.ObtainedMarks

		s.Counts.Evaluated++
		switch r.Status {
		case domain.StatusDefault:
			s.Counts.Default++
		case domain.StatusError:
			s.Counts.Error++
		default:
			s.Counts.OK++
		}
		if r.Percentage >= 80 {
			s.Counts.Above80++
		}
		if r.Percentage < 50 {
			s.Counts.Below50++
		}
	}

	s.TotalObtained = domain.Round2(obtained)
	s.OverallPercentage = domain.Percentage(obtained, float64(s.TotalMax))
	s.Grade = domain.Grade(s.OverallPercentage)
	if len(results) == 0 {
		s.Grade = GradeNotAvailable
	} else {
		s.AverageScore = domain.Round2(obtained / float64(len(results)))
	}

	if target != nil {
		t := *target
		normalized := 0.0
		if s.TotalMax > 0 {
			normalized = domain.Round2(obtained / float64(s.TotalMax) * t)
		}
		s.NormalizationTarget = &t
		s.NormalizedScore = &normalized
	}
	return s
}
