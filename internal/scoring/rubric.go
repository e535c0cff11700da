// Package scoring evaluates question/answer pairs against a four-criterion
// rubric and aggregates the results into a graded report.
package scoring

import (
	"math"

	"github.com/ahrav/go-grader/internal/domain"
)

// Criterion weights in tenths. Depth takes whatever the rounded weights leave.
var criterionWeights = []struct {
	criterion domain.Criterion
	tenths    int
}{
	{domain.CriterionAccuracy, 4},
	{domain.CriterionCompleteness, 3},
	{domain.CriterionClarity, 2},
}

// Allocation is the marks ceiling of each criterion.
type Allocation map[domain.Criterion]int

// SplitRubric divides maxMarks across the criteria: accuracy 40%, completeness
// 30%, clarity 20%, each rounded half to even, with depth taking the remainder. The
// allocation always sums to maxMarks.
func SplitRubric(maxMarks int) Allocation {
	if maxMarks < 0 {
		maxMarks = 0
	}
	alloc := make(Allocation, len(criterionWeights)+1)
	remaining := maxMarks
	for _, w := range criterionWeights {
		share := min(roundTenths(maxMarks, w.tenths), remaining)
		alloc[w.criterion] = share
		remaining -= share
	}
	alloc[domain.CriterionDepth] = remaining
	return alloc
}

// roundTenths computes round(m * tenths / 10), halves rounding to even.
func roundTenths(m, tenths int) int {
	return int(math.RoundToEven(float64(m*tenths) / 10))
}

// Rubric performance levels by percentage of the criterion or item maximum.
const (
	LevelExcellent        = "Excellent"
	LevelGood             = "Good"
	LevelSatisfactory     = "Satisfactory"
	LevelNeedsImprovement = "Needs Improvement"
	LevelUnsatisfactory   = "Unsatisfactory"
)

// Level maps a percentage onto the rubric level scale.
func Level(pct float64) string {
	switch {
	case pct >= 90:
		return LevelExcellent
	case pct >= 75:
		return LevelGood
	case pct >= 60:
		return LevelSatisfactory
	case pct >= 40:
		return LevelNeedsImprovement
	default:
		return LevelUnsatisfactory
	}
}

// clampScore bounds a criterion score to [0, maxScore].
func clampScore(score float64, maxScore int) float64 {
	switch {
	case score < 0:
		return 0
	case score > float64(maxScore):
		return float64(maxScore)
	default:
		return domain.Round2(score)
	}
}
