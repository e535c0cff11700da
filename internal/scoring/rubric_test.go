package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-grader/internal/domain"
)

func TestSplitRubric(t *testing.T) {
	tests := []struct {
		marks int
		want  [4]int
	}{
		{10, [4]int{4, 3, 2, 1}},
		{20, [4]int{8, 6, 4, 2}},
		{5, [4]int{2, 2, 1, 0}},
		{15, [4]int{6, 4, 3, 2}},
		{25, [4]int{10, 8, 5, 2}},
		{35, [4]int{14, 10, 7, 4}},
		{55, [4]int{22, 16, 11, 6}},
		{1, [4]int{0, 0, 0, 1}},
		{2, [4]int{1, 1, 0, 0}},
		{3, [4]int{1, 1, 1, 0}},
		{0, [4]int{0, 0, 0, 0}},
	}
	for _, tc := range tests {
		got := SplitRubric(tc.marks)
		assert.Equal(t, tc.want[0], got[domain.CriterionAccuracy], "accuracy for %d", tc.marks)
		assert.Equal(t, tc.want[1], got[domain.CriterionCompleteness], "completeness for %d", tc.marks)
		assert.Equal(t, tc.want[2], got[domain.CriterionClarity], "clarity for %d", tc.marks)
		assert.Equal(t, tc.want[3], got[domain.CriterionDepth], "depth for %d", tc.marks)
	}
}

func TestSplitRubricSumsToMax(t *testing.T) {
	for m := 0; m <= 200; m++ {
		total := 0
		for _, c := range domain.Criteria() {
			share := SplitRubric(m)[c]
			assert.GreaterOrEqual(t, share, 0)
			total += share
		}
		assert.Equal(t, m, total, "marks %d", m)
	}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, LevelExcellent, Level(90))
	assert.Equal(t, LevelGood, Level(89.99))
	assert.Equal(t, LevelGood, Level(75))
	assert.Equal(t, LevelSatisfactory, Level(60))
	assert.Equal(t, LevelNeedsImprovement, Level(40))
	assert.Equal(t, LevelUnsatisfactory, Level(39.9))
}

func TestClampScore(t *testing.T) {
	assert.InDelta(t, 0.0, clampScore(-2, 4), 1e-9)
	assert.InDelta(t, 4.0, clampScore(7, 4), 1e-9)
	assert.InDelta(t, 2.5, clampScore(2.5, 4), 1e-9)
}
