package domain

import (
	"fmt"
	"math"
	"strings"
)

// QAPair is a question paired with the student's extracted answer. An empty
// AnswerText means the question was not answered.
type QAPair struct {
	QuestionID   string `json:"question_id"   yaml:"question_id"   validate:"required"`
	QuestionText string `json:"question_text" yaml:"question_text"`
	AnswerText   string `json:"answer_text"   yaml:"answer_text"`
	MaxMarks     int    `json:"max_marks"     yaml:"max_marks"     validate:"gte=0"`
}

// Validate checks the pair's structural fields.
func (p QAPair) Validate() error {
	return validate.Struct(p)
}

// Answered reports whether both the question and the answer carry text.
func (p QAPair) Answered() bool {
	return strings.TrimSpace(p.QuestionText) != "" && strings.TrimSpace(p.AnswerText) != ""
}

// Criterion is one scored rubric dimension.
type Criterion string

// Rubric criteria in split order. The last criterion absorbs the rounding
// remainder of the marks split.
const (
	CriterionAccuracy     Criterion = "accuracy"
	CriterionCompleteness Criterion = "completeness"
	CriterionClarity      Criterion = "clarity"
	CriterionDepth        Criterion = "depth"
)

// Criteria lists the rubric criteria in split order.
func Criteria() []Criterion {
	return []Criterion{CriterionAccuracy, CriterionCompleteness, CriterionClarity, CriterionDepth}
}

// CriterionScore is the score awarded for one criterion.
type CriterionScore struct {
	Score         float64 `json:"score"`
	MaxScore      int     `json:"max_score"`
	Level         string  `json:"level"`
	Justification string  `json:"justification"`
}

// RubricScores maps each criterion to its score.
type RubricScores map[Criterion]CriterionScore

// Total sums the criterion scores.
func (r RubricScores) Total() float64 {
	total := 0.0
	for _, c := range r {
		total += c.Score
	}
	return Round2(total)
}

// Breakdown renders one line per criterion in split order.
func (r RubricScores) Breakdown() string {
	var lines []string
	for _, name := range Criteria() {
		c, ok := r[name]
		if !ok {
			continue
		}
		title := strings.ToUpper(string(name[:1])) + string(name[1:])
		lines = append(lines, fmt.Sprintf("- %s: %s/%d (%s) - %s",
			title, formatMarks(c.Score), c.MaxScore, c.Level, c.Justification))
	}
	return strings.Join(lines, "\n")
}

// ResultStatus tags how an evaluation result was produced.
type ResultStatus string

const (
	// StatusOK is a genuine model evaluation.
	StatusOK ResultStatus = "ok"
	// StatusDefault is a zero-score record for a pair missing question or answer text.
	StatusDefault ResultStatus = "default"
	// StatusError is a zero-score record for a pair whose evaluation failed.
	StatusError ResultStatus = "error"
)

// EvaluationResult is the outcome for one QAPair.
type EvaluationResult struct {
	QuestionID    string       `json:"question_id"`
	QuestionText  string       `json:"question_text"`
	AnswerText    string       `json:"answer_text"`
	MaxMarks      int          `json:"max_marks"`
	ObtainedMarks float64      `json:"obtained_marks"`
	Percentage    float64      `json:"percentage"`
	Feedback      string       `json:"feedback"`
	RubricScores  RubricScores `json:"rubric_scores"`
	Status        ResultStatus `json:"status"`
	Policy        string       `json:"policy,omitempty"`
}

// NewDefaultResult builds the zero-score record used for unanswered pairs.
func NewDefaultResult(p QAPair) EvaluationResult {
	return EvaluationResult{
		QuestionID:   p.QuestionID,
		QuestionText: p.QuestionText,
		AnswerText:   p.AnswerText,
		MaxMarks:     p.MaxMarks,
		Feedback:     "Unable to evaluate: missing question or answer text",
		RubricScores: RubricScores{},
		Status:       StatusDefault,
	}
}

// NewErrorResult builds the zero-score record for a failed evaluation.
func NewErrorResult(p QAPair, err error) EvaluationResult {
	return EvaluationResult{
		QuestionID:   p.QuestionID,
		QuestionText: p.QuestionText,
		AnswerText:   p.AnswerText,
		MaxMarks:     p.MaxMarks,
		Feedback:     fmt.Sprintf("Evaluation error: %v", err),
		RubricScores: RubricScores{},
		Status:       StatusError,
	}
}

// Percentage returns round(obtained/max*100, 2), or 0 when max is not positive.
func Percentage(obtained, maxMarks float64) float64 {
	if maxMarks <= 0 {
		return 0
	}
	return Round2(obtained / maxMarks * 100)
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func formatMarks(x float64) string {
	if x == math.Trunc(x) {
		return fmt.Sprintf("%.0f", x)
	}
	return fmt.Sprintf("%.2f", x)
}
