package scoring

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-grader/internal/domain"
)

const rubricTemplate = `Evaluate the student's answer with the structured rubric below. Apply the criteria consistently.

Question (%d marks):
%s

Student answer:
%s

Rubric levels:
- Excellent (90-100%%): exceeds expectations
- Good (75-89%%): meets expectations with minor gaps
- Satisfactory (60-74%%): meets basic expectations
- Needs Improvement (40-59%%): below expectations
- Unsatisfactory (0-39%%): far below expectations

Criteria:
1. Accuracy (max %d): correctness of the information
2. Completeness (max %d): coverage of every aspect of the question
3. Clarity (max %d): clear, well organized communication
4. Depth (max %d): detail and insight beyond the minimum

Respond with JSON only, in exactly this shape:
{
  "evaluation": {
    "max_marks": %d,
    "rubric_scores": {
      "accuracy": {"score": 0, "max_score": %d, "level": "<level>", "justification": "<why>"},
      "completeness": {"score": 0, "max_score": %d, "level": "<level>", "justification": "<why>"},
      "clarity": {"score": 0, "max_score": %d, "level": "<level>", "justification": "<why>"},
      "depth": {"score": 0, "max_score": %d, "level": "<level>", "justification": "<why>"}
    },
    "total_score": 0,
    "overall_level": "<level>",
    "feedback": "<strengths and areas for improvement>"
  }
}`

func rubricPrompt(persona string, pair domain.QAPair, alloc Allocation) string {
	a := alloc[domain.CriterionAccuracy]
	c := alloc[domain.CriterionCompleteness]
	l := alloc[domain.CriterionClarity]
	d := alloc[domain.CriterionDepth]
	body := fmt.Sprintf(rubricTemplate,
		pair.MaxMarks, strings.TrimSpace(pair.QuestionText), strings.TrimSpace(pair.AnswerText),
		a, c, l, d,
		pair.MaxMarks, a, c, l, d)
	if persona == "" {
		return body
	}
	return persona + "\n\n" + body
}

// Persona is one lenient evaluator of the consensus policy.
type Persona struct {
	Name   string
	Prompt string
}

// DefaultPersonas are the evaluators consulted by ConsensusPolicy.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			Name: "theoretical",
			Prompt: `You are a supportive computer science lecturer acting as the theoretical evaluator.
Look for attempts to address the key concepts the question asks about, even when details are missing or the language is imprecise.
Give partial credit generously for honest attempts and award at least 70% of each criterion to a genuine attempt.`,
		},
		{
			Name: "practical",
			Prompt: `You are a supportive computer science lecturer acting as the practical evaluator.
Credit examples and applications that point in the right direction, even if the execution is flawed or not optimal.
Be very lenient and award at least 70% of each criterion to a genuine attempt.`,
		},
		{
			Name: "holistic",
			Prompt: `You are a supportive computer science lecturer acting as the holistic evaluator.
Judge the overall effort and engagement with the material, the attempt to connect ideas and the clarity of expression.
Be extremely lenient and award at least 70% of each criterion to any sincere attempt.`,
		},
	}
}
