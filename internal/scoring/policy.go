package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/jsonparse"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// Policy names.
const (
	PolicyRubric    = "rubric"
	PolicyConsensus = "consensus"
)

// Policy scores one answered pair. Implementations are safe for concurrent
// use; the stage handles unanswered pairs and turns errors into error records.
type Policy interface {
	Evaluate(ctx context.Context, pair domain.QAPair) (domain.EvaluationResult, error)
	Name() string
}

// NewPolicy builds the policy named in cfg.
func NewPolicy(completer llm.Completer, cfg configuration.ScoringConfig) (Policy, error) {
	switch cfg.Policy {
	case "", PolicyRubric:
		return NewRubricPolicy(completer, cfg), nil
	case PolicyConsensus:
		return NewConsensusPolicy(completer, cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown scoring policy %q", llmerrors.ErrConfiguration, cfg.Policy)
	}
}

// criterionPayload is one rubric entry as the model reports it.
type criterionPayload struct {
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	Level         string  `json:"level"`
	Justification string  `json:"justification"`
}

// rubricEvaluation is the scored rubric of one model call.
type rubricEvaluation struct {
	scores   domain.RubricScores
	feedback string
}

// rubricEvaluator issues rubric calls; both policies share it.
type rubricEvaluator struct {
	completer llm.Completer
	cfg       configuration.ScoringConfig
}

func (e rubricEvaluator) evaluate(ctx context.Context, persona, label string, pair domain.QAPair, alloc Allocation) (*rubricEvaluation, error) {
	resp, err := e.completer.Complete(ctx, &transport.Request{
		Operation:       transport.OpScoring,
		Parts:           []transport.Part{transport.TextPart(rubricPrompt(persona, pair, alloc))},
		Temperature:     e.cfg.Temperature,
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		Label:           label,
	})
	if err != nil {
		return nil, err
	}
	return parseRubric(resp.Text, alloc)
}

// parseRubric reads rubric_scores from the "evaluation" object, or from the
// top level when the model dropped the wrapper. Scores are clamped to the
// allocation; the model's own totals are ignored.
func parseRubric(raw string, alloc Allocation) (*rubricEvaluation, error) {
	obj, err := jsonparse.Object(raw)
	if err != nil {
		return nil, err
	}
	eval := obj
	if inner, ok := obj["evaluation"].(map[string]any); ok {
		eval = inner
	}
	rawScores, ok := eval["rubric_scores"].(map[string]any)
	if !ok {
		return nil, &llmerrors.ResponseError{
			Op:      "read rubric scores",
			Excerpt: llmerrors.Excerpt(raw, 200),
			Err:     llmerrors.ErrMalformedResponse,
		}
	}

	scores := make(domain.RubricScores, len(alloc))
	for _, c := range domain.Criteria() {
		maxScore := alloc[c]
		var p criterionPayload
		if entry, found := lookupCriterion(rawScores, c); found {
			if err := jsonparse.Decode(entry, &p); err != nil {
				return nil, fmt.Errorf("criterion %s: %w", c, err)
			}
		} else {
			p.Justification = "Not assessed"
		}
		score := clampScore(p.Score, maxScore)
		level := strings.TrimSpace(p.Level)
		if level == "" || strings.Contains(level, "/") {
			level = Level(domain.Percentage(score, float64(maxScore)))
		}
		scores[c] = domain.CriterionScore{
			Score:         score,
			MaxScore:      maxScore,
			Level:         level,
			Justification: strings.TrimSpace(p.Justification),
		}
	}

	feedback, _ := eval["feedback"].(string)
	if strings.TrimSpace(feedback) == "" {
		feedback = "No feedback provided"
	}
	return &rubricEvaluation{scores: scores, feedback: strings.TrimSpace(feedback)}, nil
}

// lookupCriterion matches criterion keys case-insensitively.
func lookupCriterion(m map[string]any, c domain.Criterion) (any, bool) {
	if v, ok := m[string(c)]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), string(c)) {
			return v, true
		}
	}
	return nil, false
}

// buildResult assembles the result record from criterion scores. The total
// is always recomputed from the criteria.
func buildResult(pair domain.QAPair, policy string, scores domain.RubricScores, feedback string) domain.EvaluationResult {
	total := scores.Total()
	return domain.EvaluationResult{
		QuestionID:    pair.QuestionID,
		QuestionText:  pair.QuestionText,
		AnswerText:    pair.AnswerText,
		MaxMarks:      pair.MaxMarks,
		ObtainedMarks: total,
		Percentage:    domain.Percentage(total, float64(pair.MaxMarks)),
		Feedback:      feedback + "\n\nDetailed Rubric Breakdown:\n" + scores.Breakdown(),
		RubricScores:  scores,
		Status:        domain.StatusOK,
		Policy:        policy,
	}
}

// RubricPolicy scores each pair with one rubric call.
type RubricPolicy struct {
	eval rubricEvaluator
}

// NewRubricPolicy builds the default policy.
func NewRubricPolicy(completer llm.Completer, cfg configuration.ScoringConfig) *RubricPolicy {
	return &RubricPolicy{eval: rubricEvaluator{completer: completer, cfg: cfg}}
}

// Name implements Policy.
func (p *RubricPolicy) Name() string { return PolicyRubric }

// Evaluate implements Policy.
func (p *RubricPolicy) Evaluate(ctx context.Context, pair domain.QAPair) (domain.EvaluationResult, error) {
	alloc := SplitRubric(pair.MaxMarks)
	ev, err := p.eval.evaluate(ctx, "", pair.QuestionID, pair, alloc)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	return buildResult(pair, PolicyRubric, ev.scores, ev.feedback), nil
}
