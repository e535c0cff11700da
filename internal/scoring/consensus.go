package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
)

// ConsensusPolicy consults several lenient personas concurrently and keeps,
// per criterion, the most generous score. Genuine attempts are lifted to the
// grace floor. One persona succeeding is enough.
type ConsensusPolicy struct {
	eval       rubricEvaluator
	personas   []Persona
	graceFloor float64
	logger     *slog.Logger
}

// ConsensusOption customizes a ConsensusPolicy.
type ConsensusOption func(*ConsensusPolicy)

// WithPersonas replaces the default personas.
func WithPersonas(p ...Persona) ConsensusOption {
	return func(c *ConsensusPolicy) { c.personas = p }
}

// NewConsensusPolicy builds the multi-persona policy.
func NewConsensusPolicy(completer llm.Completer, cfg configuration.ScoringConfig, opts ...ConsensusOption) *ConsensusPolicy {
	c := &ConsensusPolicy{
		eval:       rubricEvaluator{completer: completer, cfg: cfg},
		personas:   DefaultPersonas(),
		graceFloor: cfg.GraceFloor,
		logger:     slog.Default().With("component", "scoring", "policy", PolicyConsensus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Policy.
func (c *ConsensusPolicy) Name() string { return PolicyConsensus }

type personaOutcome struct {
	persona Persona
	eval    *rubricEvaluation
	err     error
}

// Evaluate implements Policy.
func (c *ConsensusPolicy) Evaluate(ctx context.Context, pair domain.QAPair) (domain.EvaluationResult, error) {
	alloc := SplitRubric(pair.MaxMarks)
	outcomes := make([]personaOutcome, len(c.personas))

	// A failed persona must not cancel the others, so the group carries no
	// derived context and every goroutine returns nil.
	var g errgroup.Group
	for i, p := range c.personas {
		g.Go(func() error {
			ev, err := c.eval.evaluate(ctx, p.Prompt, pair.QuestionID+"/"+p.Name, pair, alloc)
			outcomes[i] = personaOutcome{persona: p, eval: ev, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var succeeded []personaOutcome
	var errs []error
	for _, o := range outcomes {
		if o.err != nil {
			c.logger.Warn("persona evaluation failed", "question_id", pair.QuestionID, "persona", o.persona.Name, "error", o.err)
			errs = append(errs, fmt.Errorf("%s: %w", o.persona.Name, o.err))
			continue
		}
		succeeded = append(succeeded, o)
	}
	if len(succeeded) == 0 {
		return domain.EvaluationResult{}, fmt.Errorf("all evaluators failed: %w", errors.Join(errs...))
	}

	scores := c.merge(succeeded, alloc)
	var fb strings.Builder
	fmt.Fprintf(&fb, "Consensus of %d evaluators (most generous reading per criterion).", len(succeeded))
	for _, o := range succeeded {
		fmt.Fprintf(&fb, "\n\n%s evaluator: %s", titleCase(o.persona.Name), o.eval.feedback)
	}
	return buildResult(pair, PolicyConsensus, scores, fb.String()), nil
}

// merge keeps the highest score per criterion and applies the grace floor.
func (c *ConsensusPolicy) merge(outcomes []personaOutcome, alloc Allocation) domain.RubricScores {
	merged := make(domain.RubricScores, len(alloc))
	for _, crit := range domain.Criteria() {
		best := outcomes[0].eval.scores[crit]
		for _, o := range outcomes[1:] {
			if s := o.eval.scores[crit]; s.Score > best.Score {
				best = s
			}
		}
		maxScore := alloc[crit]
		if floor := c.graceScore(maxScore); best.Score < floor {
			best.Score = floor
			best.Justification = strings.TrimSpace(best.Justification + " (grace marks applied)")
		}
		best.MaxScore = maxScore
		best.Level = Level(domain.Percentage(best.Score, float64(maxScore)))
		merged[crit] = best
	}
	return merged
}

func (c *ConsensusPolicy) graceScore(maxScore int) float64 {
	if c.graceFloor <= 0 || maxScore <= 0 {
		return 0
	}
	return math.Min(domain.Round2(c.graceFloor*float64(maxScore)), float64(maxScore))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var (
	_ Policy = (*ConsensusPolicy)(nil)
	_ Policy = (*RubricPolicy)(nil)
)
