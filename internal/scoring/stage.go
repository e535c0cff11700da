package scoring

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm/configuration"
)

// ProgressReporter receives a notification as each pair finishes.
type ProgressReporter func(done, total int, questionID string)

// Options tune one Score call.
type Options struct {
	// NormalizationTarget rescales the total onto this many marks when set.
	NormalizationTarget *float64
	// Progress, when set, is called from worker goroutines.
	Progress ProgressReporter
}

// Stage is the scoring stage.
type Stage struct {
	policy  Policy
	workers int
	logger  *slog.Logger
}

// NewStage builds the stage around a policy.
func NewStage(policy Policy, cfg configuration.ScoringConfig) *Stage {
	workers := cfg.Workers
	if workers <= 0 {
		workers = configuration.DefaultScoringWorkers
	}
	return &Stage{
		policy:  policy,
		workers: workers,
		logger:  slog.Default().With("component", "scoring", "policy", policy.Name()),
	}
}

// Policy returns the stage's scoring policy.
func (s *Stage) Policy() Policy { return s.policy }

// Score evaluates every pair and aggregates the report. Pairs missing question
// or answer text get a default record without a model call; a pair whose
// evaluation fails gets an error record. Results are ordered by question id.
// The only error returned is ctx's.
func (s *Stage) Score(ctx context.Context, pairs []domain.QAPair, opts Options) (*domain.EvaluationReport, error) {
	slots := make([]domain.EvaluationResult, len(pairs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pair := range pairs {
		g.Go(func() error {
			slots[i] = s.scoreOne(gctx, pair)
			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), len(pairs), pair.QuestionID)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].QuestionID < slots[j].QuestionID })
	summary := Summarize(slots, opts.NormalizationTarget)
	s.logger.Info("scoring completed",
		"questions", summary.Counts.Evaluated,
		"errors", summary.Counts.Error,
		"defaults", summary.Counts.Default,
		"overall_percentage", summary.OverallPercentage,
		"grade", summary.Grade)

	return &domain.EvaluationReport{
		Policy:  s.policy.Name(),
		Results: slots,
		Summary: summary,
	}, nil
}

func (s *Stage) scoreOne(ctx context.Context, pair domain.QAPair) domain.EvaluationResult {
	if !pair.Answered() {
		s.logger.Debug("missing question or answer text", "question_id", pair.QuestionID)
		return domain.NewDefaultResult(pair)
	}
	res, err := s.policy.Evaluate(ctx, pair)
	if err != nil {
		s.logger.Warn("evaluation failed", "question_id", pair.QuestionID, "error", err)
		return domain.NewErrorResult(pair, err)
	}
	return res
}
