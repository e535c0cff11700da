// Package pipeline sequences the grading stages for one document: extraction,
// alignment and scoring. Each run gets its own usage meter; the orchestrator
// only merges finished runs into process totals for monitoring.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-grader/internal/alignment"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/scoring"
)

// ReportSink receives every finished report, typically a run-history store.
type ReportSink interface {
	Save(ctx context.Context, report *domain.EvaluationReport) error
}

// RunOptions tune one run.
type RunOptions struct {
	// Policy overrides the configured scoring policy when non-empty.
	Policy string
	// NormalizationTarget rescales the report total onto this many marks.
	NormalizationTarget *float64
	// Progress is forwarded to the scoring stage.
	Progress scoring.ProgressReporter
}

// Orchestrator runs the pipeline. It is safe for concurrent runs.
type Orchestrator struct {
	completer   llm.Completer
	cfg         *configuration.Config
	extractOpts []extraction.Option
	sink        ReportSink
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	totals domain.UsageStats
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithReportSink stores every finished report. Sink failures are logged.
func WithReportSink(s ReportSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithExtractionOptions forwards options to the extraction stage of every run.
func WithExtractionOptions(opts ...extraction.Option) Option {
	return func(o *Orchestrator) { o.extractOpts = append(o.extractOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces the clock used to stamp reports.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator. A nil cfg uses the defaults. A nil completer
// is accepted here and reported as a configuration error when a run starts.
func New(completer llm.Completer, cfg *configuration.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	o := &Orchestrator{
		completer: completer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run grades doc against questions. Document-level failures (nothing
// extractable, no question set, malformed mapping) abort the run; page and
// question failures are recorded in the report instead.
func (o *Orchestrator) Run(
	ctx context.Context,
	doc domain.Document,
	questions []domain.Question,
	opts RunOptions,
) (*domain.EvaluationReport, error) {
	if err := o.ready(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("run %q: %w", doc.Name, llmerrors.ErrNoQuestionsProvided)
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	meter := &llm.UsageMeter{}
	completer := llm.Metered(o.completer, meter)
	policy, err := o.policy(completer, opts)
	if err != nil {
		return nil, err
	}

	start := o.now()
	logger.Info("run started", "document", doc.Name, "questions", len(questions), "policy", policy.Name())

	extractOpts := append([]extraction.Option{extraction.WithLogger(logger.With("stage", "extraction"))}, o.extractOpts...)
	extracted, err := extraction.New(completer, o.cfg.Extraction, extractOpts...).Extract(ctx, doc)
	if err != nil {
		logger.Error("extraction failed", "error", err)
		return nil, fmt.Errorf("extract %q: %w", doc.Name, err)
	}
	failed := extracted.FailedPages()
	if len(failed) > 0 {
		logger.Warn("pages fell back to placeholders", "failed_pages", len(failed), "pages", len(extracted.Pages))
	}

	pairs, selected, err := alignment.New(completer, o.cfg.Alignment).Align(ctx, extracted.Text(), questions)
	if err != nil {
		logger.Error("alignment failed", "error", err)
		return nil, fmt.Errorf("align %q: %w", doc.Name, err)
	}

	report, err := scoring.NewStage(policy, o.cfg.Scoring).Score(ctx, pairs, scoring.Options{
		NormalizationTarget: opts.NormalizationTarget,
		Progress:            opts.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("score %q: %w", doc.Name, err)
	}
	report.SelectedChoices = selected
	report.PageErrors = failed

	o.finish(ctx, logger, runID, report, meter, start)
	return report, nil
}

// ScorePairs scores manually supplied pairs, bypassing extraction and
// alignment.
func (o *Orchestrator) ScorePairs(ctx context.Context, pairs []domain.QAPair, opts RunOptions) (*domain.EvaluationReport, error) {
	if err := o.ready(); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", llmerrors.ErrMissingInput, err)
		}
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	meter := &llm.UsageMeter{}
	policy, err := o.policy(llm.Metered(o.completer, meter), opts)
	if err != nil {
		return nil, err
	}

	start := o.now()
	logger.Info("scoring pairs", "pairs", len(pairs), "policy", policy.Name())
	report, err := scoring.NewStage(policy, o.cfg.Scoring).Score(ctx, pairs, scoring.Options{
		NormalizationTarget: opts.NormalizationTarget,
		Progress:            opts.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}

	o.finish(ctx, logger, runID, report, meter, start)
	return report, nil
}

// UsageStats returns the totals of every completed run in this process.
func (o *Orchestrator) UsageStats() domain.UsageStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totals
}

func (o *Orchestrator) ready() error {
	if o.completer == nil {
		return fmt.Errorf("%w: %w", llmerrors.ErrConfiguration, llmerrors.ErrModelUnavailable)
	}
	return nil
}

func (o *Orchestrator) policy(c llm.Completer, opts RunOptions) (scoring.Policy, error) {
	cfg := o.cfg.Scoring
	if opts.Policy != "" {
		cfg.Policy = opts.Policy
	}
	return scoring.NewPolicy(c, cfg)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.cfg.Pipeline.RunTimeout
	if timeout <= 0 {
		timeout = configuration.DefaultRunTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// finish stamps the report, merges its usage into the process totals and
// hands it to the sink.
func (o *Orchestrator) finish(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	report *domain.EvaluationReport,
	meter *llm.UsageMeter,
	start time.Time,
) {
	usage := meter.Snapshot()
	usage.RunsCompleted = 1

	report.RunID = runID
	report.CreatedAt = o.now().UTC()
	report.Usage = usage

	o.mu.Lock()
	o.totals = o.totals.Add(usage)
	o.mu.Unlock()

	logger.Info("run completed",
		"grade", report.Summary.Grade,
		"overall_percentage", report.Summary.OverallPercentage,
		"api_requests", usage.APIRequests,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", o.now().Sub(start).Milliseconds())

	if o.sink == nil {
		return
	}
	// A cancelled run context must not prevent persisting a finished report.
	if err := o.sink.Save(context.WithoutCancel(ctx), report); err != nil {
		logger.Error("failed to store report", "error", err)
	}
}
