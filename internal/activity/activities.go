// Package activity implements the Temporal activities of the grading
// workflow: one activity per pipeline stage. Each activity meters its own
// model calls and returns the usage with its output, so the workflow can sum
// the usage of one run without any shared counters.
package activity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/go-grader/internal/alignment"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/scoring"
	pkgactivity "github.com/ahrav/go-grader/pkg/activity"
)

// heartbeatInterval paces heartbeats during a single long model call.
const heartbeatInterval = 30 * time.Second

// Activities holds the dependencies of the grading activities.
type Activities struct {
	pkgactivity.BaseActivities
	completer   llm.Completer
	cfg         *configuration.Config
	extractOpts []extraction.Option
	events      *EventEmitter

	heartbeat func(ctx context.Context, details ...any)
	interval  time.Duration
}

// NewActivities wires the activities to a model gateway. extractOpts are
// passed to every extraction stage (renderer, scratch dir).
func NewActivities(
	base pkgactivity.BaseActivities,
	completer llm.Completer,
	cfg *configuration.Config,
	extractOpts ...extraction.Option,
) *Activities {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	return &Activities{
		BaseActivities: base,
		completer:      completer,
		cfg:            cfg,
		extractOpts:    extractOpts,
		events:         NewEventEmitter(base),
		heartbeat:      pkgactivity.RecordHeartbeat,
		interval:       heartbeatInterval,
	}
}

// heartbeatUntilDone records a heartbeat every interval until the returned
// stop func is called.
func (a *Activities) heartbeatUntilDone(ctx context.Context, details ...any) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.heartbeat(ctx, details...)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// ExtractText reads the referenced document and transcribes it page by page,
// heartbeating as each page finishes.
func (a *Activities) ExtractText(ctx context.Context, input ExtractTextInput) (*ExtractTextOutput, error) {
	const op = "ExtractText"
	if strings.TrimSpace(input.Document.Path) == "" {
		return nil, nonRetryable(op, ErrActivityValidation, "document path is required")
	}
	doc, err := input.Document.Open()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, nonRetryable(op, fmt.Errorf("%w: %w", ErrActivityValidation, err), "document is unreadable")
		}
		return nil, retryable(op, err, "read document")
	}

	wfCtx := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "Starting ExtractText activity",
		"workflow_id", wfCtx.WorkflowID,
		"document", doc.Name,
		"bytes", len(doc.Data))
	a.heartbeat(ctx, "extracting")

	meter := &llm.UsageMeter{}
	opts := append(slices.Clone(a.extractOpts), extraction.WithPageProgress(func(done, total int) {
		a.heartbeat(ctx, done, total)
	}))
	stage := extraction.New(llm.Metered(a.completer, meter), a.cfg.Extraction, opts...)
	extracted, err := stage.Extract(ctx, doc)
	if err != nil {
		pkgactivity.SafeLogError(ctx, "ExtractText failed", "document", doc.Name, "error", err)
		return nil, stageFailure(op, err, fmt.Sprintf("extract %s", doc.Name))
	}

	usage := meter.Snapshot()
	failed := extracted.FailedPages()
	a.events.EmitTextExtracted(ctx, wfCtx, doc.Name, len(extracted.Pages), len(failed), usage)
	return &ExtractTextOutput{Extracted: *extracted, Usage: usage}, nil
}

// AlignAnswers maps the extracted text onto the question set.
func (a *Activities) AlignAnswers(ctx context.Context, input AlignAnswersInput) (*AlignAnswersOutput, error) {
	const op = "AlignAnswers"
	wfCtx := a.GetWorkflowContext(ctx)
	pkgactivity.SafeLog(ctx, "Starting AlignAnswers activity",
		"workflow_id", wfCtx.WorkflowID,
		"questions", len(input.Questions),
		"text_chars", len(input.Text))
	a.heartbeat(ctx, "aligning")

	meter := &llm.UsageMeter{}
	stage := alignment.New(llm.Metered(a.completer, meter), a.cfg.Alignment)
	stop := a.heartbeatUntilDone(ctx, "aligning")
	pairs, selected, err := stage.Align(ctx, input.Text, input.Questions)
	stop()
	if err != nil {
		pkgactivity.SafeLogError(ctx, "AlignAnswers failed", "error", err)
		return nil, stageFailure(op, err, "align answers")
	}

	usage := meter.Snapshot()
	a.events.EmitAnswersAligned(ctx, wfCtx, len(pairs), selected, usage)
	return &AlignAnswersOutput{Pairs: pairs, SelectedChoices: selected, Usage: usage}, nil
}

// ScoreAnswers scores every pair and aggregates the report. Item failures
// are recorded in the report, so the activity itself only fails on
// configuration errors or cancellation.
func (a *Activities) ScoreAnswers(ctx context.Context, input ScoreAnswersInput) (*ScoreAnswersOutput, error) {
	const op = "ScoreAnswers"
	wfCtx := a.GetWorkflowContext(ctx)

	meter := &llm.UsageMeter{}
	cfg := a.cfg.Scoring
	if input.Policy != "" {
		cfg.Policy = input.Policy
	}
	policy, err := scoring.NewPolicy(llm.Metered(a.completer, meter), cfg)
	if err != nil {
		return nil, nonRetryable(op, err, "invalid scoring policy")
	}
	pkgactivity.SafeLog(ctx, "Starting ScoreAnswers activity",
		"workflow_id", wfCtx.WorkflowID,
		"pairs", len(input.Pairs),
		"policy", policy.Name())

	report, err := scoring.NewStage(policy, cfg).Score(ctx, input.Pairs, scoring.Options{
		NormalizationTarget: input.NormalizationTarget,
		Progress: func(done, total int, questionID string) {
			a.heartbeat(ctx, done, total, questionID)
		},
	})
	if err != nil {
		return nil, stageFailure(op, err, "score answers")
	}

	usage := meter.Snapshot()
	a.events.EmitAnswersScored(ctx, wfCtx, report.Summary, usage)
	return &ScoreAnswersOutput{Report: *report, Usage: usage}, nil
}
