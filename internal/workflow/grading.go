// Package workflow defines the Temporal workflow that grades one document.
//
// The workflow is deterministic: model calls, clocks and randomness live in
// the activities. It runs ExtractText, AlignAnswers and ScoreAnswers in order
// and sums the usage each activity reports, so the report carries the usage
// of its own run only.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-grader/internal/activity"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm/configuration"
)

const (
	// DefaultActivityTimeout bounds each activity when the request sets none.
	DefaultActivityTimeout = 10 * time.Minute
	// DefaultHeartbeatTimeout outlasts one gateway call at the default
	// configuration (3 attempts of 120s plus backoff), the longest an
	// activity goes between heartbeats.
	DefaultHeartbeatTimeout = 7 * time.Minute
)

// GradingRequest is the workflow input. The document travels by reference;
// the worker reads it from Document.Path.
type GradingRequest struct {
	Document  domain.DocumentRef `json:"document"`
	Questions []domain.Question  `json:"questions"`

	// Policy overrides the worker's configured scoring policy.
	Policy              string   `json:"policy,omitempty"               validate:"omitempty,oneof=rubric consensus"`
	NormalizationTarget *float64 `json:"normalization_target,omitempty" validate:"omitempty,gt=0"`

	// ActivityTimeout bounds each stage; zero uses DefaultActivityTimeout.
	ActivityTimeout time.Duration `json:"activity_timeout,omitempty" validate:"gte=0"`
	// HeartbeatTimeout must exceed the worker's longest gateway call; zero
	// uses DefaultHeartbeatTimeout.
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout,omitempty" validate:"gte=0"`
}

// Validate checks the request before any activity runs.
func (r GradingRequest) Validate() error {
	if err := domain.ValidateStruct(r); err != nil {
		return err
	}
	if r.Document.Path == "" {
		return errors.New("document path is required")
	}
	if r.Document.Kind() == domain.DocumentUnsupported {
		return fmt.Errorf("unsupported document %q", r.Document.DisplayName())
	}
	if len(r.Questions) == 0 {
		return errors.New("at least one question is required")
	}
	return domain.QuestionSet{Questions: r.Questions}.Validate()
}

// GradingWorkflow grades req.Document against req.Questions.
func GradingWorkflow(ctx workflow.Context, req GradingRequest) (*domain.EvaluationReport, error) {
	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid grading request", "Validation", err)
	}

	ctx = workflow.WithActivityOptions(ctx, activityOptions(req))
	logger := workflow.GetLogger(ctx)

	var a *activity.Activities
	var usage domain.UsageStats

	var extracted activity.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, a.ExtractText, activity.ExtractTextInput{
		Document: req.Document,
	}).Get(ctx, &extracted); err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	usage = usage.Add(extracted.Usage)

	var aligned activity.AlignAnswersOutput
	if err := workflow.ExecuteActivity(ctx, a.AlignAnswers, activity.AlignAnswersInput{
		Text:      extracted.Extracted.Text(),
		Questions: req.Questions,
	}).Get(ctx, &aligned); err != nil {
		return nil, fmt.Errorf("align answers: %w", err)
	}
	usage = usage.Add(aligned.Usage)

	var scored activity.ScoreAnswersOutput
	if err := workflow.ExecuteActivity(ctx, a.ScoreAnswers, activity.ScoreAnswersInput{
		Pairs:               aligned.Pairs,
		Policy:              req.Policy,
		NormalizationTarget: req.NormalizationTarget,
	}).Get(ctx, &scored); err != nil {
		return nil, fmt.Errorf("score answers: %w", err)
	}
	usage = usage.Add(scored.Usage)
	usage.RunsCompleted = 1

	report := scored.Report
	report.RunID = workflow.GetInfo(ctx).WorkflowExecution.RunID
	report.CreatedAt = workflow.Now(ctx).UTC()
	report.Usage = usage
	report.SelectedChoices = aligned.SelectedChoices
	report.PageErrors = extracted.Extracted.FailedPages()

	logger.Info("grading completed",
		"run_id", report.RunID,
		"grade", report.Summary.Grade,
		"api_requests", usage.APIRequests)
	return &report, nil
}

// activityOptions applies the request's timeouts to every stage.
func activityOptions(req GradingRequest) workflow.ActivityOptions {
	timeout := req.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	heartbeat := req.HeartbeatTimeout
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatTimeout
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    heartbeat,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

// HeartbeatTimeoutFor sizes the heartbeat timeout for workers running cfg:
// one full gateway call plus a minute of slack for rate limiting.
func HeartbeatTimeoutFor(cfg *configuration.Config) time.Duration {
	return cfg.CallBudget() + time.Minute
}
