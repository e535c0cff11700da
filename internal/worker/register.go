// Package worker registers the grading workflow and activities with a
// Temporal worker and runs it.
package worker

import (
	"log/slog"

	"github.com/ahrav/go-grader/internal/activity"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/workflow"
	pkgactivity "github.com/ahrav/go-grader/pkg/activity"
	"github.com/ahrav/go-grader/pkg/events"
)

// Registrar is the registration subset of a Temporal worker. The SDK's
// worker and its test environment both satisfy it.
type Registrar interface {
	RegisterWorkflow(w any)
	RegisterActivity(a any)
}

// RegisterAll registers GradingWorkflow and its activities. Activities reach
// the model through completer; stage events are written to the default
// logger. Call it once, before the worker starts.
func RegisterAll(r Registrar, completer llm.Completer, cfg *configuration.Config, extractOpts ...extraction.Option) {
	base := pkgactivity.NewBaseActivities(events.NewLogSink(slog.Default()))
	acts := activity.NewActivities(base, completer, cfg, extractOpts...)

	r.RegisterWorkflow(workflow.GradingWorkflow)

	r.RegisterActivity(acts.ExtractText)
	r.RegisterActivity(acts.AlignAnswers)
	r.RegisterActivity(acts.ScoreAnswers)
}
