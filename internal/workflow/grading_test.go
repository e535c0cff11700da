package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ahrav/go-grader/internal/activity"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
	pkgactivity "github.com/ahrav/go-grader/pkg/activity"
)

const mapping = `{"selected_choices": {"G1": "Q2"}, "mapped_answers": [
	{"question_id": "Q1", "answer": "A finite sequence of steps."},
	{"question_id": "Q2", "answer": "TCP is connection oriented."}
]}`

const rubric = `{"evaluation": {"rubric_scores": {
	"accuracy": {"score": 4, "level": "Excellent", "justification": "correct"},
	"completeness": {"score": 2, "level": "Good", "justification": "mostly complete"},
	"clarity": {"score": 2, "level": "Excellent", "justification": "clear"},
	"depth": {"score": 1, "level": "Excellent", "justification": "deep"}
}, "feedback": "Good work."}}`

type gradingCompleter struct {
	mapping  string
	alignErr error

	extractCalls atomic.Int32
	alignCalls   atomic.Int32
	scoreCalls   atomic.Int32
}

func (c *gradingCompleter) Complete(_ context.Context, req *transport.Request) (*transport.Response, error) {
	usage := transport.Usage{InputTokens: 10, OutputTokens: 1}
	switch req.Operation {
	case transport.OpExtraction:
		c.extractCalls.Add(1)
		return &transport.Response{Text: "1. Steps\n2. TCP", Usage: usage}, nil
	case transport.OpAlignment:
		c.alignCalls.Add(1)
		if c.alignErr != nil {
			return nil, c.alignErr
		}
		m := c.mapping
		if m == "" {
			m = mapping
		}
		return &transport.Response{Text: m, Usage: usage}, nil
	default:
		c.scoreCalls.Add(1)
		return &transport.Response{Text: rubric, Usage: usage}, nil
	}
}

func request(t *testing.T) GradingRequest {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	return GradingRequest{
		Document: domain.DocumentRef{Name: "scan.png", Path: path, MimeType: "image/png"},
		Questions: []domain.Question{
			{ID: "Q1", Text: "Define an algorithm.", MaxMarks: 10},
			{ID: "Q2", Text: "Explain TCP.", MaxMarks: 10, ChoiceGroup: "G1"},
			{ID: "Q3", Text: "Explain UDP.", MaxMarks: 10, ChoiceGroup: "G1"},
		},
	}
}

func newEnv(t *testing.T, c *gradingCompleter) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	s := &testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()
	acts := activity.NewActivities(pkgactivity.NewBaseActivities(nil), c, configuration.DefaultConfig(),
		extraction.WithTempDir(t.TempDir()),
		extraction.WithLogger(slog.New(slog.DiscardHandler)))
	env.RegisterActivity(acts.ExtractText)
	env.RegisterActivity(acts.AlignAnswers)
	env.RegisterActivity(acts.ScoreAnswers)
	return env
}

func TestGradingWorkflow(t *testing.T) {
	c := &gradingCompleter{}
	env := newEnv(t, c)

	env.ExecuteWorkflow(GradingWorkflow, request(t))
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report domain.EvaluationReport
	require.NoError(t, env.GetWorkflowResult(&report))

	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.CreatedAt.IsZero())
	assert.Equal(t, "rubric", report.Policy)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "Q1", report.Results[0].QuestionID)
	assert.Equal(t, "Q2", report.Results[1].QuestionID)
	assert.Equal(t, 20, report.Summary.TotalMax)
	assert.Equal(t, 18.0, report.Summary.TotalObtained)
	assert.Equal(t, "A+", report.Summary.Grade)
	assert.Equal(t, map[string]string{"G1": "Q2"}, report.SelectedChoices)
	assert.Empty(t, report.PageErrors)
	assert.Equal(t, domain.UsageStats{APIRequests: 4, InputTokens: 40, OutputTokens: 4, RunsCompleted: 1}, report.Usage)

	assert.Equal(t, int32(1), c.extractCalls.Load())
	assert.Equal(t, int32(1), c.alignCalls.Load())
	assert.Equal(t, int32(2), c.scoreCalls.Load())
}

func TestGradingWorkflowPolicyOverride(t *testing.T) {
	c := &gradingCompleter{}
	env := newEnv(t, c)
	req := request(t)
	req.Policy = "consensus"

	env.ExecuteWorkflow(GradingWorkflow, req)
	require.NoError(t, env.GetWorkflowError())

	var report domain.EvaluationReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, "consensus", report.Policy)
	// Three personas per answered pair.
	assert.Equal(t, int32(6), c.scoreCalls.Load())
}

func TestGradingWorkflowValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GradingRequest)
	}{
		{"no questions", func(r *GradingRequest) { r.Questions = nil }},
		{"no document path", func(r *GradingRequest) { r.Document.Path = "" }},
		{"unsupported document", func(r *GradingRequest) { r.Document = domain.DocumentRef{Path: "/exams/a.docx"} }},
		{"duplicate question", func(r *GradingRequest) { r.Questions = append(r.Questions, r.Questions[0]) }},
		{"unknown policy", func(r *GradingRequest) { r.Policy = "lottery" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &gradingCompleter{}
			env := newEnv(t, c)
			req := request(t)
			tt.mutate(&req)

			env.ExecuteWorkflow(GradingWorkflow, req)
			require.True(t, env.IsWorkflowCompleted())

			err := env.GetWorkflowError()
			var appErr *temporal.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "Validation", appErr.Type())
			assert.True(t, appErr.NonRetryable())
			assert.Zero(t, c.extractCalls.Load())
		})
	}
}

func TestGradingWorkflowFailures(t *testing.T) {
	t.Run("malformed mapping is not retried", func(t *testing.T) {
		c := &gradingCompleter{mapping: "nothing to map"}
		env := newEnv(t, c)

		env.ExecuteWorkflow(GradingWorkflow, request(t))
		require.True(t, env.IsWorkflowCompleted())

		err := env.GetWorkflowError()
		var appErr *temporal.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "AlignAnswers", appErr.Type())
		assert.Equal(t, int32(1), c.alignCalls.Load())
		assert.Zero(t, c.scoreCalls.Load())
	})

	t.Run("exhausted gateway is retried by the workflow", func(t *testing.T) {
		c := &gradingCompleter{alignErr: fmt.Errorf("%w: 503 unavailable", llmerrors.ErrModelCallFailed)}
		env := newEnv(t, c)

		env.ExecuteWorkflow(GradingWorkflow, request(t))
		require.True(t, env.IsWorkflowCompleted())

		err := env.GetWorkflowError()
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "align answers"))
		assert.Equal(t, int32(3), c.alignCalls.Load())
	})
}

func TestGradingRequestValidate(t *testing.T) {
	require.NoError(t, request(t).Validate())

	target := -5.0
	req := request(t)
	req.NormalizationTarget = &target
	require.Error(t, req.Validate())
}

func TestActivityOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts := activityOptions(request(t))
		assert.Equal(t, DefaultActivityTimeout, opts.StartToCloseTimeout)
		assert.Equal(t, DefaultHeartbeatTimeout, opts.HeartbeatTimeout)
		assert.Equal(t, int32(3), opts.RetryPolicy.MaximumAttempts)
	})

	t.Run("heartbeat outlasts one gateway call", func(t *testing.T) {
		cfg := configuration.DefaultConfig()
		assert.Greater(t, DefaultHeartbeatTimeout, cfg.CallBudget())

		req := request(t)
		req.HeartbeatTimeout = HeartbeatTimeoutFor(cfg)
		opts := activityOptions(req)
		assert.Equal(t, cfg.CallBudget()+time.Minute, opts.HeartbeatTimeout)
	})

	t.Run("request overrides", func(t *testing.T) {
		req := request(t)
		req.ActivityTimeout = 20 * time.Minute
		req.HeartbeatTimeout = 9 * time.Minute
		opts := activityOptions(req)
		assert.Equal(t, 20*time.Minute, opts.StartToCloseTimeout)
		assert.Equal(t, 9*time.Minute, opts.HeartbeatTimeout)
	})
}
