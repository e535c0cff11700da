package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	"github.com/ahrav/go-grader/internal/workflow"
)

// Dial connects to the Temporal frontend named in cfg.
func Dial(cfg configuration.TemporalConfig, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    log.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// Run polls cfg.Temporal.TaskQueue until ctx is done.
func Run(ctx context.Context, cfg *configuration.Config, completer llm.Completer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := Dial(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := sdkworker.New(c, cfg.Temporal.TaskQueue, sdkworker.Options{})
	RegisterAll(w, completer, cfg)

	logger.Info("worker started",
		"component", "worker",
		"task_queue", cfg.Temporal.TaskQueue,
		"namespace", cfg.Temporal.Namespace)

	stop := make(chan any)
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	if err := w.Run(stop); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

// Submit starts a grading workflow on taskQueue and waits for its report.
func Submit(ctx context.Context, c client.Client, taskQueue string, req workflow.GradingRequest) (*domain.EvaluationReport, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: taskQueue,
	}, workflow.GradingWorkflow, req)
	if err != nil {
		return nil, fmt.Errorf("start grading workflow: %w", err)
	}

	var report domain.EvaluationReport
	if err := run.Get(ctx, &report); err != nil {
		return nil, fmt.Errorf("grading workflow %s: %w", run.GetID(), err)
	}
	return &report, nil
}
