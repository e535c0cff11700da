package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/pipeline"
	"github.com/ahrav/go-grader/internal/store"
	"github.com/ahrav/go-grader/internal/worker"
	"github.com/ahrav/go-grader/internal/workflow"
)

type runFlags struct {
	document   string
	questions  string
	policy     string
	totalMarks float64
	out        string
	xlsx       string
	store      string
	temporal   bool
}

func newRunCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Grade a scanned answer sheet end to end",
		Long: `Transcribe the document, align the answers with the question set and
score every answer. The report is printed as JSON unless --out is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.document, "document", "d", "", "PDF or image of the answer sheet (required)")
	cmd.Flags().StringVarP(&f.questions, "questions", "q", "", "YAML or JSON question set (required)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "Scoring policy: rubric or consensus (default from config)")
	cmd.Flags().Float64Var(&f.totalMarks, "total-marks", 0, "Rescale the overall score to this total")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write the JSON report to this file")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "Also write an Excel workbook to this file")
	cmd.Flags().StringVar(&f.store, "store", "", "Record the report in this SQLite history database")
	cmd.Flags().BoolVar(&f.temporal, "temporal", false, "Submit the run to a Temporal worker instead of grading in-process")
	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("questions")
	return cmd
}

func (a *app) run(cmd *cobra.Command, f runFlags) error {
	ctx := cmd.Context()

	set, err := domain.LoadQuestionSet(f.questions)
	if err != nil {
		return err
	}
	if f.totalMarks < 0 {
		return errors.New("--total-marks must be positive")
	}
	var target *float64
	if f.totalMarks > 0 {
		target = &f.totalMarks
	}

	st, closeStore, err := openStore(ctx, f.store, a.cfg.Store.Path)
	if err != nil {
		return err
	}
	defer closeStore()

	var r *domain.EvaluationReport
	if f.temporal {
		var ref domain.DocumentRef
		if ref, err = domain.ReferenceDocument(f.document); err != nil {
			return err
		}
		r, err = a.submit(cmd, ref, set.Questions, f.policy, target)
		if err == nil && st != nil {
			err = st.Save(ctx, r)
		}
	} else {
		var doc domain.Document
		if doc, err = domain.ReadDocument(f.document); err != nil {
			return err
		}
		r, err = a.runLocal(cmd, doc, set.Questions, f.policy, target, st)
	}
	if err != nil {
		return err
	}
	return writeReport(cmd, r, f.out, f.xlsx)
}

func (a *app) runLocal(
	cmd *cobra.Command,
	doc domain.Document,
	questions []domain.Question,
	policy string,
	target *float64,
	st *store.SQLite,
) (*domain.EvaluationReport, error) {
	completer, release, err := a.newCompleter(a.cfg)
	if err != nil {
		return nil, err
	}
	defer release()

	var opts []pipeline.Option
	if st != nil {
		opts = append(opts, pipeline.WithReportSink(st))
	}
	o := pipeline.New(completer, a.cfg, opts...)
	return o.Run(cmd.Context(), doc, questions, pipeline.RunOptions{
		Policy:              policy,
		NormalizationTarget: target,
		Progress:            progressPrinter(cmd.ErrOrStderr()),
	})
}

func (a *app) submit(
	cmd *cobra.Command,
	doc domain.DocumentRef,
	questions []domain.Question,
	policy string,
	target *float64,
) (*domain.EvaluationReport, error) {
	req := workflow.GradingRequest{
		Document:            doc,
		Questions:           questions,
		Policy:              policy,
		NormalizationTarget: target,
		HeartbeatTimeout:    workflow.HeartbeatTimeoutFor(a.cfg),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := worker.Dial(a.cfg.Temporal, slog.Default())
	if err != nil {
		return nil, err
	}
	defer c.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "Submitted to task queue %s\n", a.cfg.Temporal.TaskQueue)
	return worker.Submit(cmd.Context(), c, a.cfg.Temporal.TaskQueue, req)
}
