package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-grader/internal/alignment"
	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/pipeline"
)

func newScoreCommand(a *app) *cobra.Command {
	var (
		pairsPath  string
		policy     string
		totalMarks float64
		out        string
		xlsx       string
		storePath  string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score prepared question/answer pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pairs, err := domain.LoadQAPairs(pairsPath)
			if err != nil {
				return err
			}
			var target *float64
			if totalMarks > 0 {
				target = &totalMarks
			}

			st, closeStore, err := openStore(cmd.Context(), storePath, a.cfg.Store.Path)
			if err != nil {
				return err
			}
			defer closeStore()

			completer, release, err := a.newCompleter(a.cfg)
			if err != nil {
				return err
			}
			defer release()

			var opts []pipeline.Option
			if st != nil {
				opts = append(opts, pipeline.WithReportSink(st))
			}
			r, err := pipeline.New(completer, a.cfg, opts...).ScorePairs(cmd.Context(), pairs, pipeline.RunOptions{
				Policy:              policy,
				NormalizationTarget: target,
				Progress:            progressPrinter(cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}
			return writeReport(cmd, r, out, xlsx)
		},
	}
	cmd.Flags().StringVarP(&pairsPath, "pairs", "p", "", "YAML or JSON list of question/answer pairs (required)")
	cmd.Flags().StringVar(&policy, "policy", "", "Scoring policy: rubric or consensus (default from config)")
	cmd.Flags().Float64Var(&totalMarks, "total-marks", 0, "Rescale the overall score to this total")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the JSON report to this file")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Also write an Excel workbook to this file")
	cmd.Flags().StringVar(&storePath, "store", "", "Record the report in this SQLite history database")
	_ = cmd.MarkFlagRequired("pairs")
	return cmd
}

func newExtractCommand(a *app) *cobra.Command {
	var document, out string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Transcribe a document and print its page-delimited text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := domain.ReadDocument(document)
			if err != nil {
				return err
			}
			completer, release, err := a.newCompleter(a.cfg)
			if err != nil {
				return err
			}
			defer release()

			extracted, err := extraction.New(completer, a.cfg.Extraction).Extract(cmd.Context(), doc)
			if err != nil {
				return err
			}
			for _, p := range extracted.FailedPages() {
				fmt.Fprintf(cmd.ErrOrStderr(), "page %d failed: %s\n", p.Index+1, p.Err)
			}
			return writeTo(cmd.OutOrStdout(), out, func(w io.Writer) error {
				_, err := io.WriteString(w, extracted.Text()+"\n")
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&document, "document", "d", "", "PDF or image of the answer sheet (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the text to this file")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

// alignOutput is the JSON printed by the align command.
type alignOutput struct {
	SelectedChoices map[string]string `json:"selected_choices"`
	Pairs           []domain.QAPair   `json:"pairs"`
}

func newAlignCommand(a *app) *cobra.Command {
	var textPath, questionsPath, out string
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Map transcribed text onto a question set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := os.ReadFile(textPath)
			if err != nil {
				return fmt.Errorf("reading text: %w", err)
			}
			set, err := domain.LoadQuestionSet(questionsPath)
			if err != nil {
				return err
			}
			completer, release, err := a.newCompleter(a.cfg)
			if err != nil {
				return err
			}
			defer release()

			pairs, selected, err := alignment.New(completer, a.cfg.Alignment).Align(cmd.Context(), string(text), set.Questions)
			if err != nil {
				return err
			}
			return writeTo(cmd.OutOrStdout(), out, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(alignOutput{SelectedChoices: selected, Pairs: pairs})
			})
		},
	}
	cmd.Flags().StringVarP(&textPath, "text", "t", "", "Transcribed text, as printed by extract (required)")
	cmd.Flags().StringVarP(&questionsPath, "questions", "q", "", "YAML or JSON question set (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the pairs to this file")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("questions")
	return cmd
}
