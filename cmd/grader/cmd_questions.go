package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/questionpaper"
)

func newQuestionsCommand(a *app) *cobra.Command {
	var document, out string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Read the question set off a scanned question paper",
		Long: `Parse every page of a question paper and print the question set as YAML.
The output can be passed to run and align with --questions.`,
		Args: cobra.NoArgs,
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

			res, err := questionpaper.New(completer, a.cfg).Parse(cmd.Context(), doc)
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			for _, page := range res.FailedPages {
				fmt.Fprintf(stderr, "page %d could not be parsed\n", page)
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(stderr, "warning: %s\n", w)
			}
			fmt.Fprintf(stderr, "Parsed %d questions worth %d marks from %d pages\n",
				len(res.Set.Questions), res.TotalMarks, res.Pages)

			return writeTo(cmd.OutOrStdout(), out, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(res.Set); err != nil {
					return fmt.Errorf("encoding question set: %w", err)
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&document, "document", "d", "", "PDF or image of the question paper (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the question set to this file")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}
