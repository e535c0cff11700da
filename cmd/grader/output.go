package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/report"
	"github.com/ahrav/go-grader/internal/scoring"
	"github.com/ahrav/go-grader/internal/store"
)

// writeReport writes r as JSON to outPath (stdout when empty) and, when
// xlsxPath is set, as a workbook.
func writeReport(cmd *cobra.Command, r *domain.EvaluationReport, outPath, xlsxPath string) error {
	if err := writeTo(cmd.OutOrStdout(), outPath, func(w io.Writer) error {
		return report.WriteJSON(w, r)
	}); err != nil {
		return err
	}
	if xlsxPath == "" {
		return nil
	}
	data, err := report.WriteXLSX(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Workbook written to %s\n", xlsxPath)
	return nil
}

func writeTo(stdout io.Writer, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// progressPrinter reports per-question completion on w. Workers call it
// concurrently.
func progressPrinter(w io.Writer) scoring.ProgressReporter {
	var mu sync.Mutex
	return func(done, total int, questionID string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%d/%d] scored %s\n", done, total, questionID)
	}
}

// openStore opens the history store at path, falling back to the configured
// one. A nil store means history is disabled.
func openStore(ctx context.Context, path, configured string) (*store.SQLite, func(), error) {
	if path == "" {
		path = configured
	}
	if path == "" {
		return nil, func() {}, nil
	}
	s, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			slog.Warn("closing store", "path", path, "error", err)
		}
	}, nil
}
