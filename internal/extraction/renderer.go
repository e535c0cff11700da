package extraction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-grader/internal/domain"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	logger.Debug("running command", "cmd_line", strings.Join(append([]string{name}, args...), " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)
	if err != nil {
		logger.Error("exec failed",
			"cmd", name,
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", llmerrors.Excerpt(errb.String(), 8<<10))
	} else {
		logger.Debug("exec ok",
			"cmd", name,
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
			"stderr_bytes", errb.Len())
	}
	return out.Bytes(), errb.Bytes(), err
}

// Renderer turns a multi-page document on disk into one image per page,
// written under outDir. Pages are returned sorted by Index.
type Renderer interface {
	Render(ctx context.Context, inputPath, outDir string) ([]domain.Page, error)
}

// PopplerRenderer renders PDFs with pdftoppm.
type PopplerRenderer struct {
	Binary   string
	DPI      int
	MaxPages int
	Runner   Runner
	Logger   *slog.Logger
}

// Render implements Renderer: pdftoppm -r <dpi> -png <in> <outDir>/page.
func (r *PopplerRenderer) Render(ctx context.Context, inputPath, outDir string) ([]domain.Page, error) {
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default().With("component", "renderer")
	}

	prefix := filepath.Join(outDir, "page")
	_, errb, err := runner.Run(ctx, r.Binary, logger, "-r", strconv.Itoa(r.DPI), "-png", inputPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("render pages: %w: %s", err, llmerrors.Excerpt(strings.TrimSpace(string(errb)), 512))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("collect rendered pages: %w", err)
	}
	return pagesFromFiles(matches, r.MaxPages), nil
}

// pagesFromFiles orders pdftoppm outputs (page-1.png, page-01.png, ...) by
// their page number and assigns zero-based indices.
func pagesFromFiles(paths []string, maxPages int) []domain.Page {
	type numbered struct {
		n    int
		path string
	}
	files := make([]numbered, 0, len(paths))
	for _, p := range paths {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, err := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
		if err != nil {
			continue
		}
		files = append(files, numbered{n: n, path: p})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })
	if maxPages > 0 && len(files) > maxPages {
		files = files[:maxPages]
	}

	pages := make([]domain.Page, len(files))
	for i, f := range files {
		pages[i] = domain.Page{Index: i, MimeType: "image/png", Path: f.path}
	}
	return pages
}
