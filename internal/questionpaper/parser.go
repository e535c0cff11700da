// Package questionpaper reads the question set off a scanned question paper.
// Each page is parsed by one model call. Blocks repeated across pages are
// merged, and the flattened questions are validated before they are used to
// grade answer sheets.
package questionpaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/extraction"
	"github.com/ahrav/go-grader/internal/jsonparse"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// ErrInvalidQuestionPaper is returned when no page could be parsed or a
// parsed question has no text.
var ErrInvalidQuestionPaper = errors.New("invalid question paper")

// Parser is the question paper stage.
type Parser struct {
	completer llm.Completer
	cfg       configuration.QuestionPaperConfig
	renderer  extraction.Renderer
	tempDir   string
	logger    *slog.Logger
}

// Option customizes a Parser.
type Option func(*Parser)

// WithRenderer replaces the page renderer.
func WithRenderer(r extraction.Renderer) Option {
	return func(p *Parser) { p.renderer = r }
}

// WithTempDir sets the parent directory for rendered pages.
func WithTempDir(dir string) Option {
	return func(p *Parser) { p.tempDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// New builds a parser. Pages are rendered with the extraction settings.
func New(completer llm.Completer, cfg *configuration.Config, opts ...Option) *Parser {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	qp := cfg.QuestionPaper
	if qp.Workers <= 0 {
		qp.Workers = configuration.DefaultQuestionPaperWorkers
	}
	p := &Parser{
		completer: completer,
		cfg:       qp,
		logger:    slog.Default().With("component", "question_paper"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil {
		ex := cfg.Extraction
		if ex.DPI <= 0 {
			ex.DPI = configuration.DefaultDPI
		}
		if ex.RendererPath == "" {
			ex.RendererPath = configuration.DefaultRendererPath
		}
		p.renderer = &extraction.PopplerRenderer{
			Binary:   ex.RendererPath,
			DPI:      ex.DPI,
			MaxPages: ex.MaxPages,
			Logger:   p.logger,
		}
	}
	return p
}

// Result is a parsed and validated question paper.
type Result struct {
	Set         domain.QuestionSet `json:"question_set"`
	Pages       int                `json:"pages"`
	FailedPages []int              `json:"failed_pages,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	TotalMarks  int                `json:"total_marks"`
}

// pageSource is one page image, either in memory or rendered to disk.
type pageSource struct {
	index    int
	mimeType string
	data     []byte
	path     string
}

func (s pageSource) read() ([]byte, error) {
	if s.data != nil {
		return s.data, nil
	}
	return os.ReadFile(s.path)
}

// Parse reads every page of doc. A page that fails is skipped and reported
// in FailedPages; the paper fails only when no page could be parsed, when no
// questions were found or when a question has no text.
func (p *Parser) Parse(ctx context.Context, doc domain.Document) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: question paper %q is empty", llmerrors.ErrNoExtractableText, doc.Name)
	}

	pages, cleanup, err := p.pageSources(ctx, doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	perPage := make([][]block, len(pages))
	failed := make([]bool, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, page := range pages {
		g.Go(func() error {
			blocks, err := p.parsePage(gctx, page)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("question paper page failed", "page", page.index+1, "error", err)
				failed[i] = true
				return nil
			}
			perPage[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failedPages []int
	for i, f := range failed {
		if f {
			failedPages = append(failedPages, i+1)
		}
	}
	if len(failedPages) == len(pages) {
		return nil, fmt.Errorf("%w: no page of %q could be parsed", ErrInvalidQuestionPaper, doc.Name)
	}

	questions, warnings := flatten(mergeBlocks(perPage))
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions found in %q", llmerrors.ErrNoQuestionsProvided, doc.Name)
	}
	issues, more := check(questions)
	warnings = append(warnings, more...)
	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuestionPaper, strings.Join(issues, "; "))
	}

	set := domain.QuestionSet{Title: strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name)), Questions: questions}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuestionPaper, err)
	}

	res := &Result{
		Set:         set,
		Pages:       len(pages),
		FailedPages: failedPages,
		Warnings:    warnings,
		TotalMarks:  domain.TotalMarks(questions),
	}
	p.logger.Info("question paper parsed",
		"document", doc.Name,
		"pages", res.Pages,
		"failed_pages", len(failedPages),
		"questions", len(questions),
		"total_marks", res.TotalMarks,
		"warnings", len(warnings))
	return res, nil
}

// pageSources returns the page images of doc. cleanup removes any rendered
// pages and is safe to call on every path.
func (p *Parser) pageSources(ctx context.Context, doc domain.Document) ([]pageSource, func(), error) {
	noop := func() {}
	switch doc.Kind() {
	case domain.DocumentImage:
		return []pageSource{{index: 0, mimeType: doc.ResolvedMimeType(), data: doc.Data}}, noop, nil
	case domain.DocumentMultiPage:
	default:
		return nil, noop, fmt.Errorf("%w: %q (%s)", llmerrors.ErrUnsupportedDocument, doc.Name, doc.MimeType)
	}

	dir, err := os.MkdirTemp(p.tempDir, "grader-paper-*")
	if err != nil {
		return nil, noop, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("failed to remove scratch dir", "dir", dir, "error", rmErr)
		}
	}

	input := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(input, doc.Data, 0o600); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("write question paper: %w", err)
	}
	rendered, err := p.renderer.Render(ctx, input, dir)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("%w: %s: %w", llmerrors.ErrNoExtractableText, doc.Name, err)
	}
	if len(rendered) == 0 {
		cleanup()
		return nil, noop, fmt.Errorf("%w: %s rendered no pages", llmerrors.ErrNoExtractableText, doc.Name)
	}

	pages := make([]pageSource, len(rendered))
	for i, r := range rendered {
		pages[i] = pageSource{index: i, mimeType: r.MimeType, path: r.Path}
	}
	return pages, cleanup, nil
}

func (p *Parser) parsePage(ctx context.Context, page pageSource) ([]block, error) {
	data, err := page.read()
	if err != nil {
		return nil, err
	}
	resp, err := p.completer.Complete(ctx, &transport.Request{
		Operation:       transport.OpQuestionParsing,
		Parts:           []transport.Part{transport.TextPart(parsingInstructions), transport.InlinePart(page.mimeType, data)},
		Temperature:     p.cfg.Temperature,
		MaxOutputTokens: p.cfg.MaxOutputTokens,
		Label:           fmt.Sprintf("question paper page %d", page.index+1),
	})
	if err != nil {
		return nil, err
	}
	return parseBlocks(resp.Text)
}

func parseBlocks(raw string) ([]block, error) {
	obj, err := jsonparse.Object(raw)
	if err != nil {
		return nil, err
	}
	if err := pageSchema.Validate(obj); err != nil {
		return nil, err
	}
	var page struct {
		Questions []block `json:"questions"`
	}
	if err := jsonparse.Decode(obj, &page); err != nil {
		return nil, err
	}
	return page.Questions, nil
}
