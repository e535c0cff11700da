// Package extraction turns a scanned document into page-ordered text. Pages
// of multi-page documents are rendered to images and transcribed by a bounded
// worker pool; a page that fails is replaced by a placeholder so one bad scan
// never sinks the document.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// Stage is the extraction stage.
type Stage struct {
	completer llm.Completer
	cfg       configuration.ExtractionConfig
	renderer  Renderer
	tempDir   string
	logger    *slog.Logger
	progress  PageProgress
}

// PageProgress is called as each page finishes, successfully or not. Workers
// call it concurrently.
type PageProgress func(done, total int)

// Option customizes a Stage.
type Option func(*Stage)

// WithRenderer replaces the page renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Stage) { s.renderer = r }
}

// WithTempDir sets the parent directory for per-document scratch space.
func WithTempDir(dir string) Option {
	return func(s *Stage) { s.tempDir = dir }
}

// WithPageProgress reports finished pages, e.g. to heartbeat a long
// transcription.
func WithPageProgress(fn PageProgress) Option {
	return func(s *Stage) { s.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stage) { s.logger = l }
}

// New builds the stage. Zero worker counts and DPI fall back to defaults.
func New(completer llm.Completer, cfg configuration.ExtractionConfig, opts ...Option) *Stage {
	if cfg.Workers <= 0 {
		cfg.Workers = configuration.DefaultExtractionWorkers
	}
	if cfg.DPI <= 0 {
		cfg.DPI = configuration.DefaultDPI
	}
	if cfg.RendererPath == "" {
		cfg.RendererPath = configuration.DefaultRendererPath
	}
	s := &Stage{
		completer: completer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "extraction"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = &PopplerRenderer{
			Binary:   cfg.RendererPath,
			DPI:      cfg.DPI,
			MaxPages: cfg.MaxPages,
			Logger:   s.logger,
		}
	}
	return s
}

// Extract transcribes doc. The result holds one PageText per page in index
// order; a page whose transcription failed carries its placeholder and Err.
// ErrNoExtractableText is reserved for documents that yield no pages at all
// (empty data, render failure) and ErrUnsupportedDocument for types it cannot
// read.
func (s *Stage) Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedDocument, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: document %q is empty", llmerrors.ErrNoExtractableText, doc.Name)
	}

	switch doc.Kind() {
	case domain.DocumentImage:
		return s.extractImage(ctx, doc)
	case domain.DocumentMultiPage:
		return s.extractPages(ctx, doc)
	default:
		return nil, fmt.Errorf("%w: %q (%s)", llmerrors.ErrUnsupportedDocument, doc.Name, doc.MimeType)
	}
}

func (s *Stage) extractImage(ctx context.Context, doc domain.Document) (*domain.ExtractedDocument, error) {
	page := s.pageText(0, func() (string, error) {
		return s.transcribe(ctx, 0, doc.ResolvedMimeType(), doc.Data)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.report(1, 1)
	return &domain.ExtractedDocument{Pages: []domain.PageText{page}}, nil
}

func (s *Stage) extractPages(ctx context.Context, doc domain.Document) (*domain.ExtractedDocument, error) {
	dir, err := os.MkdirTemp(s.tempDir, "grader-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("failed to remove scratch dir", "dir", dir, "error", rmErr)
		}
	}()

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, doc.Data, 0o600); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	pages, err := s.renderer.Render(ctx, input, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", llmerrors.ErrNoExtractableText, doc.Name, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s rendered no pages", llmerrors.ErrNoExtractableText, doc.Name)
	}
	s.logger.Info("rendered document", "document", doc.Name, "pages", len(pages), "dpi", s.cfg.DPI)

	slots := make([]domain.PageText, len(pages))
	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, page := range pages {
		g.Go(func() error {
			slots[i] = s.transcribePage(gctx, i, page)
			s.report(int(done.Add(1)), len(pages))
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, p := range slots {
		if p.Err != "" {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn("some pages could not be read", "document", doc.Name, "failed", failed, "pages", len(slots))
	}
	return &domain.ExtractedDocument{Pages: slots}, nil
}

// transcribePage never fails: errors become the page placeholder. The slot
// index is the page's position, not the order pages finish.
func (s *Stage) transcribePage(ctx context.Context, slot int, page domain.Page) domain.PageText {
	return s.pageText(slot, func() (string, error) {
		data, err := os.ReadFile(page.Path)
		if err != nil {
			return "", err
		}
		return s.transcribe(ctx, slot, page.MimeType, data)
	})
}

func (s *Stage) pageText(slot int, read func() (string, error)) domain.PageText {
	text, err := read()
	if err == nil {
		return domain.PageText{Index: slot, Text: text}
	}
	if !errors.Is(err, context.Canceled) {
		s.logger.Warn("page extraction failed", "page", slot+1, "error", err)
	}
	return domain.PageText{Index: slot, Text: domain.PagePlaceholder(slot, err), Err: err.Error()}
}

func (s *Stage) report(done, total int) {
	if s.progress != nil {
		s.progress(done, total)
	}
}

func (s *Stage) transcribe(ctx context.Context, index int, mimeType string, data []byte) (string, error) {
	resp, err := s.completer.Complete(ctx, &transport.Request{
		Operation:       transport.OpExtraction,
		Parts:           []transport.Part{transport.TextPart(ocrInstruction), transport.InlinePart(mimeType, data)},
		Temperature:     s.cfg.Temperature,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		Label:           domain.PageHeader(index),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
