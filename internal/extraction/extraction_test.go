package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// fakeRenderer writes one file per page whose content is "page-<n>".
type fakeRenderer struct {
	pages int
	err   error
	dirs  []string
}

func (f *fakeRenderer) Render(_ context.Context, inputPath, outDir string) ([]domain.Page, error) {
	f.dirs = append(f.dirs, outDir)
	if _, err := os.Stat(inputPath); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	pages := make([]domain.Page, f.pages)
	for i := range pages {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i+1))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("page-%d", i)), 0o600); err != nil {
			return nil, err
		}
		pages[i] = domain.Page{Index: i, MimeType: "image/png", Path: path}
	}
	return pages, nil
}

// echoCompleter transcribes a page as "text of <data>", finishing later pages
// first and failing the pages listed in fail.
type echoCompleter struct {
	fail     map[string]bool
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *echoCompleter) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	var data string
	for _, p := range req.Parts {
		if p.IsInline() {
			data = string(p.Data)
		}
	}
	var idx int
	_, _ = fmt.Sscanf(data, "page-%d", &idx)
	select {
	case <-time.After(time.Duration(10-idx) * 3 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.fail[data] {
		return nil, fmt.Errorf("%w after 3 attempts: boom", llmerrors.ErrModelCallFailed)
	}
	return &transport.Response{Text: "text of " + data}, nil
}

func newStage(t *testing.T, c llm.Completer, r Renderer) (*Stage, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := configuration.DefaultConfig().Extraction
	return New(c, cfg, WithRenderer(r), WithTempDir(tmp), WithLogger(slog.New(slog.DiscardHandler))), tmp
}

func pdf() domain.Document {
	return domain.Document{Name: "sheet.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7")}
}

func TestExtractMultiPage(t *testing.T) {
	t.Run("assembles pages in index order", func(t *testing.T) {
		c := &echoCompleter{}
		stage, tmp := newStage(t, c, &fakeRenderer{pages: 8})

		out, err := stage.Extract(context.Background(), pdf())
		require.NoError(t, err)
		require.Len(t, out.Pages, 8)
		for i, p := range out.Pages {
			assert.Equal(t, i, p.Index)
			assert.Equal(t, fmt.Sprintf("text of page-%d", i), p.Text)
		}
		assert.LessOrEqual(t, c.peak.Load(), int32(configuration.DefaultExtractionWorkers))

		text := out.Text()
		assert.True(t, strings.HasPrefix(text, "--- Page 1 ---\n\ntext of page-0"))
		assert.Less(t, strings.Index(text, "--- Page 2 ---"), strings.Index(text, "--- Page 3 ---"))

		entries, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, entries, "scratch dir must be removed")
	})

	t.Run("failed page becomes placeholder", func(t *testing.T) {
		c := &echoCompleter{fail: map[string]bool{"page-1": true}}
		stage, _ := newStage(t, c, &fakeRenderer{pages: 3})

		out, err := stage.Extract(context.Background(), pdf())
		require.NoError(t, err)
		require.Len(t, out.Pages, 3)
		assert.True(t, strings.HasPrefix(out.Pages[1].Text, "[Error processing page 2: "))
		assert.NotEmpty(t, out.Pages[1].Err)
		assert.Equal(t, "text of page-2", out.Pages[2].Text)
		assert.Len(t, out.FailedPages(), 1)
	})

	t.Run("all pages failed degrades to placeholders", func(t *testing.T) {
		c := &echoCompleter{fail: map[string]bool{"page-0": true, "page-1": true}}
		stage, _ := newStage(t, c, &fakeRenderer{pages: 2})

		out, err := stage.Extract(context.Background(), pdf())
		require.NoError(t, err)
		require.Len(t, out.Pages, 2)
		assert.Len(t, out.FailedPages(), 2)
		assert.True(t, strings.HasPrefix(out.Pages[0].Text, "[Error processing page 1: "))
		assert.True(t, strings.HasPrefix(out.Pages[1].Text, "[Error processing page 2: "))
	})

	t.Run("reports each finished page", func(t *testing.T) {
		var mu sync.Mutex
		var seen []int
		tmp := t.TempDir()
		stage := New(&echoCompleter{fail: map[string]bool{"page-2": true}}, configuration.DefaultConfig().Extraction,
			WithRenderer(&fakeRenderer{pages: 5}),
			WithTempDir(tmp),
			WithLogger(slog.New(slog.DiscardHandler)),
			WithPageProgress(func(done, total int) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, 5, total)
				seen = append(seen, done)
			}))

		_, err := stage.Extract(context.Background(), pdf())
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, seen)
	})

	t.Run("zero pages", func(t *testing.T) {
		stage, _ := newStage(t, &echoCompleter{}, &fakeRenderer{pages: 0})
		_, err := stage.Extract(context.Background(), pdf())
		require.ErrorIs(t, err, llmerrors.ErrNoExtractableText)
	})

	t.Run("renderer failure cleans up", func(t *testing.T) {
		r := &fakeRenderer{err: errors.New("pdftoppm: syntax error")}
		stage, tmp := newStage(t, &echoCompleter{}, r)

		_, err := stage.Extract(context.Background(), pdf())
		require.ErrorIs(t, err, llmerrors.ErrNoExtractableText)
		require.Len(t, r.dirs, 1)
		_, statErr := os.Stat(r.dirs[0])
		assert.True(t, os.IsNotExist(statErr))
		entries, _ := os.ReadDir(tmp)
		assert.Empty(t, entries)
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		stage, tmp := newStage(t, &echoCompleter{}, &fakeRenderer{pages: 6})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := stage.Extract(ctx, pdf())
		require.ErrorIs(t, err, context.Canceled)
		entries, _ := os.ReadDir(tmp)
		assert.Empty(t, entries)
	})
}

func TestExtractImage(t *testing.T) {
	var mu sync.Mutex
	var seen *transport.Request
	c := llm.CompleterFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		mu.Lock()
		seen = req
		mu.Unlock()
		return &transport.Response{Text: "Q1. Answer one"}, nil
	})
	stage, _ := newStage(t, c, &fakeRenderer{})

	out, err := stage.Extract(context.Background(), domain.Document{Name: "scan.JPG", Data: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, 0, out.Pages[0].Index)
	assert.Equal(t, "--- Page 1 ---\n\nQ1. Answer one", out.Text())

	require.NotNil(t, seen)
	assert.Equal(t, transport.OpExtraction, seen.Operation)
	require.Len(t, seen.Parts, 2)
	assert.Equal(t, ocrInstruction, seen.Parts[0].Text)
	assert.Equal(t, "image/jpeg", seen.Parts[1].MimeType)
	assert.InDelta(t, configuration.DefaultExtractionTemperature, seen.Temperature, 1e-9)
}

func TestExtractImageFailureBecomesPlaceholder(t *testing.T) {
	c := llm.CompleterFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, fmt.Errorf("%w after 3 attempts: 503", llmerrors.ErrModelCallFailed)
	})
	stage, _ := newStage(t, c, &fakeRenderer{})
	out, err := stage.Extract(context.Background(), domain.Document{Name: "a.png", MimeType: "image/png", Data: []byte{1}})
	require.NoError(t, err)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, "[Error processing page 1: model call failed after 3 attempts: 503]", out.Pages[0].Text)
	assert.Contains(t, out.Pages[0].Err, "503")
	assert.Len(t, out.FailedPages(), 1)
}

func TestExtractImageCancelled(t *testing.T) {
	c := llm.CompleterFunc(func(ctx context.Context, _ *transport.Request) (*transport.Response, error) {
		return nil, ctx.Err()
	})
	stage, _ := newStage(t, c, &fakeRenderer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := stage.Extract(ctx, domain.Document{Name: "a.png", Data: []byte{1}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractRejectsUnsupported(t *testing.T) {
	stage, _ := newStage(t, &echoCompleter{}, &fakeRenderer{})
	_, err := stage.Extract(context.Background(), domain.Document{Name: "notes.docx", Data: []byte("x")})
	require.ErrorIs(t, err, llmerrors.ErrUnsupportedDocument)

	_, err = stage.Extract(context.Background(), domain.Document{Name: "empty.png"})
	require.ErrorIs(t, err, llmerrors.ErrNoExtractableText)
}
