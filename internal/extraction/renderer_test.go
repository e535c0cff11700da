package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name  string
	args  []string
	pages int
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.name, f.args = name, args
	if f.err != nil {
		return nil, []byte("Syntax Error: Couldn't read xref table"), f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), nil, 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestPopplerRenderer(t *testing.T) {
	t.Run("orders pages numerically and applies the cap", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{pages: 12}
		r := &PopplerRenderer{Binary: "pdftoppm", DPI: 300, MaxPages: 11, Runner: runner}

		pages, err := r.Render(context.Background(), "/in.pdf", dir)
		require.NoError(t, err)

		assert.Equal(t, "pdftoppm", runner.name)
		assert.Equal(t, []string{"-r", "300", "-png", "/in.pdf", filepath.Join(dir, "page")}, runner.args)
		require.Len(t, pages, 11)
		for i, p := range pages {
			assert.Equal(t, i, p.Index)
			assert.Equal(t, filepath.Join(dir, fmt.Sprintf("page-%02d.png", i+1)), p.Path)
		}
	})

	t.Run("command failure carries stderr", func(t *testing.T) {
		r := &PopplerRenderer{Binary: "pdftoppm", DPI: 300, Runner: &fakeRunner{err: errors.New("exit status 1")}}
		_, err := r.Render(context.Background(), "/in.pdf", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xref table")
	})
}

func TestPagesFromFiles(t *testing.T) {
	pages := pagesFromFiles([]string{"/d/page-10.png", "/d/page-2.png", "/d/page-1.png", "/d/junk.png"}, 0)
	require.Len(t, pages, 3)
	assert.Equal(t, "/d/page-1.png", pages[0].Path)
	assert.Equal(t, "/d/page-2.png", pages[1].Path)
	assert.Equal(t, "/d/page-10.png", pages[2].Path)
}
