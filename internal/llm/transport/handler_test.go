package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-grader/internal/llm/transport"
)

func TestChain_Order(t *testing.T) {
	var trace []string
	mark := func(name string) transport.Middleware {
		return func(next transport.Handler) transport.Handler {
			return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				trace = append(trace, name+">")
				resp, err := next.Handle(ctx, req)
				trace = append(trace, "<"+name)
				return resp, err
			})
		}
	}
	core := transport.HandlerFunc(func(context.Context, *transport.Request) (*transport.Response, error) {
		trace = append(trace, "core")
		return &transport.Response{Text: "ok"}, nil
	})

	h := transport.Chain(core, mark("outer"), mark("inner"))
	resp, err := h.Handle(context.Background(), &transport.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, []string{"outer>", "inner>", "core", "<inner", "<outer"}, trace)
}

type stubAdapter struct {
	url      string
	parseErr error
}

func (a stubAdapter) Name() string { return "stub" }

func (a stubAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, a.url, strings.NewReader(req.Parts[0].Text))
}

func (a stubAdapter) Parse(resp *http.Response) (*transport.Response, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &transport.Response{Text: string(body), Usage: transport.Usage{InputTokens: 3, OutputTokens: 4}}, nil
}

func TestHTTPHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("echo:" + string(body)))
	}))
	defer srv.Close()

	t.Run("round trip", func(t *testing.T) {
		h := transport.NewHTTPHandler(srv.Client(), stubAdapter{url: srv.URL})
		resp, err := h.Handle(context.Background(), &transport.Request{
			Parts:   []transport.Part{transport.TextPart("hi")},
			Timeout: time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "echo:hi", resp.Text)
		assert.Equal(t, int64(3), resp.Usage.InputTokens)
		assert.GreaterOrEqual(t, resp.Usage.LatencyMs, int64(0))
	})

	t.Run("parse error is wrapped with provider name", func(t *testing.T) {
		sentinel := errors.New("bad body")
		h := transport.NewHTTPHandler(srv.Client(), stubAdapter{url: srv.URL, parseErr: sentinel})
		_, err := h.Handle(context.Background(), &transport.Request{Parts: []transport.Part{transport.TextPart("x")}})
		require.ErrorIs(t, err, sentinel)
		assert.Contains(t, err.Error(), "stub")
	})
}

func TestPart(t *testing.T) {
	assert.False(t, transport.TextPart("a").IsInline())
	p := transport.InlinePart("image/png", []byte{1, 2})
	assert.True(t, p.IsInline())
	assert.Equal(t, "image/png", p.MimeType)
}
