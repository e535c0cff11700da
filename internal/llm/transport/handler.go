// Package transport defines the request/response types of the model gateway
// and the composable Handler/Middleware pipeline that carries them.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ProviderAdapter abstracts provider-specific HTTP encoding and decoding.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes model requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with the first one outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler creates the core handler that performs the HTTP round trip
// through the given adapter.
func NewHTTPHandler(client *http.Client, adapter ProviderAdapter) Handler {
	return &httpHandler{
		client:  client,
		adapter: adapter,
		logger:  slog.Default().With("component", "transport"),
	}
}

type httpHandler struct {
	client  *http.Client
	adapter ProviderAdapter
	logger  *slog.Logger
}

// Handle implements Handler by making one HTTP request to the provider.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := h.adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			h.logger.Debug("closing response body", "error", closeErr)
		}
	}()

	resp, err := h.adapter.Parse(httpResp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.adapter.Name(), err)
	}
	resp.Usage.LatencyMs = latency.Milliseconds()

	h.logger.Debug("model call completed",
		"operation", req.Operation,
		"label", req.Label,
		"latency_ms", resp.Usage.LatencyMs,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)
	return resp, nil
}
