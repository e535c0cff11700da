package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// NewLoggingMiddleware logs the lifecycle of each logical call. Inline parts
// are summarized by size; prompt text is never logged.
func NewLoggingMiddleware(logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			callID := uuid.NewString()
			inline, inlineBytes := 0, 0
			for _, p := range req.Parts {
				if p.IsInline() {
					inline++
					inlineBytes += len(p.Data)
				}
			}
			logger.Debug("model call started",
				"call_id", callID,
				"model", req.Model,
				"operation", req.Operation,
				"label", req.Label,
				"parts", len(req.Parts),
				"inline_parts", inline,
				"inline_bytes", inlineBytes)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("model call failed",
					"call_id", callID,
					"operation", req.Operation,
					"label", req.Label,
					"duration_ms", duration.Milliseconds(),
					"error_type", llmerrors.Classify(err),
					"error", err)
				return nil, err
			}
			logger.Debug("model call succeeded",
				"call_id", callID,
				"operation", req.Operation,
				"label", req.Label,
				"duration_ms", duration.Milliseconds(),
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens,
				"finish_reason", resp.FinishReason)
			return resp, nil
		})
	}
}
