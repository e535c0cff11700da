// Package events provides the envelope and sink used to publish grading
// progress from Temporal activities.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event types emitted by the grading activities.
const (
	TypeTextExtracted  = "grading.text_extracted"
	TypeAnswersAligned = "grading.answers_aligned"
	TypeAnswersScored  = "grading.answers_scored"
)

// Envelope wraps a grading event with routing and idempotency metadata.
type Envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	Version string `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is derived from the workflow run and activity so that
	// a retried activity republishes under the same key.
	IdempotencyKey string `json:"idempotency_key"`

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	Payload json.RawMessage `json:"payload"`
}

// EventSink receives envelopes. Append is best effort: callers log failures
// and carry on.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink returns a sink that discards events.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }

// LogSink writes every event to a structured logger at info level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs events. A nil logger uses the default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events")}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.InfoContext(ctx, "event",
		"type", e.Type,
		"source", e.Source,
		"workflow_id", e.WorkflowID,
		"run_id", e.RunID,
		"idempotency_key", e.IdempotencyKey,
		"payload", string(e.Payload))
	return nil
}
