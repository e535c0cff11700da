package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-grader/internal/domain"
	pkgactivity "github.com/ahrav/go-grader/pkg/activity"
	"github.com/ahrav/go-grader/pkg/events"
)

const (
	eventSource  = "grading-activity"
	eventVersion = "1.0.0"
)

type textExtractedEvent struct {
	Document    string            `json:"document"`
	Pages       int               `json:"pages"`
	FailedPages int               `json:"failed_pages"`
	Usage       domain.UsageStats `json:"usage"`
}

type answersAlignedEvent struct {
	Pairs           int               `json:"pairs"`
	SelectedChoices map[string]string `json:"selected_choices,omitempty"`
	Usage           domain.UsageStats `json:"usage"`
}

type answersScoredEvent struct {
	Grade             string            `json:"grade"`
	OverallPercentage float64           `json:"overall_percentage"`
	Counts            domain.Counts     `json:"counts"`
	Usage             domain.UsageStats `json:"usage"`
}

// EventEmitter publishes stage completion events.
type EventEmitter struct {
	base pkgactivity.BaseActivities
}

// NewEventEmitter returns an emitter publishing through base.
func NewEventEmitter(base pkgactivity.BaseActivities) *EventEmitter {
	return &EventEmitter{base: base}
}

// EmitTextExtracted reports a finished extraction.
func (e *EventEmitter) EmitTextExtracted(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	document string,
	pages, failed int,
	usage domain.UsageStats,
) {
	e.emit(ctx, wfCtx, events.TypeTextExtracted, textExtractedEvent{
		Document: document, Pages: pages, FailedPages: failed, Usage: usage,
	})
}

// EmitAnswersAligned reports a finished alignment.
func (e *EventEmitter) EmitAnswersAligned(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	pairs int,
	selected map[string]string,
	usage domain.UsageStats,
) {
	e.emit(ctx, wfCtx, events.TypeAnswersAligned, answersAlignedEvent{
		Pairs: pairs, SelectedChoices: selected, Usage: usage,
	})
}

// EmitAnswersScored reports a finished scoring pass.
func (e *EventEmitter) EmitAnswersScored(
	ctx context.Context,
	wfCtx pkgactivity.WorkflowContext,
	summary domain.Summary,
	usage domain.UsageStats,
) {
	e.emit(ctx, wfCtx, events.TypeAnswersScored, answersScoredEvent{
		Grade:             summary.Grade,
		OverallPercentage: summary.OverallPercentage,
		Counts:            summary.Counts,
		Usage:             usage,
	})
}

func (e *EventEmitter) emit(ctx context.Context, wfCtx pkgactivity.WorkflowContext, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		pkgactivity.SafeLogError(ctx, "Failed to marshal event", "event_type", eventType, "error", err)
		return
	}
	envelope := events.Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         eventSource,
		Version:        eventVersion,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", wfCtx.RunID, wfCtx.ActivityID, eventType),
		WorkflowID:     wfCtx.WorkflowID,
		RunID:          wfCtx.RunID,
		Payload:        body,
	}
	e.base.EmitEventSafe(ctx, envelope, eventType)
}
