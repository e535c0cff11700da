package transport

import (
	"time"
)

// Operation identifies which pipeline stage issued a request. It drives
// logging and lets providers pick per-stage generation defaults.
type Operation string

const (
	// OpExtraction is an OCR call over one page image.
	OpExtraction Operation = "extraction"
	// OpAlignment maps document text onto the question set.
	OpAlignment Operation = "alignment"
	// OpScoring evaluates one question/answer pair.
	OpScoring Operation = "scoring"
	// OpQuestionParsing reads the questions off one page of a question paper.
	OpQuestionParsing Operation = "question_parsing"
)

// Part is one ordered element of a request: either text or inline binary
// content with its MIME type.
type Part struct {
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// TextPart builds a text part.
func TextPart(s string) Part { return Part{Text: s} }

// InlinePart builds a binary part.
func InlinePart(mimeType string, data []byte) Part {
	return Part{MimeType: mimeType, Data: data}
}

// IsInline reports whether the part carries binary data.
func (p Part) IsInline() bool { return len(p.Data) > 0 }

// Request is the normalized model request passed through the middleware chain.
type Request struct {
	Operation Operation `json:"operation"`
	Model     string    `json:"model"`
	Parts     []Part    `json:"parts"`

	// Generation parameters. Zero values leave the provider default in place.
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p,omitempty"`
	TopK            int     `json:"top_k,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`

	// Timeout bounds a single attempt.
	Timeout time.Duration `json:"timeout"`

	// Label identifies the work item (page, question id) in logs.
	Label string `json:"label,omitempty"`
}

// Usage is the token accounting reported by the service; zero when unreported.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	LatencyMs    int64 `json:"latency_ms"`
}

// Response is the normalized model response.
type Response struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
	RequestID    string `json:"request_id,omitempty"`
}
