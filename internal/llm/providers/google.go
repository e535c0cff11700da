// Package providers holds the ProviderAdapter implementations that encode
// normalized model requests into provider wire formats.
package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

// ProviderGoogle names the Gemini adapter.
const ProviderGoogle = configuration.ProviderGoogle

const maxErrorBody = 512

// GoogleAdapter implements ProviderAdapter for Gemini's generateContent API.
// Authentication uses the API key query parameter.
type GoogleAdapter struct {
	config configuration.ModelConfig
}

// NewGoogleAdapter creates the adapter, filling in the public endpoint when
// none is configured.
func NewGoogleAdapter(cfg configuration.ModelConfig) *GoogleAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = configuration.DefaultGoogleEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &GoogleAdapter{config: cfg}
}

// Name returns the provider name.
func (a *GoogleAdapter) Name() string {
	return ProviderGoogle
}

type googlePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *googleInlineData `json:"inline_data,omitempty"`
}

type googleInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig googleGenerationConfig `json:"generationConfig"`
}

// Build encodes the request's ordered parts as a single user turn.
func (a *GoogleAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	if len(req.Parts) == 0 {
		return nil, &llmerrors.ValidationError{Field: "parts", Message: "request has no parts"}
	}
	model := req.Model
	if model == "" {
		model = a.config.Name
	}

	parts := make([]googlePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.IsInline() {
			parts = append(parts, googlePart{InlineData: &googleInlineData{
				MimeType: p.MimeType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		parts = append(parts, googlePart{Text: p.Text})
	}

	body := googleRequest{
		Contents: []googleContent{{Role: "user", Parts: parts}},
		GenerationConfig: googleGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            firstNonZero(req.TopP, a.config.TopP),
			TopK:            firstNonZero(req.TopK, a.config.TopK),
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		a.config.Endpoint, url.PathEscape(model), url.QueryEscape(a.config.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// Parse concatenates the text parts of the first candidate. A response
// without candidates or parts, or carrying a non-text part, is an
// ErrEmptyResponse.
func (a *GoogleAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseGoogleError(httpResp.StatusCode, httpResp.Header, body)
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       *string `json:"text"`
					InlineData any     `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &llmerrors.ResponseError{
			Op:      "decode generateContent response",
			Excerpt: llmerrors.Excerpt(string(body), maxErrorBody),
			Err:     fmt.Errorf("%w: %w", llmerrors.ErrEmptyResponse, err),
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", llmerrors.ErrEmptyResponse)
	}
	cand := resp.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no content parts (finish reason %q)", llmerrors.ErrEmptyResponse, cand.FinishReason)
	}
	var text strings.Builder
	for i, part := range cand.Content.Parts {
		if part.Text == nil {
			return nil, fmt.Errorf("%w: part %d is not text", llmerrors.ErrEmptyResponse, i)
		}
		text.WriteString(*part.Text)
	}

	requestID := httpResp.Header.Get("x-goog-request-id")
	if requestID == "" {
		requestID = httpResp.Header.Get("x-request-id")
	}

	return &transport.Response{
		Text:         text.String(),
		FinishReason: strings.ToLower(cand.FinishReason),
		RequestID:    requestID,
		Usage: transport.Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func firstNonZero[T float64 | int](v, fallback T) T {
	if v != 0 {
		return v
	}
	return fallback
}
