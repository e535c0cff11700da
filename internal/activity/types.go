package activity

import (
	"github.com/ahrav/go-grader/internal/domain"
)

// ExtractTextInput is the input of ExtractText. The activity reads the
// document from the reference.
type ExtractTextInput struct {
	Document domain.DocumentRef `json:"document"`
}

// ExtractTextOutput carries the page-ordered text and the calls it cost.
type ExtractTextOutput struct {
	Extracted domain.ExtractedDocument `json:"extracted"`
	Usage     domain.UsageStats        `json:"usage"`
}

// AlignAnswersInput is the input of AlignAnswers.
type AlignAnswersInput struct {
	Text      string            `json:"text"`
	Questions []domain.Question `json:"questions"`
}

// AlignAnswersOutput carries the aligned pairs and the choices the model
// detected.
type AlignAnswersOutput struct {
	Pairs           []domain.QAPair   `json:"pairs"`
	SelectedChoices map[string]string `json:"selected_choices,omitempty"`
	Usage           domain.UsageStats `json:"usage"`
}

// ScoreAnswersInput is the input of ScoreAnswers.
type ScoreAnswersInput struct {
	Pairs               []domain.QAPair `json:"pairs"`
	Policy              string          `json:"policy,omitempty"`
	NormalizationTarget *float64        `json:"normalization_target,omitempty"`
}

// ScoreAnswersOutput carries the scored report. The report's Usage is left
// for the workflow to fill; the activity's own calls are in Usage.
type ScoreAnswersOutput struct {
	Report domain.EvaluationReport `json:"report"`
	Usage  domain.UsageStats       `json:"usage"`
}
