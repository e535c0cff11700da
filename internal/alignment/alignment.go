// Package alignment maps extracted document text onto the question set with
// a single model call.
package alignment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ahrav/go-grader/internal/domain"
	"github.com/ahrav/go-grader/internal/jsonparse"
	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
	"github.com/ahrav/go-grader/internal/llm/transport"
)

var mappingSchema = jsonparse.MustCompile("mapping.schema.json", `{
	"type": "object",
	"required": ["selected_choices", "mapped_answers"],
	"properties": {
		"selected_choices": {
			"type": "object",
			"additionalProperties": {"type": ["string", "number"]}
		},
		"mapped_answers": {
			"oneOf": [
				{
					"type": "array",
					"items": {
						"type": "object",
						"required": ["question_id"],
						"properties": {
							"question_id": {"type": ["string", "number"]},
							"answer": {"type": ["string", "null"]}
						}
					}
				},
				{
					"type": "object",
					"additionalProperties": {"type": ["string", "null"]}
				}
			]
		}
	}
}`)

type mappedAnswer struct {
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	QuestionText string `json:"question_text"`
}

type mapping struct {
	SelectedChoices map[string]string
	MappedAnswers   []mappedAnswer
}

// Stage is the alignment stage.
type Stage struct {
	completer llm.Completer
	cfg       configuration.AlignmentConfig
	logger    *slog.Logger
}

// New builds the stage.
func New(completer llm.Completer, cfg configuration.AlignmentConfig) *Stage {
	return &Stage{
		completer: completer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "alignment"),
	}
}

// Align issues exactly one model call and returns the answered questions in
// the model's order, plus the option chosen for each choice group.
func (s *Stage) Align(ctx context.Context, text string, questions []domain.Question) ([]domain.QAPair, map[string]string, error) {
	if len(questions) == 0 {
		return nil, nil, llmerrors.ErrNoQuestionsProvided
	}

	resp, err := s.completer.Complete(ctx, &transport.Request{
		Operation:       transport.OpAlignment,
		Parts:           []transport.Part{transport.TextPart(buildPrompt(text, questions))},
		Temperature:     s.cfg.Temperature,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		Label:           "mapping",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("alignment call: %w", err)
	}

	m, err := parseMapping(resp.Text)
	if err != nil {
		s.logger.Warn("unusable mapping response", "error", err, "response", llmerrors.Excerpt(resp.Text, 300))
		return nil, nil, err
	}

	pairs := s.resolve(m, questions)
	s.logger.Info("answers aligned",
		"questions", len(questions),
		"mapped", len(pairs),
		"selected_choices", len(m.SelectedChoices))
	return pairs, m.SelectedChoices, nil
}

func parseMapping(raw string) (*mapping, error) {
	obj, err := jsonparse.Object(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrMalformedMapping, err)
	}
	if err := mappingSchema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrMalformedMapping, err)
	}

	m := &mapping{SelectedChoices: map[string]string{}}
	if err := jsonparse.Decode(obj["selected_choices"], &m.SelectedChoices); err != nil {
		return nil, fmt.Errorf("%w: selected_choices: %w", llmerrors.ErrMalformedMapping, err)
	}

	switch answers := obj["mapped_answers"].(type) {
	case []any:
		if err := jsonparse.Decode(answers, &m.MappedAnswers); err != nil {
			return nil, fmt.Errorf("%w: mapped_answers: %w", llmerrors.ErrMalformedMapping, err)
		}
	case map[string]any:
		ids := make([]string, 0, len(answers))
		for id := range answers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			answer, _ := answers[id].(string)
			m.MappedAnswers = append(m.MappedAnswers, mappedAnswer{QuestionID: id, Answer: answer})
		}
	}
	return m, nil
}

// resolve dedupes answers by question id (first wins), drops answers to
// options the model did not select, and fills text and marks from the
// question set. Unknown ids keep the fallback marks ceiling.
func (s *Stage) resolve(m *mapping, questions []domain.Question) []domain.QAPair {
	lookup := domain.Lookup(questions)
	fallback := s.cfg.DefaultMaxMarks
	if fallback <= 0 {
		fallback = domain.DefaultMaxMarks
	}

	seen := make(map[string]struct{}, len(m.MappedAnswers))
	pairs := make([]domain.QAPair, 0, len(m.MappedAnswers))
	for _, a := range m.MappedAnswers {
		id := strings.TrimSpace(a.QuestionID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			s.logger.Debug("duplicate mapped answer dropped", "question_id", id)
			continue
		}
		seen[id] = struct{}{}

		q, known := lookup[id]
		if known && !optionSelected(q, m.SelectedChoices, lookup) {
			s.logger.Debug("answer to unselected option dropped", "question_id", id, "group", q.ChoiceGroup)
			continue
		}

		pair := domain.QAPair{
			QuestionID:   id,
			QuestionText: a.QuestionText,
			AnswerText:   strings.TrimSpace(a.Answer),
			MaxMarks:     fallback,
		}
		if known {
			pair.QuestionText = q.Text
			pair.MaxMarks = q.MaxMarks
		} else {
			s.logger.Warn("mapped answer for unknown question", "question_id", id, "max_marks", fallback)
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

// optionSelected reports whether q may be answered given the model's
// selection. A selection naming no known option of the group is ignored.
func optionSelected(q domain.Question, selected map[string]string, lookup map[string]domain.Question) bool {
	if q.ChoiceGroup == "" {
		return true
	}
	choice, ok := selected[q.ChoiceGroup]
	if !ok {
		return true
	}
	choice = strings.TrimSpace(choice)
	known := false
	for _, other := range lookup {
		if other.ChoiceGroup == q.ChoiceGroup && other.Option() == choice {
			known = true
			break
		}
	}
	return !known || q.Option() == choice
}
