package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxMarks is the marks ceiling used when a question id cannot be
// resolved against the loaded question set.
const DefaultMaxMarks = 10

// ErrDuplicateQuestion is returned when a question set repeats an id.
var ErrDuplicateQuestion = errors.New("duplicate question id")

// Question is one entry of the canonical question set. Ids may encode
// multi-part structure ("Q1a"). Questions that share a ChoiceGroup are
// mutually exclusive options; the option a question belongs to is its
// ParentID when set, otherwise its own ID.
type Question struct {
	ID          string `json:"id"                     yaml:"id"                     validate:"required"`
	Text        string `json:"text"                   yaml:"text"`
	MaxMarks    int    `json:"max_marks"              yaml:"max_marks"              validate:"gte=0"`
	ParentID    string `json:"parent_id,omitempty"    yaml:"parent_id,omitempty"`
	ChoiceGroup string `json:"choice_group,omitempty" yaml:"choice_group,omitempty"`
}

// Option returns the id of the choice option this question belongs to.
func (q Question) Option() string {
	if q.ParentID != "" {
		return q.ParentID
	}
	return q.ID
}

// QuestionSet is an immutable, ordered collection of questions.
type QuestionSet struct {
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Questions []Question `json:"questions"       yaml:"questions"       validate:"dive"`
}

// Validate checks every question and rejects duplicate ids.
// An empty set is valid here; the alignment stage decides whether it can
// proceed without questions.
func (s QuestionSet) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid question set: %w", err)
	}
	seen := make(map[string]struct{}, len(s.Questions))
	for _, q := range s.Questions {
		id := strings.TrimSpace(q.ID)
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateQuestion, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Lookup indexes the questions by id.
func Lookup(questions []Question) map[string]Question {
	m := make(map[string]Question, len(questions))
	for _, q := range questions {
		m[q.ID] = q
	}
	return m
}

// TotalMarks sums the marks ceiling of the questions. A choice group counts
// once, at its highest-valued option, since only one option is answered.
func TotalMarks(questions []Question) int {
	total := 0
	optionMarks := map[string]map[string]int{}
	var groupOrder []string
	for _, q := range questions {
		if q.ChoiceGroup == "" {
			total += q.MaxMarks
			continue
		}
		opts, ok := optionMarks[q.ChoiceGroup]
		if !ok {
			opts = map[string]int{}
			optionMarks[q.ChoiceGroup] = opts
			groupOrder = append(groupOrder, q.ChoiceGroup)
		}
		opts[q.Option()] += q.MaxMarks
	}
	for _, g := range groupOrder {
		best := 0
		for _, m := range optionMarks[g] {
			best = max(best, m)
		}
		total += best
	}
	return total
}
