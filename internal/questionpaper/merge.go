package questionpaper

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ahrav/go-grader/internal/domain"
)

// minQuestionText is the length below which question text draws a warning.
const minQuestionText = 10

// block is one question or group of alternatives as printed on a page.
type block struct {
	Choice  string   `json:"choice"`
	Options []option `json:"options"`
}

type option struct {
	ID           string  `json:"id"`
	QuestionText string  `json:"question_text"`
	Marks        float64 `json:"marks"`
	Parts        []part  `json:"parts"`
}

type part struct {
	PartID       string  `json:"part_id"`
	QuestionText string  `json:"question_text"`
	Marks        float64 `json:"marks"`
}

// mergeBlocks concatenates the pages in page order and drops blocks that
// repeat an earlier block exactly, as happens when a question straddles a
// page break and the model reports it on both pages.
func mergeBlocks(pages [][]block) []block {
	seen := make(map[string]struct{})
	var merged []block
	for _, page := range pages {
		for _, b := range page {
			key, err := json.Marshal(b)
			if err != nil {
				merged = append(merged, b)
				continue
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			merged = append(merged, b)
		}
	}
	return merged
}

// flatten turns blocks into questions. Parts become their own questions
// ("Q1" + "a" = "Q1a") with the option as parent. Alternatives share the
// block's choice label as their choice group; a block whose label is its own
// question id is not a choice. A repeated question id keeps its first
// occurrence. Options without an id are numbered by position.
func flatten(blocks []block) ([]domain.Question, []string) {
	var (
		questions []domain.Question
		warnings  []string
		position  int
	)
	seen := make(map[string]struct{})
	add := func(q domain.Question, marks float64) {
		if _, dup := seen[q.ID]; dup {
			warnings = append(warnings, fmt.Sprintf("%s: repeated question dropped", q.ID))
			return
		}
		seen[q.ID] = struct{}{}
		rounded := math.Round(marks)
		if rounded != marks {
			warnings = append(warnings, fmt.Sprintf("%s: marks %g rounded to %g", q.ID, marks, rounded))
		}
		q.MaxMarks = max(int(rounded), 0)
		questions = append(questions, q)
	}

	for _, b := range blocks {
		choice := strings.TrimSpace(b.Choice)
		for _, o := range b.Options {
			position++
			id := strings.TrimSpace(o.ID)
			if id == "" {
				id = fmt.Sprintf("Q%d", position)
			}
			group := choice
			if group == id {
				group = ""
			}

			if len(o.Parts) == 0 {
				add(domain.Question{ID: id, Text: strings.TrimSpace(o.QuestionText), ChoiceGroup: group}, o.Marks)
				continue
			}
			for _, pt := range o.Parts {
				partID := strings.Trim(strings.TrimSpace(pt.PartID), "().")
				qid := id + partID
				if partID == "" {
					qid = id
				}
				add(domain.Question{
					ID:          qid,
					Text:        strings.TrimSpace(pt.QuestionText),
					ParentID:    id,
					ChoiceGroup: group,
				}, pt.Marks)
			}
		}
	}
	return questions, warnings
}

// check finds questions that cannot be graded (issues) and ones that look
// wrong but are usable (warnings).
func check(questions []domain.Question) (issues, warnings []string) {
	for _, q := range questions {
		if q.Text == "" {
			issues = append(issues, fmt.Sprintf("%s: missing question text", q.ID))
			continue
		}
		if q.MaxMarks <= 0 {
			warnings = append(warnings, fmt.Sprintf("%s: invalid or missing marks", q.ID))
		}
		if utf8.RuneCountInString(q.Text) < minQuestionText {
			warnings = append(warnings, fmt.Sprintf("%s: question text seems too short", q.ID))
		}
	}
	return issues, warnings
}
