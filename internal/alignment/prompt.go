package alignment

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-grader/internal/domain"
)

const mappingInstructions = `You are matching a student's written exam answers to the questions of the exam paper.

TASK:
1. Some questions are grouped as alternatives (marked "choose one"). For each group, decide which single option the student answered and report it in "selected_choices" as {"<group>": "<option id>"}.
2. For every question the student answered, copy the student's answer text verbatim from the document. Keep line breaks. Do not summarize, correct or invent text.
3. Sub-parts (for example Q1a and Q1b) are separate questions; split the answer accordingly.
4. Omit questions that the student did not answer.
5. The document may contain page markers and scanning noise; ignore them.

Respond with a single JSON object and nothing else:
{
  "selected_choices": {"<group>": "<option id>"},
  "mapped_answers": [
    {"question_id": "<id from the list>", "answer": "<student's answer>"}
  ]
}`

// buildPrompt renders the question list followed by the document text.
// Alternatives are listed under their choice group in input order.
func buildPrompt(text string, questions []domain.Question) string {
	var b strings.Builder
	b.WriteString(mappingInstructions)
	b.WriteString("\n\nQUESTIONS:\n")

	var groups []string
	grouped := map[string][]domain.Question{}
	for _, q := range questions {
		if q.ChoiceGroup == "" {
			writeQuestion(&b, "", q)
			continue
		}
		if _, ok := grouped[q.ChoiceGroup]; !ok {
			groups = append(groups, q.ChoiceGroup)
		}
		grouped[q.ChoiceGroup] = append(grouped[q.ChoiceGroup], q)
	}
	for _, g := range groups {
		fmt.Fprintf(&b, "Group %s (choose one option):\n", g)
		for _, q := range grouped[g] {
			writeQuestion(&b, "  ", q)
		}
	}

	b.WriteString("\nSTUDENT DOCUMENT:\n")
	b.WriteString(text)
	return b.String()
}

func writeQuestion(b *strings.Builder, indent string, q domain.Question) {
	fmt.Fprintf(b, "%s- [%s]", indent, q.ID)
	if q.ChoiceGroup != "" {
		fmt.Fprintf(b, " (option %s)", q.Option())
	}
	if q.MaxMarks > 0 {
		fmt.Fprintf(b, " [%d marks]", q.MaxMarks)
	}
	fmt.Fprintf(b, " %s\n", strings.TrimSpace(q.Text))
}
