package questionpaper

import (
	"github.com/ahrav/go-grader/internal/jsonparse"
)

const parsingInstructions = `You are reading one page of a university exam question paper.

List every question printed on this page. Keep the question wording exactly as printed.

Rules:
1. Questions offered as alternatives ("answer Q2 OR Q3", "attempt any one") form one block. Put every alternative in "options" and name the block in "choice" (for example "Q2/Q3").
2. A question that is not an alternative is a block with a single option; set "choice" to that question's id.
3. Sub-questions (a), (b), ... go in "parts" with their own "part_id", "question_text" and "marks".
4. "marks" is the number printed next to the question or part. Use 0 when none is printed.
5. Ignore instructions to candidates, headers, footers and page numbers.

Respond with a single JSON object and nothing else:
{
  "questions": [
    {
      "choice": "<block label>",
      "options": [
        {
          "id": "<question id, e.g. Q1>",
          "question_text": "<text when the question has no parts>",
          "marks": <number>,
          "parts": [
            {"part_id": "<a>", "question_text": "<text>", "marks": <number>}
          ]
        }
      ]
    }
  ]
}
Respond with {"questions": []} when the page holds no questions.`

var pageSchema = jsonparse.MustCompile("question_paper_page.schema.json", `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["options"],
				"properties": {
					"choice": {"type": ["string", "number", "null"]},
					"options": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"id": {"type": ["string", "number", "null"]},
								"question_text": {"type": ["string", "null"]},
								"marks": {"type": ["number", "string", "null"]},
								"parts": {
									"type": ["array", "null"],
									"items": {
										"type": "object",
										"properties": {
											"part_id": {"type": ["string", "number", "null"]},
											"question_text": {"type": ["string", "null"]},
											"marks": {"type": ["number", "string", "null"]}
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}`)
