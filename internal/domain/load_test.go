package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadQuestionSet(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml mapping",
			file: "exam.yaml",
			content: `title: Networks midterm
questions:
  - id: Q1
    text: Define an algorithm.
    max_marks: 5
  - id: Q2a
    text: Explain TCP.
    max_marks: 10
    parent_id: Q2
    choice_group: G1
`,
		},
		{
			name: "json list",
			file: "exam.json",
			content: `[
  {"id": "Q1", "text": "Define an algorithm.", "max_marks": 5},
  {"id": "Q2a", "text": "Explain TCP.", "max_marks": 10, "parent_id": "Q2", "choice_group": "G1"}
]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := LoadQuestionSet(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			require.Len(t, set.Questions, 2)
			assert.Equal(t, Question{ID: "Q1", Text: "Define an algorithm.", MaxMarks: 5}, set.Questions[0])
			assert.Equal(t, "Q2", set.Questions[1].ParentID)
			assert.Equal(t, "G1", set.Questions[1].ChoiceGroup)
		})
	}
}

func TestLoadQuestionSetErrors(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		_, err := LoadQuestionSet(writeFile(t, "q.yaml", "- id: Q1\n  max_marks: 1\n- id: Q1\n  max_marks: 2\n"))
		require.ErrorIs(t, err, ErrDuplicateQuestion)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := LoadQuestionSet(writeFile(t, "q.yaml", "- text: orphan\n  max_marks: 1\n"))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadQuestionSet(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLoadQAPairs(t *testing.T) {
	path := writeFile(t, "pairs.yaml", `- question_id: Q1
  question_text: Define an algorithm.
  answer_text: A finite sequence of steps.
  max_marks: 10
- question_id: Q2
  question_text: Explain TCP.
  max_marks: 20
`)
	pairs, err := LoadQAPairs(path)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.True(t, pairs[0].Answered())
	assert.False(t, pairs[1].Answered())

	_, err = LoadQAPairs(writeFile(t, "bad.json", `[{"answer_text": "no id"}]`))
	require.Error(t, err)
}

func TestReadDocument(t *testing.T) {
	doc, err := ReadDocument(writeFile(t, "scan.JPG", "jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "scan.JPG", doc.Name)
	assert.Equal(t, DocumentImage, doc.Kind())
	assert.Equal(t, []byte("jpeg"), doc.Data)
}

func TestReferenceDocument(t *testing.T) {
	path := writeFile(t, "exam.pdf", "%PDF-1.4")

	ref, err := ReferenceDocument(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(ref.Path))
	assert.Equal(t, "exam.pdf", ref.Name)
	assert.Equal(t, DocumentMultiPage, ref.Kind())

	doc, err := ref.Open()
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), doc.Data)
	assert.Equal(t, "exam.pdf", doc.Name)

	t.Run("missing file", func(t *testing.T) {
		_, err := ReferenceDocument(filepath.Join(t.TempDir(), "gone.pdf"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := ReferenceDocument(t.TempDir())
		require.Error(t, err)
	})

	t.Run("name falls back to path", func(t *testing.T) {
		ref := DocumentRef{Path: "/exams/scan.png"}
		assert.Equal(t, "scan.png", ref.DisplayName())
		assert.Equal(t, DocumentImage, ref.Kind())
		_, err := DocumentRef{}.Open()
		require.Error(t, err)
	})
}
