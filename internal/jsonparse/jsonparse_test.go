package jsonparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"surrounding prose", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"code fence", "```json\n{\"a\": {\"b\": 2}}\n```", `{"a": {"b": 2}}`},
		{"nested spans first to last", `x {"a":{"b":1}} y {"c":2} z`, `{"a":{"b":1}} y {"c":2}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Locate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, in := range []string{"", "no json here", "} backwards {"} {
		_, err := Locate(in)
		assert.ErrorIs(t, err, llmerrors.ErrMalformedResponse, in)
	}
}

func TestObject(t *testing.T) {
	t.Run("trailing commas repaired", func(t *testing.T) {
		m, err := Object("{\"selected_choices\": {\"Q1\": \"a\",}, \"mapped_answers\": {},}")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"Q1": "a"}, m["selected_choices"])
	})

	t.Run("repair leaves string contents alone", func(t *testing.T) {
		m, err := Object(`{"mapped_answers":[{"question_id":"Q1","answer":"Newton's laws, note: F=ma"},]}`)
		require.NoError(t, err)
		answers, ok := m["mapped_answers"].([]any)
		require.True(t, ok)
		require.Len(t, answers, 1)
		assert.Equal(t, "Newton's laws, note: F=ma", answers[0].(map[string]any)["answer"])
	})

	t.Run("unquoted keys and trailing commas inside strings", func(t *testing.T) {
		m, err := Object(`{score: 3, note: "keep {a: 1,} as written",}`)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, m["score"], 1e-9)
		assert.Equal(t, "keep {a: 1,} as written", m["note"])
	})

	t.Run("two objects falls back to the first balanced one", func(t *testing.T) {
		m, err := Object(`first {"score": 3, "note": "use {braces}"} then {"score": 4}`)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, m["score"], 1e-9)
	})

	t.Run("unrecoverable", func(t *testing.T) {
		_, err := Object(`{"score": [1, 2}`)
		require.ErrorIs(t, err, llmerrors.ErrMalformedResponse)
		var respErr *llmerrors.ResponseError
		require.ErrorAs(t, err, &respErr)
		assert.Contains(t, respErr.Excerpt, "score")
		assert.False(t, llmerrors.IsRetryable(err))
	})
}

func TestDecode(t *testing.T) {
	type criterion struct {
		Score    float64 `json:"score"`
		MaxScore int     `json:"max_score"`
		Level    string  `json:"level"`
	}
	m, err := Object(`{"score": "3.5", "max_score": 4, "level": "Good"}`)
	require.NoError(t, err)

	var c criterion
	require.NoError(t, Decode(m, &c))
	assert.Equal(t, criterion{Score: 3.5, MaxScore: 4, Level: "Good"}, c)

	var bad criterion
	err = Decode(map[string]any{"score": []any{1}}, &bad)
	assert.ErrorIs(t, err, llmerrors.ErrMalformedResponse)
}

func TestSchema(t *testing.T) {
	s := MustCompile("mapping.json", `{
		"type": "object",
		"required": ["selected_choices", "mapped_answers"],
		"properties": {
			"selected_choices": {"type": "object"},
			"mapped_answers": {"type": "object"}
		}
	}`)

	ok, err := Object(`{"selected_choices": {}, "mapped_answers": {"Q1": "x"}}`)
	require.NoError(t, err)
	assert.NoError(t, s.Validate(ok))

	missing, err := Object(`{"mapped_answers": {}}`)
	require.NoError(t, err)
	err = s.Validate(missing)
	require.ErrorIs(t, err, llmerrors.ErrMalformedResponse)
	assert.Contains(t, err.Error(), "mapping.json")

	assert.Panics(t, func() { MustCompile("bad.json", `{"type": `) })
}
