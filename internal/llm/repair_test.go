package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		stage Stage
		want  map[string]any
	}{
		{"strict", `{"a":1}`, StageStrict, map[string]any{"a": float64(1)}},
		{"fenced", "```json\n{\"a\": 1}\n```", StageRepaired, map[string]any{"a": float64(1)}},
		{"fence with prose", "Sure! Here you go:\n```\n{\"a\": \"b\"}\n```\nHope it helps", StageRepaired, map[string]any{"a": "b"}},
		{"language tag", `json {"a": true}`, StageRepaired, map[string]any{"a": true}},
		{"trailing commas", `{"a": [1, 2,], "b": 3,}`, StageRepaired, map[string]any{"a": []any{float64(1), float64(2)}, "b": float64(3)}},
		{"smart quotes", `{“a”: “b”}`, StageRepaired, map[string]any{"a": "b"}},
		{"truncated", `{"advice": [{"step": "Rest", "details": "Sleep`, StageRepaired,
			map[string]any{"advice": []any{map[string]any{"step": "Rest", "details": "Sleep"}}}},
		{"dangling key", `{"a": 1, "b":`, StageRepaired, map[string]any{"a": float64(1), "b": nil}},
		{"raw newline in string", "{\"a\": \"line1\nline2\"}", StageRepaired, map[string]any{"a": "line1\nline2"}},
		{"prose around object", `The answer is {"a": {"b": "}"}} and more text`, StageExtracted,
			map[string]any{"a": map[string]any{"b": "}"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, stage, ok := ParseObject(tc.raw)
			require.True(t, ok)
			assert.Equal(t, tc.stage, stage)

			var got map[string]any
			require.NoError(t, json.Unmarshal(obj, &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseObjectRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"", "I cannot help with that.", `[1, 2]`, `"just a string"`, "42"} {
		_, _, ok := ParseObject(raw)
		assert.False(t, ok, raw)
	}
}

func TestParseObjectIsIdempotentOnValidJSON(t *testing.T) {
	raw := `{"symptom_analysis":[{"symptom":"cough","intensity":3}],"advice":[]}`
	obj, stage, ok := ParseObject(raw)
	require.True(t, ok)
	assert.Equal(t, StageStrict, stage)
	assert.JSONEq(t, raw, string(obj))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("  short  "))

	long := strings.Repeat("é", PreviewLimit+50)
	p := Preview(long)
	assert.Equal(t, PreviewLimit+3, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "..."))
}
