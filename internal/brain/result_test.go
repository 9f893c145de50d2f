package brain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/hollon/pkg/models"
)

func TestParseResult_Direct(t *testing.T) {
	out := "Implemented the login handler and added tests."
	r := ParseResult(out)
	d, ok := r.(Direct)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, out, d.Output)
}

func TestParseResult_SelfCorrect(t *testing.T) {
	r := ParseResult("  SELF_CORRECT: tests were not run\n")
	sc, ok := r.(SelfCorrect)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, "tests were not run", sc.Reason)

	r = ParseResult("SELF_CORRECT:")
	sc, ok = r.(SelfCorrect)
	require.True(t, ok)
	assert.NotEmpty(t, sc.Reason)
}

func TestParseResult_Decompose(t *testing.T) {
	out := `DECOMPOSE_TASK: touches three subsystems
[
  {"title": "Add schema", "priority": "high", "type": "planning", "estimated_commits": 2},
  {"title": "Wire handler", "depends_on": ["Add schema"], "affected_files": ["api/handler.go"]}
]`
	r := ParseResult(out)
	d, ok := r.(Decompose)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, "touches three subsystems", d.Reason)
	require.Len(t, d.Subtasks, 2)
	assert.Equal(t, models.PriorityHigh, d.Subtasks[0].Priority)
	assert.Equal(t, models.SpecializationPlanning, d.Subtasks[0].Kind)
	assert.Equal(t, 2, d.Subtasks[0].EstimatedCommits)
	assert.Equal(t, []string{"Add schema"}, d.Subtasks[1].DependsOn)
	assert.Equal(t, models.PriorityMedium, d.Subtasks[1].Priority)
	assert.Equal(t, models.SpecializationImplementation, d.Subtasks[1].Kind)
}

func TestParseResult_DecomposeReasonFromEnvelope(t *testing.T) {
	r := ParseResult(`DECOMPOSE_TASK: {"reason": "too large", "subtasks": [{"title": "A"}]}`)
	d, ok := r.(Decompose)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, "too large", d.Reason)
	assert.Len(t, d.Subtasks, 1)
}

func TestParseResult_MalformedDecomposeBecomesSelfCorrect(t *testing.T) {
	r := ParseResult("DECOMPOSE_TASK: split it please [not json")
	sc, ok := r.(SelfCorrect)
	require.True(t, ok, "got %T", r)
	assert.Contains(t, sc.Reason, "could not be parsed")

	var perr *ParseError
	require.ErrorAs(t, sc.Err, &perr)
	assert.Equal(t, "no JSON payload found", perr.Reason)

	sc, ok = ParseResult("SELF_CORRECT: rerun").(SelfCorrect)
	require.True(t, ok)
	assert.NoError(t, sc.Err, "a worker's own request carries no parse error")
}

func TestSnippet_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 79) + "é" + "tail"
	got := snippet(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 79)+"...", got)
	assert.Equal(t, "short", snippet("  short "))
}

func TestParseWorkItems(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		titles []string
	}{
		{
			name:   "bare array",
			input:  `[{"title": "one"}, {"title": "two"}]`,
			titles: []string{"one", "two"},
		},
		{
			name:   "subtasks envelope",
			input:  `{"subtasks": [{"title": "one"}]}`,
			titles: []string{"one"},
		},
		{
			name:   "tasks envelope",
			input:  `{"tasks": [{"title": "one"}]}`,
			titles: []string{"one"},
		},
		{
			name:   "code fence with prose",
			input:  "Here is the plan:\n```json\n[{\"title\": \"fenced\", \"description\": \"has ] bracket\"}]\n```\nDone.",
			titles: []string{"fenced"},
		},
		{
			name:   "alias fields",
			input:  `[{"title": "x", "dependencies": ["y"], "files_likely_touched": ["a.go"]}]`,
			titles: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseWorkItems(tt.input)
			require.NoError(t, err)
			var got []string
			for _, it := range items {
				got = append(got, it.Title)
			}
			assert.Equal(t, tt.titles, got)
		})
	}
}

func TestParseWorkItems_Aliases(t *testing.T) {
	items, err := ParseWorkItems(`[{"title": "x", "dependencies": ["y"], "files_likely_touched": ["a.go"]}]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, items[0].DependsOn)
	assert.Equal(t, []string{"a.go"}, items[0].AffectedFiles)
}

func TestParseWorkItems_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no json", "just prose"},
		{"empty array", "[]"},
		{"empty envelope", `{"subtasks": []}`},
		{"missing title", `[{"description": "untitled"}]`},
		{"truncated", `[{"title": "a"`},
		{"wrong shape", `{"subtasks": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorkItems(tt.input)
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
		})
	}
}
