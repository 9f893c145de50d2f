package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/hollon/pkg/models"
)

func TestClassifyComplexity(t *testing.T) {
	tests := []struct {
		commits int
		want    Complexity
	}{
		{1, ComplexityDirect},
		{3, ComplexityDirect},
		{4, ComplexityRecommended},
		{7, ComplexityRecommended},
		{8, ComplexityMandatory},
		{20, ComplexityMandatory},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyComplexity(tt.commits), "commits=%d", tt.commits)
	}
}

func TestEstimateCommits(t *testing.T) {
	tests := []struct {
		name string
		task models.Task
		want int
	}{
		{"explicit estimate", models.Task{Metadata: models.TaskMetadata{EstimatedCommits: 5}}, 5},
		{"empty task", models.Task{}, 1},
		{"criteria and files", models.Task{
			AcceptanceCriteria: []string{"a", "b", "c", "d"},
			AffectedFiles:      []string{"x.go", "y.go", "z.go"},
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateCommits(&tt.task))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	task := &models.Task{
		Title:              "Add login",
		Description:        "Add a login endpoint.",
		AcceptanceCriteria: []string{"returns a session"},
		AffectedFiles:      []string{"login.go"},
	}

	p := buildPrompt(task, true, 3)
	assert.Contains(t, p, "# Task: Add login")
	assert.Contains(t, p, "## Acceptance criteria\n\n- returns a session")
	assert.Contains(t, p, "## Files likely affected\n\n- login.go")
	assert.Contains(t, p, "Implement it directly.")
	assert.NotContains(t, p, "Verification failures")
	assert.NotContains(t, p, "Feedback from attempt")

	task.Metadata.EstimatedCommits = 9
	assert.Contains(t, buildPrompt(task, true, 3), "You MUST decompose it")

	task.Metadata.EstimatedCommits = 5
	assert.Contains(t, buildPrompt(task, true, 3), "Decomposition is recommended")

	p = buildPrompt(task, false, 3)
	assert.Contains(t, p, "decomposition depth limit")
	assert.NotContains(t, p, "recommended")
}

func TestBuildPrompt_Feedback(t *testing.T) {
	task := &models.Task{
		Title:      "Add login",
		RetryCount: 2,
		Metadata: models.TaskMetadata{
			CIRetryCount:   2,
			LastCIFeedback: "lint: unused variable",
			LastError:      "output gate: worker produced no output",
		},
	}

	p := buildPrompt(task, true, 3)
	assert.Contains(t, p, "## Verification failures (attempt 2 of 3)")
	assert.Contains(t, p, "lint: unused variable")
	assert.Contains(t, p, "## Feedback from attempt 2")
	assert.Contains(t, p, "worker produced no output")
}

func TestPullRequestBody_TruncatesSummaryOnRuneBoundary(t *testing.T) {
	task := &models.Task{ID: "t1", Title: "Add login", AcceptanceCriteria: []string{"POST /login works"}}
	output := strings.Repeat("a", maxSummaryBytes-1) + "é and more"

	body := pullRequestBody(task, output)
	assert.True(t, utf8.ValidString(body))
	assert.Contains(t, body, "- [ ] POST /login works")
	assert.Contains(t, body, strings.Repeat("a", maxSummaryBytes-1)+"\n...")
	assert.NotContains(t, body, "and more")
}
