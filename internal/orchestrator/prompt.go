package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// Commit estimates at which decomposition becomes recommended and mandatory.
const (
	recommendDecompositionAt = 4
	requireDecompositionAt   = 8
)

// Complexity classifies a task by its estimated commit count.
type Complexity string

const (
	ComplexityDirect      Complexity = "direct"
	ComplexityRecommended Complexity = "recommended"
	ComplexityMandatory   Complexity = "mandatory"
)

// ClassifyComplexity maps an estimated commit count to a Complexity.
func ClassifyComplexity(commits int) Complexity {
	switch {
	case commits >= requireDecompositionAt:
		return ComplexityMandatory
	case commits >= recommendDecompositionAt:
		return ComplexityRecommended
	default:
		return ComplexityDirect
	}
}

// EstimateCommits returns the planner's estimate when present, otherwise a
// heuristic from the task's acceptance criteria and affected files.
func EstimateCommits(t *models.Task) int {
	if t.Metadata.EstimatedCommits > 0 {
		return t.Metadata.EstimatedCommits
	}
	est := (len(t.AcceptanceCriteria)+1)/2 + len(t.AffectedFiles)/3
	if est < 1 {
		est = 1
	}
	return est
}

// buildPrompt composes the worker prompt for t. canDecompose is false once
// the task sits at the depth limit.
func buildPrompt(t *models.Task, canDecompose bool, maxCIRetries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", t.Title)
	if d := strings.TrimSpace(t.Description); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	writeList(&b, "Acceptance criteria", t.AcceptanceCriteria)
	writeList(&b, "Files likely affected", t.AffectedFiles)
	writeList(&b, "Required skills", t.RequiredSkills)

	if t.Metadata.LastCIFeedback != "" {
		fmt.Fprintf(&b, "## Verification failures (attempt %d of %d)\n\n", t.Metadata.CIRetryCount, maxCIRetries)
		b.WriteString("The change request's build checks failed. Fix these problems first:\n\n")
		b.WriteString(strings.TrimSpace(t.Metadata.LastCIFeedback))
		b.WriteString("\n\n")
	}
	if t.Metadata.LastError != "" && t.RetryCount > 0 {
		fmt.Fprintf(&b, "## Feedback from attempt %d\n\n%s\n\n", t.RetryCount, strings.TrimSpace(t.Metadata.LastError))
	}

	b.WriteString("## Approach\n\n")
	commits := EstimateCommits(t)
	switch c := ClassifyComplexity(commits); {
	case !canDecompose:
		b.WriteString("This task is at the decomposition depth limit. Implement it directly; do not reply with DECOMPOSE_TASK.\n")
	case c == ComplexityMandatory:
		fmt.Fprintf(&b, "This task is estimated at %d commits, which is too large for one change. "+
			"You MUST decompose it: reply with DECOMPOSE_TASK: followed by the reason and a JSON array of work items.\n", commits)
	case c == ComplexityRecommended:
		fmt.Fprintf(&b, "This task is estimated at %d commits. Decomposition is recommended: "+
			"if the work splits naturally, reply with DECOMPOSE_TASK: followed by the reason and a JSON array of work items. "+
			"Otherwise implement it directly in small commits.\n", commits)
	default:
		fmt.Fprintf(&b, "This task is estimated at %d commit(s). Implement it directly.\n", commits)
	}
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
