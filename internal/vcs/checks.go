package vcs

import (
	"fmt"
	"strings"
)

// CheckSummary condenses a set of checks.
type CheckSummary struct {
	Total   int
	Passed  int
	Failed  int
	Pending int
	Skipped int
	Failing []Check
}

// Summarize buckets checks.
func Summarize(checks []Check) CheckSummary {
	s := CheckSummary{Total: len(checks)}
	for _, c := range checks {
		switch c.Bucket {
		case BucketPass:
			s.Passed++
		case BucketFail, BucketCancel:
			s.Failed++
			s.Failing = append(s.Failing, c)
		case BucketSkipping:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	return s
}

// Complete reports whether every check has finished.
func (s CheckSummary) Complete() bool {
	return s.Total > 0 && s.Pending == 0
}

// Succeeded reports whether every check finished without failure.
func (s CheckSummary) Succeeded() bool {
	return s.Complete() && s.Failed == 0
}

// String renders the summary for logs and feedback.
func (s CheckSummary) String() string {
	return fmt.Sprintf("%d checks: %d passed, %d failed, %d pending, %d skipped",
		s.Total, s.Passed, s.Failed, s.Pending, s.Skipped)
}

// FormatFeedback renders failed check logs as worker-facing feedback.
func FormatFeedback(logs []CheckLog) string {
	var b strings.Builder
	for i, l := range logs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s (%s)\n", l.Check.Name, l.Check.State)
		if l.Check.Link != "" {
			fmt.Fprintf(&b, "%s\n", l.Check.Link)
		}
		if strings.TrimSpace(l.Log) != "" {
			b.WriteString("```\n")
			b.WriteString(strings.TrimRight(l.Log, "\n"))
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}
