package models

// WorkItem is one proposed unit of work produced when a task is broken down.
// Dependencies reference sibling work items by title.
type WorkItem struct {
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	AcceptanceCriteria []string       `json:"acceptance_criteria,omitempty"`
	RequiredSkills     []string       `json:"required_skills,omitempty"`
	AffectedFiles      []string       `json:"affected_files,omitempty"`
	DependsOn          []string       `json:"depends_on,omitempty"`
	Priority           Priority       `json:"priority,omitempty"`
	EstimatedCommits   int            `json:"estimated_commits,omitempty"`
	Kind               Specialization `json:"type,omitempty"`
}
