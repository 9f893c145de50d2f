package models

import "time"

// Team groups workers under a manager. Teams nest through ParentTeamID.
type Team struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ParentTeamID    string    `json:"parent_team_id,omitempty"`
	ManagerWorkerID string    `json:"manager_worker_id,omitempty"`
	OrganizationID  string    `json:"organization_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Organization owns teams and the repository they work against.
type Organization struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	BaseBranch     string `json:"base_branch"`
	RepositoryPath string `json:"repository_path"`
}

// DocumentType classifies knowledge records.
type DocumentType string

const (
	DocumentKnowledge  DocumentType = "knowledge"
	DocumentTaskResult DocumentType = "task_result"
	DocumentDecision   DocumentType = "decision"
)

// Document is a persisted knowledge or result record.
type Document struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Type      DocumentType `json:"type"`
	TaskID    string       `json:"task_id,omitempty"`
	WorkerID  string       `json:"worker_id,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// PullRequestStatus is the review state of a change request.
type PullRequestStatus string

const (
	PullRequestOpen            PullRequestStatus = "open"
	PullRequestReviewRequested PullRequestStatus = "review_requested"
	PullRequestMerged          PullRequestStatus = "merged"
	PullRequestClosed          PullRequestStatus = "closed"
)

// PullRequest records a change request opened for a task.
type PullRequest struct {
	ID             string            `json:"id"`
	TaskID         string            `json:"task_id"`
	Number         int               `json:"number"`
	URL            string            `json:"url"`
	Repository     string            `json:"repository"`
	Branch         string            `json:"branch"`
	AuthorWorkerID string            `json:"author_worker_id"`
	Status         PullRequestStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
}
