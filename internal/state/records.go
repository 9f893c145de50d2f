package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/hollon/pkg/models"
)

const documentColumns = `id, title, content, type, task_id, worker_id, tags, created_at`

// CreateDocument inserts a knowledge or result record.
func (db *DB) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	tags, err := encodeJSON(d.Tags)
	if err != nil {
		return err
	}
	_, err = db.exec(ctx, `INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, string(d.Type), d.TaskID, d.WorkerID, tags, formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.ID, err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (db *DB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	d, err := scanDocument(db.queryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// DeleteDocument removes a document.
func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	res, err := db.exec(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return requireAffected(res, "document", id)
}

// ListDocuments returns documents matching the filter ordered by creation time.
// Tag matching happens after the query since tags are stored as JSON.
func (db *DB) ListDocuments(ctx context.Context, f DocumentFilter) ([]*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	switch {
	case f.TaskID != "" && f.Type != "":
		q += ` WHERE task_id = ? AND type = ?`
		args = append(args, f.TaskID, string(f.Type))
	case f.TaskID != "":
		q += ` WHERE task_id = ?`
		args = append(args, f.TaskID)
	case f.Type != "":
		q += ` WHERE type = ?`
		args = append(args, string(f.Type))
	}
	q += ` ORDER BY created_at, id`

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if f.Match(d) {
			docs = append(docs, d)
		}
	}
	return docs, rows.Err()
}

func scanDocument(s rowScanner) (*models.Document, error) {
	var (
		d                              models.Document
		content, taskID, workerID, tgs sql.NullString
		docType, createdAt             string
	)
	if err := s.Scan(&d.ID, &d.Title, &content, &docType, &taskID, &workerID, &tgs, &createdAt); err != nil {
		return nil, err
	}
	d.Content = content.String
	d.Type = models.DocumentType(docType)
	d.TaskID = taskID.String
	d.WorkerID = workerID.String
	tags, err := decodeStrings(tgs)
	if err != nil {
		return nil, fmt.Errorf("decode document %s tags: %w", d.ID, err)
	}
	d.Tags = tags
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &d, nil
}

const pullRequestColumns = `id, task_id, number, url, repository, branch, author_worker_id, status, created_at`

// CreatePullRequest inserts a change-request record.
func (db *DB) CreatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now()
	}
	if pr.Status == "" {
		pr.Status = models.PullRequestOpen
	}
	_, err := db.exec(ctx, `INSERT INTO pull_requests (`+pullRequestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.TaskID, pr.Number, pr.URL, pr.Repository, pr.Branch, pr.AuthorWorkerID,
		string(pr.Status), formatTime(pr.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert pull request %s: %w", pr.ID, err)
	}
	return nil
}

// GetPullRequest retrieves a change-request record by ID.
func (db *DB) GetPullRequest(ctx context.Context, id string) (*models.PullRequest, error) {
	pr, err := scanPullRequest(db.queryRow(ctx, `SELECT `+pullRequestColumns+` FROM pull_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pull request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", id, err)
	}
	return pr, nil
}

// UpdatePullRequest updates an existing change-request record.
func (db *DB) UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	res, err := db.exec(ctx, `
		UPDATE pull_requests SET number = ?, url = ?, repository = ?, branch = ?, author_worker_id = ?, status = ?
		WHERE id = ?`,
		pr.Number, pr.URL, pr.Repository, pr.Branch, pr.AuthorWorkerID, string(pr.Status), pr.ID)
	if err != nil {
		return fmt.Errorf("update pull request %s: %w", pr.ID, err)
	}
	return requireAffected(res, "pull request", pr.ID)
}

// ListPullRequests returns the change requests opened for a task, oldest first.
func (db *DB) ListPullRequests(ctx context.Context, taskID string) ([]*models.PullRequest, error) {
	rows, err := db.query(ctx, `SELECT `+pullRequestColumns+` FROM pull_requests WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	defer rows.Close()

	var prs []*models.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func scanPullRequest(s rowScanner) (*models.PullRequest, error) {
	var (
		pr                          models.PullRequest
		url, repo, branch, authorID sql.NullString
		status, createdAt           string
	)
	if err := s.Scan(&pr.ID, &pr.TaskID, &pr.Number, &url, &repo, &branch, &authorID, &status, &createdAt); err != nil {
		return nil, err
	}
	pr.URL = url.String
	pr.Repository = repo.String
	pr.Branch = branch.String
	pr.AuthorWorkerID = authorID.String
	pr.Status = models.PullRequestStatus(status)
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	pr.CreatedAt = ts
	return &pr, nil
}
