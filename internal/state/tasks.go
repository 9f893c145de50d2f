package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/hollon/pkg/models"
)

const taskColumns = `id, parent_id, title, description, acceptance_criteria, type, status, priority,
	depends_on, assigned_worker_id, assigned_team_id, depth, required_skills, affected_files, tags,
	working_directory, metadata, retry_count, version, created_at, updated_at, completed_at`

// CreateTask inserts a new task. Version starts at 1.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if err := t.ValidateAssignment(); err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1

	args, err := taskArgs(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	_, err = db.exec(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask persists t if its Version matches the stored row.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	if err := t.ValidateAssignment(); err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	criteria, err := encodeJSON(t.AcceptanceCriteria)
	if err != nil {
		return err
	}
	deps, err := encodeJSON(t.DependsOn)
	if err != nil {
		return err
	}
	skills, err := encodeJSON(t.RequiredSkills)
	if err != nil {
		return err
	}
	files, err := encodeJSON(t.AffectedFiles)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(t.Tags)
	if err != nil {
		return err
	}
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return err
	}

	updatedAt := time.Now()
	res, err := db.exec(ctx, `
		UPDATE tasks SET parent_id = ?, title = ?, description = ?, acceptance_criteria = ?, type = ?,
			status = ?, priority = ?, depends_on = ?, assigned_worker_id = ?, assigned_team_id = ?,
			depth = ?, required_skills = ?, affected_files = ?, tags = ?, working_directory = ?,
			metadata = ?, retry_count = ?, version = version + 1, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ?`,
		t.ParentID, t.Title, t.Description, criteria, string(t.Type),
		string(t.Status), string(t.Priority), deps, t.AssignedWorkerID, t.AssignedTeamID,
		t.Depth, skills, files, tags, t.WorkingDirectory,
		meta, t.RetryCount, formatTime(updatedAt), nullableTime(t.CompletedAt),
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := db.queryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}
		if exists == 0 {
			return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
		}
		return fmt.Errorf("task %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}

	t.Version++
	t.UpdatedAt = updatedAt
	return nil
}

// DeleteTask removes a task.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return requireAffected(res, "task", id)
}

// ListTasks returns tasks matching the filter ordered by creation time.
func (db *DB) ListTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.AssignedWorkerID != "" {
		where = append(where, "assigned_worker_id = ?")
		args = append(args, f.AssignedWorkerID)
	}
	if f.AssignedTeamID != "" {
		where = append(where, "assigned_team_id = ?")
		args = append(args, f.AssignedTeamID)
	}
	if f.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, f.ParentID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Unassigned {
		where = append(where, "COALESCE(assigned_worker_id, '') = '' AND COALESCE(assigned_team_id, '') = ''")
	}

	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at, id"

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func taskArgs(t *models.Task) ([]any, error) {
	criteria, err := encodeJSON(t.AcceptanceCriteria)
	if err != nil {
		return nil, err
	}
	deps, err := encodeJSON(t.DependsOn)
	if err != nil {
		return nil, err
	}
	skills, err := encodeJSON(t.RequiredSkills)
	if err != nil {
		return nil, err
	}
	files, err := encodeJSON(t.AffectedFiles)
	if err != nil {
		return nil, err
	}
	tags, err := encodeJSON(t.Tags)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSON(t.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{
		t.ID, t.ParentID, t.Title, t.Description, criteria, string(t.Type), string(t.Status),
		string(t.Priority), deps, t.AssignedWorkerID, t.AssignedTeamID, t.Depth, skills, files, tags,
		t.WorkingDirectory, meta, t.RetryCount, t.Version, formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt), nullableTime(t.CompletedAt),
	}, nil
}

func scanTask(s rowScanner) (*models.Task, error) {
	var (
		t                                       models.Task
		parentID, description, workerID, teamID sql.NullString
		criteria, deps, skills, files, tags     sql.NullString
		workDir, meta, completedAt              sql.NullString
		taskType, status, priority              string
		createdAt, updatedAt                    string
	)
	err := s.Scan(&t.ID, &parentID, &t.Title, &description, &criteria, &taskType, &status, &priority,
		&deps, &workerID, &teamID, &t.Depth, &skills, &files, &tags,
		&workDir, &meta, &t.RetryCount, &t.Version, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.ParentID = parentID.String
	t.Description = description.String
	t.AssignedWorkerID = workerID.String
	t.AssignedTeamID = teamID.String
	t.WorkingDirectory = workDir.String
	t.Type = models.TaskType(taskType)
	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)

	for _, f := range []struct {
		src sql.NullString
		dst *[]string
	}{
		{criteria, &t.AcceptanceCriteria},
		{deps, &t.DependsOn},
		{skills, &t.RequiredSkills},
		{files, &t.AffectedFiles},
		{tags, &t.Tags},
	} {
		v, err := decodeStrings(f.src)
		if err != nil {
			return nil, fmt.Errorf("decode task %s: %w", t.ID, err)
		}
		*f.dst = v
	}

	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode task %s metadata: %w", t.ID, err)
		}
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}
