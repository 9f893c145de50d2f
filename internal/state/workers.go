package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/hollon/pkg/models"
)

const workerColumns = `id, name, lifecycle, status, role_id, team_id, depth, parent_worker_id, created_at`

// CreateWorker inserts a new worker.
func (db *DB) CreateWorker(ctx context.Context, w *models.Worker) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := db.exec(ctx, `INSERT INTO workers (`+workerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, string(w.Lifecycle), string(w.Status), w.RoleID, w.TeamID, w.Depth,
		w.ParentWorkerID, formatTime(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert worker %s: %w", w.ID, err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (db *DB) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	w, err := scanWorker(db.queryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get worker %s: %w", id, err)
	}
	return w, nil
}

// UpdateWorker updates an existing worker.
func (db *DB) UpdateWorker(ctx context.Context, w *models.Worker) error {
	res, err := db.exec(ctx, `
		UPDATE workers SET name = ?, lifecycle = ?, status = ?, role_id = ?, team_id = ?,
			depth = ?, parent_worker_id = ?
		WHERE id = ?`,
		w.Name, string(w.Lifecycle), string(w.Status), w.RoleID, w.TeamID, w.Depth, w.ParentWorkerID, w.ID)
	if err != nil {
		return fmt.Errorf("update worker %s: %w", w.ID, err)
	}
	return requireAffected(res, "worker", w.ID)
}

// DeleteWorker removes a worker.
func (db *DB) DeleteWorker(ctx context.Context, id string) error {
	res, err := db.exec(ctx, `DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete worker %s: %w", id, err)
	}
	return requireAffected(res, "worker", id)
}

// ListWorkers returns workers matching the filter ordered by ID.
func (db *DB) ListWorkers(ctx context.Context, f WorkerFilter) ([]*models.Worker, error) {
	var (
		where []string
		args  []any
	)
	if f.TeamID != "" {
		where = append(where, "team_id = ?")
		args = append(args, f.TeamID)
	}
	if f.Lifecycle != "" {
		where = append(where, "lifecycle = ?")
		args = append(args, string(f.Lifecycle))
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	q := `SELECT ` + workerColumns + ` FROM workers`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(s rowScanner) (*models.Worker, error) {
	var (
		w                              models.Worker
		lifecycle, status, createdAt   string
		roleID, teamID, parentWorkerID sql.NullString
	)
	if err := s.Scan(&w.ID, &w.Name, &lifecycle, &status, &roleID, &teamID, &w.Depth, &parentWorkerID, &createdAt); err != nil {
		return nil, err
	}
	w.Lifecycle = models.Lifecycle(lifecycle)
	w.Status = models.WorkerStatus(status)
	w.RoleID = roleID.String
	w.TeamID = teamID.String
	w.ParentWorkerID = parentWorkerID.String
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	w.CreatedAt = ts
	return &w, nil
}

// CreateRole inserts a new role.
func (db *DB) CreateRole(ctx context.Context, r *models.Role) error {
	caps, err := encodeJSON(r.Capabilities)
	if err != nil {
		return err
	}
	_, err = db.exec(ctx, `INSERT INTO roles (id, name, capabilities, tier, specialization) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Name, caps, string(r.Tier), string(r.Specialization))
	if err != nil {
		return fmt.Errorf("insert role %s: %w", r.ID, err)
	}
	return nil
}

// GetRole retrieves a role by ID.
func (db *DB) GetRole(ctx context.Context, id string) (*models.Role, error) {
	r, err := scanRole(db.queryRow(ctx, `SELECT id, name, capabilities, tier, specialization FROM roles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", id, err)
	}
	return r, nil
}

// UpdateRole updates an existing role.
func (db *DB) UpdateRole(ctx context.Context, r *models.Role) error {
	caps, err := encodeJSON(r.Capabilities)
	if err != nil {
		return err
	}
	res, err := db.exec(ctx, `UPDATE roles SET name = ?, capabilities = ?, tier = ?, specialization = ? WHERE id = ?`,
		r.Name, caps, string(r.Tier), string(r.Specialization), r.ID)
	if err != nil {
		return fmt.Errorf("update role %s: %w", r.ID, err)
	}
	return requireAffected(res, "role", r.ID)
}

// ListRoles returns all roles ordered by ID.
func (db *DB) ListRoles(ctx context.Context) ([]*models.Role, error) {
	rows, err := db.query(ctx, `SELECT id, name, capabilities, tier, specialization FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func scanRole(s rowScanner) (*models.Role, error) {
	var (
		r                    models.Role
		caps, specialization sql.NullString
		tier                 string
	)
	if err := s.Scan(&r.ID, &r.Name, &caps, &tier, &specialization); err != nil {
		return nil, err
	}
	capabilities, err := decodeStrings(caps)
	if err != nil {
		return nil, fmt.Errorf("decode role %s capabilities: %w", r.ID, err)
	}
	r.Capabilities = capabilities
	r.Tier = models.Tier(tier)
	r.Specialization = models.Specialization(specialization.String)
	return &r, nil
}

const teamColumns = `id, name, parent_team_id, manager_worker_id, organization_id, created_at`

// CreateTeam inserts a new team.
func (db *DB) CreateTeam(ctx context.Context, t *models.Team) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := db.exec(ctx, `INSERT INTO teams (`+teamColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.ParentTeamID, t.ManagerWorkerID, t.OrganizationID, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert team %s: %w", t.ID, err)
	}
	return nil
}

// GetTeam retrieves a team by ID.
func (db *DB) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	t, err := scanTeam(db.queryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}
	return t, nil
}

// UpdateTeam updates an existing team.
func (db *DB) UpdateTeam(ctx context.Context, t *models.Team) error {
	res, err := db.exec(ctx, `UPDATE teams SET name = ?, parent_team_id = ?, manager_worker_id = ?, organization_id = ? WHERE id = ?`,
		t.Name, t.ParentTeamID, t.ManagerWorkerID, t.OrganizationID, t.ID)
	if err != nil {
		return fmt.Errorf("update team %s: %w", t.ID, err)
	}
	return requireAffected(res, "team", t.ID)
}

// ListTeams returns all teams ordered by ID.
func (db *DB) ListTeams(ctx context.Context) ([]*models.Team, error) {
	return db.listTeams(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY id`)
}

// ListChildTeams returns the direct sub-teams of parentID ordered by ID.
func (db *DB) ListChildTeams(ctx context.Context, parentID string) ([]*models.Team, error) {
	return db.listTeams(ctx, `SELECT `+teamColumns+` FROM teams WHERE parent_team_id = ? ORDER BY id`, parentID)
}

func (db *DB) listTeams(ctx context.Context, q string, args ...any) ([]*models.Team, error) {
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func scanTeam(s rowScanner) (*models.Team, error) {
	var (
		t                          models.Team
		parentID, managerID, orgID sql.NullString
		createdAt                  string
	)
	if err := s.Scan(&t.ID, &t.Name, &parentID, &managerID, &orgID, &createdAt); err != nil {
		return nil, err
	}
	t.ParentTeamID = parentID.String
	t.ManagerWorkerID = managerID.String
	t.OrganizationID = orgID.String
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = ts
	return &t, nil
}

// CreateOrganization inserts a new organization.
func (db *DB) CreateOrganization(ctx context.Context, o *models.Organization) error {
	if o.BaseBranch == "" {
		o.BaseBranch = "main"
	}
	_, err := db.exec(ctx, `INSERT INTO organizations (id, name, base_branch, repository_path) VALUES (?, ?, ?, ?)`,
		o.ID, o.Name, o.BaseBranch, o.RepositoryPath)
	if err != nil {
		return fmt.Errorf("insert organization %s: %w", o.ID, err)
	}
	return nil
}

// GetOrganization retrieves an organization by ID.
func (db *DB) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	o, err := scanOrganization(db.queryRow(ctx, `SELECT id, name, base_branch, repository_path FROM organizations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, err)
	}
	return o, nil
}

// UpdateOrganization updates an existing organization.
func (db *DB) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	res, err := db.exec(ctx, `UPDATE organizations SET name = ?, base_branch = ?, repository_path = ? WHERE id = ?`,
		o.Name, o.BaseBranch, o.RepositoryPath, o.ID)
	if err != nil {
		return fmt.Errorf("update organization %s: %w", o.ID, err)
	}
	return requireAffected(res, "organization", o.ID)
}

// ListOrganizations returns all organizations ordered by ID.
func (db *DB) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	rows, err := db.query(ctx, `SELECT id, name, base_branch, repository_path FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func scanOrganization(s rowScanner) (*models.Organization, error) {
	var (
		o    models.Organization
		repo sql.NullString
	)
	if err := s.Scan(&o.ID, &o.Name, &o.BaseBranch, &repo); err != nil {
		return nil, err
	}
	o.RepositoryPath = repo.String
	return &o, nil
}
