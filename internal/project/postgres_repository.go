package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `
	id, client_code, company_name, project_name, company_logo_url, company_logo_asset_id,
	type_of_project, pv_project_manager, start_date, end_date, allotted_billing_hours,
	actual_hours_spent, status, department, created_at, updated_at`

// Postgres error codes and constraint names the repository maps to sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"

	constraintClientCode  = "projects_client_code_key"
	constraintDates       = "projects_dates_check"
	constraintProjectFK   = "project_team_members_project_id_fkey"
	constraintMemberships = "project_team_members_pkey"
)

// List retrieves projects matching filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.Department != nil {
		conditions = append(conditions, fmt.Sprintf("department = $%d", argIdx))
		args = append(args, *filter.Department)
		argIdx++
	}
	if filter.Search != nil && *filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			`(client_code ILIKE $%[1]d ESCAPE '\' OR company_name ILIKE $%[1]d ESCAPE '\' OR project_name ILIKE $%[1]d ESCAPE '\')`,
			argIdx))
		args = append(args, "%"+escapeLike(*filter.Search)+"%")
		argIdx++
	}
	if filter.StartFrom != nil {
		conditions = append(conditions, fmt.Sprintf("end_date >= $%d", argIdx))
		args = append(args, *filter.StartFrom)
		argIdx++
	}
	if filter.EndTo != nil {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", argIdx))
		args = append(args, *filter.EndTo)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY created_at DESC`, selectColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := scanProject(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}

	if projects == nil {
		return []Project{}, nil
	}

	if err := r.loadMembers(ctx, projects); err != nil {
		return nil, err
	}

	return projects, nil
}

// GetByID retrieves a single project with its members resolved.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `SELECT ` + selectColumns + ` FROM projects WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByClientCode retrieves a project by its exact client code.
func (r *PostgresRepository) GetByClientCode(ctx context.Context, clientCode string) (*Project, error) {
	query := `SELECT ` + selectColumns + ` FROM projects WHERE client_code = $1`
	return r.getOne(ctx, query, clientCode)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Project, error) {
	var p Project
	if err := scanProject(r.pool.QueryRow(ctx, query, arg), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("scanning project row: %w", err)
	}

	projects := []Project{p}
	if err := r.loadMembers(ctx, projects); err != nil {
		return nil, err
	}
	return &projects[0], nil
}

// Create inserts the project row and its membership rows in one
// transaction. Defaults are applied and invariants re-checked first.
func (r *PostgresRepository) Create(ctx context.Context, p *Project) error {
	p.ApplyDefaults()
	if err := CheckInvariants(p); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO projects (client_code, company_name, project_name, company_logo_url,
		                      company_logo_asset_id, type_of_project, pv_project_manager,
		                      start_date, end_date, allotted_billing_hours, actual_hours_spent,
		                      status, department)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		p.ClientCode,
		p.CompanyName,
		p.ProjectName,
		p.CompanyLogoURL,
		p.CompanyLogoAssetID,
		p.TypeOfProject,
		p.PVProjectManager,
		p.StartDate,
		p.EndDate,
		p.AllottedBillingHours,
		p.ActualHoursSpent,
		p.Status,
		p.Department,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "inserting project")
	}

	if len(p.TeamMemberIDs) > 0 {
		batch := &pgx.Batch{}
		for i, memberID := range p.TeamMemberIDs {
			batch.Queue(
				`INSERT INTO project_team_members (project_id, team_member_id, position) VALUES ($1, $2, $3)`,
				p.ID, memberID, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return mapWriteError(err, "inserting project members")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing project: %w", err)
	}

	return nil
}

// Delete removes a project. Membership rows go with it.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddMember appends a member to the project. Adding a member twice is a no-op.
func (r *PostgresRepository) AddMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	return r.withTouchedProject(ctx, projectID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO project_team_members (project_id, team_member_id, position)
			SELECT $1, $2, COALESCE(MAX(position) + 1, 0)
			FROM project_team_members
			WHERE project_id = $1
			ON CONFLICT (project_id, team_member_id) DO NOTHING`,
			projectID, memberID)
		if err != nil {
			return mapWriteError(err, "adding project member")
		}
		return nil
	})
}

// RemoveMember detaches a member from the project. Removing a member that is
// not attached is a no-op.
func (r *PostgresRepository) RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	return r.withTouchedProject(ctx, projectID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM project_team_members WHERE project_id = $1 AND team_member_id = $2`,
			projectID, memberID)
		if err != nil {
			return fmt.Errorf("removing project member: %w", err)
		}
		return nil
	})
}

// withTouchedProject bumps updated_at, which also locks the project row for
// the rest of the transaction, then runs fn.
func (r *PostgresRepository) withTouchedProject(ctx context.Context, projectID uuid.UUID, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, projectID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touching project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing project membership: %w", err)
	}
	return nil
}

// loadMembers fills TeamMemberIDs and Members for every project in one query.
func (r *PostgresRepository) loadMembers(ctx context.Context, projects []Project) error {
	ids := make([]uuid.UUID, len(projects))
	index := make(map[uuid.UUID]int, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
		index[projects[i].ID] = i
		projects[i].TeamMemberIDs = []uuid.UUID{}
		projects[i].Members = []MemberSummary{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ptm.project_id, tm.id, tm.first_name, tm.last_name
		FROM project_team_members ptm
		JOIN team_members tm ON tm.id = ptm.team_member_id
		WHERE ptm.project_id = ANY($1)
		ORDER BY ptm.project_id, ptm.position`, ids)
	if err != nil {
		return fmt.Errorf("loading project members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, memberID uuid.UUID
		var first, last string
		if err := rows.Scan(&projectID, &memberID, &first, &last); err != nil {
			return fmt.Errorf("scanning project member row: %w", err)
		}
		i := index[projectID]
		projects[i].TeamMemberIDs = append(projects[i].TeamMemberIDs, memberID)
		projects[i].Members = append(projects[i].Members, summarize(memberID, first, last))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating project member rows: %w", err)
	}

	return nil
}

func scanProject(row pgx.Row, p *Project) error {
	return row.Scan(
		&p.ID,
		&p.ClientCode,
		&p.CompanyName,
		&p.ProjectName,
		&p.CompanyLogoURL,
		&p.CompanyLogoAssetID,
		&p.TypeOfProject,
		&p.PVProjectManager,
		&p.StartDate,
		&p.EndDate,
		&p.AllottedBillingHours,
		&p.ActualHoursSpent,
		&p.Status,
		&p.Department,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// mapWriteError translates constraint violations into sentinels.
func mapWriteError(err error, action string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", action, err)
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		if pgErr.ConstraintName == constraintClientCode {
			return ErrDuplicateClientCode
		}
		if pgErr.ConstraintName == constraintMemberships {
			return fmt.Errorf("%w: team member listed twice", ErrInvalidTeamMemberReference)
		}
	case codeForeignKeyViolation:
		if pgErr.ConstraintName == constraintProjectFK {
			return ErrProjectNotFound
		}
		return ErrInvalidTeamMemberReference
	case codeCheckViolation:
		if pgErr.ConstraintName == constraintDates {
			return ErrInvalidDateRange
		}
		return fmt.Errorf("%w: %s", ErrInvalidProject, pgErr.ConstraintName)
	}

	return fmt.Errorf("%s: %w", action, err)
}

// escapeLike quotes the ILIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
