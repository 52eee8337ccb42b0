package teammember

import (
	"context"
	"errors"
	"fmt"

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

const selectColumns = `id, first_name, last_name, created_at, updated_at`

const insertQuery = `
	INSERT INTO team_members (first_name, last_name)
	VALUES ($1, $2)
	RETURNING id, created_at, updated_at`

// Create inserts a new team member. The case-insensitive unique index on
// (LOWER(first_name), LOWER(last_name)) decides duplicates.
func (r *PostgresRepository) Create(ctx context.Context, m *TeamMember) error {
	err := r.pool.QueryRow(ctx, insertQuery, m.FirstName, m.LastName).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMember
		}
		return fmt.Errorf("inserting team member: %w", err)
	}

	return nil
}

// CreateMany inserts all members in one transaction. Any rejected row rolls
// back the whole batch.
func (r *PostgresRepository) CreateMany(ctx context.Context, members []TeamMember) ([]TeamMember, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range members {
		batch.Queue(insertQuery, members[i].FirstName, members[i].LastName)
	}

	created := make([]TeamMember, len(members))
	copy(created, members)

	results := tx.SendBatch(ctx, batch)
	for i := range created {
		err := results.QueryRow().Scan(&created[i].ID, &created[i].CreatedAt, &created[i].UpdatedAt)
		if err != nil {
			_ = results.Close()
			if isUniqueViolation(err) {
				return nil, ErrDuplicateMember
			}
			return nil, fmt.Errorf("inserting team member %d: %w", i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing team members: %w", err)
	}

	return created, nil
}

// GetByID retrieves a single team member by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*TeamMember, error) {
	query := `SELECT ` + selectColumns + ` FROM team_members WHERE id = $1`
	return scanMember(r.pool.QueryRow(ctx, query, id))
}

// GetByIDs returns the members that exist among ids. Missing ids are
// silently skipped; callers compare counts.
func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]TeamMember, error) {
	if len(ids) == 0 {
		return []TeamMember{}, nil
	}

	query := `SELECT ` + selectColumns + ` FROM team_members WHERE id = ANY($1) ORDER BY created_at ASC`
	return r.query(ctx, query, ids)
}

// FindByName looks up a member by name pair, ignoring case. excludeID, when
// non-nil, skips that record.
func (r *PostgresRepository) FindByName(ctx context.Context, firstName, lastName string, excludeID *uuid.UUID) (*TeamMember, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM team_members
		WHERE LOWER(first_name) = LOWER($1)
		  AND LOWER(last_name) = LOWER($2)
		  AND ($3::uuid IS NULL OR id <> $3)
		LIMIT 1`

	return scanMember(r.pool.QueryRow(ctx, query, firstName, lastName, excludeID))
}

// List retrieves all team members ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]TeamMember, error) {
	query := `SELECT ` + selectColumns + ` FROM team_members ORDER BY created_at ASC`
	return r.query(ctx, query)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]TeamMember, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning team member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team member rows: %w", err)
	}

	if members == nil {
		members = []TeamMember{}
	}

	return members, nil
}

func scanMember(row pgx.Row) (*TeamMember, error) {
	var m TeamMember
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamMemberNotFound
		}
		return nil, fmt.Errorf("scanning team member row: %w", err)
	}
	return &m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
