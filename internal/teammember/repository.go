package teammember

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTeamMemberNotFound is returned when a team member record is not found.
var ErrTeamMemberNotFound = errors.New("team member not found")

// ErrDuplicateMember is returned when a member with the same name pair
// (case-insensitive) already exists.
var ErrDuplicateMember = errors.New("team member with this name already exists")

// Repository provides operations on stored team members.
//
// Implementations enforce name uniqueness with a storage-level constraint;
// FindByName is only a fast-fail pre-check.
type Repository interface {
	Create(ctx context.Context, m *TeamMember) error
	CreateMany(ctx context.Context, members []TeamMember) ([]TeamMember, error)
	GetByID(ctx context.Context, id uuid.UUID) (*TeamMember, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]TeamMember, error)
	FindByName(ctx context.Context, firstName, lastName string, excludeID *uuid.UUID) (*TeamMember, error)
	List(ctx context.Context) ([]TeamMember, error)
}
