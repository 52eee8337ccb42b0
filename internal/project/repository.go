package project

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrProjectNotFound is returned when a project record is not found.
var ErrProjectNotFound = errors.New("project not found")

// ErrDuplicateClientCode is returned when a project with the same client code already exists.
var ErrDuplicateClientCode = errors.New("project with this client code already exists")

// ErrInvalidDateRange is returned when a project's end date is not after its start date.
var ErrInvalidDateRange = errors.New("end date must be after start date")

// ErrInvalidTeamMemberReference is returned when a referenced team member
// does not exist.
var ErrInvalidTeamMemberReference = errors.New("one or more team members are invalid or inactive")

// ErrInvalidProject is returned when a project fails a stored-field rule
// other than the date range.
var ErrInvalidProject = errors.New("invalid project")

// Repository provides operations on stored projects.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Project, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	GetByClientCode(ctx context.Context, clientCode string) (*Project, error)
	Create(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, projectID, memberID uuid.UUID) error
	RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) error
}
