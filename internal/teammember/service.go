package teammember

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyBatch is returned when a batch import carries no candidates.
var ErrEmptyBatch = errors.New("members array is required and cannot be empty")

// BatchError reports every per-item problem found in a rejected batch.
// Messages are labelled with the 1-based position of the offending item.
type BatchError struct {
	Messages []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch rejected: %s", strings.Join(e.Messages, "; "))
}

// Service implements team member creation on top of a Repository.
type Service struct {
	repo Repository
}

// NewService creates a new team member Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every team member in creation order.
func (s *Service) List(ctx context.Context) ([]TeamMember, error) {
	return s.repo.List(ctx)
}

// Get returns a single team member.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TeamMember, error) {
	return s.repo.GetByID(ctx, id)
}

// Create trims the name pair and stores a new member. A case-insensitive
// match on an existing member yields ErrDuplicateMember, whether caught by
// the pre-check or by the storage constraint.
func (s *Service) Create(ctx context.Context, firstName, lastName string) (*TeamMember, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	_, err := s.repo.FindByName(ctx, firstName, lastName, nil)
	switch {
	case err == nil:
		return nil, ErrDuplicateMember
	case !errors.Is(err, ErrTeamMemberNotFound):
		return nil, fmt.Errorf("checking for existing member: %w", err)
	}

	m := &TeamMember{FirstName: firstName, LastName: lastName}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateBatch validates every candidate and, only if all pass, stores them
// in a single atomic call. Validation errors are collected across the whole
// batch and returned together as a *BatchError.
func (s *Service) CreateBatch(ctx context.Context, candidates []Candidate) ([]TeamMember, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyBatch
	}

	var problems []string
	accepted := make([]TeamMember, 0, len(candidates))

	for i, c := range candidates {
		label := fmt.Sprintf("Member %d", i+1)
		first := strings.TrimSpace(c.FirstName)
		last := strings.TrimSpace(c.LastName)

		if msg := nameProblem("First name", first); msg != "" {
			problems = append(problems, label+": "+msg)
			continue
		}
		if msg := nameProblem("Last name", last); msg != "" {
			problems = append(problems, label+": "+msg)
			continue
		}

		if containsName(accepted, first, last) {
			problems = append(problems, label+": Duplicate name in request")
			continue
		}

		_, err := s.repo.FindByName(ctx, first, last, nil)
		if err == nil {
			problems = append(problems, fmt.Sprintf("%s: %s %s already exists", label, first, last))
			continue
		}
		if !errors.Is(err, ErrTeamMemberNotFound) {
			return nil, fmt.Errorf("checking member %d: %w", i+1, err)
		}

		accepted = append(accepted, TeamMember{FirstName: first, LastName: last})
	}

	if len(problems) > 0 {
		return nil, &BatchError{Messages: problems}
	}

	return s.repo.CreateMany(ctx, accepted)
}

func containsName(members []TeamMember, firstName, lastName string) bool {
	for i := range members {
		if members[i].SameName(firstName, lastName) {
			return true
		}
	}
	return false
}
