package project

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Project types.
const (
	TypeBasedOnClient = "Based on client"
	TypeInternal      = "Internal project"
	TypeResearch      = "Research & Development"
	TypeMaintenance   = "Maintenance"
)

// Project statuses.
const (
	StatusActive    = "Active"
	StatusOnHold    = "On Hold"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

// Allowed values for the enumerated project fields.
var (
	ProjectTypes = []string{TypeBasedOnClient, TypeInternal, TypeResearch, TypeMaintenance}
	Statuses     = []string{StatusActive, StatusOnHold, StatusCompleted, StatusCancelled}
	Departments  = []string{"IT", "Marketing", "Sales", "HR", "Finance", "Operations"}
)

// Billing hour bounds.
const (
	MinBillingHours = 0.5
	MaxBillingHours = 10000
)

// MemberSummary is the resolved view of a team member attached to a project.
type MemberSummary struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	FullName  string
}

// Project represents a row in the projects table together with its
// membership relation.
type Project struct {
	ID                   uuid.UUID
	ClientCode           string
	CompanyName          string
	ProjectName          string
	CompanyLogoURL       *string
	CompanyLogoAssetID   *string
	TypeOfProject        string
	PVProjectManager     string
	StartDate            time.Time
	EndDate              time.Time
	AllottedBillingHours float64
	ActualHoursSpent     float64
	Status               string
	Department           string
	TeamMemberIDs        []uuid.UUID
	Members              []MemberSummary
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DurationInDays returns the number of days the project spans, rounded up.
func (p *Project) DurationInDays() int {
	return DurationInDays(p.StartDate, p.EndDate)
}

// HoursUtilization returns the share of allotted hours already spent, as a
// rounded percentage.
func (p *Project) HoursUtilization() int {
	return HoursUtilization(p.ActualHoursSpent, p.AllottedBillingHours)
}

// DurationInDays returns ceil((end - start) / 24h).
func DurationInDays(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours() / 24))
}

// HoursUtilization returns round(100 * actual / allotted), or 0 when nothing
// was allotted.
func HoursUtilization(actual, allotted float64) int {
	if allotted <= 0 {
		return 0
	}
	return int(math.Round(actual / allotted * 100))
}

// ApplyDefaults fills the optional enumerated fields.
func (p *Project) ApplyDefaults() {
	if p.TypeOfProject == "" {
		p.TypeOfProject = TypeBasedOnClient
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
}

// CheckInvariants re-checks the rules every stored project must satisfy.
// Repositories call it before writing.
func CheckInvariants(p *Project) error {
	if !p.StartDate.Before(p.EndDate) {
		return ErrInvalidDateRange
	}
	if p.AllottedBillingHours < MinBillingHours || p.AllottedBillingHours > MaxBillingHours {
		return fmt.Errorf("%w: allotted billing hours %v out of range", ErrInvalidProject, p.AllottedBillingHours)
	}
	if p.ActualHoursSpent < 0 {
		return fmt.Errorf("%w: actual hours spent cannot be negative", ErrInvalidProject)
	}
	if !slices.Contains(ProjectTypes, p.TypeOfProject) {
		return fmt.Errorf("%w: unknown type of project %q", ErrInvalidProject, p.TypeOfProject)
	}
	if !slices.Contains(Statuses, p.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProject, p.Status)
	}
	if !slices.Contains(Departments, p.Department) {
		return fmt.Errorf("%w: unknown department %q", ErrInvalidProject, p.Department)
	}
	return nil
}

// ListFilter holds optional filters for listing projects. StartFrom and
// EndTo select projects whose date span overlaps the given window.
type ListFilter struct {
	Status     *string
	Department *string
	Search     *string // case-insensitive substring of client code, company or project name
	StartFrom  *time.Time
	EndTo      *time.Time
}

func summarize(id uuid.UUID, first, last string) MemberSummary {
	return MemberSummary{ID: id, FirstName: first, LastName: last, FullName: first + " " + last}
}
