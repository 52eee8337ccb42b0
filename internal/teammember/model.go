package teammember

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength bounds each half of a member's name, in characters.
const MaxNameLength = 50

var nameRegex = regexp.MustCompile(`^[a-zA-Z\s]+$`)

// ValidName reports whether name holds only letters and spaces.
func ValidName(name string) bool {
	return nameRegex.MatchString(name)
}

// TeamMember represents a row in the team_members table.
type TeamMember struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins the first and last name with a single space.
func (m *TeamMember) FullName() string {
	return m.FirstName + " " + m.LastName
}

// SameName reports whether the member's name pair equals the given pair
// after lower-casing, the same comparison the storage index applies.
func (m *TeamMember) SameName(firstName, lastName string) bool {
	return strings.ToLower(m.FirstName) == strings.ToLower(firstName) &&
		strings.ToLower(m.LastName) == strings.ToLower(lastName)
}

// Candidate is an unvalidated name pair submitted for creation.
type Candidate struct {
	FirstName string
	LastName  string
}

// nameProblem returns the first rule a trimmed name breaks, or "" when it
// is acceptable. label names the field in the message.
func nameProblem(label, name string) string {
	switch {
	case name == "":
		return label + " is required"
	case utf8.RuneCountInString(name) > MaxNameLength:
		return fmt.Sprintf("%s must be at most %d characters", label, MaxNameLength)
	case !ValidName(name):
		return label + " can only contain letters and spaces"
	}
	return ""
}
