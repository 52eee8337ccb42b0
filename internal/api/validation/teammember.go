package validation

import "strings"

// CreateTeamMemberRequest mirrors the fields needed for create team member validation.
type CreateTeamMemberRequest struct {
	FirstName string `json:"firstName" validate:"required,max=50,personname"`
	LastName  string `json:"lastName" validate:"required,max=50,personname"`
}

// ValidateCreateTeamMemberRequest validates the trimmed name pair.
func ValidateCreateTeamMemberRequest(req CreateTeamMemberRequest) []FieldError {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	return check(req)
}
