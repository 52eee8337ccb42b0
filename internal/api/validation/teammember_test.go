package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvboard/pvboard/internal/api/validation"
)

func TestValidateCreateTeamMember_Valid(t *testing.T) {
	tests := []validation.CreateTeamMemberRequest{
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Mary Ann", LastName: "Evans"},
		{FirstName: "  Grace ", LastName: " Hopper  "},
	}

	for _, req := range tests {
		t.Run(req.FirstName, func(t *testing.T) {
			assert.Empty(t, validation.ValidateCreateTeamMemberRequest(req))
		})
	}
}

func TestValidateCreateTeamMember_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		req     validation.CreateTeamMemberRequest
		field   string
		message string
	}{
		{"missing first", validation.CreateTeamMemberRequest{LastName: "Doe"}, "firstName", "firstName is required"},
		{"blank last", validation.CreateTeamMemberRequest{FirstName: "Jo", LastName: "   "}, "lastName", "lastName is required"},
		{"digits", validation.CreateTeamMemberRequest{FirstName: "R2D2", LastName: "Droid"}, "firstName", "firstName can only contain letters and spaces"},
		{"hyphen", validation.CreateTeamMemberRequest{FirstName: "Jo", LastName: "Smith-Jones"}, "lastName", "lastName can only contain letters and spaces"},
		{"too long", validation.CreateTeamMemberRequest{FirstName: strings.Repeat("a", 51), LastName: "Doe"}, "firstName", "firstName must be at most 50 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validation.ValidateCreateTeamMemberRequest(tt.req)

			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, tt.message, errs[0].Message)
		})
	}
}
