package validation

import (
	"strings"
	"time"
)

// dateLayouts are the ISO 8601 forms accepted for project dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CreateProjectRequest mirrors the fields needed for create project
// validation. Dates stay raw so malformed values can be reported per field;
// numeric fields are pointers so absence is distinguishable from zero.
type CreateProjectRequest struct {
	ClientCode           string   `json:"clientCode" validate:"required,max=20"`
	CompanyName          string   `json:"companyName" validate:"required,max=100"`
	ProjectName          string   `json:"projectName" validate:"required,max=100"`
	CompanyLogoURL       string   `json:"companyLogoUrl" validate:"omitempty,weburl"`
	TypeOfProject        string   `json:"typeOfProject" validate:"omitempty,projecttype"`
	PVProjectManager     string   `json:"pvProjectManager" validate:"required,max=100"`
	StartDate            string   `json:"startDate" validate:"required"`
	EndDate              string   `json:"endDate" validate:"required"`
	AllottedBillingHours *float64 `json:"allottedBillingHours" validate:"required,gte=0.5,lte=10000"`
	ActualHoursSpent     *float64 `json:"actualHoursSpent" validate:"omitempty,gte=0"`
	Status               string   `json:"status" validate:"omitempty,projectstatus"`
	Department           string   `json:"department" validate:"required,department"`
}

// ValidateCreateProjectRequest validates the fields of a create project
// request, including date formats and ordering. Team member references are
// checked later against storage.
func ValidateCreateProjectRequest(req CreateProjectRequest) []FieldError {
	req.ClientCode = strings.TrimSpace(req.ClientCode)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	req.CompanyLogoURL = strings.TrimSpace(req.CompanyLogoURL)
	req.PVProjectManager = strings.TrimSpace(req.PVProjectManager)
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.EndDate = strings.TrimSpace(req.EndDate)

	errs := check(req)

	var start, end time.Time
	var startOK, endOK bool
	if req.StartDate != "" {
		if start, startOK = parse(req.StartDate); !startOK {
			errs = append(errs, FieldError{Field: "startDate", Message: "startDate must be a valid ISO 8601 date"})
		}
	}
	if req.EndDate != "" {
		if end, endOK = parse(req.EndDate); !endOK {
			errs = append(errs, FieldError{Field: "endDate", Message: "endDate must be a valid ISO 8601 date"})
		}
	}
	if startOK && endOK && !end.After(start) {
		errs = append(errs, FieldError{Field: "endDate", Message: "End date must be after start date"})
	}

	return errs
}

// ParseDate parses an ISO 8601 date or date-time. Values without a zone are
// taken as UTC.
func ParseDate(s string) (time.Time, bool) {
	return parse(strings.TrimSpace(s))
}

func parse(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
