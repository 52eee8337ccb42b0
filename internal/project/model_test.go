package project_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pvboard/pvboard/internal/project"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDurationInDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"ten whole days", date(2025, 1, 1), date(2025, 1, 11), 10},
		{"partial day rounds up", date(2025, 1, 1), date(2025, 1, 2).Add(time.Hour), 2},
		{"single day", date(2025, 3, 1), date(2025, 3, 2), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, project.DurationInDays(tt.start, tt.end))
		})
	}
}

func TestHoursUtilization(t *testing.T) {
	assert.Equal(t, 0, project.HoursUtilization(10, 0))
	assert.Equal(t, 0, project.HoursUtilization(0, 100))
	assert.Equal(t, 50, project.HoursUtilization(50, 100))
	assert.Equal(t, 33, project.HoursUtilization(1, 3))
	assert.Equal(t, 67, project.HoursUtilization(2, 3))
	assert.Equal(t, 150, project.HoursUtilization(15, 10))
}

func validProject() *project.Project {
	p := &project.Project{
		ClientCode:           "ACME-001",
		CompanyName:          "Acme",
		ProjectName:          "Portal",
		PVProjectManager:     "Jane Smith",
		StartDate:            date(2030, 1, 1),
		EndDate:              date(2030, 6, 1),
		AllottedBillingHours: 120,
		Department:           "IT",
	}
	p.ApplyDefaults()
	return p
}

func TestApplyDefaults(t *testing.T) {
	p := &project.Project{}
	p.ApplyDefaults()

	assert.Equal(t, project.TypeBasedOnClient, p.TypeOfProject)
	assert.Equal(t, project.StatusActive, p.Status)
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *project.Project)
		wantErr error
	}{
		{"valid", func(*project.Project) {}, nil},
		{"end equals start", func(p *project.Project) { p.EndDate = p.StartDate }, project.ErrInvalidDateRange},
		{"end before start", func(p *project.Project) { p.EndDate = p.StartDate.AddDate(0, 0, -1) }, project.ErrInvalidDateRange},
		{"hours below minimum", func(p *project.Project) { p.AllottedBillingHours = 0.25 }, project.ErrInvalidProject},
		{"hours above maximum", func(p *project.Project) { p.AllottedBillingHours = 10000.5 }, project.ErrInvalidProject},
		{"negative actual hours", func(p *project.Project) { p.ActualHoursSpent = -1 }, project.ErrInvalidProject},
		{"unknown type", func(p *project.Project) { p.TypeOfProject = "Side quest" }, project.ErrInvalidProject},
		{"unknown status", func(p *project.Project) { p.Status = "Paused" }, project.ErrInvalidProject},
		{"unknown department", func(p *project.Project) { p.Department = "Legal" }, project.ErrInvalidProject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProject()
			tt.mutate(p)

			err := project.CheckInvariants(p)

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestProjectDerivedFields(t *testing.T) {
	p := validProject()
	p.StartDate = date(2025, 1, 1)
	p.EndDate = date(2025, 1, 11)
	p.AllottedBillingHours = 200
	p.ActualHoursSpent = 50

	assert.Equal(t, 10, p.DurationInDays())
	assert.Equal(t, 25, p.HoursUtilization())
}
