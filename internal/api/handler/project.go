package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pvboard/pvboard/internal/api/middleware"
	"github.com/pvboard/pvboard/internal/api/response"
	"github.com/pvboard/pvboard/internal/api/validation"
	"github.com/pvboard/pvboard/internal/media"
	"github.com/pvboard/pvboard/internal/project"
)

// ProjectService is the subset of project.Service used by the handler.
type ProjectService interface {
	List(ctx context.Context, filter project.ListFilter) ([]project.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*project.Project, error)
	Create(ctx context.Context, in project.CreateInput) (*project.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, projectID, memberID uuid.UUID) (*project.Project, error)
	RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) (*project.Project, error)
}

type memberSummaryResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

type projectResponse struct {
	ID                   string                  `json:"id"`
	ClientCode           string                  `json:"clientCode"`
	CompanyName          string                  `json:"companyName"`
	ProjectName          string                  `json:"projectName"`
	CompanyLogoURL       *string                 `json:"companyLogoUrl"`
	TypeOfProject        string                  `json:"typeOfProject"`
	PVProjectManager     string                  `json:"pvProjectManager"`
	StartDate            string                  `json:"startDate"`
	EndDate              string                  `json:"endDate"`
	AllottedBillingHours float64                 `json:"allottedBillingHours"`
	ActualHoursSpent     float64                 `json:"actualHoursSpent"`
	Status               string                  `json:"status"`
	Department           string                  `json:"department"`
	TeamMembers          []memberSummaryResponse `json:"teamMembers"`
	DurationInDays       int                     `json:"durationInDays"`
	HoursUtilization     int                     `json:"hoursUtilization"`
	CreatedAt            string                  `json:"createdAt"`
	UpdatedAt            string                  `json:"updatedAt"`
}

func toProjectResponse(p *project.Project) projectResponse {
	members := make([]memberSummaryResponse, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, memberSummaryResponse{
			ID:        m.ID.String(),
			FirstName: m.FirstName,
			LastName:  m.LastName,
			FullName:  m.FullName,
		})
	}

	return projectResponse{
		ID:                   p.ID.String(),
		ClientCode:           p.ClientCode,
		CompanyName:          p.CompanyName,
		ProjectName:          p.ProjectName,
		CompanyLogoURL:       p.CompanyLogoURL,
		TypeOfProject:        p.TypeOfProject,
		PVProjectManager:     p.PVProjectManager,
		StartDate:            formatTime(p.StartDate),
		EndDate:              formatTime(p.EndDate),
		AllottedBillingHours: p.AllottedBillingHours,
		ActualHoursSpent:     p.ActualHoursSpent,
		Status:               p.Status,
		Department:           p.Department,
		TeamMembers:          members,
		DurationInDays:       p.DurationInDays(),
		HoursUtilization:     p.HoursUtilization(),
		CreatedAt:            formatTime(p.CreatedAt),
		UpdatedAt:            formatTime(p.UpdatedAt),
	}
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	svc          ProjectService
	tempDir      string
	maxLogoBytes int64
}

// NewProjectHandler creates a new ProjectHandler. Uploaded logos are spooled
// into tempDir and may be at most maxLogoBytes long.
func NewProjectHandler(svc ProjectService, tempDir string, maxLogoBytes int64) *ProjectHandler {
	return &ProjectHandler{
		svc:          svc,
		tempDir:      tempDir,
		maxLogoBytes: maxLogoBytes,
	}
}

// Create handles POST /projects. It accepts either a JSON body or a
// multipart form carrying an optional companyLogo file.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var (
		form *projectForm
		ferr *formError
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		form, ferr = h.readMultipart(w, r)
	} else {
		form, ferr = readJSONProject(w, r)
	}
	if ferr != nil {
		response.ErrWithDetails(w, ferr.status, ferr.code, ferr.message, ferr.details, requestID)
		return
	}

	in, fieldErrors := form.toInput()
	if len(fieldErrors) > 0 {
		media.RemoveTemp(form.logoPath)
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	p, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeCreateError(w, err, in.ClientCode, requestID)
		return
	}

	response.SuccessMessage(w, http.StatusCreated, toProjectResponse(p), "Project created successfully", requestID)
}

func (h *ProjectHandler) writeCreateError(w http.ResponseWriter, err error, clientCode, requestID string) {
	switch {
	case errors.Is(err, project.ErrStartDateInPast):
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed",
			[]validation.FieldError{{Field: "startDate", Message: "Start date cannot be in the past"}}, requestID)
	case errors.Is(err, project.ErrInvalidDateRange):
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed",
			[]validation.FieldError{{Field: "endDate", Message: "End date must be after start date"}}, requestID)
	case errors.Is(err, project.ErrInvalidProject):
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
	case errors.Is(err, project.ErrInvalidTeamMembersFormat):
		response.Err(w, http.StatusBadRequest, "INVALID_TEAM_MEMBERS_FORMAT", "Invalid teamMembers format. Must be a valid JSON array.", requestID)
	case errors.Is(err, project.ErrInvalidTeamMemberReference):
		response.Err(w, http.StatusBadRequest, "INVALID_TEAM_MEMBER_REFERENCE", "One or more team members are invalid or inactive", requestID)
	case errors.Is(err, project.ErrDuplicateClientCode):
		response.Err(w, http.StatusConflict, "DUPLICATE_CLIENT_CODE", "Project with this client code already exists", requestID)
	case errors.Is(err, project.ErrLogoUploadFailed):
		slog.Error("failed to upload company logo", "error", err, "clientCode", clientCode)
		response.ErrWithDetails(w, http.StatusInternalServerError, "UPLOAD_FAILED", "Error uploading company logo", uploadCause(err), requestID)
	default:
		slog.Error("failed to create project", "error", err, "clientCode", clientCode)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create project", requestID)
	}
}

// uploadCause strips the sentinel prefixes so only the store's message is
// shown to the client.
func uploadCause(err error) string {
	msg := err.Error()
	for _, prefix := range []string{project.ErrLogoUploadFailed.Error() + ": ", media.ErrUploadFailed.Error() + ": "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// List handles GET /projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	q := r.URL.Query()
	var filter project.ListFilter
	var fieldErrors []validation.FieldError

	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("department"); v != "" {
		filter.Department = &v
	}
	if v := strings.TrimSpace(q.Get("search")); v != "" {
		filter.Search = &v
	}
	for _, param := range []struct {
		name   string
		target **time.Time
	}{{"from", &filter.StartFrom}, {"to", &filter.EndTo}} {
		v := q.Get(param.name)
		if v == "" {
			continue
		}
		t, ok := validation.ParseDate(v)
		if !ok {
			fieldErrors = append(fieldErrors, validation.FieldError{Field: param.name, Message: param.name + " must be a valid ISO 8601 date"})
			continue
		}
		*param.target = &t
	}
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters", fieldErrors, requestID)
		return
	}

	projects, err := h.svc.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list projects", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list projects", requestID)
		return
	}

	items := make([]projectResponse, 0, len(projects))
	for i := range projects {
		items = append(items, toProjectResponse(&projects[i]))
	}

	response.SuccessList(w, http.StatusOK, items, len(items), requestID)
}

// GetByID handles GET /projects/{id}.
func (h *ProjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Project not found", requestID)
			return
		}
		slog.Error("failed to get project", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get project", requestID)
		return
	}

	response.Success(w, http.StatusOK, toProjectResponse(p), requestID)
}

// Delete handles DELETE /projects/{id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Project not found", requestID)
			return
		}
		slog.Error("failed to delete project", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete project", requestID)
		return
	}

	response.NoContent(w)
}

// AddMember handles POST /projects/{id}/team-members/{memberId}.
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, h.svc.AddMember, "Team member added to project")
}

// RemoveMember handles DELETE /projects/{id}/team-members/{memberId}.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.changeMembership(w, r, h.svc.RemoveMember, "Team member removed from project")
}

func (h *ProjectHandler) changeMembership(
	w http.ResponseWriter,
	r *http.Request,
	change func(ctx context.Context, projectID, memberID uuid.UUID) (*project.Project, error),
	message string,
) {
	requestID := middleware.GetRequestID(r.Context())

	projectID, ok := pathUUID(w, r, "id", requestID)
	if !ok {
		return
	}
	memberID, ok := pathUUID(w, r, "memberId", requestID)
	if !ok {
		return
	}

	p, err := change(r.Context(), projectID, memberID)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrProjectNotFound):
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Project not found", requestID)
		case errors.Is(err, project.ErrInvalidTeamMemberReference):
			response.Err(w, http.StatusBadRequest, "INVALID_TEAM_MEMBER_REFERENCE", "Team member is invalid or inactive", requestID)
		default:
			slog.Error("failed to update project members", "error", err, "id", projectID, "memberId", memberID)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update project members", requestID)
		}
		return
	}

	response.SuccessMessage(w, http.StatusOK, toProjectResponse(p), message, requestID)
}

// decodeJSON is shared by the JSON create path; it maps malformed bodies to
// INVALID_JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *formError {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var teamErr *teamMembersError
		if errors.As(err, &teamErr) {
			return &formError{
				status:  http.StatusBadRequest,
				code:    "INVALID_TEAM_MEMBERS_FORMAT",
				message: "Invalid teamMembers format. Must be a valid JSON array.",
			}
		}
		return &formError{status: http.StatusBadRequest, code: "INVALID_JSON", message: "Request body must be valid JSON"}
	}
	return nil
}
