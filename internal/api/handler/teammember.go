package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pvboard/pvboard/internal/api/middleware"
	"github.com/pvboard/pvboard/internal/api/response"
	"github.com/pvboard/pvboard/internal/api/validation"
	"github.com/pvboard/pvboard/internal/teammember"
)

// TeamMemberService is the subset of teammember.Service used by the handler.
type TeamMemberService interface {
	List(ctx context.Context) ([]teammember.TeamMember, error)
	Get(ctx context.Context, id uuid.UUID) (*teammember.TeamMember, error)
	Create(ctx context.Context, firstName, lastName string) (*teammember.TeamMember, error)
	CreateBatch(ctx context.Context, candidates []teammember.Candidate) ([]teammember.TeamMember, error)
}

type createTeamMemberRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type batchTeamMembersRequest struct {
	Members []createTeamMemberRequest `json:"members"`
}

type teamMemberResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toTeamMemberResponse(m *teammember.TeamMember) teamMemberResponse {
	return teamMemberResponse{
		ID:        m.ID.String(),
		FirstName: m.FirstName,
		LastName:  m.LastName,
		FullName:  m.FullName(),
		CreatedAt: formatTime(m.CreatedAt),
		UpdatedAt: formatTime(m.UpdatedAt),
	}
}

func toTeamMemberResponses(members []teammember.TeamMember) []teamMemberResponse {
	items := make([]teamMemberResponse, 0, len(members))
	for i := range members {
		items = append(items, toTeamMemberResponse(&members[i]))
	}
	return items
}

// TeamMemberHandler handles team member endpoints.
type TeamMemberHandler struct {
	svc TeamMemberService
}

// NewTeamMemberHandler creates a new TeamMemberHandler.
func NewTeamMemberHandler(svc TeamMemberService) *TeamMemberHandler {
	return &TeamMemberHandler{svc: svc}
}

// Create handles POST /team-members.
func (h *TeamMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var req createTeamMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateCreateTeamMemberRequest(validation.CreateTeamMemberRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	m, err := h.svc.Create(r.Context(), req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, teammember.ErrDuplicateMember) {
			response.Err(w, http.StatusConflict, "DUPLICATE_MEMBER", "Team member with this name already exists", requestID)
			return
		}
		slog.Error("failed to create team member", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create team member", requestID)
		return
	}

	response.SuccessMessage(w, http.StatusCreated, toTeamMemberResponse(m), "Team member created successfully", requestID)
}

// CreateBatch handles POST /team-members/batch. Either every member is
// created or none is.
func (h *TeamMemberHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var req batchTeamMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	candidates := make([]teammember.Candidate, 0, len(req.Members))
	for _, m := range req.Members {
		candidates = append(candidates, teammember.Candidate{FirstName: m.FirstName, LastName: m.LastName})
	}

	created, err := h.svc.CreateBatch(r.Context(), candidates)
	if err != nil {
		var batchErr *teammember.BatchError
		switch {
		case errors.Is(err, teammember.ErrEmptyBatch):
			response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "Members array is required and cannot be empty", requestID)
		case errors.As(err, &batchErr):
			response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation errors", batchErr.Messages, requestID)
		case errors.Is(err, teammember.ErrDuplicateMember):
			response.Err(w, http.StatusConflict, "DUPLICATE_MEMBER", "One or more team members already exist", requestID)
		default:
			slog.Error("failed to create team members", "error", err, "count", len(candidates))
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create team members", requestID)
		}
		return
	}

	message := fmt.Sprintf("%d team member(s) created successfully", len(created))
	response.SuccessMessage(w, http.StatusCreated, toTeamMemberResponses(created), message, requestID)
}

// List handles GET /team-members.
func (h *TeamMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	members, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("failed to list team members", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list team members", requestID)
		return
	}

	response.SuccessList(w, http.StatusOK, toTeamMemberResponses(members), len(members), requestID)
}

// GetByID handles GET /team-members/{id}.
func (h *TeamMemberHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := pathUUID(w, r, "id", requestID)
	if !ok {
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, teammember.ErrTeamMemberNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Team member not found", requestID)
			return
		}
		slog.Error("failed to get team member", "error", err, "id", id)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get team member", requestID)
		return
	}

	response.Success(w, http.StatusOK, toTeamMemberResponse(m), requestID)
}
