package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pvboard/pvboard/internal/media"
	"github.com/pvboard/pvboard/internal/teammember"
)

// ErrInvalidTeamMembersFormat is returned when team members arrive as a
// string that is not a JSON array of ids.
var ErrInvalidTeamMembersFormat = errors.New("invalid teamMembers format, must be a valid JSON array")

// ErrLogoUploadFailed is returned when the company logo could not be stored.
// It wraps media.ErrUploadFailed and the cause.
var ErrLogoUploadFailed = errors.New("error uploading company logo")

// ErrStartDateInPast is returned when a new project starts before today.
var ErrStartDateInPast = errors.New("start date cannot be in the past")

// LogoUploader stores logo files and removes stored logos.
type LogoUploader interface {
	Upload(ctx context.Context, localPath, folder string) (media.Asset, error)
	Delete(ctx context.Context, assetID string)
}

// MemberLookup resolves team member ids.
type MemberLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*teammember.TeamMember, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]teammember.TeamMember, error)
}

// Config tunes the project Service.
type Config struct {
	// LogoFolder is the media folder company logos are uploaded into.
	LogoFolder string
	// CompensateOrphanedLogos deletes an uploaded logo when the project
	// that references it could not be stored.
	CompensateOrphanedLogos bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service implements the project workflows on top of the repositories and
// the media uploader.
type Service struct {
	repo     Repository
	members  MemberLookup
	uploader LogoUploader
	cfg      Config
}

// NewService creates a new project Service.
func NewService(repo Repository, members MemberLookup, uploader LogoUploader, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: repo, members: members, uploader: uploader, cfg: cfg}
}

// CreateInput is a field-validated creation request. TeamMembersRaw, when
// set, carries the ids as a JSON-encoded array (multipart submissions) and
// takes precedence over TeamMembers. LogoPath names a request-owned temp
// file; the Service removes it on every path.
type CreateInput struct {
	ClientCode           string
	CompanyName          string
	ProjectName          string
	CompanyLogoURL       *string
	TypeOfProject        string
	PVProjectManager     string
	StartDate            time.Time
	EndDate              time.Time
	AllottedBillingHours float64
	ActualHoursSpent     float64
	Status               string
	Department           string
	TeamMembers          []string
	TeamMembersRaw       *string
	LogoPath             string
}

// Create runs the creation workflow: team member decoding, client code
// pre-check, member resolution, logo upload, insert, and re-read. The temp
// logo file never outlives the call. An uploaded logo is deleted again when
// the insert fails and compensation is enabled.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Project, error) {
	logoPending := in.LogoPath != ""
	defer func() {
		if logoPending {
			media.RemoveTemp(in.LogoPath)
		}
	}()

	if in.StartDate.Before(startOfDay(s.cfg.Now())) {
		return nil, ErrStartDateInPast
	}

	rawIDs, err := decodeTeamMembers(in)
	if err != nil {
		return nil, err
	}

	clientCode := strings.TrimSpace(in.ClientCode)
	_, err = s.repo.GetByClientCode(ctx, clientCode)
	switch {
	case err == nil:
		return nil, ErrDuplicateClientCode
	case !errors.Is(err, ErrProjectNotFound):
		return nil, fmt.Errorf("checking client code: %w", err)
	}

	memberIDs, err := s.resolveMembers(ctx, rawIDs)
	if err != nil {
		return nil, err
	}

	p := &Project{
		ClientCode:           clientCode,
		CompanyName:          strings.TrimSpace(in.CompanyName),
		ProjectName:          strings.TrimSpace(in.ProjectName),
		CompanyLogoURL:       in.CompanyLogoURL,
		TypeOfProject:        in.TypeOfProject,
		PVProjectManager:     strings.TrimSpace(in.PVProjectManager),
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		AllottedBillingHours: in.AllottedBillingHours,
		ActualHoursSpent:     in.ActualHoursSpent,
		Status:               in.Status,
		Department:           in.Department,
		TeamMemberIDs:        memberIDs,
	}

	if logoPending {
		logoPending = false
		asset, err := s.uploader.Upload(ctx, in.LogoPath, s.cfg.LogoFolder)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLogoUploadFailed, err)
		}
		p.CompanyLogoURL = &asset.URL
		p.CompanyLogoAssetID = &asset.AssetID
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if p.CompanyLogoAssetID != nil && s.cfg.CompensateOrphanedLogos {
			slog.Warn("deleting logo of project that failed to persist",
				"clientCode", p.ClientCode, "assetId", *p.CompanyLogoAssetID)
			s.uploader.Delete(context.WithoutCancel(ctx), *p.CompanyLogoAssetID)
		}
		return nil, err
	}

	created, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading created project: %w", err)
	}
	return created, nil
}

// List returns projects matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	return s.repo.List(ctx, filter)
}

// Get returns a project with its members resolved.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes a project. Its hosted logo is deleted first, best effort;
// a failed logo deletion never blocks the row deletion.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if p.CompanyLogoAssetID != nil {
		s.uploader.Delete(ctx, *p.CompanyLogoAssetID)
	}

	return s.repo.Delete(ctx, id)
}

// AddMember attaches an existing team member to a project and returns the
// updated project.
func (s *Service) AddMember(ctx context.Context, projectID, memberID uuid.UUID) (*Project, error) {
	if _, err := s.repo.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		if errors.Is(err, teammember.ErrTeamMemberNotFound) {
			return nil, ErrInvalidTeamMemberReference
		}
		return nil, fmt.Errorf("resolving team member: %w", err)
	}

	if err := s.repo.AddMember(ctx, projectID, memberID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, projectID)
}

// RemoveMember detaches a team member from a project and returns the
// updated project.
func (s *Service) RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) (*Project, error) {
	if err := s.repo.RemoveMember(ctx, projectID, memberID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, projectID)
}

// resolveMembers parses the ids and confirms each names a distinct stored
// member. Unparsable and repeated ids count as invalid references.
func (s *Service) resolveMembers(ctx context.Context, rawIDs []string) ([]uuid.UUID, error) {
	if len(rawIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	ids := make([]uuid.UUID, 0, len(rawIDs))
	seen := make(map[uuid.UUID]bool, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil || seen[id] {
			return nil, ErrInvalidTeamMemberReference
		}
		seen[id] = true
		ids = append(ids, id)
	}

	found, err := s.members.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving team members: %w", err)
	}
	if len(found) != len(ids) {
		return nil, ErrInvalidTeamMemberReference
	}
	return ids, nil
}

func decodeTeamMembers(in CreateInput) ([]string, error) {
	if in.TeamMembersRaw == nil {
		return in.TeamMembers, nil
	}

	raw := strings.TrimSpace(*in.TeamMembersRaw)
	if raw == "" {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, ErrInvalidTeamMembersFormat
	}
	return ids, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
