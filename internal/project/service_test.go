package project_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvboard/pvboard/internal/media"
	"github.com/pvboard/pvboard/internal/project"
	"github.com/pvboard/pvboard/internal/teammember"
)

// --- mocks ---

type mockRepo struct {
	projects map[uuid.UUID]*project.Project

	getByClientCodeFn func(ctx context.Context, code string) (*project.Project, error)
	createFn          func(ctx context.Context, p *project.Project) error
	createCalls       int
	deleteCalls       int
}

func newMockRepo() *mockRepo {
	return &mockRepo{projects: map[uuid.UUID]*project.Project{}}
}

func (m *mockRepo) List(context.Context, project.ListFilter) ([]project.Project, error) {
	out := []project.Project{}
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*project.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByClientCode(ctx context.Context, code string) (*project.Project, error) {
	if m.getByClientCodeFn != nil {
		return m.getByClientCodeFn(ctx, code)
	}
	for _, p := range m.projects {
		if p.ClientCode == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, project.ErrProjectNotFound
}

func (m *mockRepo) Create(ctx context.Context, p *project.Project) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	p.ApplyDefaults()
	if err := project.CheckInvariants(p); err != nil {
		return err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.deleteCalls++
	if _, ok := m.projects[id]; !ok {
		return project.ErrProjectNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *mockRepo) AddMember(_ context.Context, projectID, memberID uuid.UUID) error {
	p, ok := m.projects[projectID]
	if !ok {
		return project.ErrProjectNotFound
	}
	p.TeamMemberIDs = append(p.TeamMemberIDs, memberID)
	return nil
}

func (m *mockRepo) RemoveMember(_ context.Context, projectID, memberID uuid.UUID) error {
	p, ok := m.projects[projectID]
	if !ok {
		return project.ErrProjectNotFound
	}
	kept := p.TeamMemberIDs[:0]
	for _, id := range p.TeamMemberIDs {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	p.TeamMemberIDs = kept
	return nil
}

type mockMembers struct {
	members map[uuid.UUID]teammember.TeamMember
}

func (m *mockMembers) add(first, last string) uuid.UUID {
	id := uuid.New()
	m.members[id] = teammember.TeamMember{ID: id, FirstName: first, LastName: last}
	return id
}

func (m *mockMembers) GetByID(_ context.Context, id uuid.UUID) (*teammember.TeamMember, error) {
	tm, ok := m.members[id]
	if !ok {
		return nil, teammember.ErrTeamMemberNotFound
	}
	return &tm, nil
}

func (m *mockMembers) GetByIDs(_ context.Context, ids []uuid.UUID) ([]teammember.TeamMember, error) {
	out := []teammember.TeamMember{}
	for _, id := range ids {
		if tm, ok := m.members[id]; ok {
			out = append(out, tm)
		}
	}
	return out, nil
}

// fakeStore is a media.Store recording calls; the real media.Uploader runs
// on top of it so temp file handling is exercised end to end.
type fakeStore struct {
	uploadErr  error
	uploaded   []string
	destroyed  []string
	uploadSeen bool
}

func (f *fakeStore) Upload(_ context.Context, path string, opts media.UploadOptions) (media.Asset, error) {
	f.uploadSeen = true
	if f.uploadErr != nil {
		return media.Asset{}, f.uploadErr
	}
	id := opts.Folder + "/" + filepath.Base(path)
	f.uploaded = append(f.uploaded, id)
	return media.Asset{URL: "https://cdn.example.com/" + id, AssetID: id}, nil
}

func (f *fakeStore) Destroy(_ context.Context, assetID string) error {
	f.destroyed = append(f.destroyed, assetID)
	return nil
}

type fixture struct {
	repo    *mockRepo
	members *mockMembers
	store   *fakeStore
	svc     *project.Service
}

var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func newFixture(compensate bool) *fixture {
	f := &fixture{
		repo:    newMockRepo(),
		members: &mockMembers{members: map[uuid.UUID]teammember.TeamMember{}},
		store:   &fakeStore{},
	}
	f.svc = project.NewService(f.repo, f.members, media.NewUploader(f.store, time.Second), project.Config{
		LogoFolder:              "company-logos",
		CompensateOrphanedLogos: compensate,
		Now:                     func() time.Time { return fixedNow },
	})
	return f
}

func validInput() project.CreateInput {
	return project.CreateInput{
		ClientCode:           "ACME-001",
		CompanyName:          "Acme Corp",
		ProjectName:          "Website Redesign",
		PVProjectManager:     "Jane Smith",
		StartDate:            date(2025, 7, 1),
		EndDate:              date(2025, 12, 31),
		AllottedBillingHours: 500,
		Department:           "IT",
	}
}

func tempLogo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logo-1700000000-123.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o600))
	return path
}

func strPtr(s string) *string { return &s }

// --- Create ---

func TestCreate_NoLogo(t *testing.T) {
	f := newFixture(true)
	alice := f.members.add("Alice", "Walker")
	in := validInput()
	in.TeamMembers = []string{alice.String()}

	p, err := f.svc.Create(context.Background(), in)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Nil(t, p.CompanyLogoURL)
	assert.Nil(t, p.CompanyLogoAssetID)
	assert.Equal(t, project.TypeBasedOnClient, p.TypeOfProject)
	assert.Equal(t, project.StatusActive, p.Status)
	assert.Equal(t, []uuid.UUID{alice}, p.TeamMemberIDs)
	assert.False(t, f.store.uploadSeen)
}

func TestCreate_TrimsFields(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.ClientCode = "  ACME-001 "
	in.CompanyName = " Acme Corp "

	p, err := f.svc.Create(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "ACME-001", p.ClientCode)
	assert.Equal(t, "Acme Corp", p.CompanyName)
}

func TestCreate_WithLogo(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.LogoPath = tempLogo(t)

	p, err := f.svc.Create(context.Background(), in)

	require.NoError(t, err)
	require.NotNil(t, p.CompanyLogoURL)
	require.NotNil(t, p.CompanyLogoAssetID)
	assert.Equal(t, "https://cdn.example.com/company-logos/logo-1700000000-123.png", *p.CompanyLogoURL)
	assert.Equal(t, "company-logos/logo-1700000000-123.png", *p.CompanyLogoAssetID)
	assert.NoFileExists(t, in.LogoPath)
}

func TestCreate_StartDateToday(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.StartDate = date(2025, 6, 15)

	_, err := f.svc.Create(context.Background(), in)

	assert.NoError(t, err)
}

func TestCreate_StartDateInPast(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.StartDate = date(2025, 6, 14)
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrStartDateInPast)
	assert.NoFileExists(t, in.LogoPath)
	assert.Zero(t, f.repo.createCalls)
}

func TestCreate_DuplicateClientCode(t *testing.T) {
	f := newFixture(true)
	_, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.LogoPath = tempLogo(t)
	_, err = f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrDuplicateClientCode)
	assert.Equal(t, 1, f.repo.createCalls, "no insert after the pre-check hits")
	assert.False(t, f.store.uploadSeen, "no upload after the pre-check hits")
	assert.NoFileExists(t, in.LogoPath)
	assert.Len(t, f.repo.projects, 1)
}

func TestCreate_ClientCodeLookupFailure(t *testing.T) {
	f := newFixture(true)
	f.repo.getByClientCodeFn = func(context.Context, string) (*project.Project, error) {
		return nil, errors.New("connection refused")
	}
	in := validInput()
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, in.LogoPath)
}

func TestCreate_TeamMembersRaw(t *testing.T) {
	f := newFixture(true)
	a := f.members.add("Alice", "Walker")
	b := f.members.add("Bob", "Stone")
	in := validInput()
	in.TeamMembersRaw = strPtr(`["` + a.String() + `","` + b.String() + `"]`)

	p, err := f.svc.Create(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, p.TeamMemberIDs)
}

func TestCreate_TeamMembersRawEmptyString(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.TeamMembersRaw = strPtr("  ")

	p, err := f.svc.Create(context.Background(), in)

	require.NoError(t, err)
	assert.Empty(t, p.TeamMemberIDs)
}

func TestCreate_InvalidTeamMembersFormat(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.TeamMembersRaw = strPtr("not-json")
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrInvalidTeamMembersFormat)
	assert.NoFileExists(t, in.LogoPath)
	assert.Zero(t, f.repo.createCalls)
}

func TestCreate_InvalidTeamMemberReference(t *testing.T) {
	known := uuid.New()

	tests := []struct {
		name string
		ids  func(f *fixture) []string
	}{
		{"unknown object id", func(*fixture) []string { return []string{"507f1f77bcf86cd799439011"} }},
		{"unknown uuid", func(*fixture) []string { return []string{uuid.NewString()} }},
		{"one of two missing", func(f *fixture) []string {
			return []string{f.members.add("Alice", "Walker").String(), known.String()}
		}},
		{"repeated id", func(f *fixture) []string {
			id := f.members.add("Alice", "Walker").String()
			return []string{id, id}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true)
			in := validInput()
			in.TeamMembers = tt.ids(f)
			in.LogoPath = tempLogo(t)

			_, err := f.svc.Create(context.Background(), in)

			assert.ErrorIs(t, err, project.ErrInvalidTeamMemberReference)
			assert.NoFileExists(t, in.LogoPath)
			assert.False(t, f.store.uploadSeen)
			assert.Zero(t, f.repo.createCalls)
		})
	}
}

func TestCreate_UploadFailure(t *testing.T) {
	f := newFixture(true)
	f.store.uploadErr = errors.New("cloud unavailable")
	in := validInput()
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrLogoUploadFailed)
	assert.ErrorIs(t, err, media.ErrUploadFailed)
	assert.Contains(t, err.Error(), "cloud unavailable")
	assert.NoFileExists(t, in.LogoPath)
	assert.Zero(t, f.repo.createCalls)
}

func TestCreate_PersistFailureCompensatesLogo(t *testing.T) {
	f := newFixture(true)
	f.repo.createFn = func(context.Context, *project.Project) error {
		return project.ErrDuplicateClientCode
	}
	in := validInput()
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrDuplicateClientCode)
	assert.Equal(t, f.store.uploaded, f.store.destroyed)
	assert.Len(t, f.store.destroyed, 1)
	assert.NoFileExists(t, in.LogoPath)
}

func TestCreate_PersistFailureWithoutCompensation(t *testing.T) {
	f := newFixture(false)
	f.repo.createFn = func(context.Context, *project.Project) error {
		return errors.New("disk full")
	}
	in := validInput()
	in.LogoPath = tempLogo(t)

	_, err := f.svc.Create(context.Background(), in)

	require.Error(t, err)
	assert.Len(t, f.store.uploaded, 1)
	assert.Empty(t, f.store.destroyed)
}

func TestCreate_PersistFailureWithoutLogoDestroysNothing(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.EndDate = in.StartDate

	_, err := f.svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, project.ErrInvalidDateRange)
	assert.Empty(t, f.store.destroyed)
}

// --- Delete ---

func TestDelete_RemovesLogo(t *testing.T) {
	f := newFixture(true)
	in := validInput()
	in.LogoPath = tempLogo(t)
	p, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), p.ID))

	assert.Equal(t, []string{*p.CompanyLogoAssetID}, f.store.destroyed)
	assert.Empty(t, f.repo.projects)
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(true)

	err := f.svc.Delete(context.Background(), uuid.New())

	assert.ErrorIs(t, err, project.ErrProjectNotFound)
	assert.Zero(t, f.repo.deleteCalls)
}

// --- Membership ---

func TestAddMember(t *testing.T) {
	f := newFixture(true)
	p, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	alice := f.members.add("Alice", "Walker")

	updated, err := f.svc.AddMember(context.Background(), p.ID, alice)

	require.NoError(t, err)
	assert.Contains(t, updated.TeamMemberIDs, alice)
}

func TestAddMember_UnknownMember(t *testing.T) {
	f := newFixture(true)
	p, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = f.svc.AddMember(context.Background(), p.ID, uuid.New())

	assert.ErrorIs(t, err, project.ErrInvalidTeamMemberReference)
}

func TestAddMember_UnknownProject(t *testing.T) {
	f := newFixture(true)
	alice := f.members.add("Alice", "Walker")

	_, err := f.svc.AddMember(context.Background(), uuid.New(), alice)

	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(true)
	alice := f.members.add("Alice", "Walker")
	in := validInput()
	in.TeamMembers = []string{alice.String()}
	p, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	updated, err := f.svc.RemoveMember(context.Background(), p.ID, alice)

	require.NoError(t, err)
	assert.Empty(t, updated.TeamMemberIDs)
}
