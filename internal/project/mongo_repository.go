package project

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pvboard/pvboard/internal/database"
)

// projectDocument is the stored shape of a project. Ids are UUID strings so
// they are interchangeable with the Postgres backend.
type projectDocument struct {
	ID                   string    `bson:"_id"`
	ClientCode           string    `bson:"clientCode"`
	CompanyName          string    `bson:"companyName"`
	ProjectName          string    `bson:"projectName"`
	CompanyLogoURL       *string   `bson:"companyLogo,omitempty"`
	CompanyLogoAssetID   *string   `bson:"companyLogoPublicId,omitempty"`
	TypeOfProject        string    `bson:"typeOfProject"`
	PVProjectManager     string    `bson:"pvProjectManager"`
	StartDate            time.Time `bson:"startDate"`
	EndDate              time.Time `bson:"endDate"`
	AllottedBillingHours float64   `bson:"allottedBillingHours"`
	ActualHoursSpent     float64   `bson:"actualHoursSpent"`
	Status               string    `bson:"status"`
	Department           string    `bson:"department"`
	TeamMembers          []string  `bson:"teamMembers"`
	CreatedAt            time.Time `bson:"createdAt"`
	UpdatedAt            time.Time `bson:"updatedAt"`
}

type memberRef struct {
	ID        string `bson:"_id"`
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
}

func (d *projectDocument) toProject() (Project, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return Project{}, fmt.Errorf("parsing project id %q: %w", d.ID, err)
	}

	memberIDs := make([]uuid.UUID, 0, len(d.TeamMembers))
	for _, raw := range d.TeamMembers {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			return Project{}, fmt.Errorf("parsing member id %q of project %s: %w", raw, d.ID, err)
		}
		memberIDs = append(memberIDs, memberID)
	}

	return Project{
		ID:                   id,
		ClientCode:           d.ClientCode,
		CompanyName:          d.CompanyName,
		ProjectName:          d.ProjectName,
		CompanyLogoURL:       d.CompanyLogoURL,
		CompanyLogoAssetID:   d.CompanyLogoAssetID,
		TypeOfProject:        d.TypeOfProject,
		PVProjectManager:     d.PVProjectManager,
		StartDate:            d.StartDate,
		EndDate:              d.EndDate,
		AllottedBillingHours: d.AllottedBillingHours,
		ActualHoursSpent:     d.ActualHoursSpent,
		Status:               d.Status,
		Department:           d.Department,
		TeamMemberIDs:        memberIDs,
		Members:              []MemberSummary{},
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}, nil
}

// MongoRepository implements Repository on MongoDB. Member references are
// checked before writing since the server has no foreign keys.
type MongoRepository struct {
	projects *mongo.Collection
	members  *mongo.Collection
}

// NewMongoRepository creates a Repository backed by the projects collection.
func NewMongoRepository(db *mongo.Database) Repository {
	return &MongoRepository{
		projects: db.Collection(database.ProjectsCollection),
		members:  db.Collection(database.TeamMembersCollection),
	}
}

// List retrieves projects matching filter, newest first.
func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]Project, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.Department != nil {
		query["department"] = *filter.Department
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := literalPattern(*filter.Search)
		query["$or"] = bson.A{
			bson.M{"clientCode": pattern},
			bson.M{"companyName": pattern},
			bson.M{"projectName": pattern},
		}
	}
	if filter.StartFrom != nil {
		query["endDate"] = bson.M{"$gte": *filter.StartFrom}
	}
	if filter.EndTo != nil {
		query["startDate"] = bson.M{"$lte": *filter.EndTo}
	}

	cursor, err := r.projects.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer cursor.Close(ctx)

	projects := []Project{}
	for cursor.Next(ctx) {
		var doc projectDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding project: %w", err)
		}
		p, err := doc.toProject()
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}

	if err := r.resolveMembers(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetByID retrieves a single project with its members resolved.
func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// GetByClientCode retrieves a project by its exact client code.
func (r *MongoRepository) GetByClientCode(ctx context.Context, clientCode string) (*Project, error) {
	return r.findOne(ctx, bson.M{"clientCode": clientCode})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Project, error) {
	var doc projectDocument
	if err := r.projects.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("querying project: %w", err)
	}

	p, err := doc.toProject()
	if err != nil {
		return nil, err
	}
	projects := []Project{p}
	if err := r.resolveMembers(ctx, projects); err != nil {
		return nil, err
	}
	return &projects[0], nil
}

// Create inserts a project document after checking invariants and member
// references. The unique client code index decides duplicates.
func (r *MongoRepository) Create(ctx context.Context, p *Project) error {
	p.ApplyDefaults()
	if err := CheckInvariants(p); err != nil {
		return err
	}

	memberKeys, err := r.checkMembers(ctx, p.TeamMemberIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := projectDocument{
		ID:                   uuid.New().String(),
		ClientCode:           p.ClientCode,
		CompanyName:          p.CompanyName,
		ProjectName:          p.ProjectName,
		CompanyLogoURL:       p.CompanyLogoURL,
		CompanyLogoAssetID:   p.CompanyLogoAssetID,
		TypeOfProject:        p.TypeOfProject,
		PVProjectManager:     p.PVProjectManager,
		StartDate:            p.StartDate,
		EndDate:              p.EndDate,
		AllottedBillingHours: p.AllottedBillingHours,
		ActualHoursSpent:     p.ActualHoursSpent,
		Status:               p.Status,
		Department:           p.Department,
		TeamMembers:          memberKeys,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if _, err := r.projects.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateClientCode
		}
		return fmt.Errorf("inserting project: %w", err)
	}

	p.ID = uuid.MustParse(doc.ID)
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Delete removes a project document.
func (r *MongoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.projects.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddMember appends a member to the project. Adding a member twice is a no-op.
func (r *MongoRepository) AddMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	if _, err := r.checkMembers(ctx, []uuid.UUID{memberID}); err != nil {
		return err
	}
	return r.updateMembers(ctx, projectID, bson.M{"$addToSet": bson.M{"teamMembers": memberID.String()}})
}

// RemoveMember detaches a member from the project.
func (r *MongoRepository) RemoveMember(ctx context.Context, projectID, memberID uuid.UUID) error {
	return r.updateMembers(ctx, projectID, bson.M{"$pull": bson.M{"teamMembers": memberID.String()}})
}

func (r *MongoRepository) updateMembers(ctx context.Context, projectID uuid.UUID, update bson.M) error {
	update["$set"] = bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}

	res, err := r.projects.UpdateOne(ctx, bson.M{"_id": projectID.String()}, update)
	if err != nil {
		return fmt.Errorf("updating project members: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// checkMembers verifies every id names a stored, distinct team member and
// returns the ids in their stored form.
func (r *MongoRepository) checkMembers(ctx context.Context, ids []uuid.UUID) ([]string, error) {
	keys := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: team member listed twice", ErrInvalidTeamMemberReference)
		}
		seen[id] = true
		keys = append(keys, id.String())
	}
	if len(keys) == 0 {
		return keys, nil
	}

	n, err := r.members.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("checking team members: %w", err)
	}
	if int(n) != len(keys) {
		return nil, ErrInvalidTeamMemberReference
	}
	return keys, nil
}

// resolveMembers fills Members for every project with one lookup.
func (r *MongoRepository) resolveMembers(ctx context.Context, projects []Project) error {
	var keys []string
	for i := range projects {
		for _, id := range projects[i].TeamMemberIDs {
			keys = append(keys, id.String())
		}
	}
	if len(keys) == 0 {
		return nil
	}

	cursor, err := r.members.Find(ctx, bson.M{"_id": bson.M{"$in": keys}},
		options.Find().SetProjection(bson.M{"firstName": 1, "lastName": 1}))
	if err != nil {
		return fmt.Errorf("loading project members: %w", err)
	}
	var refs []memberRef
	if err := cursor.All(ctx, &refs); err != nil {
		return fmt.Errorf("decoding project members: %w", err)
	}

	byID := make(map[string]memberRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}

	for i := range projects {
		for _, id := range projects[i].TeamMemberIDs {
			if ref, ok := byID[id.String()]; ok {
				projects[i].Members = append(projects[i].Members, summarize(id, ref.FirstName, ref.LastName))
			}
		}
	}
	return nil
}

// literalPattern builds a case-insensitive literal substring match.
func literalPattern(s string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
}
