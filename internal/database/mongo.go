package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the Mongo repositories.
const (
	TeamMembersCollection = "team_members"
	ProjectsCollection    = "projects"
)

// CaseInsensitive is the collation used for the team member name index and
// the queries that must hit it. Strength 2 compares base letters and accents
// but ignores case.
var CaseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Mongo wraps a mongo.Client bound to one database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to the given URI and verifies the connection with a ping.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the unique indexes the repositories rely on. It is
// the Mongo counterpart of Migrate.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	members := m.db.Collection(TeamMembersCollection)
	_, err := members.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "firstName", Value: 1}, {Key: "lastName", Value: 1}},
		Options: options.Index().
			SetName("team_members_name_ci").
			SetUnique(true).
			SetCollation(CaseInsensitive),
	})
	if err != nil {
		return fmt.Errorf("creating team member name index: %w", err)
	}

	projects := m.db.Collection(ProjectsCollection)
	_, err = projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "clientCode", Value: 1}},
			Options: options.Index().SetName("projects_client_code").SetUnique(true),
		},
		{Keys: bson.D{{Key: "startDate", Value: 1}, {Key: "endDate", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "department", Value: 1}}},
		{Keys: bson.D{{Key: "teamMembers", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating project indexes: %w", err)
	}

	return nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping verifies the connection is alive.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Database returns the bound database for repository use.
func (m *Mongo) Database() *mongo.Database {
	return m.db
}
