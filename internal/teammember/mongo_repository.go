package teammember

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pvboard/pvboard/internal/database"
)

// memberDocument is the stored shape of a team member. The _id holds the
// UUID string so identities are interchangeable with the Postgres backend.
type memberDocument struct {
	ID        string    `bson:"_id"`
	FirstName string    `bson:"firstName"`
	LastName  string    `bson:"lastName"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d *memberDocument) toMember() (TeamMember, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return TeamMember{}, fmt.Errorf("parsing team member id %q: %w", d.ID, err)
	}
	return TeamMember{
		ID:        id,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// MongoRepository implements Repository on a MongoDB collection whose
// unique name index uses a case-insensitive collation.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a Repository backed by the team members collection.
func NewMongoRepository(db *mongo.Database) Repository {
	return &MongoRepository{coll: db.Collection(database.TeamMembersCollection)}
}

func newDocument(m *TeamMember) memberDocument {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return memberDocument{
		ID:        uuid.New().String(),
		FirstName: m.FirstName,
		LastName:  m.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create inserts a new team member.
func (r *MongoRepository) Create(ctx context.Context, m *TeamMember) error {
	doc := newDocument(m)
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateMember
		}
		return fmt.Errorf("inserting team member: %w", err)
	}

	created, err := doc.toMember()
	if err != nil {
		return err
	}
	*m = created
	return nil
}

// illegalOperation is the server error raised when a transaction is opened
// on a standalone mongod.
const illegalOperation = 20

// CreateMany inserts all members inside a multi-document transaction, so
// readers never observe a partial batch. Standalone servers cannot run
// transactions; there the batch is written with an ordered insert and any
// documents already written are removed again when a later one fails.
// That fallback narrows but does not close the window in which a partial
// batch is visible.
func (r *MongoRepository) CreateMany(ctx context.Context, members []TeamMember) ([]TeamMember, error) {
	if len(members) == 0 {
		return []TeamMember{}, nil
	}

	docs := make([]any, len(members))
	ids := make([]string, len(members))
	created := make([]TeamMember, len(members))
	for i := range members {
		doc := newDocument(&members[i])
		docs[i] = doc
		ids[i] = doc.ID

		m, err := doc.toMember()
		if err != nil {
			return nil, err
		}
		created[i] = m
	}

	err := r.insertInTransaction(ctx, docs)
	if transactionsUnsupported(err) {
		err = r.insertWithRollback(ctx, docs, ids)
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateMember
		}
		return nil, fmt.Errorf("inserting team members: %w", err)
	}

	return created, nil
}

func (r *MongoRepository) insertInTransaction(ctx context.Context, docs []any) error {
	sess, err := r.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return r.coll.InsertMany(sc, docs, options.InsertMany().SetOrdered(true))
	})
	return err
}

func (r *MongoRepository) insertWithRollback(ctx context.Context, docs []any, ids []string) error {
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if _, delErr := r.coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
		return fmt.Errorf("rolling back team member batch after %v: %w", err, delErr)
	}
	return err
}

func transactionsUnsupported(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(illegalOperation)
}

// GetByID retrieves a single team member by its UUID.
func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*TeamMember, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()}, options.FindOne())
}

// GetByIDs returns the members that exist among ids.
func (r *MongoRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]TeamMember, error) {
	if len(ids) == 0 {
		return []TeamMember{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": keys}})
}

// FindByName looks up a member by name pair using the case-insensitive
// collation of the unique index.
func (r *MongoRepository) FindByName(ctx context.Context, firstName, lastName string, excludeID *uuid.UUID) (*TeamMember, error) {
	filter := bson.M{"firstName": firstName, "lastName": lastName}
	if excludeID != nil {
		filter["_id"] = bson.M{"$ne": excludeID.String()}
	}
	return r.findOne(ctx, filter, options.FindOne().SetCollation(database.CaseInsensitive))
}

// List retrieves all team members ordered by creation time.
func (r *MongoRepository) List(ctx context.Context) ([]TeamMember, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*TeamMember, error) {
	var doc memberDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTeamMemberNotFound
		}
		return nil, fmt.Errorf("querying team member: %w", err)
	}

	m, err := doc.toMember()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]TeamMember, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer cursor.Close(ctx)

	members := []TeamMember{}
	for cursor.Next(ctx) {
		var doc memberDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding team member: %w", err)
		}
		m, err := doc.toMember()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating team members: %w", err)
	}

	return members, nil
}
