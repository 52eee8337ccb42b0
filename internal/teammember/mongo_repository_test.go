package teammember_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvboard/pvboard/internal/database"
	"github.com/pvboard/pvboard/internal/teammember"
)

func setupMongoRepo(t *testing.T) teammember.Repository {
	t.Helper()

	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		uri = "mongodb://127.0.0.1:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	mdb, err := database.NewMongo(ctx, uri, "pvboard_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Skipf("skipping: cannot connect to test mongodb: %v", err)
	}
	t.Cleanup(func() {
		_ = mdb.Database().Drop(context.Background())
		_ = mdb.Close(context.Background())
	})

	require.NoError(t, mdb.EnsureIndexes(context.Background()))
	return teammember.NewMongoRepository(mdb.Database())
}

func TestMongoCreate_CaseInsensitiveDuplicate(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	m := &teammember.TeamMember{FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, repo.Create(ctx, m))
	assert.NotEqual(t, uuid.Nil, m.ID)

	err := repo.Create(ctx, &teammember.TeamMember{FirstName: "ADA", LastName: "LOVELACE"})
	assert.ErrorIs(t, err, teammember.ErrDuplicateMember)
}

func TestMongoCreateMany_RollsBackOnDuplicate(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &teammember.TeamMember{FirstName: "Grace", LastName: "Hopper"}))

	_, err := repo.CreateMany(ctx, []teammember.TeamMember{
		{FirstName: "Alan", LastName: "Turing"},
		{FirstName: "Ken", LastName: "Thompson"},
		{FirstName: "GRACE", LastName: "HOPPER"},
	})
	assert.ErrorIs(t, err, teammember.ErrDuplicateMember)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	for _, name := range [][2]string{{"Alan", "Turing"}, {"Ken", "Thompson"}} {
		_, err := repo.FindByName(ctx, name[0], name[1], nil)
		assert.ErrorIs(t, err, teammember.ErrTeamMemberNotFound, "%s %s must not survive a rejected batch", name[0], name[1])
	}
}

func TestMongoCreateMany_RejectsDuplicateWithinBatch(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	_, err := repo.CreateMany(ctx, []teammember.TeamMember{
		{FirstName: "Jo", LastName: "Doe"},
		{FirstName: "jo", LastName: "doe"},
	})
	assert.ErrorIs(t, err, teammember.ErrDuplicateMember)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMongoFindByNameAndIDs(t *testing.T) {
	repo := setupMongoRepo(t)
	ctx := context.Background()

	created, err := repo.CreateMany(ctx, []teammember.TeamMember{
		{FirstName: "Alan", LastName: "Turing"},
		{FirstName: "Ken", LastName: "Thompson"},
	})
	require.NoError(t, err)

	found, err := repo.FindByName(ctx, "alan", "TURING", nil)
	require.NoError(t, err)
	assert.Equal(t, created[0].ID, found.ID)

	byIDs, err := repo.GetByIDs(ctx, []uuid.UUID{created[1].ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, "Ken", byIDs[0].FirstName)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, teammember.ErrTeamMemberNotFound)
}
