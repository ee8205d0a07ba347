package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	sharedMongo "github.com/wms-platform/disposition-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/disposition-service/pkg/outbox/mongodb"
	wmstesting "github.com/wms-platform/disposition-service/pkg/testing"
)

type RepositoryIntegrationSuite struct {
	suite.Suite
	mongo     *wmstesting.MongoDB
	db        *mongo.Database
	positions *PositionRepository
	loads     *LoadRepository
	outbox    *outboxMongo.Repository
}

func TestRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RepositoryIntegrationSuite))
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	m, err := wmstesting.StartMongoDB(ctx)
	s.Require().NoError(err)
	s.mongo = m
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.mongo != nil {
		_ = s.mongo.Close(context.Background())
	}
}

func (s *RepositoryIntegrationSuite) SetupTest() {
	ctx := context.Background()
	db, err := s.mongo.FreshDatabase(ctx, "disposition_test")
	s.Require().NoError(err)
	s.db = db

	inst := sharedMongo.NewInstrumentation(s.db.Name(), nil, nil)
	s.positions = NewPositionRepository(s.db, cloudevents.NewEventFactory(cloudevents.SourceDisposition), inst)
	s.loads = NewLoadRepository(s.db, inst)
	s.outbox = outboxMongo.NewRepository(s.db)

	s.Require().NoError(s.positions.EnsureIndexes(ctx))
	s.Require().NoError(s.loads.EnsureIndexes(ctx))
}

func (s *RepositoryIntegrationSuite) newLoad(id string, weight float64) *domain.Load {
	load, err := domain.NewLoad(id, domain.DirectionExport, "pallets", "open", []domain.LoadItem{
		{ItemID: id + "-1", GrossWeight: weight, Volume: 1, PieceCount: 1, PackageCount: 1},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.loads.Save(context.Background(), load))
	return load
}

func (s *RepositoryIntegrationSuite) TestSaveWritesPositionAndOutbox() {
	ctx := context.Background()
	load := s.newLoad("L1", 100)

	position, err := domain.NewPosition(domain.DirectionExport, domain.PositionAttributes{})
	s.Require().NoError(err)
	s.Require().NoError(s.positions.Save(ctx, position))
	assert.Equal(s.T(), int64(1), position.Version)
	assert.Empty(s.T(), position.GetDomainEvents())

	_, err = position.AssignLoad(load, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.positions.Save(ctx, position))

	stored, err := s.positions.FindByID(ctx, position.PositionID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	assert.Equal(s.T(), int64(2), stored.Version)
	assert.Equal(s.T(), []string{"L1"}, stored.LoadIDs)

	owner, err := s.positions.FindDraftByLoadID(ctx, "L1")
	s.Require().NoError(err)
	s.Require().NotNil(owner)
	assert.Equal(s.T(), position.PositionID, owner.PositionID)

	events, err := s.outbox.ForAggregate(ctx, position.PositionID)
	s.Require().NoError(err)
	assert.Len(s.T(), events, 2)
}

func (s *RepositoryIntegrationSuite) TestSaveRejectsStaleVersion() {
	ctx := context.Background()

	position, err := domain.NewPosition(domain.DirectionExport, domain.PositionAttributes{})
	s.Require().NoError(err)
	s.Require().NoError(s.positions.Save(ctx, position))

	first, err := s.positions.FindByID(ctx, position.PositionID)
	s.Require().NoError(err)
	second, err := s.positions.FindByID(ctx, position.PositionID)
	s.Require().NoError(err)

	notes := "first"
	s.Require().NoError(first.Update(domain.PositionAttributes{Notes: &notes}))
	s.Require().NoError(s.positions.Save(ctx, first))

	notes = "second"
	s.Require().NoError(second.Update(domain.PositionAttributes{Notes: &notes}))
	err = s.positions.Save(ctx, second)
	assert.ErrorIs(s.T(), err, domain.ErrConcurrentModification)
	assert.Equal(s.T(), int64(1), second.Version)

	stored, err := s.positions.FindByID(ctx, position.PositionID)
	s.Require().NoError(err)
	assert.Equal(s.T(), "first", stored.Notes)
}

func (s *RepositoryIntegrationSuite) TestDeleteIsVersionChecked() {
	ctx := context.Background()

	position, err := domain.NewPosition(domain.DirectionImport, domain.PositionAttributes{})
	s.Require().NoError(err)
	s.Require().NoError(s.positions.Save(ctx, position))

	stale := *position
	stale.Version = 0
	assert.ErrorIs(s.T(), s.positions.Delete(ctx, &stale), domain.ErrConcurrentModification)

	s.Require().NoError(position.MarkDeleted())
	s.Require().NoError(s.positions.Delete(ctx, position))

	stored, err := s.positions.FindByID(ctx, position.PositionID)
	s.Require().NoError(err)
	assert.Nil(s.T(), stored)
}

func (s *RepositoryIntegrationSuite) TestLoadUpsertAndQueries() {
	ctx := context.Background()
	s.newLoad("L1", 10)
	s.newLoad("L2", 20)

	updated := s.newLoad("L1", 15)
	assert.Equal(s.T(), 15.0, updated.Items[0].GrossWeight)

	byIDs, err := s.loads.FindByIDs(ctx, []string{"L2", "L1", "missing"})
	s.Require().NoError(err)
	assert.Len(s.T(), byIDs, 2)

	exports, err := s.loads.FindByDirection(ctx, domain.DirectionExport)
	s.Require().NoError(err)
	require.Len(s.T(), exports, 2)

	load, err := s.loads.FindByID(ctx, "L1")
	s.Require().NoError(err)
	assert.Equal(s.T(), 15.0, load.Items[0].GrossWeight)

	none, err := s.loads.FindByDirection(ctx, domain.DirectionImport)
	s.Require().NoError(err)
	assert.Empty(s.T(), none)
}

func (s *RepositoryIntegrationSuite) TestOutboxDueHonoursBackoff() {
	ctx := context.Background()

	position, err := domain.NewPosition(domain.DirectionExport, domain.PositionAttributes{})
	s.Require().NoError(err)
	_, err = position.AssignLoad(s.newLoad("L9", 5), nil)
	s.Require().NoError(err)
	s.Require().NoError(s.positions.Save(ctx, position))

	now := time.Now().UTC().Add(time.Second)
	due, err := s.outbox.Due(ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 2)

	s.Require().NoError(s.outbox.MarkFailed(ctx, due[0].ID, "broker unavailable", now.Add(time.Minute)))
	s.Require().NoError(s.outbox.MarkPublished(ctx, due[1].ID, now))

	due, err = s.outbox.Due(ctx, now, 10)
	s.Require().NoError(err)
	assert.Empty(s.T(), due)

	due, err = s.outbox.Due(ctx, now.Add(2*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	assert.Equal(s.T(), 1, due[0].Attempts)
	assert.Equal(s.T(), "broker unavailable", due[0].LastError)
}
