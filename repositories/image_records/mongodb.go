package image_records

import (
	"context"
	"errors"
	"fmt"

	"sd_db_storage/clock"
	"sd_db_storage/entities"
	"sd_db_storage/repositories"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collection is the part of *mongo.Collection the repository needs.
type collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

type mongoProvider struct {
	client *mongo.Client
	clock  clock.Clock
}

type MongoConfig struct {
	Client *mongo.Client
	Clock  clock.Clock
}

func NewMongoProvider(cfg *MongoConfig) (Provider, error) {
	if cfg.Client == nil {
		return nil, errors.New("missing mongo client")
	}

	repoClock := cfg.Clock
	if repoClock == nil {
		repoClock = clock.NewClock()
	}

	return &mongoProvider{
		client: cfg.Client,
		clock:  repoClock,
	}, nil
}

func (p *mongoProvider) Repository(database, collectionName string) (Repository, error) {
	target := fmt.Sprintf("%s.%s", database, collectionName)

	if database == "" || collectionName == "" {
		return nil, repositories.NewConnectionUnavailableError(target, errors.New("missing database or collection name"))
	}

	return newMongoRepo(p.client.Database(database).Collection(collectionName), p.clock), nil
}

type mongoRepo struct {
	collection collection
	clock      clock.Clock
}

func newMongoRepo(coll collection, repoClock clock.Clock) *mongoRepo {
	return &mongoRepo{
		collection: coll,
		clock:      repoClock,
	}
}

func (repo *mongoRepo) Create(ctx context.Context, record *entities.ImageRecord) (*entities.ImageRecord, error) {
	record.CreatedAt = repo.clock.Now()

	_, err := repo.collection.InsertOne(ctx, record)
	if err != nil {
		return nil, err
	}

	return record, nil
}
