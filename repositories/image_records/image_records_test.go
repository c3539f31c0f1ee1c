package image_records

import (
	"context"
	"errors"
	"testing"
	"time"

	"sd_db_storage/clock"
	"sd_db_storage/databases/sqlite"
	"sd_db_storage/entities"
	"sd_db_storage/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecord() *entities.ImageRecord {
	return &entities.ImageRecord{
		Mode:           "Txt2Img",
		Prompt:         "a lighthouse at dusk",
		NegativePrompt: "blurry",
		Steps:          30,
		Seed:           3456789012,
		Sampler:        "DPM++ 2M Karras",
		CfgScale:       6.5,
		Model:          "sd_xl_base_1.0",
		ModelHash:      "31e35c80fc",
		Size:           [2]int{1024, 1536},
		Filename:       "00012-3456789012.png",
		Filepath:       "/outputs/txt2img-images",
		ControlNet:     true,
		InitialPrompt:  "a __places__ at dusk",
		Image:          []byte{0x89, 0x50, 0x4e, 0x47},
		Filesize:       4,
	}
}

type fakeCollection struct {
	documents []interface{}
	err       error
}

func (c *fakeCollection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.documents = append(c.documents, document)

	return &mongo.InsertOneResult{InsertedID: len(c.documents)}, nil
}

func TestMongoRepoCreate(t *testing.T) {
	coll := &fakeCollection{}
	repo := newMongoRepo(coll, clock.NewFixedClock(fixedNow))

	record, err := repo.Create(context.Background(), sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, fixedNow, record.CreatedAt)
	require.Len(t, coll.documents, 1)
	assert.Same(t, record, coll.documents[0])
}

func documentKeys(t *testing.T, document interface{}) (bson.M, []string) {
	t.Helper()

	data, err := bson.Marshal(document)
	require.NoError(t, err)

	doc := bson.M{}
	require.NoError(t, bson.Unmarshal(data, &doc))

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}

	return doc, keys
}

func TestMongoRepoDocumentShape(t *testing.T) {
	coll := &fakeCollection{}
	repo := newMongoRepo(coll, clock.NewFixedClock(fixedNow))

	_, err := repo.Create(context.Background(), sampleRecord())
	require.NoError(t, err)
	require.Len(t, coll.documents, 1)

	doc, keys := documentKeys(t, coll.documents[0])

	assert.ElementsMatch(t, []string{
		"mode", "prompt", "negative_prompt", "steps", "seed", "sampler", "cfg_scale",
		"model", "model_hash", "size", "filename", "filepath", "ControlNet",
		"initial_prompt", "image", "filesize", "created_at",
	}, keys)

	assert.Equal(t, bson.A{int32(1024), int32(1536)}, doc["size"])
	assert.Equal(t, int64(3456789012), doc["seed"])
	assert.Equal(t, 6.5, doc["cfg_scale"])
	assert.Equal(t, true, doc["ControlNet"])

	_, keys = documentKeys(t, &entities.ImageRecord{Mode: "Txt2Img", Size: [2]int{512, 512}})

	assert.ElementsMatch(t, []string{
		"mode", "prompt", "negative_prompt", "steps", "seed", "sampler", "cfg_scale",
		"model", "model_hash", "size", "created_at",
	}, keys)
}

func TestMongoRepoCreateError(t *testing.T) {
	insertErr := errors.New("server selection timeout")
	repo := newMongoRepo(&fakeCollection{err: insertErr}, clock.NewFixedClock(fixedNow))

	record, err := repo.Create(context.Background(), sampleRecord())
	assert.Nil(t, record)
	assert.ErrorIs(t, err, insertErr)
}

func TestNewMongoProviderRequiresClient(t *testing.T) {
	_, err := NewMongoProvider(&MongoConfig{})
	assert.Error(t, err)
}

func TestMongoProviderRepository(t *testing.T) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://localhost:27017/"))
	require.NoError(t, err)

	defer client.Disconnect(context.Background())

	provider, err := NewMongoProvider(&MongoConfig{Client: client})
	require.NoError(t, err)

	repo, err := provider.Repository("StableDiffusion", "Images")
	require.NoError(t, err)
	assert.NotNil(t, repo)

	_, err = provider.Repository("StableDiffusion", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, &repositories.ConnectionUnavailableError{}))
}

func TestSqliteRepoCreate(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, sqlite.Config{Filename: sqlite.InMemory})
	require.NoError(t, err)

	defer db.Close()

	provider, err := NewSqliteProvider(&SqliteConfig{DB: db, Clock: clock.NewFixedClock(fixedNow)})
	require.NoError(t, err)

	repo, err := provider.Repository("StableDiffusion", "Images")
	require.NoError(t, err)

	record, err := repo.Create(ctx, sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, record.CreatedAt)

	var (
		database, collection, sampler, filename string
		seed                                    int64
		width, height, filesize                 int
		controlNet                              bool
		image                                   []byte
	)

	err = db.QueryRowContext(ctx, `SELECT database_name, collection_name, sampler, filename, seed, width, height, filesize, control_net, image FROM image_records;`).
		Scan(&database, &collection, &sampler, &filename, &seed, &width, &height, &filesize, &controlNet, &image)
	require.NoError(t, err)

	assert.Equal(t, "StableDiffusion", database)
	assert.Equal(t, "Images", collection)
	assert.Equal(t, "DPM++ 2M Karras", sampler)
	assert.Equal(t, "00012-3456789012.png", filename)
	assert.Equal(t, int64(3456789012), seed)
	assert.Equal(t, 1024, width)
	assert.Equal(t, 1536, height)
	assert.Equal(t, 4, filesize)
	assert.True(t, controlNet)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, image)
}

func TestSqliteProviderRequiresNames(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.New(ctx, sqlite.Config{Filename: sqlite.InMemory})
	require.NoError(t, err)

	defer db.Close()

	provider, err := NewSqliteProvider(&SqliteConfig{DB: db})
	require.NoError(t, err)

	_, err = provider.Repository("", "Images")
	require.Error(t, err)
	assert.True(t, errors.Is(err, &repositories.ConnectionUnavailableError{}))

	_, err = NewSqliteProvider(&SqliteConfig{})
	assert.Error(t, err)
}
