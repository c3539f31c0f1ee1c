package image_records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sd_db_storage/clock"
	"sd_db_storage/entities"
	"sd_db_storage/repositories"
)

const insertRecordQuery string = `
INSERT INTO image_records (database_name, collection_name, mode, prompt, negative_prompt, steps, seed, sampler, cfg_scale, model, model_hash, width, height, filename, filepath, control_net, initial_prompt, image, filesize, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

type sqliteProvider struct {
	dbConn *sql.DB
	clock  clock.Clock
}

type SqliteConfig struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewSqliteProvider(cfg *SqliteConfig) (Provider, error) {
	if cfg.DB == nil {
		return nil, errors.New("missing DB parameter")
	}

	repoClock := cfg.Clock
	if repoClock == nil {
		repoClock = clock.NewClock()
	}

	return &sqliteProvider{
		dbConn: cfg.DB,
		clock:  repoClock,
	}, nil
}

func (p *sqliteProvider) Repository(database, collectionName string) (Repository, error) {
	if database == "" || collectionName == "" {
		return nil, repositories.NewConnectionUnavailableError(fmt.Sprintf("%s.%s", database, collectionName),
			errors.New("missing database or collection name"))
	}

	return &sqliteRepo{
		dbConn:     p.dbConn,
		clock:      p.clock,
		database:   database,
		collection: collectionName,
	}, nil
}

type sqliteRepo struct {
	dbConn     *sql.DB
	clock      clock.Clock
	database   string
	collection string
}

func (repo *sqliteRepo) Create(ctx context.Context, record *entities.ImageRecord) (*entities.ImageRecord, error) {
	record.CreatedAt = repo.clock.Now()

	_, err := repo.dbConn.ExecContext(ctx, insertRecordQuery,
		repo.database, repo.collection, record.Mode, record.Prompt, record.NegativePrompt,
		record.Steps, record.Seed, record.Sampler, record.CfgScale, record.Model, record.ModelHash,
		record.Width(), record.Height(), record.Filename, record.Filepath, record.ControlNet,
		record.InitialPrompt, record.Image, record.Filesize, record.CreatedAt)
	if err != nil {
		return nil, err
	}

	return record, nil
}
