package sqlite

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	DefaultDBFile string = "sd_db_storage.sqlite"
	InMemory      string = ":memory:"
)

const getCurrentMigration string = `PRAGMA user_version;`
const setCurrentMigration string = `PRAGMA user_version = ?;`

const createImageRecordsTableIfNotExistsQuery string = `
CREATE TABLE IF NOT EXISTS image_records (
id INTEGER NOT NULL PRIMARY KEY,
database_name TEXT NOT NULL,
collection_name TEXT NOT NULL,
mode TEXT NOT NULL,
prompt TEXT NOT NULL,
negative_prompt TEXT NOT NULL,
steps INTEGER NOT NULL,
seed INTEGER NOT NULL,
sampler TEXT NOT NULL,
cfg_scale REAL NOT NULL,
model TEXT NOT NULL,
model_hash TEXT NOT NULL,
width INTEGER NOT NULL,
height INTEGER NOT NULL,
created_at DATETIME NOT NULL
);`

const createCollectionIndexIfNotExistsQuery string = `
CREATE INDEX IF NOT EXISTS image_records_collection_index
ON image_records(database_name, collection_name);
`

const addFileColumnsQuery string = `
ALTER TABLE image_records ADD COLUMN filename TEXT NOT NULL DEFAULT '';
ALTER TABLE image_records ADD COLUMN filepath TEXT NOT NULL DEFAULT '';
`

const addControlNetColumnQuery string = `
ALTER TABLE image_records ADD COLUMN control_net INTEGER NOT NULL DEFAULT 0;
`

const addInitialPromptColumnQuery string = `
ALTER TABLE image_records ADD COLUMN initial_prompt TEXT NOT NULL DEFAULT '';
`

const addImageColumnsQuery string = `
ALTER TABLE image_records ADD COLUMN image BLOB;
ALTER TABLE image_records ADD COLUMN filesize INTEGER NOT NULL DEFAULT 0;
`

type migration struct {
	migrationName  string
	migrationQuery string
}

var migrations = []migration{
	{migrationName: "create image records table", migrationQuery: createImageRecordsTableIfNotExistsQuery},
	{migrationName: "add image records collection index", migrationQuery: createCollectionIndexIfNotExistsQuery},
	{migrationName: "add file columns", migrationQuery: addFileColumnsQuery},
	{migrationName: "add controlnet column", migrationQuery: addControlNetColumnQuery},
	{migrationName: "add initial prompt column", migrationQuery: addInitialPromptColumnQuery},
	{migrationName: "add image columns", migrationQuery: addImageColumnsQuery},
}

type Config struct {
	// Filename of the database. Empty means DefaultDBFile in the working directory.
	Filename string
}

func New(ctx context.Context, cfg Config) (*sql.DB, error) {
	filename := cfg.Filename

	if filename == "" {
		var err error

		filename, err = DBFilename()
		if err != nil {
			return nil, err
		}
	}

	if filename != InMemory {
		err := touchDBFile(filename)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}

	if filename == InMemory {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	err = migrate(ctx, db)
	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var currentMigration int

	row := db.QueryRowContext(ctx, getCurrentMigration)

	err := row.Scan(&currentMigration)
	if err != nil {
		return err
	}

	requiredMigration := len(migrations)

	log.Printf("Current DB version: %v, required DB version: %v\n", currentMigration, requiredMigration)

	if currentMigration < requiredMigration {
		for migrationNum := currentMigration + 1; migrationNum <= requiredMigration; migrationNum++ {
			err = execMigration(ctx, db, migrationNum)
			if err != nil {
				log.Printf("Error running migration %v '%v'\n", migrationNum, migrations[migrationNum-1].migrationName)

				return err
			}
		}
	}

	return nil
}

func execMigration(ctx context.Context, db *sql.DB, migrationNum int) error {
	log.Printf("Running migration %v '%v'\n", migrationNum, migrations[migrationNum-1].migrationName)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	//nolint
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, migrations[migrationNum-1].migrationQuery)
	if err != nil {
		return err
	}

	setQuery := strings.Replace(setCurrentMigration, "?", strconv.Itoa(migrationNum), 1)

	_, err = tx.ExecContext(ctx, setQuery)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func DBFilename() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, DefaultDBFile), nil
}

func touchDBFile(filename string) error {
	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		file, createErr := os.Create(filename)
		if createErr != nil {
			return createErr
		}

		closeErr := file.Close()
		if closeErr != nil {
			return closeErr
		}
	}

	return nil
}
