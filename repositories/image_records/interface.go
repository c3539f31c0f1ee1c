package image_records

import (
	"context"

	"sd_db_storage/entities"
)

type Repository interface {
	Create(ctx context.Context, record *entities.ImageRecord) (*entities.ImageRecord, error)
}

// Provider hands out a repository bound to one database and collection.
type Provider interface {
	Repository(database, collection string) (Repository, error)
}
