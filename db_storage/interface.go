package db_storage

import "context"

type Storage interface {
	Postprocess(ctx context.Context, files *SavedFiles, processed *Processed, saveToDB bool) bool
}
