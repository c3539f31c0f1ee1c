package discord_notifier

import (
	"context"

	"sd_db_storage/db_storage"
)

type Notifier interface {
	BatchSaved(ctx context.Context, summary *db_storage.BatchSummary) error
	Close() error
}
