package record_reconciler

import "sd_db_storage/entities"

// StoreFunc persists one record. Returning an error aborts the rest of the batch.
type StoreFunc func(index int, record *entities.ImageRecord) error

type Reconciler interface {
	Reconcile(batch *Batch, store StoreFunc) (int, error)
}
