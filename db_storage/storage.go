package db_storage

import (
	"context"
	"errors"
	"image"
	"log"

	"sd_db_storage/entities"
	"sd_db_storage/generation_info"
	"sd_db_storage/record_reconciler"
	"sd_db_storage/repositories/image_records"
)

const logPrefix = "SD DB Storage ==>"

// Processed is what the pipeline hands over once a batch has finished.
type Processed struct {
	// Info is the full generation log; only its "Steps:" line is parsed.
	Info           string
	Images         []image.Image
	AllPrompts     []string
	AllSeeds       []int64
	Prompt         string
	NegativePrompt string
	Mode           string
}

// BatchSummary is passed to the notifier after every batch that reached the store.
type BatchSummary struct {
	Database   string
	Collection string
	Mode       string
	Stored     int
	Err        error
}

type Notifier interface {
	BatchSaved(ctx context.Context, summary *BatchSummary) error
}

type storageImpl struct {
	provider          image_records.Provider
	reconciler        record_reconciler.Reconciler
	notifier          Notifier
	defaultDatabase   string
	defaultCollection string
	debug             bool
}

type Config struct {
	Provider          image_records.Provider
	Notifier          Notifier
	DefaultDatabase   string
	DefaultCollection string
	SaveFullImage     bool
	DebugMode         bool
}

func New(cfg Config) (Storage, error) {
	if cfg.Provider == nil {
		return nil, errors.New("missing image record provider")
	}

	if cfg.DefaultDatabase == "" {
		return nil, errors.New("missing default database")
	}

	if cfg.DefaultCollection == "" {
		return nil, errors.New("missing default collection")
	}

	reconciler, err := record_reconciler.New(record_reconciler.Config{
		SaveFullImage: cfg.SaveFullImage,
	})
	if err != nil {
		return nil, err
	}

	return &storageImpl{
		provider:          cfg.Provider,
		reconciler:        reconciler,
		notifier:          cfg.Notifier,
		defaultDatabase:   cfg.DefaultDatabase,
		defaultCollection: cfg.DefaultCollection,
		debug:             cfg.DebugMode,
	}, nil
}

// Postprocess stores one record per real output image of the batch. Failures are
// logged and swallowed; the saved file list is always drained.
func (s *storageImpl) Postprocess(ctx context.Context, files *SavedFiles, processed *Processed, saveToDB bool) bool {
	savedFilenames := files.Drain()

	if !saveToDB || processed == nil {
		return true
	}

	repo, err := s.provider.Repository(s.defaultDatabase, s.defaultCollection)
	if err != nil {
		s.logError("Database unavailable. Skipping.", err)

		return true
	}

	info, err := generation_info.Parse(processed.Info)
	if err != nil {
		if errors.Is(err, &generation_info.NotFoundError{}) {
			s.logError("No generation parameters found. Skipping.", err)
		} else {
			s.logError("Error parsing Extra Details. Skipping.", err)
		}

		return true
	}

	s.debugf("Info: %s", info.Line)

	batch := &record_reconciler.Batch{
		Info:           info,
		Images:         processed.Images,
		Prompts:        processed.AllPrompts,
		Seeds:          processed.AllSeeds,
		NegativePrompt: processed.NegativePrompt,
		InitialPrompt:  processed.Prompt,
		Mode:           processed.Mode,
		SavedFilenames: savedFilenames,
	}

	stored, err := s.reconciler.Reconcile(batch, func(index int, record *entities.ImageRecord) error {
		_, createErr := repo.Create(ctx, record)

		return createErr
	})
	if err != nil {
		s.logError("Error parsing data for database. Received data outside of scope. Skipped.", err)
	}

	s.debugf("Stored %d record(s) in %s.%s", stored, s.defaultDatabase, s.defaultCollection)

	s.notify(ctx, &BatchSummary{
		Database:   s.defaultDatabase,
		Collection: s.defaultCollection,
		Mode:       processed.Mode,
		Stored:     stored,
		Err:        err,
	})

	return true
}

func (s *storageImpl) notify(ctx context.Context, summary *BatchSummary) {
	if s.notifier == nil {
		return
	}

	err := s.notifier.BatchSaved(ctx, summary)
	if err != nil {
		s.logError("Error sending batch notification.", err)
	}
}

func (s *storageImpl) logError(message string, err error) {
	if s.debug {
		log.Printf("%s %s Exception: %v", logPrefix, message, err)

		return
	}

	log.Printf("%s %s", logPrefix, message)
}

func (s *storageImpl) debugf(format string, args ...interface{}) {
	if !s.debug {
		return
	}

	log.Printf(logPrefix+" "+format, args...)
}
