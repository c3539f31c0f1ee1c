package db_storage

import "strings"

const gridMarker = "grid"

// SavedFiles collects the paths the pipeline writes during one batch. The host
// creates one per batch and hands it to both hooks.
type SavedFiles struct {
	filenames []string
}

func NewSavedFiles() *SavedFiles {
	return &SavedFiles{}
}

// OnBeforeImageSaved records a path about to be written. Grid images are never recorded.
func (s *SavedFiles) OnBeforeImageSaved(filename string) {
	if s == nil || strings.Contains(filename, gridMarker) {
		return
	}

	s.filenames = append(s.filenames, filename)
}

// Drain returns the recorded paths and empties the list.
func (s *SavedFiles) Drain() []string {
	if s == nil {
		return nil
	}

	filenames := s.filenames
	s.filenames = nil

	return filenames
}

func (s *SavedFiles) Len() int {
	if s == nil {
		return 0
	}

	return len(s.filenames)
}
