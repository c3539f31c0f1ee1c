package record_reconciler

import "fmt"

// RecordError is raised while building or storing a single record. It aborts the
// remaining records of the batch but leaves other batches untouched.
type RecordError struct {
	Index  int
	Reason string
	Err    error
}

func NewRecordError(index int, reason string, err error) *RecordError {
	return &RecordError{Index: index, Reason: reason, Err: err}
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record %d: %s: %v", e.Index, e.Reason, e.Err)
	}

	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(err error) bool {
	_, ok := err.(*RecordError)
	return ok
}
