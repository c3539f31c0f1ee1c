package generation_info

import "fmt"

type NotFoundError struct {
	entityName string
}

func NewNotFoundError(entityName string) *NotFoundError {
	return &NotFoundError{entityName: entityName}
}

func (m *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", m.entityName)
}

func (e *NotFoundError) Is(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// ParseError reports an info line whose structure could not be tokenized.
type ParseError struct {
	Line   string
	Reason string
}

func NewParseError(line, reason string) *ParseError {
	return &ParseError{Line: line, Reason: reason}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing generation info: %s", e.Reason)
}

func (e *ParseError) Is(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}
