package repositories

import "fmt"

type ConnectionUnavailableError struct {
	target string
	err    error
}

func NewConnectionUnavailableError(target string, err error) *ConnectionUnavailableError {
	return &ConnectionUnavailableError{target: target, err: err}
}

func (m *ConnectionUnavailableError) Error() string {
	if m.err != nil {
		return fmt.Sprintf("connection to %s unavailable: %v", m.target, m.err)
	}

	return fmt.Sprintf("connection to %s unavailable", m.target)
}

func (m *ConnectionUnavailableError) Unwrap() error {
	return m.err
}

func (e *ConnectionUnavailableError) Is(err error) bool {
	_, ok := err.(*ConnectionUnavailableError)
	return ok
}
