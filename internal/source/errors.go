package source

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable matches every error reporting content that can no
// longer be retrieved.
var ErrSourceUnavailable = errors.New("source unavailable")

// UnavailableError reports a source or content blob that cannot be read.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("source %s unavailable", e.Source)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSourceUnavailable) match any UnavailableError.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func unavailable(source string, err error) error {
	return &UnavailableError{Source: source, Err: err}
}
