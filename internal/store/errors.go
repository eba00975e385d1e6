package store

import (
	"errors"
	"fmt"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid input")
)

// RecordError ties a failure to one stored record.
type RecordError struct {
	Entity fieldcrypt.Entity
	ID     string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// RecordFailure is one skipped record of a bulk operation.
type RecordFailure struct {
	Entity fieldcrypt.Entity `json:"entity"`
	ID     string            `json:"id"`
	Error  string            `json:"error"`
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
