package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")

	// ErrLimitExceeded is a Conflict: errors.Is matches both.
	ErrLimitExceeded = fmt.Errorf("%w: loan limit exceeded", ErrConflict)
)
