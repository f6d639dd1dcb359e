package availability

import (
	"errors"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidPattern  = errors.New("session pattern is malformed")
	ErrNotFound        = errors.New("not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrVersionConflict = errors.New("version conflict")
)

// ValidationError lists every problem found in a rejected write.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(problems ...string) error {
	return &ValidationError{Problems: problems}
}
