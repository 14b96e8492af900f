package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed homework input. Wrapped errors carry the detail.
	ErrValidation = errors.New("validation failed")
	// ErrAssignmentNotFound indicates the requested homework assignment does not exist.
	ErrAssignmentNotFound = errors.New("homework assignment not found")
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskForbidden indicates the task belongs to another student.
	ErrTaskForbidden = errors.New("task does not belong to this student")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
