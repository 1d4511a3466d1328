package store

import (
	"errors"
	"strings"
)

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrSettingNotFound    = errors.New("setting not found")
	ErrTabNotFound        = errors.New("tab not found")
	ErrInvalidState       = errors.New("invalid ticket state")
	ErrWindowBusy         = errors.New("window already serving a ticket")
	ErrSlotTaken          = errors.New("slot already taken")
	ErrTabLimit           = errors.New("tab limit reached")
	ErrPrimaryTab         = errors.New("primary tab cannot be canceled")
	ErrNothingToMove      = errors.New("nothing to move")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidWeekStart   = errors.New("invalid week start")
	ErrEmptySchedule      = errors.New("schedule has no valid days")
	ErrCorruptRecord      = errors.New("corrupt record")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	CodeMissingFields   = "missing_fields"
	CodeValidationError = "validation_error"
)

// ValidationError carries every problem found in one request.
type ValidationError struct {
	Code     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + strings.Join(e.Problems, "; ")
}

func MissingFields(fields ...string) *ValidationError {
	problems := make([]string, len(fields))
	for i, field := range fields {
		problems[i] = field + " is required"
	}
	return &ValidationError{Code: CodeMissingFields, Problems: problems}
}

func Invalid(problems ...string) *ValidationError {
	return &ValidationError{Code: CodeValidationError, Problems: problems}
}

// ConflictError reports minute collisions that blocked a window move.
type ConflictError struct {
	Conflicts []MoveConflict
}

func (e *ConflictError) Error() string {
	return "window move conflicts with destination bookings"
}
