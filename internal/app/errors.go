package app

import (
	"errors"
	"fmt"
)

// ErrRunSuperseded is returned to an analysis run when a newer run for the
// same document started before it finished.
var ErrRunSuperseded = errors.New("analysis run superseded by a newer run")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
