package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrSecurityRejection = errors.New("query rejected by security policy")
	ErrDependencyFailure = errors.New("external dependency failure")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrForbidden         = errors.New("forbidden")
)
