package services

import "errors"

// Error kinds returned by the services. Handlers translate them into HTTP
// responses; wrap them with fmt.Errorf("%w: ...") to add a caller-facing detail.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
