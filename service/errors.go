package service

import "errors"

// Validation and auth failures raised by the service layer. Storage-level
// not-found sentinels live in the repository package; the HTTP boundary maps
// each kind to its own status code instead of collapsing everything to 500.
var (
	ErrInvalidQuantity    = errors.New("quantity must be a positive integer")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNameTaken          = errors.New("name already in use")
	ErrEmailTaken         = errors.New("email already in use")
)
