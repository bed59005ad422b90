package models

import "errors"

// Registry errors. Stores and services return these (optionally wrapped);
// the HTTP layer maps each of them to a status code.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicateContent = errors.New("document with this content id already exists")
	ErrNotFound         = errors.New("document not found")
	ErrAlreadyRetired   = errors.New("document already burned")
	ErrUnauthorized     = errors.New("not allowed")
	ErrUnauthenticated  = errors.New("authentication required")
)

// Identity store errors.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("too many failed login attempts")
)
