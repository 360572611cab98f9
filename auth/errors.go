package auth

import "errors"

var (
	// ErrAuthFailed is returned when a login is unknown or its password
	// does not match. The two cases are not told apart.
	ErrAuthFailed = errors.New("unknown login or incorrect password")

	// ErrUserExists is returned by AddUser for a login already present.
	ErrUserExists = errors.New("arbor: user already exists")

	// ErrUserNotFound is returned by RemoveUser for an unknown login.
	ErrUserNotFound = errors.New("arbor: user not found")

	// ErrInvalidUser is returned by AddUser for an empty login, password
	// or tenant.
	ErrInvalidUser = errors.New("arbor: login, password and tenant are required")
)
