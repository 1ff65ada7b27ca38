package profile

import "errors"

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrDirectoryUnavailable = errors.New("profile directory unavailable")
)
