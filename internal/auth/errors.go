package auth

import "errors"

var (
	ErrNotFound         = errors.New("auth: not found")
	ErrConflict         = errors.New("auth: already exists")
	ErrInvalidInput     = errors.New("auth: invalid input")
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrPermissionDenied = errors.New("auth: permission denied")
	ErrReadOnly         = errors.New("auth: read-only admin cannot perform this action")
	ErrUnknownPreset    = errors.New("auth: unknown role preset")
	ErrInvalidToken     = errors.New("auth: invalid token")
)
