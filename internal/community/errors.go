package community

import "errors"

var (
	// ErrNotFound indicates the entity does not exist, is soft-deleted, or is
	// past its expiry. Standard reads treat those three states identically.
	ErrNotFound = errors.New("community: not found")
	// ErrConflict indicates a uniqueness violation, such as two concurrent
	// first reactions from the same user.
	ErrConflict = errors.New("community: conflict")
	// ErrInvalidInput indicates missing or malformed fields.
	ErrInvalidInput = errors.New("community: invalid input")
	// ErrInvalidReaction indicates a reaction outside the closed enum for the
	// target kind.
	ErrInvalidReaction = errors.New("community: invalid reaction")
	// ErrPermissionDenied indicates the actor does not own the entity.
	ErrPermissionDenied = errors.New("community: permission denied")
)
