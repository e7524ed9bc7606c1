package store

import "errors"

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("docmap: record not found")

	// ErrAlreadyExists is returned by Insert when a record with the same identity exists.
	ErrAlreadyExists = errors.New("docmap: record already exists")

	// ErrInvalidCollection is returned when a collection name cannot be used by the backend.
	ErrInvalidCollection = errors.New("docmap: invalid collection name")

	// ErrMissingIdentity is returned when an operation needs a record identity and none was given.
	ErrMissingIdentity = errors.New("docmap: record has no identity")
)
