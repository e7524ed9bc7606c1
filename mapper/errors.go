package mapper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidDocumentKind is returned when constructing a document of a kind
	// that declares no fields.
	ErrInvalidDocumentKind = errors.New("docmap: document kind declares no fields")

	// ErrInvalidDocument is returned by Save when validation fails.
	ErrInvalidDocument = errors.New("docmap: invalid document")

	// ErrNotAllowed is returned when a removal has no criteria to select by.
	ErrNotAllowed = errors.New("docmap: operation not allowed without criteria")

	// ErrMissingField is returned when accessing a name that is neither a
	// declared field nor an instance value.
	ErrMissingField = errors.New("docmap: missing field")

	// ErrCoercion is matched by every *CoercionError.
	ErrCoercion = errors.New("docmap: cannot coerce value")

	// ErrUnbound is returned by Save and Delete on a document with no Manager.
	ErrUnbound = errors.New("docmap: document is not bound to a manager")

	// ErrDuplicateKind is returned when registering a second kind for a collection.
	ErrDuplicateKind = errors.New("docmap: kind already registered for collection")
)

// InvalidDocumentError carries the aggregated errors of a failed save.
type InvalidDocumentError struct {
	Collection string
	Errors     map[string]string
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("docmap: invalid %s document: %s", e.Collection, joinErrors(e.Errors))
}

// Unwrap lets errors.Is match ErrInvalidDocument.
func (e *InvalidDocumentError) Unwrap() error {
	return ErrInvalidDocument
}

// CoercionError reports a value that could not be converted to its field's type.
type CoercionError struct {
	Field string
	Type  Type
	Value any
	Err   error
}

func (e *CoercionError) Error() string {
	msg := fmt.Sprintf("docmap: field %q: cannot coerce %v (%T) to %s", e.Field, e.Value, e.Value, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrCoercion.
func (e *CoercionError) Is(target error) bool {
	return target == ErrCoercion
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

func missingField(name string) error {
	return fmt.Errorf("%w: %q", ErrMissingField, name)
}

// joinErrors renders an error map as "key: msg; key: msg" sorted by key.
func joinErrors(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + errs[k]
	}
	return strings.Join(parts, "; ")
}
