package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with current state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the identity lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldErrors maps request fields to messages. It matches ErrValidation.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold for field errors.
func (f FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
