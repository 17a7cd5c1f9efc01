package component

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrManifestFormat is wrapped by ManifestFormatError
	ErrManifestFormat = errors.New("invalid manifest format")
	// ErrProtected is wrapped by ProtectedError
	ErrProtected = errors.New("component is protected")
	// ErrNotFound is wrapped by NotFoundError
	ErrNotFound = errors.New("component not found")
)

// ManifestFormatError reports a remote descriptor that cannot be installed
type ManifestFormatError struct {
	URL     string
	Missing []string // required fields that were absent
	Invalid []string // fields that were present but malformed
	Err     error    // decode error, if the document was not JSON
}

func (e *ManifestFormatError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return fmt.Sprintf("invalid manifest format at %s: %s", e.URL, strings.Join(parts, "; "))
}

func (e *ManifestFormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrManifestFormat, e.Err}
	}
	return []error{ErrManifestFormat}
}

// ProtectedError is returned when deleting a protected component
type ProtectedError struct {
	Name string
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("component %s is protected and cannot be deleted", e.Name)
}

func (e *ProtectedError) Unwrap() error { return ErrProtected }

// NotFoundError is returned when a named top-level component is not installed
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("component %s is not installed", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
