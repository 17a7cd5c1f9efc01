package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormat is wrapped by every FormatError.
var ErrFormat = errors.New("invalid version format")

// FormatError reports a version string that is not a major.minor.patch triple
type FormatError struct {
	Version string
	Field   string // offending field, empty when the field count is wrong
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid version %q: expected major.minor.patch", e.Version)
	}
	return fmt.Sprintf("invalid version %q: field %q is not a non-negative integer", e.Version, e.Field)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// Version is a parsed major.minor.patch triple
type Version struct {
	Major int
	Minor int
	Patch int
}

// String renders the version as major.minor.patch
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Parse parses a three-part version string
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, &FormatError{Version: s}
	}

	fields := make([]int, 3)
	for i, p := range parts {
		if !digits(p) {
			return Version{}, &FormatError{Version: s, Field: p}
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, &FormatError{Version: s, Field: p}
		}
		fields[i] = n
	}

	return Version{Major: fields[0], Minor: fields[1], Patch: fields[2]}, nil
}

// digits reports whether p is a non-empty run of ASCII digits
func digits(p string) bool {
	if p == "" {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether s parses as a version
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare orders two versions as triples: -1, 0 or +1
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Satisfies reports whether the installed version is compatible with the
// required one. Compatibility is decided at minor granularity: major and
// minor must match, patch is ignored.
func Satisfies(installed, required string) (bool, error) {
	iv, err := Parse(installed)
	if err != nil {
		return false, err
	}
	rv, err := Parse(required)
	if err != nil {
		return false, err
	}
	return iv.Major == rv.Major && iv.Minor == rv.Minor, nil
}
