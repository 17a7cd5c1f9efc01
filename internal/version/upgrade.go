package version

import "fmt"

// Mode selects how IsUpgrade orders versions
type Mode string

const (
	// ModeLexicographic treats versions as ordered triples.
	ModeLexicographic Mode = "lexicographic"
	// ModePerField flags an upgrade when any single field grew, regardless
	// of the others. 2.0.0 -> 1.5.0 counts as an upgrade in this mode.
	ModePerField Mode = "per-field"
)

// ParseMode validates a configured mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeLexicographic, nil
	case ModeLexicographic, ModePerField:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown upgrade mode %q (must be lexicographic or per-field)", s)
}

// Comparator decides whether a candidate version replaces the current one
type Comparator struct {
	Mode Mode
}

// NewComparator creates a comparator for the given mode
func NewComparator(mode Mode) Comparator {
	if mode == "" {
		mode = ModeLexicographic
	}
	return Comparator{Mode: mode}
}

// IsUpgrade reports whether candidate should replace current
func (c Comparator) IsUpgrade(current, candidate string) (bool, error) {
	cur, err := Parse(current)
	if err != nil {
		return false, err
	}
	cand, err := Parse(candidate)
	if err != nil {
		return false, err
	}

	if c.Mode == ModePerField {
		return cand.Major > cur.Major || cand.Minor > cur.Minor || cand.Patch > cur.Patch, nil
	}
	return Compare(cand, cur) > 0, nil
}

// IsUpgrade compares with the default lexicographic mode
func IsUpgrade(current, candidate string) (bool, error) {
	return NewComparator(ModeLexicographic).IsUpgrade(current, candidate)
}
