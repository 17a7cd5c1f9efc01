package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	v, err := Parse("1.2.3")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v != (Version{Major: 1, Minor: 2, Patch: 3}) {
		t.Errorf("expected 1.2.3, got %+v", v)
	}
	if v.String() != "1.2.3" {
		t.Errorf("expected String() 1.2.3, got %s", v.String())
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"1.a.3", "1.2", "1.2.3.4", "", "a.b.c", "1.-2.3", "1..3", "+1.2.3", "-0.1.0", "1.+2.3", "1.2. 3"} {
		t.Run(s, func(t *testing.T) {
			_, err := Parse(s)
			if err == nil {
				t.Fatalf("expected error for %q", s)
			}
			if !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %T", err)
			}
			if fe.Version != s {
				t.Errorf("expected version %q in error, got %q", s, fe.Version)
			}
		})
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		installed string
		required  string
		want      bool
	}{
		{"1.2.3", "1.2.9", true},
		{"1.2.3", "1.2.0", true},
		{"1.2.3", "1.3.0", false},
		{"1.2.3", "2.2.3", false},
		{"0.0.1", "0.0.9", true},
	}

	for _, tt := range tests {
		got, err := Satisfies(tt.installed, tt.required)
		if err != nil {
			t.Fatalf("Satisfies(%s, %s): %v", tt.installed, tt.required, err)
		}
		if got != tt.want {
			t.Errorf("Satisfies(%s, %s) = %v, want %v", tt.installed, tt.required, got, tt.want)
		}
	}
}

func TestSatisfies_InvalidVersion(t *testing.T) {
	if _, err := Satisfies("1.2.x", "1.2.3"); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	if _, err := Satisfies("1.2.3", "latest"); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestIsUpgrade(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		current   string
		candidate string
		want      bool
	}{
		{"patch bump", ModeLexicographic, "1.2.3", "1.2.4", true},
		{"same", ModeLexicographic, "1.2.3", "1.2.3", false},
		{"minor bump", ModeLexicographic, "1.2.3", "1.3.0", true},
		{"major bump", ModeLexicographic, "1.2.3", "2.0.0", true},
		{"downgrade", ModeLexicographic, "1.2.3", "1.2.2", false},
		{"lower major higher minor", ModeLexicographic, "2.0.0", "1.5.0", false},
		{"per-field patch bump", ModePerField, "1.2.3", "1.2.4", true},
		{"per-field same", ModePerField, "1.2.3", "1.2.3", false},
		{"per-field lower major higher minor", ModePerField, "2.0.0", "1.5.0", true},
		{"per-field lower minor higher patch", ModePerField, "1.3.0", "1.2.9", true},
		{"per-field downgrade", ModePerField, "1.2.3", "1.2.2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewComparator(tt.mode).IsUpgrade(tt.current, tt.candidate)
			if err != nil {
				t.Fatalf("IsUpgrade: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsUpgrade(%s, %s) = %v, want %v", tt.current, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestIsUpgrade_DefaultMode(t *testing.T) {
	up, err := IsUpgrade("1.2.3", "1.2.4")
	if err != nil || !up {
		t.Errorf("expected upgrade, got %v (err %v)", up, err)
	}
	if _, err := IsUpgrade("1.2.3", "nope"); !errors.Is(err, ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeLexicographic {
		t.Errorf("empty mode: got %q, %v", m, err)
	}
	if m, err := ParseMode("per-field"); err != nil || m != ModePerField {
		t.Errorf("per-field: got %q, %v", m, err)
	}
	if _, err := ParseMode("semver"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCompare(t *testing.T) {
	a := Version{1, 2, 3}
	if Compare(a, a) != 0 {
		t.Error("expected equal")
	}
	if Compare(Version{1, 3, 0}, a) != 1 {
		t.Error("expected greater")
	}
	if Compare(Version{0, 9, 9}, a) != -1 {
		t.Error("expected less")
	}
}
