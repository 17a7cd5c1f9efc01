package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/store"
	"github.com/schaermu/ecm/internal/testutil"
)

func rec(name string, requires ...component.Record) component.Record {
	return component.Record{Name: name, Version: "1.0.0", Requires: requires}
}

func TestExports(t *testing.T) {
	tests := []struct {
		name   string
		forest component.Forest
		want   []string
	}{
		{
			name: "empty",
		},
		{
			name:   "shared dependency exported once",
			forest: component.Forest{rec("A", rec("B"), rec("C")), rec("D", rec("B"))},
			want:   []string{"A", "B", "C", "D"},
		},
		{
			name:   "unbounded depth",
			forest: component.Forest{rec("A", rec("B", rec("C", rec("D", rec("E")))))},
			want:   []string{"A", "B", "C", "D", "E"},
		},
		{
			name:   "nested before later top level",
			forest: component.Forest{rec("A", rec("X")), rec("X"), rec("B")},
			want:   []string{"A", "X", "B"},
		},
		{
			name:   "nameless entries skipped",
			forest: component.Forest{{}, rec("A", component.Record{})},
			want:   []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Exports(tt.forest)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Exports() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	forest := component.Forest{rec("A", rec("B"), rec("C")), rec("D", rec("B"))}
	want := `export * from "./A";
export * from "./B";
export * from "./C";
export * from "./D";`
	if got := Render(forest); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
	if got := Render(nil); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	content := testutil.NewMemStore()
	content.Put("components/index.js", "stale")

	g := NewGenerator(content, "components/index.js", testutil.Logger())
	text, err := g.Regenerate(ctx, component.Forest{rec("Card")})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	stored, _ := content.File("components/index.js")
	if stored != text || text != `export * from "./Card";` {
		t.Errorf("index not overwritten, got %q", stored)
	}

	content.WriteErr = testutil.ErrBoom
	if _, err := g.Regenerate(ctx, nil); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("expected persistence error, got %v", err)
	}
}
