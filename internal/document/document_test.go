package document

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/ecm/internal/store"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantFront string
		wantBody  string
		wantOK    bool
	}{
		{
			name:      "empty manifest",
			text:      "---\ncomponents:\n---\n",
			wantFront: "components:\n",
			wantOK:    true,
		},
		{
			name:      "with body",
			text:      "---\ntitle: x\n---\n# Heading\ntext\n",
			wantFront: "title: x\n",
			wantBody:  "# Heading\ntext\n",
			wantOK:    true,
		},
		{
			name:      "no trailing newline",
			text:      "---\ntitle: x\n---",
			wantFront: "title: x\n",
			wantOK:    true,
		},
		{
			name:   "empty header",
			text:   "---\n---\nbody",
			wantOK: true, wantBody: "body",
		},
		{
			name:     "no frontmatter",
			text:     "just text\n",
			wantBody: "just text\n",
		},
		{
			name:     "unterminated",
			text:     "---\ntitle: x\n",
			wantBody: "---\ntitle: x\n",
		},
		{
			name:      "crlf",
			text:      "---\r\ntitle: x\r\n---\r\n",
			wantFront: "title: x\n",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			front, body, ok := split(tt.text)
			if front != tt.wantFront || body != tt.wantBody || ok != tt.wantOK {
				t.Errorf("split(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.text, front, body, ok, tt.wantFront, tt.wantBody, tt.wantOK)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	fm := map[string]any{
		"components": []map[string]any{{"name": "Button", "version": "1.0.0"}},
		"empty":      nil,
	}
	out, err := encode(fm)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(out, "null") {
		t.Errorf("nil value should render as a bare key, got:\n%s", out)
	}
	if strings.Index(out, "components") > strings.Index(out, "empty") {
		t.Errorf("keys should be sorted, got:\n%s", out)
	}

	back, err := decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := back["empty"]; !ok || back["empty"] != nil {
		t.Errorf("expected empty key with nil value, got %#v", back["empty"])
	}
	list, ok := back["components"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected one component, got %#v", back["components"])
	}

	if _, err := decode("components: [unclosed"); err == nil {
		t.Error("expected parse error")
	}
}

// exerciseDocuments runs the behaviour shared by every Store implementation
func exerciseDocuments(t *testing.T, docs Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := docs.ReadFrontmatter(ctx, "components/manifest.md"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("expected ErrNotExist for missing document, got %v", err)
	}

	err := docs.MutateFrontmatter(ctx, "components/manifest.md", func(fm map[string]any) error {
		fm["components"] = []map[string]any{{"name": "Card", "version": "2.1.0"}}
		return nil
	})
	if err != nil {
		t.Fatalf("MutateFrontmatter: %v", err)
	}

	err = docs.MutateFrontmatter(ctx, "components/manifest.md", func(fm map[string]any) error {
		list := fm["components"].([]any)
		fm["components"] = append(list, map[string]any{"name": "Icon", "version": "0.1.0"})
		return nil
	})
	if err != nil {
		t.Fatalf("second MutateFrontmatter: %v", err)
	}

	fm, err := docs.ReadFrontmatter(ctx, "components/manifest.md")
	if err != nil {
		t.Fatalf("ReadFrontmatter: %v", err)
	}
	list, ok := fm["components"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected two components, got %#v", fm["components"])
	}
	if name := list[1].(map[string]any)["name"]; name != "Icon" {
		t.Errorf("expected Icon second, got %v", name)
	}

	boom := errors.New("boom")
	err = docs.MutateFrontmatter(ctx, "components/manifest.md", func(fm map[string]any) error {
		fm["components"] = nil
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	fm, err = docs.ReadFrontmatter(ctx, "components/manifest.md")
	if err != nil {
		t.Fatal(err)
	}
	if list, _ := fm["components"].([]any); len(list) != 2 {
		t.Errorf("failed mutation must not be written, got %#v", fm["components"])
	}
}

func TestFrontmatter(t *testing.T) {
	exerciseDocuments(t, NewFrontmatter(store.NewDir(t.TempDir())))
}

func TestFrontmatter_PreservesBody(t *testing.T) {
	ctx := context.Background()
	content := store.NewDir(t.TempDir())
	if err := content.Write(ctx, "doc.md", "---\ntitle: old\n---\n# Notes\nkeep me\n"); err != nil {
		t.Fatal(err)
	}

	docs := NewFrontmatter(content)
	err := docs.MutateFrontmatter(ctx, "doc.md", func(fm map[string]any) error {
		fm["title"] = "new"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	text, err := content.Read(ctx, "doc.md")
	if err != nil {
		t.Fatal(err)
	}
	if text != "---\ntitle: new\n---\n# Notes\nkeep me\n" {
		t.Errorf("unexpected document:\n%s", text)
	}
}

func TestFrontmatter_EmptyManifest(t *testing.T) {
	ctx := context.Background()
	content := store.NewDir(t.TempDir())
	if err := content.Write(ctx, "manifest.md", "---\ncomponents:\n---\n"); err != nil {
		t.Fatal(err)
	}

	fm, err := NewFrontmatter(content).ReadFrontmatter(ctx, "manifest.md")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := fm["components"]; !ok || v != nil {
		t.Errorf("expected components key with nil value, got %#v", fm)
	}
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	docs, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ecm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() {
		_ = docs.Close()
	}()

	exerciseDocuments(t, docs)
}
