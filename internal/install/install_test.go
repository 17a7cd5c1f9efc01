package install

import (
	"context"
	"errors"
	"testing"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/store"
	"github.com/schaermu/ecm/internal/testutil"
)

func record(name, ver string) component.Record {
	return component.Record{
		Name:     name,
		Version:  ver,
		Source:   testutil.SourceURL(name, ver),
		FilePath: "components/" + name + ".jsx",
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	reg := testutil.NewRegistry()
	reg.Publish(testutil.Component{Name: "Icon", Version: "1.0.0"})
	reg.Publish(testutil.Component{Name: "Card", Version: "2.0.0"})

	content := testutil.NewMemStore()
	content.Put("components/Card.jsx", "old")

	inst := New(reg, content, "components", testutil.Logger())
	if err := inst.Apply(ctx, resolve.Plan{record("Icon", "1.0.0"), record("Card", "2.0.0")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if ok, _ := content.Exists(ctx, "components"); !ok {
		t.Error("components folder should be created")
	}
	if text, _ := content.File("components/Card.jsx"); text != testutil.Source("Card", "2.0.0") {
		t.Errorf("Card not overwritten, got %q", text)
	}
	if len(content.Writes) != 2 || content.Writes[0] != "components/Icon.jsx" {
		t.Errorf("unexpected write order %v", content.Writes)
	}
}

func TestApply_StopsOnFailure(t *testing.T) {
	ctx := context.Background()
	reg := testutil.NewRegistry()
	reg.Publish(testutil.Component{Name: "Icon", Version: "1.0.0"})

	content := testutil.NewMemStore()
	inst := New(reg, content, "components", testutil.Logger())

	err := inst.Apply(ctx, resolve.Plan{record("Icon", "1.0.0"), record("Missing", "1.0.0"), record("Icon", "1.0.0")})
	if !errors.Is(err, fetch.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if len(content.Writes) != 1 {
		t.Errorf("expected first file kept and nothing after the failure, got %v", content.Writes)
	}
}

func TestMaterialize_WriteFailure(t *testing.T) {
	reg := testutil.NewRegistry()
	reg.Publish(testutil.Component{Name: "Icon", Version: "1.0.0"})
	content := testutil.NewMemStore()
	content.WriteErr = testutil.ErrBoom

	err := New(reg, content, "components", testutil.Logger()).Materialize(context.Background(), record("Icon", "1.0.0"))
	if !errors.Is(err, store.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	content := testutil.NewMemStore()
	content.Put("components/Icon.jsx", "x")
	inst := New(testutil.NewRegistry(), content, "components", testutil.Logger())

	if err := inst.Remove(ctx, record("Icon", "1.0.0")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := content.File("components/Icon.jsx"); ok {
		t.Error("file should be deleted")
	}

	if err := inst.Remove(ctx, record("Icon", "1.0.0")); err != nil {
		t.Errorf("removing a missing file should succeed, got %v", err)
	}
	if len(content.Deletes) != 1 {
		t.Errorf("missing file must not be deleted again, got %v", content.Deletes)
	}
}
