package knnsearch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/knnsearch/internal/db/dbtest"
)

func TestGetCountDrop(t *testing.T) {
	store := dbtest.New()
	c := newTestClient(t, store)
	ctx := context.Background()

	if _, err := c.Index(ctx, "products", strings.NewReader(catalog)); err != nil {
		t.Fatal(err)
	}

	doc, err := c.Get(ctx, "products", "2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc["name"] != "Blue Cap" {
		t.Errorf("unexpected name %v", doc["name"])
	}
	if _, ok := doc["description_vector"]; ok {
		t.Error("vector should be stripped")
	}

	if _, err := c.Get(ctx, "products", "3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("skipped document: expected ErrNotFound, got %v", err)
	}

	n, err := c.Count(ctx, "products")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 documents, got %d", n)
	}

	if err := c.Drop(ctx, "products"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := c.Count(ctx, "products"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("after drop: expected ErrIndexNotFound, got %v", err)
	}
	if err := c.Drop(ctx, "products"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("second drop: expected ErrIndexNotFound, got %v", err)
	}
	if _, err := c.Get(ctx, "products", "2"); err != nil {
		t.Errorf("documents should survive a drop: %v", err)
	}
}
