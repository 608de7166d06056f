package vectorindex

import (
	"context"
	"testing"

	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/testutil"
)

// vec pads the given components to the schema's vector dimension.
func vec(components ...float32) []float32 {
	v := make([]float32, 1536)
	copy(v, components)
	return v
}

// TestIndexIntegration shares one container across subtests; each subtest
// works in its own tenant so they cannot observe each other.
func TestIndexIntegration(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ix := New(pool, log.NewNop())
	ctx := context.Background()

	t.Run("upsert and query", func(t *testing.T) {
		ns := Namespace{Tenant: "t-query", Collection: "knowledge"}
		records := []Record{
			{ID: "a", Vector: vec(1, 0), Payload: map[string]any{"content": "alpha"}},
			{ID: "b", Vector: vec(0, 1), Payload: map[string]any{"content": "beta"}},
			{ID: "c", Vector: vec(1, 0.2), Payload: map[string]any{"content": "gamma"}},
		}
		if err := ix.Upsert(ctx, ns, records); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		matches, err := ix.Query(ctx, ns, vec(1, 0), WithMinSimilarity(0.5))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("matches = %d, want 2 (orthogonal record filtered)", len(matches))
		}
		if matches[0].ID != "a" {
			t.Errorf("nearest match = %q, want a", matches[0].ID)
		}
		if matches[0].Similarity < 0.99 {
			t.Errorf("identical vector similarity = %v, want ~1.0", matches[0].Similarity)
		}
		if matches[0].Payload["content"] != "alpha" {
			t.Errorf("payload content = %v, want alpha", matches[0].Payload["content"])
		}
		if matches[1].Similarity > matches[0].Similarity {
			t.Error("matches not ordered by descending similarity")
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		nsA := Namespace{Tenant: "t-iso-a", Collection: "knowledge"}
		nsB := Namespace{Tenant: "t-iso-b", Collection: "knowledge"}
		if err := ix.Upsert(ctx, nsA, []Record{{ID: "secret", Vector: vec(1)}}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		matches, err := ix.Query(ctx, nsB, vec(1), WithMinSimilarity(0))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("matches = %d, want 0 across tenants", len(matches))
		}
	})

	t.Run("upsert replaces", func(t *testing.T) {
		ns := Namespace{Tenant: "t-replace", Collection: "knowledge"}
		if err := ix.Upsert(ctx, ns, []Record{{ID: "x", Vector: vec(1), Payload: map[string]any{"rev": "old"}}}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if err := ix.Upsert(ctx, ns, []Record{{ID: "x", Vector: vec(1), Payload: map[string]any{"rev": "new"}}}); err != nil {
			t.Fatalf("Upsert() replace error = %v", err)
		}
		n, err := ix.Count(ctx, ns)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 1 {
			t.Fatalf("Count() = %d, want 1 after replace", n)
		}
		matches, err := ix.Query(ctx, ns, vec(1), WithMinSimilarity(0))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if matches[0].Payload["rev"] != "new" {
			t.Errorf("payload rev = %v, want new", matches[0].Payload["rev"])
		}
	})

	t.Run("query filter", func(t *testing.T) {
		ns := Namespace{Tenant: "t-filter", Collection: "knowledge"}
		err := ix.Upsert(ctx, ns, []Record{
			{ID: "d1:0", Vector: vec(1), Payload: map[string]any{"document_id": "d1"}},
			{ID: "d2:0", Vector: vec(1), Payload: map[string]any{"document_id": "d2"}},
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		matches, err := ix.Query(ctx, ns, vec(1),
			WithMinSimilarity(0), WithFilter(map[string]any{"document_id": "d2"}))
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(matches) != 1 || matches[0].ID != "d2:0" {
			t.Fatalf("filtered matches = %+v, want only d2:0", matches)
		}
	})

	t.Run("delete matching", func(t *testing.T) {
		ns := Namespace{Tenant: "t-delmatch", Collection: "knowledge"}
		err := ix.Upsert(ctx, ns, []Record{
			{ID: "d1:0", Vector: vec(1), Payload: map[string]any{"document_id": "d1"}},
			{ID: "d1:1", Vector: vec(0, 1), Payload: map[string]any{"document_id": "d1"}},
			{ID: "d2:0", Vector: vec(1), Payload: map[string]any{"document_id": "d2"}},
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		n, err := ix.DeleteMatching(ctx, ns, map[string]any{"document_id": "d1"})
		if err != nil {
			t.Fatalf("DeleteMatching() error = %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteMatching() = %d, want 2", n)
		}
		left, err := ix.Count(ctx, ns)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if left != 1 {
			t.Errorf("Count() = %d, want 1", left)
		}
		if _, err := ix.DeleteMatching(ctx, ns, nil); err == nil {
			t.Error("DeleteMatching() with empty filter succeeded, want error")
		}
	})

	t.Run("delete ids", func(t *testing.T) {
		ns := Namespace{Tenant: "t-delete", Collection: "knowledge"}
		if err := ix.Upsert(ctx, ns, []Record{{ID: "a", Vector: vec(1)}, {ID: "b", Vector: vec(0, 1)}}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if err := ix.Delete(ctx, ns, []string{"a", "missing"}); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		n, err := ix.Count(ctx, ns)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Count() = %d, want 1", n)
		}
	})

	t.Run("delete tenant", func(t *testing.T) {
		tenant := "t-offboard"
		for _, coll := range []string{"knowledge", "notes"} {
			ns := Namespace{Tenant: tenant, Collection: coll}
			if err := ix.Upsert(ctx, ns, []Record{{ID: "r", Vector: vec(1)}}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
		}
		n, err := ix.DeleteTenant(ctx, tenant)
		if err != nil {
			t.Fatalf("DeleteTenant() error = %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteTenant() = %d, want 2", n)
		}
	})

	t.Run("health", func(t *testing.T) {
		if err := ix.Health(ctx); err != nil {
			t.Errorf("Health() error = %v", err)
		}
	})
}
