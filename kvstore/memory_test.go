package kvstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/types"
)

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	doc := types.Document{"id": "a1", "username": "walter"}
	if err := m.Write(ctx, "credentials/a1", doc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := m.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryReadMissing(t *testing.T) {
	m := kvstore.NewMemory()
	_, err := m.Read(context.Background(), "credentials/nope")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryWriteReplaces(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	if err := m.Write(ctx, "credentials/a1", types.Document{"id": "a1", "old": "field"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Write(ctx, "credentials/a1", types.Document{"id": "a1"}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := m.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := got["old"]; ok {
		t.Error("write merged instead of replacing")
	}
}

func TestMemoryIsolation(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	doc := types.Document{"id": "a1", "nested": map[string]any{"k": "v"}}
	if err := m.Write(ctx, "credentials/a1", doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Mutating what the caller handed in or got back must not reach the
	// stored copy.
	doc["id"] = "mutated"

	got, err := m.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got["id"] != "a1" {
		t.Error("store aliased the written document")
	}
	got["id"] = "mutated-again"
	got["nested"].(map[string]any)["k"] = "changed"

	again, err := m.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("re-Read: %v", err)
	}
	if again["id"] != "a1" || again["nested"].(map[string]any)["k"] != "v" {
		t.Error("store aliased the returned document")
	}
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	for _, path := range []string{"credentials/b1", "credentials/a1", "ssh_keys/k1"} {
		if err := m.Write(ctx, path, types.Document{"x": "y"}); err != nil {
			t.Fatalf("Write %s: %v", path, err)
		}
	}

	keys, err := m.List(ctx, "credentials")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "b1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryListMissingPath(t *testing.T) {
	m := kvstore.NewMemory()
	_, err := m.List(context.Background(), "credentials")
	if !errors.Is(err, types.ErrPathNotFound) {
		t.Errorf("error = %v, want ErrPathNotFound", err)
	}
}

func TestMemoryListDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	if err := m.Write(ctx, "credentials/a1", types.Document{"x": "y"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Write(ctx, "credentials/sub/deep", types.Document{"x": "y"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	keys, err := m.List(ctx, "credentials")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	m := kvstore.NewMemory()

	if err := m.Write(ctx, "credentials/a1", types.Document{"x": "y"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Delete(ctx, "credentials/a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "credentials/a1"); err != nil {
		t.Errorf("second Delete: %v, deleting an absent entry must be a no-op", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestMemoryHonorsContext(t *testing.T) {
	m := kvstore.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Read(ctx, "credentials/a1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Read error = %v, want context.Canceled", err)
	}
	if err := m.Write(ctx, "credentials/a1", types.Document{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
}
