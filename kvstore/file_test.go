package kvstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/types"
)

func newFileStore(t *testing.T) *kvstore.File {
	t.Helper()
	f, err := kvstore.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return f
}

func TestFileReadWrite(t *testing.T) {
	ctx := context.Background()
	f := newFileStore(t)

	doc := types.Document{"id": "a1", "username": "walter", "rank": float64(3)}
	if err := f.Write(ctx, "credentials/a1", doc); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := f.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// JSON round trip: numbers come back as float64.
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestFileReadMissing(t *testing.T) {
	f := newFileStore(t)
	_, err := f.Read(context.Background(), "credentials/nope")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFileWriteReplaces(t *testing.T) {
	ctx := context.Background()
	f := newFileStore(t)

	if err := f.Write(ctx, "credentials/a1", types.Document{"old": "field"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Write(ctx, "credentials/a1", types.Document{"id": "a1"}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := f.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := got["old"]; ok {
		t.Error("write merged instead of replacing")
	}
}

func TestFileList(t *testing.T) {
	ctx := context.Background()
	f := newFileStore(t)

	for _, id := range []string{"b1", "a1", "a2"} {
		if err := f.Write(ctx, "credentials/"+id, types.Document{"id": id}); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	keys, err := f.List(ctx, "credentials")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "b1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFileListMissingPath(t *testing.T) {
	f := newFileStore(t)
	_, err := f.List(context.Background(), "credentials")
	if !errors.Is(err, types.ErrPathNotFound) {
		t.Errorf("error = %v, want ErrPathNotFound", err)
	}
}

func TestFileListSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := kvstore.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := f.Write(ctx, "credentials/a1", types.Document{"id": "a1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials", "README.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("planting foreign file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "credentials", "subdir"), 0o755); err != nil {
		t.Fatalf("planting subdir: %v", err)
	}

	keys, err := f.List(ctx, "credentials")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFileDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFileStore(t)

	if err := f.Write(ctx, "credentials/a1", types.Document{"id": "a1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Delete(ctx, "credentials/a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.Delete(ctx, "credentials/a1"); err != nil {
		t.Errorf("second Delete: %v, deleting an absent entry must be a no-op", err)
	}
	if _, err := f.Read(ctx, "credentials/a1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Read after delete: %v", err)
	}
}

func TestFileSharedDirectory(t *testing.T) {
	// Two stores over one directory see each other's writes, the way
	// separate processes sharing a data directory would.
	ctx := context.Background()
	dir := t.TempDir()

	first, err := kvstore.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	second, err := kvstore.NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := first.Write(ctx, "credentials/a1", types.Document{"id": "a1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := second.Read(ctx, "credentials/a1")
	if err != nil {
		t.Fatalf("Read from second store: %v", err)
	}
	if got["id"] != "a1" {
		t.Errorf("got %v", got)
	}
}
