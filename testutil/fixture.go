// Package testutil provides the shared fixture universe and store
// wrappers used across package tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/registry"
	"github.com/secrepo/secrepo/types"
)

// Credentials is the canonical test entity: a secret-store record with a
// string identifier and a couple of sortable fields.
type Credentials struct {
	ID       string `secret:"id"`
	Username string
	Password string
	Rank     int
}

// Universe bundles a fresh in-memory store and registry with Credentials
// already registered under the "credentials" keyspace.
type Universe struct {
	Store    *kvstore.Memory
	Registry *registry.Registry
	Meta     *registry.Descriptor
}

// NewUniverse creates an empty fixture universe.
func NewUniverse(t *testing.T) *Universe {
	t.Helper()
	reg := registry.New()
	meta, err := reg.Register(Credentials{}, registry.WithKeyspace("credentials"))
	if err != nil {
		t.Fatalf("registering fixture type: %v", err)
	}
	return &Universe{
		Store:    kvstore.NewMemory(),
		Registry: reg,
		Meta:     meta,
	}
}

// Seed writes raw credential documents straight into the store, bypassing
// the converter, one per id. Rank counts up in seeding order.
func (u *Universe) Seed(t *testing.T, ids ...string) {
	t.Helper()
	for i, id := range ids {
		doc := types.Document{
			"id":       id,
			"username": id + "-user",
			"password": "s3cr3t",
			"rank":     int64(i + 1),
		}
		if err := u.Store.Write(context.Background(), "credentials/"+id, doc); err != nil {
			t.Fatalf("seeding %s: %v", id, err)
		}
	}
}

// CountingStore wraps a Store and counts operations, so tests can assert
// how many fetches a query plan issued.
type CountingStore struct {
	kvstore.Store

	mu      sync.Mutex
	Lists   int
	Reads   int
	Writes  int
	Deletes int
}

// NewCountingStore wraps next.
func NewCountingStore(next kvstore.Store) *CountingStore {
	return &CountingStore{Store: next}
}

func (c *CountingStore) List(ctx context.Context, path string) ([]string, error) {
	c.mu.Lock()
	c.Lists++
	c.mu.Unlock()
	return c.Store.List(ctx, path)
}

func (c *CountingStore) Read(ctx context.Context, path string) (types.Document, error) {
	c.mu.Lock()
	c.Reads++
	c.mu.Unlock()
	return c.Store.Read(ctx, path)
}

func (c *CountingStore) Write(ctx context.Context, path string, doc types.Document) error {
	c.mu.Lock()
	c.Writes++
	c.mu.Unlock()
	return c.Store.Write(ctx, path, doc)
}

func (c *CountingStore) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	c.Deletes++
	c.mu.Unlock()
	return c.Store.Delete(ctx, path)
}

// FailingStore wraps a Store and fails selected operations, for testing
// the no-partial-results contract.
type FailingStore struct {
	kvstore.Store

	ListErr error
	ReadErr error
	// ReadErrAfter fails reads only once this many have succeeded.
	ReadErrAfter int

	reads int
}

func (f *FailingStore) List(ctx context.Context, path string) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Store.List(ctx, path)
}

func (f *FailingStore) Read(ctx context.Context, path string) (types.Document, error) {
	if f.ReadErr != nil {
		f.reads++
		if f.reads > f.ReadErrAfter {
			return nil, f.ReadErr
		}
	}
	return f.Store.Read(ctx, path)
}
