// Package kvstore defines the path-based secret store client the
// repository engine runs against, along with in-memory, file-backed and
// Vault-backed implementations. The store exposes no query language:
// listing child keys under a path and fetching, writing or deleting one
// entry by full path is all there is.
package kvstore

import (
	"context"

	"github.com/secrepo/secrepo/types"
)

// Store is the client interface consumed by the engine.
//
// Implementations are treated as remote, possibly latent synchronous
// dependencies. Every method honors context cancellation. Timeouts and
// retries are the implementation's own business; callers add none.
type Store interface {
	// List returns the child key names directly under path, in the
	// backend's native order. Listing a path that does not exist fails
	// with types.ErrPathNotFound; an existing path with no children
	// returns an empty slice.
	List(ctx context.Context, path string) ([]string, error)

	// Read fetches the document at path, or types.ErrNotFound.
	Read(ctx context.Context, path string) (types.Document, error)

	// Write fully replaces the document at path. Never a merge: fields
	// absent from doc are gone afterwards even if present before.
	Write(ctx context.Context, path string, doc types.Document) error

	// Delete removes the entry at path. Deleting an absent entry is a
	// no-op, not an error.
	Delete(ctx context.Context, path string) error
}
