// Package keypath maps between (keyspace, identifier) pairs and store
// paths. All entities of one type live directly under their keyspace, so
// the full path of an entity is always keyspace + "/" + id.
package keypath

import (
	"fmt"
	"strings"

	"github.com/secrepo/secrepo/types"
)

// ToPath returns the store path for an identifier within a keyspace.
// The identifier must be non-empty and must not contain a path separator,
// which would produce an ambiguous or escaping path. No case or encoding
// normalization is applied.
func ToPath(keyspace, id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}
	return keyspace + "/" + id, nil
}

// FromChildKey recovers the identifier from a child key returned by a
// listing of the keyspace path. The store lists keys relative to the
// queried path, so the child key already is the identifier.
func FromChildKey(keyspace, childKey string) string {
	return childKey
}

// Validate checks that id can form a store path.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("empty identifier: %w", types.ErrInvalidIdentifier)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("identifier %q contains a path separator: %w", id, types.ErrInvalidIdentifier)
	}
	return nil
}
