package types

import "errors"

var (
	// ErrInvalidIdentifier reports an identifier that cannot form a store
	// path: empty, or containing a path separator.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnsupportedPredicate reports a derived query clause targeting a
	// property other than the identifier. Only identifier predicates can
	// be pushed down to a path-based store.
	ErrUnsupportedPredicate = errors.New("unsupported predicate")

	// ErrUnsupportedKeyword reports a clause suffix that matches no entry
	// in the operator keyword table.
	ErrUnsupportedKeyword = errors.New("unsupported keyword")

	// ErrStoreUnavailable wraps transport failures from the backing store.
	// Queries that hit it abort whole; partial results are never returned.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound reports an absent entry. Read paths translate it into an
	// empty result rather than surfacing it.
	ErrNotFound = errors.New("not found")

	// ErrPathNotFound reports a list operation on a path that does not
	// exist at all, as opposed to one that exists but has no children.
	ErrPathNotFound = errors.New("path not found")

	// ErrConversion reports a document that cannot be mapped to its target
	// type: a missing discriminator for an interface field, an unregistered
	// class name, or a scalar that cannot be coerced.
	ErrConversion = errors.New("conversion error")
)
