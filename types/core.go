// Package types defines the shared core types for secrepo: the
// semi-structured document representation used for store I/O, page and
// sort requests, parsed query descriptors, and the error taxonomy.
package types

// Discriminator is the reserved document field naming the concrete Go
// type of a polymorphic value. It is emitted at the document root and at
// every nested field whose declared type is an interface, and read back
// during reconstruction to pick the registered concrete type.
const Discriminator = "_class"

// Document is the semi-structured projection of an entity: string keys
// mapping to scalars, ordered sequences ([]any), mappings (map[string]any),
// or nested Documents. A Document is built fresh on every write and
// discarded after conversion; it is never persisted as an intermediate.
type Document map[string]any

// Class returns the discriminator value of the document, if present.
func (d Document) Class() (string, bool) {
	v, ok := d[Discriminator]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Sort describes an ordering over a single entity field.
type Sort struct {
	Field      string
	Descending bool
}

// PageRequest carries caller-supplied pagination and ordering, orthogonal
// to the statically parsed query descriptor. A nil *PageRequest means no
// runtime paging. When both a descriptor OrderBy and a request Sort are
// present, the request wins.
type PageRequest struct {
	Offset int
	Limit  int // 0 means no limit
	Sort   *Sort
}

// Page is a window of results plus the size of the full filtered set the
// window was cut from.
type Page[T any] struct {
	Items  []T
	Total  int
	Offset int
	Limit  int
}
