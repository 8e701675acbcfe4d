package parser

import (
	"sync"

	"github.com/secrepo/secrepo/types"
)

// Cache memoizes parsed descriptors per method name. Parsing the same
// name twice under a race is harmless; the cache only ever publishes
// fully-built descriptors, so readers can never observe a partial one.
type Cache struct {
	descriptors sync.Map // method name -> *types.QueryDescriptor
}

// NewCache creates an empty descriptor cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached descriptor for a method name, parsing it on
// first use. Parse failures are not cached; they are permanent errors the
// caller is expected to surface at registration time.
func (c *Cache) Get(method, idProperty string) (*types.QueryDescriptor, error) {
	if d, ok := c.descriptors.Load(method); ok {
		return d.(*types.QueryDescriptor), nil
	}
	d, err := Parse(method, idProperty)
	if err != nil {
		return nil, err
	}
	actual, _ := c.descriptors.LoadOrStore(method, d)
	return actual.(*types.QueryDescriptor), nil
}
