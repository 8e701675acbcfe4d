package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/secrepo/secrepo/types"
)

// Memory is an in-process Store for tests and examples. Documents are
// deep-copied on the way in and out so callers cannot alias internal
// state. The listing order is sorted by default but can be replaced to
// prove that query results do not depend on it.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]types.Document
	listOrder func([]string) []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]types.Document)}
}

// SetListOrder replaces the ordering applied to List results. The
// function receives the child keys and returns them in the order List
// should yield them.
func (m *Memory) SetListOrder(order func([]string) []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listOrder = order
}

// List implements Store.
func (m *Memory) List(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := path + "/"
	var keys []string
	found := false
	for p := range m.entries {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		found = true
		child := p[len(prefix):]
		if strings.Contains(child, "/") {
			continue // not a direct child
		}
		keys = append(keys, child)
	}
	if !found {
		return nil, types.ErrPathNotFound
	}
	if m.listOrder != nil {
		return m.listOrder(keys), nil
	}
	sort.Strings(keys)
	return keys, nil
}

// Read implements Store.
func (m *Memory) Read(ctx context.Context, path string) (types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.entries[path]
	if !ok {
		return nil, types.ErrNotFound
	}
	return copyDocument(doc), nil
}

// Write implements Store.
func (m *Memory) Write(ctx context.Context, path string, doc types.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = copyDocument(doc)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, path)
	return nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func copyDocument(doc types.Document) types.Document {
	out := make(types.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case types.Document:
		return copyDocument(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
