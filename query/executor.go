// Package query executes parsed query descriptors against a path-based
// store. The store cannot filter, sort or page, so the executor drives a
// fixed plan: list the keyspace's child keys, evaluate the predicate
// against the identifiers, fetch, sort, then cut the requested window.
//
// The plan's order is what makes results stable: whenever sorting or
// limiting is requested, every surviving entity is fetched before
// truncation, so a given offset and limit always see the same window no
// matter what order the backend lists keys in. The price is fetching
// every match when a sort or limit is present; that trade-off is
// deliberate.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/secrepo/secrepo/convert"
	"github.com/secrepo/secrepo/keypath"
	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/registry"
	"github.com/secrepo/secrepo/types"
)

// Executor runs descriptors for one entity type against a store.
type Executor struct {
	store kvstore.Store
	conv  *convert.Converter
	meta  *registry.Descriptor
	log   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a logger for query debug output. Without one the
// executor is silent.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates an executor for one registered entity type.
func NewExecutor(store kvstore.Store, conv *convert.Converter, meta *registry.Descriptor, opts ...Option) *Executor {
	e := &Executor{store: store, conv: conv, meta: meta}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Find runs a find-verb descriptor and returns the matching entities as
// pointers to the entity struct, in result order.
func (e *Executor) Find(ctx context.Context, qd *types.QueryDescriptor, args []any, page *types.PageRequest) ([]any, error) {
	entities, _, err := e.find(ctx, qd, args, page)
	return entities, err
}

// FindPaged is Find plus the size of the complete filtered set, for
// callers that need page metadata.
func (e *Executor) FindPaged(ctx context.Context, qd *types.QueryDescriptor, args []any, page *types.PageRequest) ([]any, int, error) {
	return e.find(ctx, qd, args, page)
}

// Count lists and filters without fetching a single document.
func (e *Executor) Count(ctx context.Context, qd *types.QueryDescriptor, args []any) (int, error) {
	ids, err := e.matchingIDs(ctx, qd, args)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Exists reports whether any identifier matches. No documents are fetched.
func (e *Executor) Exists(ctx context.Context, qd *types.QueryDescriptor, args []any) (bool, error) {
	ids, err := e.matchingIDs(ctx, qd, args)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// Delete removes every matching entry and returns how many deletes were
// issued. Deleting a key that vanished meanwhile is a no-op.
func (e *Executor) Delete(ctx context.Context, qd *types.QueryDescriptor, args []any) (int, error) {
	ids, err := e.matchingIDs(ctx, qd, args)
	if err != nil {
		return 0, err
	}
	for n, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		path, err := keypath.ToPath(e.meta.Keyspace, id)
		if err != nil {
			return n, err
		}
		if err := e.store.Delete(ctx, path); err != nil {
			return n, e.storeError("delete", err)
		}
	}
	return len(ids), nil
}

func (e *Executor) find(ctx context.Context, qd *types.QueryDescriptor, args []any, page *types.PageRequest) ([]any, int, error) {
	ids, err := e.matchingIDs(ctx, qd, args)
	if err != nil {
		return nil, 0, err
	}
	total := len(ids)

	sortSpec := qd.Sort
	if page != nil && page.Sort != nil {
		// Caller-supplied ordering wins over the parsed OrderBy clause.
		sortSpec = page.Sort
	}
	offset := 0
	limit := qd.Limit
	if page != nil {
		offset = page.Offset
		if page.Limit > 0 {
			limit = page.Limit
		}
	}

	if e.log != nil {
		e.log.Debug("executing query",
			"method", qd.Source,
			"keyspace", e.meta.Keyspace,
			"candidates", total,
			"sorted", sortSpec != nil,
			"limit", limit)
	}

	// Without sorting or limiting there is nothing to compute over the
	// full set; fetch exactly what is returned, in listing order.
	if sortSpec == nil && limit == 0 && offset == 0 {
		entities, err := e.fetch(ctx, ids)
		return entities, total, err
	}

	if sortSpec == nil {
		// Limit without sort: truncate the key list first, fetch only
		// the window.
		entities, err := e.fetch(ctx, window(ids, offset, limit))
		return entities, total, err
	}

	// Sorting may target a field only discoverable after fetch, and the
	// limit must reflect post-sort order, so the whole candidate set is
	// fetched before truncation.
	entities, err := e.fetch(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	if err := e.sortEntities(entities, sortSpec); err != nil {
		return nil, 0, err
	}
	return window(entities, offset, limit), total, nil
}

// matchingIDs lists the keyspace and evaluates the predicate against each
// identifier. A keyspace that does not exist yet is an empty result.
func (e *Executor) matchingIDs(ctx context.Context, qd *types.QueryDescriptor, args []any) ([]string, error) {
	match, err := BindPredicate(qd, args)
	if err != nil {
		return nil, err
	}
	keys, err := e.store.List(ctx, e.meta.Keyspace)
	if errors.Is(err, types.ErrPathNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, e.storeError("list", err)
	}
	matched := keys[:0:0]
	for _, key := range keys {
		id := keypath.FromChildKey(e.meta.Keyspace, key)
		ok, err := match(id)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// fetch reads the documents for ids in order and converts them. An entry
// that disappeared between listing and fetch is silently excluded; any
// other failure aborts the whole query.
func (e *Executor) fetch(ctx context.Context, ids []string) ([]any, error) {
	entities := make([]any, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := keypath.ToPath(e.meta.Keyspace, id)
		if err != nil {
			return nil, err
		}
		doc, err := e.store.Read(ctx, path)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, e.storeError("read", err)
		}
		entity, err := e.conv.ToEntity(doc, e.meta.GoType)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// sortEntities stable-sorts by the requested field and direction, ties
// broken by identifier ascending so equal sort keys still order
// deterministically.
func (e *Executor) sortEntities(entities []any, spec *types.Sort) error {
	field, ok := e.meta.FieldByGoName(spec.Field)
	if !ok {
		field, ok = e.meta.FieldByName(spec.Field)
	}
	if !ok {
		return fmt.Errorf("unknown sort field %q for type %s", spec.Field, e.meta.GoType.Name())
	}

	var sortErr error
	sort.SliceStable(entities, func(i, j int) bool {
		vi := fieldValue(entities[i], field.Index)
		vj := fieldValue(entities[j], field.Index)
		c, err := compareValues(vi, vj)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if c == 0 {
			return e.meta.ID(entities[i]) < e.meta.ID(entities[j])
		}
		if spec.Descending {
			return c > 0
		}
		return c < 0
	})
	return sortErr
}

func fieldValue(entity any, index int) reflect.Value {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.Field(index)
}

// compareValues orders two field values: numerically for numeric kinds,
// lexicographically for everything else via the string form.
func compareValues(a, b reflect.Value) (int, error) {
	for a.Kind() == reflect.Ptr {
		if a.IsNil() || b.IsNil() {
			return boolCompare(!a.IsNil(), !b.IsNil()), nil
		}
		a, b = a.Elem(), b.Elem()
	}
	switch a.Kind() {
	case reflect.String:
		return strings.Compare(a.String(), b.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numCompare(float64(a.Int()), float64(b.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return numCompare(float64(a.Uint()), float64(b.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return numCompare(a.Float(), b.Float()), nil
	case reflect.Bool:
		return boolCompare(a.Bool(), b.Bool()), nil
	default:
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface())), nil
	}
}

func numCompare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

// window cuts offset/limit out of a slice without copying.
func window[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// storeError keeps cancellation and existing store-unavailable errors
// intact and folds anything else into the store-unavailable taxonomy.
func (e *Executor) storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, types.ErrStoreUnavailable) {
		return fmt.Errorf("%s %s: %w", op, e.meta.Keyspace, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, e.meta.Keyspace, types.ErrStoreUnavailable, err)
}
