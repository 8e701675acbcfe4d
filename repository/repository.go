// Package repository is the typed CRUD and derived-query surface
// application code consumes. A Repository composes the path codec, the
// entity converter, the method-name parser and the query executor over a
// single registered entity type.
//
// Derived query methods are declared up front: names passed at
// construction are parsed eagerly, so a repository with a misdeclared
// query fails to construct instead of failing on first call. Names used
// ad hoc through Find and friends are parsed once on first use and cached.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/secrepo/secrepo/convert"
	"github.com/secrepo/secrepo/keypath"
	"github.com/secrepo/secrepo/kvstore"
	"github.com/secrepo/secrepo/parser"
	"github.com/secrepo/secrepo/query"
	"github.com/secrepo/secrepo/registry"
	"github.com/secrepo/secrepo/types"
)

// Option configures a repository under construction.
type Option func(*config)

type config struct {
	queries    []string
	converters []convert.Custom
	regOpts    []registry.Option
	log        *slog.Logger
}

// WithQueries declares derived query method names. They are parsed at
// construction; a name that does not parse makes New fail.
func WithQueries(names ...string) Option {
	return func(c *config) { c.queries = append(c.queries, names...) }
}

// WithConverters adds custom scalar converters applied before the
// default document mapping.
func WithConverters(cs ...convert.Custom) Option {
	return func(c *config) { c.converters = append(c.converters, cs...) }
}

// WithRegistration forwards options to the entity type's registration,
// e.g. registry.WithKeyspace.
func WithRegistration(opts ...registry.Option) Option {
	return func(c *config) { c.regOpts = append(c.regOpts, opts...) }
}

// WithLogger enables query debug logging.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.log = log }
}

// Repository provides typed persistence for one entity type over a
// path-based store. Safe for concurrent use; the only shared mutable
// state is the parsed-descriptor cache, which publishes only fully-built
// descriptors.
type Repository[T any] struct {
	store kvstore.Store
	reg   *registry.Registry
	meta  *registry.Descriptor
	conv  *convert.Converter
	exec  *query.Executor
	cache *parser.Cache

	findAll *types.QueryDescriptor
}

// New builds a repository for T, registering the type if it is not
// registered yet.
func New[T any](store kvstore.Store, reg *registry.Registry, opts ...Option) (*Repository[T], error) {
	var c config
	for _, opt := range opts {
		opt(&c)
	}

	var zero T
	meta, err := reg.Register(zero, c.regOpts...)
	if err != nil {
		return nil, fmt.Errorf("registering %T: %w", zero, err)
	}

	conv := convert.New(reg, convert.WithCustom(c.converters...))
	var execOpts []query.Option
	if c.log != nil {
		execOpts = append(execOpts, query.WithLogger(c.log))
	}

	r := &Repository[T]{
		store: store,
		reg:   reg,
		meta:  meta,
		conv:  conv,
		exec:  query.NewExecutor(store, conv, meta, execOpts...),
		cache: parser.NewCache(),
		findAll: &types.QueryDescriptor{
			Source: "findAll",
			Verb:   types.VerbFind,
			Field:  meta.IDField.GoName,
		},
	}

	// Fail fast: misdeclared queries surface here, not on first call.
	for _, name := range c.queries {
		if _, err := r.descriptor(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Keyspace returns the path prefix the repository operates under.
func (r *Repository[T]) Keyspace() string {
	return r.meta.Keyspace
}

// Save converts the entity and fully replaces the document at its path.
// When the identifier is empty and registered as auto-assignable, a
// generated UUID is written into the entity before saving.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	id := r.meta.ID(entity)
	if id == "" && r.meta.AutoID {
		id = uuid.NewString()
		if err := r.meta.SetID(entity, id); err != nil {
			return err
		}
	}
	path, err := keypath.ToPath(r.meta.Keyspace, id)
	if err != nil {
		return err
	}
	doc, err := r.conv.ToDocument(entity)
	if err != nil {
		return err
	}
	if err := r.store.Write(ctx, path, doc); err != nil {
		return storeError("write", path, err)
	}
	return nil
}

// FindByID fetches one entity by identifier. An absent entry is an empty
// result, not an error.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	path, err := keypath.ToPath(r.meta.Keyspace, id)
	if err != nil {
		return zero, false, err
	}
	doc, err := r.store.Read(ctx, path)
	if errors.Is(err, types.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, storeError("read", path, err)
	}
	entity, err := r.conv.ToEntity(doc, r.meta.GoType)
	if err != nil {
		return zero, false, err
	}
	out, err := r.typed(entity)
	return out, err == nil, err
}

// FindAll lists the keyspace and fetches every entry, in listing order.
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.collect(r.exec.Find(ctx, r.findAll, nil, nil))
}

// Count returns the number of entries under the keyspace. Listing only;
// no document is fetched.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.exec.Count(ctx, r.findAll, nil)
}

// DeleteByID removes the entry for id. Deleting an absent entry is a
// no-op.
func (r *Repository[T]) DeleteByID(ctx context.Context, id string) error {
	path, err := keypath.ToPath(r.meta.Keyspace, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, path); err != nil {
		return storeError("delete", path, err)
	}
	return nil
}

// Delete removes the entry the entity maps to.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	return r.DeleteByID(ctx, r.meta.ID(entity))
}

// DeleteAll removes every entry under the keyspace.
func (r *Repository[T]) DeleteAll(ctx context.Context) error {
	_, err := r.exec.Delete(ctx, r.findAll, nil)
	return err
}

// Find runs a derived find query, e.g.
//
//	repo.Find(ctx, "findByIdStartsWith", "heis")
func (r *Repository[T]) Find(ctx context.Context, method string, args ...any) ([]T, error) {
	qd, err := r.descriptor(method)
	if err != nil {
		return nil, err
	}
	return r.collect(r.exec.Find(ctx, qd, args, nil))
}

// FindOne runs a derived query expected to match at most one entity.
// No match is an empty result, not an error.
func (r *Repository[T]) FindOne(ctx context.Context, method string, args ...any) (T, bool, error) {
	var zero T
	items, err := r.Find(ctx, method, args...)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// FindPaged runs a derived find query with caller-supplied paging and
// sorting. The page's Total is the size of the complete filtered set,
// computed before the window was cut.
func (r *Repository[T]) FindPaged(ctx context.Context, method string, page types.PageRequest, args ...any) (types.Page[T], error) {
	qd, err := r.descriptor(method)
	if err != nil {
		return types.Page[T]{}, err
	}
	raw, total, err := r.exec.FindPaged(ctx, qd, args, &page)
	if err != nil {
		return types.Page[T]{}, err
	}
	items, err := r.collect(raw, nil)
	if err != nil {
		return types.Page[T]{}, err
	}
	return types.Page[T]{Items: items, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// CountBy runs a derived count query, e.g. countByIdStartsWith.
func (r *Repository[T]) CountBy(ctx context.Context, method string, args ...any) (int, error) {
	qd, err := r.descriptor(method)
	if err != nil {
		return 0, err
	}
	return r.exec.Count(ctx, qd, args)
}

// ExistsBy runs a derived existence query, e.g. existsByIdIs.
func (r *Repository[T]) ExistsBy(ctx context.Context, method string, args ...any) (bool, error) {
	qd, err := r.descriptor(method)
	if err != nil {
		return false, err
	}
	return r.exec.Exists(ctx, qd, args)
}

// DeleteBy runs a derived delete query and returns how many entries were
// removed.
func (r *Repository[T]) DeleteBy(ctx context.Context, method string, args ...any) (int, error) {
	qd, err := r.descriptor(method)
	if err != nil {
		return 0, err
	}
	return r.exec.Delete(ctx, qd, args)
}

func (r *Repository[T]) descriptor(method string) (*types.QueryDescriptor, error) {
	return r.cache.Get(method, r.meta.IDField.GoName)
}

func (r *Repository[T]) collect(raw []any, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raw))
	for _, v := range raw {
		item, err := r.typed(v)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository[T]) typed(v any) (T, error) {
	if p, ok := v.(*T); ok {
		return *p, nil
	}
	var zero T
	return zero, fmt.Errorf("store returned %T, expected %T", v, zero)
}

func storeError(op, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, types.ErrStoreUnavailable) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, path, types.ErrStoreUnavailable, err)
}
